package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tinytelemetry/logdeck/internal/model"
)

var _ model.RecordStore = (*Store)(nil)

const insertRecordSQL = `INSERT OR IGNORE INTO records (id, timestamp, level, service, message, metadata) VALUES (?, ?, ?, ?, ?, ?)`

// ReplaceRecords swaps the cached base set for records in one transaction.
func (s *Store) ReplaceRecords(records []model.LogRecord) error {
	ctx, cancel := s.queryContext()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	if err := insertRecordsTx(ctx, tx, records); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// AppendRecords adds records to the cache. Records whose id is already cached
// are skipped. If the batch fails it is retried record-by-record to salvage
// as many records as possible.
func (s *Store) AppendRecords(records []model.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := s.queryContext()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.appendTx(ctx, records)
	if err == nil {
		return nil
	}

	// Batch failed, retry record-by-record to salvage what we can.
	var failed int
	for _, r := range records {
		if rerr := s.appendTx(ctx, []model.LogRecord{r}); rerr != nil {
			failed++
			log.Printf("duckdb: dropping record (id=%s service=%s): %v", r.ID, r.Service, rerr)
		}
	}
	if failed > 0 {
		log.Printf("duckdb: batch partially failed: %d/%d records dropped", failed, len(records))
	}
	return nil
}

func (s *Store) appendTx(ctx context.Context, records []model.LogRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := insertRecordsTx(ctx, tx, records); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func insertRecordsTx(ctx context.Context, tx *sql.Tx, records []model.LogRecord) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		metadata := []byte("{}")
		if len(r.Metadata) > 0 {
			if data, merr := json.Marshal(r.Metadata); merr != nil {
				log.Printf("duckdb: failed to marshal metadata for %s, using empty: %v", r.ID, merr)
			} else {
				metadata = data
			}
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Timestamp.UTC(), string(r.Level), r.Service, r.Message, string(metadata),
		); err != nil {
			return fmt.Errorf("record insert %s: %w", r.ID, err)
		}
	}
	return nil
}

// LoadRecords returns every cached record ordered by timestamp.
func (s *Store) LoadRecords() ([]model.LogRecord, error) {
	ctx, cancel := s.queryContext()
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, level, service, message, metadata FROM records ORDER BY timestamp, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]model.LogRecord, 0)
	for rows.Next() {
		var (
			r        model.LogRecord
			level    string
			metadata string
		)
		if err := rows.Scan(&r.ID, &r.Timestamp, &level, &r.Service, &r.Message, &metadata); err != nil {
			return nil, err
		}
		r.Level = model.Level(level)
		r.Timestamp = r.Timestamp.UTC()
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &r.Metadata); err != nil {
				log.Printf("duckdb: ignoring unreadable metadata for %s: %v", r.ID, err)
				r.Metadata = nil
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountRecords returns the number of cached records.
func (s *Store) CountRecords() (int64, error) {
	ctx, cancel := s.queryContext()
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return countRecords(ctx, s.db)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countRecords(ctx context.Context, q rowQuerier) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}

// LevelCounts returns cached record counts per level, all four levels present.
func (s *Store) LevelCounts() (map[model.Level]int64, error) {
	ctx, cancel := s.queryContext()
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT level, COUNT(*) FROM records GROUP BY level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.Level]int64, 4)
	for _, lvl := range model.AllLevels() {
		counts[lvl] = 0
	}
	for rows.Next() {
		var (
			level string
			n     int64
		)
		if err := rows.Scan(&level, &n); err != nil {
			return nil, err
		}
		counts[model.Level(level)] = n
	}
	return counts, rows.Err()
}

// DeleteBefore removes cached records older than cutoff and returns how many
// were deleted.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	ctx, cancel := s.queryContext()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM fetch_log WHERE fetched_at < ?`, cutoff.UTC()); err != nil {
		return 0, fmt.Errorf("prune fetch log: %w", err)
	}
	return res.RowsAffected()
}

// FetchEntry is one row of the refresh history.
type FetchEntry struct {
	FetchedAt time.Time `json:"fetchedAt" yaml:"fetched_at"`
	Source    string    `json:"source" yaml:"source"`
	Accepted  int       `json:"accepted" yaml:"accepted"`
	Rejected  int       `json:"rejected" yaml:"rejected"`
}

// RecordFetch appends an entry to the refresh history.
func (s *Store) RecordFetch(e FetchEntry) error {
	ctx, cancel := s.queryContext()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fetch_log (fetched_at, source, accepted, rejected) VALUES (?, ?, ?, ?)`,
		e.FetchedAt.UTC(), e.Source, e.Accepted, e.Rejected)
	return err
}

// LastFetch returns the most recent refresh, or ok=false when none was recorded.
func (s *Store) LastFetch() (FetchEntry, bool, error) {
	ctx, cancel := s.queryContext()
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastFetch(ctx, s.db)
}

func lastFetch(ctx context.Context, q rowQuerier) (FetchEntry, bool, error) {
	var e FetchEntry
	err := q.QueryRowContext(ctx,
		`SELECT fetched_at, source, accepted, rejected FROM fetch_log ORDER BY fetched_at DESC LIMIT 1`,
	).Scan(&e.FetchedAt, &e.Source, &e.Accepted, &e.Rejected)
	if errors.Is(err, sql.ErrNoRows) {
		return FetchEntry{}, false, nil
	}
	if err != nil {
		return FetchEntry{}, false, err
	}
	e.FetchedAt = e.FetchedAt.UTC()
	return e, true, nil
}
