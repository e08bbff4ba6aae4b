package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/logdeck/internal/duckdb/migrate"
)

var (
	// ErrInMemoryStore indicates the store uses an in-memory DB and cannot be snapshotted.
	ErrInMemoryStore = errors.New("duckdb: in-memory store cannot be snapshotted")

	// ErrSnapshotMismatch means the copied file does not hold the records
	// the cache held at checkpoint time.
	ErrSnapshotMismatch = errors.New("duckdb: snapshot does not match cache")
)

// SnapshotManifest is written next to every snapshot. It records what the
// cache held when the snapshot was taken, so a restore can tell how stale
// the copy is without opening it.
type SnapshotManifest struct {
	TakenAt   time.Time   `yaml:"taken_at"`
	Schema    int         `yaml:"schema_version"`
	Records   int64       `yaml:"records"`
	LastFetch *FetchEntry `yaml:"last_fetch,omitempty"`
}

// ManifestPath returns the sidecar path for a snapshot file.
func ManifestPath(snapshotPath string) string {
	return snapshotPath + ".yaml"
}

// ReadSnapshotManifest loads the sidecar written by SnapshotTo.
func ReadSnapshotManifest(snapshotPath string) (SnapshotManifest, error) {
	var m SnapshotManifest
	data, err := os.ReadFile(ManifestPath(snapshotPath))
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse snapshot manifest: %w", err)
	}
	return m, nil
}

// DBPath returns the configured DuckDB path. Empty means in-memory DB.
func (s *Store) DBPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dbPath
}

// SnapshotTo checkpoints the cache, copies its file to dstPath and checks
// that the copy holds as many records as the cache did at the checkpoint.
// A verified copy gets a manifest stamped with the last refresh; a copy that
// fails verification is removed.
func (s *Store) SnapshotTo(dstPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	manifest, dbPath, err := s.checkpoint()
	if err != nil {
		return err
	}

	if err := copyFile(dbPath, dstPath); err != nil {
		return fmt.Errorf("copy cache file: %w", err)
	}

	ctx, cancel := s.queryContext()
	defer cancel()
	got, err := countSnapshot(ctx, dstPath)
	if err == nil && got != manifest.Records {
		err = fmt.Errorf("%w: copy has %d records, cache had %d", ErrSnapshotMismatch, got, manifest.Records)
	}
	if err != nil {
		_ = os.Remove(dstPath)
		return fmt.Errorf("verify snapshot: %w", err)
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode snapshot manifest: %w", err)
	}
	if err := os.WriteFile(ManifestPath(dstPath), data, 0644); err != nil {
		return fmt.Errorf("write snapshot manifest: %w", err)
	}
	return nil
}

// checkpoint flushes the WAL and reads the manifest fields under the write
// lock so they describe exactly what the flushed file contains.
func (s *Store) checkpoint() (SnapshotManifest, string, error) {
	ctx, cancel := s.queryContext()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dbPath == "" {
		return SnapshotManifest{}, "", ErrInMemoryStore
	}
	if _, err := s.db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return SnapshotManifest{}, "", fmt.Errorf("checkpoint: %w", err)
	}

	m := SnapshotManifest{TakenAt: time.Now().UTC()}
	st, err := migrate.NewRunner(s.db).Status(ctx)
	if err != nil {
		return SnapshotManifest{}, "", fmt.Errorf("schema status: %w", err)
	}
	m.Schema = st.Current
	n, err := countRecords(ctx, s.db)
	if err != nil {
		return SnapshotManifest{}, "", fmt.Errorf("count records: %w", err)
	}
	m.Records = n
	last, ok, err := lastFetch(ctx, s.db)
	if err != nil {
		return SnapshotManifest{}, "", fmt.Errorf("read fetch log: %w", err)
	}
	if ok {
		m.LastFetch = &last
	}
	return m, s.dbPath, nil
}

// RestoreSnapshot replaces the cache file at dbPath with a snapshot taken
// by SnapshotTo. The cache must not be open. The restored file is opened
// once to apply pending migrations and to check it against the manifest.
func RestoreSnapshot(snapshotPath, dbPath string) (SnapshotManifest, error) {
	if dbPath == "" {
		return SnapshotManifest{}, ErrInMemoryStore
	}
	m, err := ReadSnapshotManifest(snapshotPath)
	if err != nil {
		return SnapshotManifest{}, fmt.Errorf("read snapshot manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return m, fmt.Errorf("create cache dir: %w", err)
	}
	if err := copyFile(snapshotPath, dbPath); err != nil {
		return m, fmt.Errorf("copy snapshot: %w", err)
	}
	// a WAL left by the replaced cache would be replayed over the snapshot
	if err := os.Remove(dbPath + ".wal"); err != nil && !os.IsNotExist(err) {
		return m, fmt.Errorf("remove stale wal: %w", err)
	}

	store, err := NewStore(dbPath)
	if err != nil {
		return m, fmt.Errorf("open restored cache: %w", err)
	}
	defer store.Close()
	n, err := store.CountRecords()
	if err != nil {
		return m, fmt.Errorf("count restored records: %w", err)
	}
	if n != m.Records {
		return m, fmt.Errorf("%w: restored %d records, manifest lists %d", ErrSnapshotMismatch, n, m.Records)
	}
	return m, nil
}

// SchemaStatus reports the cache schema version.
func (s *Store) SchemaStatus() (migrate.Status, error) {
	ctx, cancel := s.queryContext()
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return migrate.NewRunner(s.db).Status(ctx)
}

func countSnapshot(ctx context.Context, path string) (int64, error) {
	db, err := sql.Open("duckdb", path+"?access_mode=read_only")
	if err != nil {
		return 0, err
	}
	defer db.Close()
	return countRecords(ctx, db)
}

func copyFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := dstPath + ".tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dstPath)
}
