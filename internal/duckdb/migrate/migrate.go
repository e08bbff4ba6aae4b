// Package migrate versions the record cache schema. Every applied migration
// is stored with a checksum of its SQL, so a cache file written by a build
// with different schema history is rejected instead of silently reused.
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var embedded embed.FS

var (
	// ErrChecksumMismatch means an applied migration's SQL differs from the
	// one shipped with this build.
	ErrChecksumMismatch = errors.New("migrate: applied migration checksum mismatch")

	// ErrSchemaTooNew means the cache was written by a newer build.
	ErrSchemaTooNew = errors.New("migrate: cache schema is newer than this build")

	// ErrMigrationSet means the shipped migration files are misnumbered.
	ErrMigrationSet = errors.New("migrate: invalid migration set")
)

// Status describes how far a database is behind the shipped schema.
type Status struct {
	Current int
	Latest  int
	Pending int
}

// Runner applies the record cache schema to a DuckDB database.
type Runner struct {
	db     *sql.DB
	source fs.FS
}

// NewRunner creates a migration runner for the given database connection.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db, source: embedded}
}

type migration struct {
	version  int
	name     string
	sql      string
	checksum string
}

// loadMigrations reads migrations/NNN_name.sql from source. Versions must
// run 1..n without gaps or repeats.
func loadMigrations(source fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(source, "migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	var migs []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("%w: %s has no version prefix", ErrMigrationSet, e.Name())
		}
		ver, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("%w: version of %s: %v", ErrMigrationSet, e.Name(), err)
		}
		data, err := fs.ReadFile(source, path.Join("migrations", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(data)
		migs = append(migs, migration{
			version:  ver,
			name:     e.Name(),
			sql:      string(data),
			checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(migs, func(i, j int) bool { return migs[i].version < migs[j].version })
	for i, m := range migs {
		if m.version != i+1 {
			return nil, fmt.Errorf("%w: %s should be version %d", ErrMigrationSet, m.name, i+1)
		}
	}
	return migs, nil
}

func (r *Runner) bootstrap(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		checksum   VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`)
	return err
}

// applied returns the recorded checksum of every applied version.
func (r *Runner) applied(ctx context.Context) (map[int]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var (
			v   int
			sum string
		)
		if err := rows.Scan(&v, &sum); err != nil {
			return nil, err
		}
		out[v] = sum
	}
	return out, rows.Err()
}

// check compares the database history with migs and returns the applied
// version.
func check(applied map[int]string, migs []migration) (int, error) {
	current := 0
	for v := range applied {
		current = max(current, v)
	}
	if current > len(migs) {
		return current, fmt.Errorf("%w: version %d, build ships %d", ErrSchemaTooNew, current, len(migs))
	}
	for _, m := range migs[:current] {
		sum, ok := applied[m.version]
		if !ok {
			return current, fmt.Errorf("%w: %s was never recorded", ErrChecksumMismatch, m.name)
		}
		if sum != m.checksum {
			return current, fmt.Errorf("%w: %s", ErrChecksumMismatch, m.name)
		}
	}
	return current, nil
}

func (r *Runner) prepare(ctx context.Context) ([]migration, int, error) {
	if err := r.bootstrap(ctx); err != nil {
		return nil, 0, fmt.Errorf("bootstrap schema_migrations: %w", err)
	}
	migs, err := loadMigrations(r.source)
	if err != nil {
		return nil, 0, err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("reading applied migrations: %w", err)
	}
	current, err := check(applied, migs)
	if err != nil {
		return nil, 0, err
	}
	return migs, current, nil
}

// Run verifies the applied history and then applies pending migrations in
// order, each in its own transaction.
func (r *Runner) Run(ctx context.Context) error {
	migs, current, err := r.prepare(ctx)
	if err != nil {
		return err
	}

	for _, m := range migs[current:] {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, checksum) VALUES (?, ?, ?)`,
			m.version, m.name, m.checksum); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", m.name, err)
		}
	}
	return nil
}

// Status verifies the applied history and reports what Run would do.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	migs, current, err := r.prepare(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Current: current, Latest: len(migs), Pending: len(migs) - current}, nil
}
