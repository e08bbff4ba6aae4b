package duckdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSnapshotTo_CreatesBackupFile(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "logdeck.duckdb")
	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.ReplaceRecords(testRecords(3, t0)); err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}

	snapshotPath := filepath.Join(t.TempDir(), "backups", "snapshot.duckdb")
	if err := store.SnapshotTo(snapshotPath); err != nil {
		t.Fatalf("SnapshotTo: %v", err)
	}

	info, err := os.Stat(snapshotPath)
	if err != nil {
		t.Fatalf("stat snapshot: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("snapshot file is empty")
	}

	restored, err := NewStore(snapshotPath)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer restored.Close()
	if n, _ := restored.CountRecords(); n != 3 {
		t.Errorf("snapshot holds %d records, want 3", n)
	}
}

func TestSnapshotTo_InMemoryStore(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	err := store.SnapshotTo(filepath.Join(t.TempDir(), "snapshot.duckdb"))
	if !errors.Is(err, ErrInMemoryStore) {
		t.Fatalf("err = %v, want %v", err, ErrInMemoryStore)
	}
}

func TestSnapshotTo_WritesManifest(t *testing.T) {
	t.Parallel()

	store, err := NewStore(filepath.Join(t.TempDir(), "logdeck.duckdb"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.ReplaceRecords(testRecords(5, t0)); err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}
	fetched := FetchEntry{FetchedAt: t0.Add(time.Minute), Source: "api", Accepted: 5, Rejected: 1}
	if err := store.RecordFetch(fetched); err != nil {
		t.Fatalf("RecordFetch: %v", err)
	}

	snapshotPath := filepath.Join(t.TempDir(), "snapshot.duckdb")
	if err := store.SnapshotTo(snapshotPath); err != nil {
		t.Fatalf("SnapshotTo: %v", err)
	}

	m, err := ReadSnapshotManifest(snapshotPath)
	if err != nil {
		t.Fatalf("ReadSnapshotManifest: %v", err)
	}
	if m.Records != 5 {
		t.Errorf("manifest records = %d, want 5", m.Records)
	}
	if m.Schema == 0 {
		t.Error("manifest has no schema version")
	}
	if m.LastFetch == nil {
		t.Fatal("manifest has no last fetch")
	}
	if !m.LastFetch.FetchedAt.Equal(fetched.FetchedAt) || m.LastFetch.Source != "api" || m.LastFetch.Rejected != 1 {
		t.Errorf("manifest last fetch = %+v, want %+v", *m.LastFetch, fetched)
	}
	if m.TakenAt.IsZero() {
		t.Error("manifest has no timestamp")
	}
}

func TestSnapshotTo_ManifestWithoutFetch(t *testing.T) {
	t.Parallel()

	store, err := NewStore(filepath.Join(t.TempDir(), "logdeck.duckdb"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	snapshotPath := filepath.Join(t.TempDir(), "empty.duckdb")
	if err := store.SnapshotTo(snapshotPath); err != nil {
		t.Fatalf("SnapshotTo: %v", err)
	}
	m, err := ReadSnapshotManifest(snapshotPath)
	if err != nil {
		t.Fatalf("ReadSnapshotManifest: %v", err)
	}
	if m.Records != 0 || m.LastFetch != nil {
		t.Errorf("manifest = %+v, want empty", m)
	}
}

func TestCountSnapshotRejectsForeignFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "garbage.duckdb")
	if err := os.WriteFile(path, []byte("not a database"), 0644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := countSnapshot(ctx, path); err == nil {
		t.Fatal("counted records in a file that is not a database")
	}
}

func TestRestoreSnapshot_RollsCacheBack(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "logdeck.duckdb")
	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.ReplaceRecords(testRecords(3, t0)); err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}
	snapshotPath := filepath.Join(t.TempDir(), "snapshot.duckdb")
	if err := store.SnapshotTo(snapshotPath); err != nil {
		t.Fatalf("SnapshotTo: %v", err)
	}
	if err := store.ReplaceRecords(testRecords(8, t0)); err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	m, err := RestoreSnapshot(snapshotPath, dbPath)
	if err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}
	if m.Records != 3 {
		t.Errorf("manifest records = %d, want 3", m.Records)
	}

	restored, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer restored.Close()
	if n, _ := restored.CountRecords(); n != 3 {
		t.Errorf("restored cache holds %d records, want 3", n)
	}
	st, err := restored.SchemaStatus()
	if err != nil {
		t.Fatalf("SchemaStatus: %v", err)
	}
	if st.Pending != 0 || st.Current != m.Schema {
		t.Errorf("schema status = %+v, manifest schema %d", st, m.Schema)
	}
}

func TestRestoreSnapshot_RequiresManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "bare.duckdb")
	if err := os.WriteFile(snapshotPath, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := RestoreSnapshot(snapshotPath, filepath.Join(dir, "cache.duckdb")); err == nil {
		t.Fatal("restored a snapshot without a manifest")
	}
	if _, err := os.Stat(filepath.Join(dir, "cache.duckdb")); !os.IsNotExist(err) {
		t.Fatalf("cache file written despite missing manifest: %v", err)
	}
}
