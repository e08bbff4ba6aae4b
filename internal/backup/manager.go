// Package backup keeps rotating local copies of the record cache so a
// corrupted cache file can be restored without waiting for a full refetch.
package backup

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tinytelemetry/logdeck/internal/duckdb"
)

const (
	defaultInterval = 6 * time.Hour
	defaultKeepLast = 24

	filePrefix = "logdeck-"
	fileSuffix = ".duckdb"
)

// ErrDisabled is returned by NewManager when backups are turned off.
var ErrDisabled = errors.New("backup: disabled")

// Manager snapshots the cache on a schedule and prunes old copies.
type Manager struct {
	store Snapshotter
	cfg   Config
	cron  *cron.Cron
	now   func() time.Time

	mu       sync.Mutex // serializes snapshots
	stopOnce sync.Once
}

// NewManager validates cfg and takes a startup snapshot. Call Start to begin
// the periodic schedule.
func NewManager(store Snapshotter, cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if store == nil {
		return nil, fmt.Errorf("backup: nil snapshotter")
	}
	if strings.TrimSpace(store.DBPath()) == "" {
		return nil, fmt.Errorf("backup: db-path is empty (in-memory store)")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("backup: dir is required when backup is enabled")
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("backup: create dir: %w", err)
	}

	logger := cron.PrintfLogger(log.Default())
	m := &Manager{
		store: store,
		cfg:   cfg,
		cron:  cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger))),
		now:   time.Now,
	}
	if _, err := m.cron.AddFunc("@every "+cfg.Interval.String(), m.tick); err != nil {
		return nil, fmt.Errorf("backup: schedule: %w", err)
	}

	// Startup snapshot to reduce recovery point after restarts.
	if _, err := m.RunOnce(); err != nil {
		log.Printf("backup: startup snapshot failed: %v", err)
	}
	return m, nil
}

// Start begins the periodic schedule.
func (m *Manager) Start() {
	m.cron.Start()
}

func (m *Manager) tick() {
	if _, err := m.RunOnce(); err != nil {
		log.Printf("backup: periodic snapshot failed: %v", err)
	}
}

// RunOnce creates one snapshot, prunes old copies and returns the new path.
func (m *Manager) RunOnce() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := filePrefix + m.now().UTC().Format("20060102-150405") + fileSuffix
	path := filepath.Join(m.cfg.Dir, name)

	if err := m.store.SnapshotTo(path); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	log.Printf("backup: created snapshot %s", path)

	if err := pruneBackups(m.cfg.Dir, m.cfg.KeepLast); err != nil {
		return path, fmt.Errorf("prune backups: %w", err)
	}
	return path, nil
}

// List returns existing snapshots, newest first.
func (m *Manager) List() ([]string, error) {
	return listBackups(m.cfg.Dir)
}

// Stop ends the schedule and waits for a running snapshot.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		<-m.cron.Stop().Done()
	})
}

func listBackups(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	// timestamp is embedded in filename and lexical sort matches chronology
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

func pruneBackups(dir string, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}
	matches, err := listBackups(dir)
	if err != nil {
		return err
	}
	if len(matches) <= keepLast {
		return nil
	}
	for _, oldPath := range matches[keepLast:] {
		for _, p := range []string{oldPath, duckdb.ManifestPath(oldPath)} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}
