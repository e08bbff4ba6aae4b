package duckdb

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// RetentionConfig holds configuration for the retention cleaner.
type RetentionConfig struct {
	RetentionDays int
	Interval      time.Duration // defaults to 1h
}

// RetentionCleaner periodically deletes cached records older than the
// retention period chosen on the settings page.
type RetentionCleaner struct {
	store         *Store
	retentionDays atomic.Int64
	interval      time.Duration
	now           func() time.Time
	done          chan struct{}
	wg            sync.WaitGroup
	stopOnce      sync.Once
}

// NewRetentionCleaner creates a retention cleaner that deletes expired records.
// Returns nil when retention is 0 (disabled).
func NewRetentionCleaner(store *Store, conf ...RetentionConfig) *RetentionCleaner {
	days := 30
	interval := time.Hour
	if len(conf) > 0 {
		days = conf[0].RetentionDays
		if conf[0].Interval > 0 {
			interval = conf[0].Interval
		}
	}
	if days <= 0 {
		return nil
	}

	rc := &RetentionCleaner{
		store:    store,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	rc.retentionDays.Store(int64(days))

	// Startup cleanup to catch up after downtime.
	rc.Cleanup()

	rc.wg.Add(1)
	go rc.tickLoop()

	return rc
}

// SetRetentionDays changes the retention period used by the next cleanup.
// Values <= 0 are ignored.
func (rc *RetentionCleaner) SetRetentionDays(days int) {
	if days > 0 {
		rc.retentionDays.Store(int64(days))
	}
}

func (rc *RetentionCleaner) tickLoop() {
	defer rc.wg.Done()
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.Cleanup()
		case <-rc.done:
			return
		}
	}
}

// Cleanup deletes expired records now and returns how many were removed.
func (rc *RetentionCleaner) Cleanup() int64 {
	days := rc.retentionDays.Load()
	cutoff := rc.now().Add(-time.Duration(days) * 24 * time.Hour)

	rows, err := rc.store.DeleteBefore(cutoff)
	if err != nil {
		log.Printf("duckdb: retention cleanup error: %v", err)
		return 0
	}
	if rows > 0 {
		log.Printf("duckdb: retention cleanup deleted %d expired records (older than %d days)", rows, days)
	}
	return rows
}

// Stop signals the cleaner to stop and waits for it to finish.
func (rc *RetentionCleaner) Stop() {
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
