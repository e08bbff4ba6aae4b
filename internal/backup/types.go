package backup

import "time"

// Config controls periodic record cache snapshots.
type Config struct {
	Enabled  bool
	Interval time.Duration
	Dir      string
	KeepLast int
}

// Snapshotter is the minimal cache snapshot contract used by Manager.
type Snapshotter interface {
	DBPath() string
	SnapshotTo(dstPath string) error
}
