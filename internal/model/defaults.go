package model

import "time"

// Shared defaults used by both the service and CLI binaries.
const (
	DefaultRefreshInterval = 30 * time.Second
	DefaultPageSize        = 100
	DefaultLiveBuffer      = 1000
)
