package model

import (
	"sort"
	"time"
)

// Level is the severity of a log record.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
	LevelDebug   Level = "debug"
)

// All is the criteria sentinel that disables the level and service predicates.
const All = "all"

// AllLevels returns every level in severity order, most severe first.
func AllLevels() []Level {
	return []Level{LevelError, LevelWarning, LevelInfo, LevelDebug}
}

// Valid reports whether l is one of the four defined levels.
func (l Level) Valid() bool {
	switch l {
	case LevelError, LevelWarning, LevelInfo, LevelDebug:
		return true
	}
	return false
}

// Rank orders levels by severity: error is 0, debug is 3. Unknown levels rank last.
func (l Level) Rank() int {
	for i, lvl := range AllLevels() {
		if lvl == l {
			return i
		}
	}
	return len(AllLevels())
}

// LogRecord represents a single log entry as received from the log API.
// It is the canonical type for filtering, aggregation, export and the record cache.
type LogRecord struct {
	ID        string         `json:"id"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Service   string         `json:"service"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy of r that shares no mutable state with it.
func (r LogRecord) Clone() LogRecord {
	out := r
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// SortByTimestamp returns a new slice ordered by ascending timestamp.
// Records with equal timestamps keep their input order.
func SortByTimestamp(records []LogRecord) []LogRecord {
	out := make([]LogRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// DimensionCount represents grouped counts by a single dimension value
// (for example service).
type DimensionCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// TrendBucket holds record counts for one fixed-width time window.
type TrendBucket struct {
	Label  string          `json:"label"`
	Start  time.Time       `json:"start"`
	Total  int64           `json:"total"`
	Levels map[Level]int64 `json:"levels"`
}

// AggregationResult is derived from a record slice and never persisted.
type AggregationResult struct {
	Levels   map[Level]int64  `json:"levels"`
	Services map[string]int64 `json:"services"`
	Buckets  []TrendBucket    `json:"buckets"`
	Total    int64            `json:"total"`
}
