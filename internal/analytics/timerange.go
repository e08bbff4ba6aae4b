package analytics

import (
	"fmt"
	"time"
)

// TimeRange is one of the analytics page's preset look-back windows.
type TimeRange string

const (
	LastHour  TimeRange = "1h"
	LastDay   TimeRange = "24h"
	LastWeek  TimeRange = "7d"
	LastMonth TimeRange = "30d"
)

// DefaultTimeRange is used when a caller does not pick one.
const DefaultTimeRange = LastDay

var timeRangeShapes = map[TimeRange]struct {
	count int
	span  time.Duration
}{
	LastHour:  {60, time.Minute},
	LastDay:   {24, time.Hour},
	LastWeek:  {7, 24 * time.Hour},
	LastMonth: {30, 24 * time.Hour},
}

// ParseTimeRange validates s. An empty string selects DefaultTimeRange.
func ParseTimeRange(s string) (TimeRange, error) {
	if s == "" {
		return DefaultTimeRange, nil
	}
	tr := TimeRange(s)
	if _, ok := timeRangeShapes[tr]; !ok {
		return "", fmt.Errorf("analytics: unknown time range %q (want 1h, 24h, 7d or 30d)", s)
	}
	return tr, nil
}

// Window returns the trend window whose last bucket contains now. Bucket
// boundaries follow the wall clock of now's location: a 24h range yields 24
// whole local hours and a 7d range seven calendar days.
func (tr TimeRange) Window(now time.Time) TrendWindow {
	shape, ok := timeRangeShapes[tr]
	if !ok {
		shape = timeRangeShapes[DefaultTimeRange]
	}

	if shape.span >= 24*time.Hour {
		days := int(shape.span / (24 * time.Hour))
		y, m, d := now.Date()
		return TrendWindow{
			Start:       time.Date(y, m, d-(shape.count-1)*days, 0, 0, 0, 0, now.Location()),
			BucketCount: shape.count,
			BucketSpan:  shape.span,
			Calendar:    true,
		}
	}

	lastStart := truncateLocal(now, shape.span)
	return TrendWindow{
		Start:       lastStart.Add(-time.Duration(shape.count-1) * shape.span),
		BucketCount: shape.count,
		BucketSpan:  shape.span,
	}
}

// truncateLocal rounds t down to a multiple of span on its local wall clock.
// time.Truncate works on absolute time, which misaligns zones with
// half-hour offsets.
func truncateLocal(t time.Time, span time.Duration) time.Time {
	_, offset := t.Zone()
	shift := time.Duration(offset) * time.Second
	return t.Add(shift).Truncate(span).Add(-shift)
}

// DayWindow returns 24 hourly buckets covering the calendar day of t in t's location.
func DayWindow(t time.Time) TrendWindow {
	y, m, d := t.Date()
	return TrendWindow{
		Start:       time.Date(y, m, d, 0, 0, 0, 0, t.Location()),
		BucketCount: 24,
		BucketSpan:  time.Hour,
	}
}
