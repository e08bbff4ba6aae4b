// Package analytics derives distributions and time-bucketed trends from a
// record slice. Callers decide whether to pass the full base set or a
// filtered subset; every function is pure.
package analytics

import (
	"sort"
	"time"

	"github.com/tinytelemetry/logdeck/internal/model"
)

// TrendWindow partitions time into BucketCount contiguous buckets of
// BucketSpan starting at Start. With Calendar set, buckets are whole
// calendar days in Start's location, so a bucket is 23h or 25h long on a
// DST transition day.
type TrendWindow struct {
	Start       time.Time     `json:"start"`
	BucketCount int           `json:"bucketCount"`
	BucketSpan  time.Duration `json:"bucketSpan"`
	Calendar    bool          `json:"calendar,omitempty"`
}

// End returns the exclusive upper bound of the window.
func (w TrendWindow) End() time.Time {
	return w.bucketStart(w.BucketCount)
}

// Valid reports whether the window has at least one non-empty bucket.
func (w TrendWindow) Valid() bool {
	return w.BucketCount > 0 && w.BucketSpan > 0
}

// Contains reports whether ts falls inside [Start, End).
func (w TrendWindow) Contains(ts time.Time) bool {
	return w.Valid() && !ts.Before(w.Start) && ts.Before(w.End())
}

func (w TrendWindow) calendarDays() int {
	if !w.Calendar || w.BucketSpan < 24*time.Hour {
		return 0
	}
	return int(w.BucketSpan / (24 * time.Hour))
}

func (w TrendWindow) bucketStart(i int) time.Time {
	if days := w.calendarDays(); days > 0 {
		y, m, d := w.Start.Date()
		return time.Date(y, m, d+i*days, 0, 0, 0, 0, w.Start.Location())
	}
	return w.Start.Add(time.Duration(i) * w.BucketSpan)
}

// bucketIndex returns the bucket for ts, or -1 when ts is outside the window.
func (w TrendWindow) bucketIndex(ts time.Time) int {
	if !w.Contains(ts) {
		return -1
	}
	idx := int(ts.Sub(w.Start) / w.BucketSpan)
	if w.calendarDays() == 0 {
		return idx
	}
	// calendar buckets drift from fixed spans by at most an hour per transition
	idx = min(idx, w.BucketCount-1)
	for idx > 0 && ts.Before(w.bucketStart(idx)) {
		idx--
	}
	for idx+1 < w.BucketCount && !ts.Before(w.bucketStart(idx+1)) {
		idx++
	}
	return idx
}

// TotalCount returns the number of records.
func TotalCount(records []model.LogRecord) int64 {
	return int64(len(records))
}

// LevelDistribution counts records per level. All four levels are always present.
func LevelDistribution(records []model.LogRecord) map[model.Level]int64 {
	counts := zeroLevels()
	for _, r := range records {
		counts[r.Level]++
	}
	return counts
}

// ServiceDistribution counts records per observed service.
func ServiceDistribution(records []model.LogRecord) map[string]int64 {
	counts := make(map[string]int64)
	for _, r := range records {
		counts[r.Service]++
	}
	return counts
}

// TopServices returns the service distribution ordered by count descending,
// then name ascending. A limit <= 0 returns every service.
func TopServices(records []model.LogRecord, limit int) []model.DimensionCount {
	return rank(ServiceDistribution(records), limit)
}

// HourlyTrend buckets records into w. It always returns w.BucketCount buckets
// (empty ones included); records outside the window are skipped.
func HourlyTrend(records []model.LogRecord, w TrendWindow) []model.TrendBucket {
	buckets := emptyBuckets(w)
	for _, r := range records {
		addToBucket(buckets, w, r)
	}
	return buckets
}

// Summarize computes every aggregate in a single pass.
func Summarize(records []model.LogRecord, w TrendWindow) model.AggregationResult {
	res := model.AggregationResult{
		Levels:   zeroLevels(),
		Services: make(map[string]int64),
		Buckets:  emptyBuckets(w),
	}
	for _, r := range records {
		res.Total++
		res.Levels[r.Level]++
		res.Services[r.Service]++
		addToBucket(res.Buckets, w, r)
	}
	return res
}

func addToBucket(buckets []model.TrendBucket, w TrendWindow, r model.LogRecord) {
	idx := w.bucketIndex(r.Timestamp)
	if idx < 0 {
		return
	}
	buckets[idx].Total++
	buckets[idx].Levels[r.Level]++
}

func emptyBuckets(w TrendWindow) []model.TrendBucket {
	if !w.Valid() {
		return []model.TrendBucket{}
	}
	buckets := make([]model.TrendBucket, w.BucketCount)
	for i := range buckets {
		start := w.bucketStart(i)
		buckets[i] = model.TrendBucket{
			Label:  bucketLabel(start, w.BucketSpan),
			Start:  start,
			Levels: zeroLevels(),
		}
	}
	return buckets
}

func bucketLabel(start time.Time, span time.Duration) string {
	if span >= 24*time.Hour {
		return start.Format("2006-01-02")
	}
	return start.Format("15:04")
}

func zeroLevels() map[model.Level]int64 {
	counts := make(map[model.Level]int64, 4)
	for _, lvl := range model.AllLevels() {
		counts[lvl] = 0
	}
	return counts
}

func rank(counts map[string]int64, limit int) []model.DimensionCount {
	out := make([]model.DimensionCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, model.DimensionCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
