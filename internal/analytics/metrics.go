package analytics

import "github.com/tinytelemetry/logdeck/internal/model"

// Metrics are the headline numbers of the analytics page.
type Metrics struct {
	Total             int64                `json:"total"`
	ErrorRate         float64              `json:"errorRate"` // percentage, 0 when empty
	MostActiveService model.DimensionCount `json:"mostActiveService"`
	ErrorHotspot      model.DimensionCount `json:"errorHotspot"`
	PeakBucket        model.TrendBucket    `json:"peakBucket"`
}

// KeyMetrics derives Metrics from records; the peak bucket is taken from w.
// Empty dimensions are reported as zero values.
func KeyMetrics(records []model.LogRecord, w TrendWindow) Metrics {
	sum := Summarize(records, w)
	m := Metrics{Total: sum.Total}

	if sum.Total > 0 {
		m.ErrorRate = float64(sum.Levels[model.LevelError]) / float64(sum.Total) * 100
	}
	if top := rank(sum.Services, 1); len(top) > 0 {
		m.MostActiveService = top[0]
	}

	errorsByService := make(map[string]int64)
	for _, r := range records {
		if r.Level == model.LevelError {
			errorsByService[r.Service]++
		}
	}
	if top := rank(errorsByService, 1); len(top) > 0 {
		m.ErrorHotspot = top[0]
	}

	for i, b := range sum.Buckets {
		// First bucket wins ties so the peak is stable.
		if i == 0 || b.Total > m.PeakBucket.Total {
			m.PeakBucket = b
		}
	}
	return m
}
