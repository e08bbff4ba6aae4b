package fixture

import (
	"fmt"
	"time"

	"github.com/tinytelemetry/logdeck/internal/model"
)

// LevelMix builds a deterministic record set with exactly counts[level]
// records per level. Levels are interleaved round-robin in severity order and
// timestamps advance one minute per record from start, so the result is
// already in canonical order. Services rotate through DefaultServices.
func LevelMix(start time.Time, counts map[model.Level]int) []model.LogRecord {
	remaining := make(map[model.Level]int, len(counts))
	total := 0
	for lvl, n := range counts {
		remaining[lvl] = n
		total += n
	}

	records := make([]model.LogRecord, 0, total)
	for len(records) < total {
		for _, lvl := range model.AllLevels() {
			if remaining[lvl] == 0 {
				continue
			}
			remaining[lvl]--
			i := len(records)
			records = append(records, model.LogRecord{
				ID:        fmt.Sprintf("rec-%03d", i+1),
				Level:     lvl,
				Message:   DefaultMessages[i%len(DefaultMessages)],
				Service:   DefaultServices[i%len(DefaultServices)],
				Timestamp: start.Add(time.Duration(i) * time.Minute).UTC(),
				Metadata:  map[string]any{"requestId": fmt.Sprintf("req-%d", i+1)},
			})
		}
	}
	return records
}
