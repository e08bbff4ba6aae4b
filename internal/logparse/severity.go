package logparse

import (
	"strconv"
	"strings"

	"github.com/tinytelemetry/logdeck/internal/model"
)

// ParseLevel maps the many spellings log producers use onto the four dashboard
// levels. Unlike a display-side normalizer it does not guess: anything it does
// not recognize is reported as not ok so the record can be rejected.
func ParseLevel(severity string) (model.Level, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(severity))

	switch normalized {
	case "ERROR", "ERR", "ERRO", "FATAL", "FATL", "FTL", "CRITICAL", "CRIT", "CRT", "PANIC", "PNC":
		return model.LevelError, true
	case "WARNING", "WARN", "WRNG", "WRN":
		return model.LevelWarning, true
	case "INFO", "INFORMATION", "INF":
		return model.LevelInfo, true
	case "DEBUG", "DEBU", "DBG", "DEB", "TRACE", "TRAC", "TRC":
		return model.LevelDebug, true
	}
	return "", false
}

// PinoLevelToLevel converts the pino/bunyan numeric levels 10 (trace)
// through 60 (fatal). Any other number is not ok.
func PinoLevelToLevel(level int64) (model.Level, bool) {
	switch level {
	case 10, 20:
		return model.LevelDebug, true
	case 30:
		return model.LevelInfo, true
	case 40:
		return model.LevelWarning, true
	case 50, 60:
		return model.LevelError, true
	}
	return "", false
}

// ParseNumericLevel reads a pino level written as a string ("30").
func ParseNumericLevel(s string) (model.Level, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return "", false
	}
	return PinoLevelToLevel(n)
}
