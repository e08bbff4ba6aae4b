// Package timestamp parses the timestamp shapes log APIs put on the wire.
package timestamp

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Parser converts wire timestamps into UTC instants. Layouts without a zone
// are read in Location.
type Parser struct {
	Location *time.Location
}

// NewParser returns a parser that reads zoneless timestamps as UTC.
func NewParser() *Parser {
	return &Parser{Location: time.UTC}
}

// ParseTimestamp accepts a string (RFC 3339 and common variants, or a
// numeric string), a JSON number, or a Go numeric value. Numbers are unix
// epoch values whose unit is inferred from magnitude: seconds, milliseconds,
// microseconds or nanoseconds.
func (p *Parser) ParseTimestamp(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		return p.parseString(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return fromUnix(float64(i), i)
		}
		f, err := val.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromUnix(f, int64(f))
	case float64:
		return fromUnix(val, int64(val))
	case int64:
		return fromUnix(float64(val), val)
	case int:
		return fromUnix(float64(val), int64(val))
	case time.Time:
		if val.IsZero() {
			return time.Time{}, false
		}
		return val.UTC(), true
	}
	return time.Time{}, false
}

func (p *Parser) parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), true
		}
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromUnix(float64(i), i)
	}
	return time.Time{}, false
}

func fromUnix(f float64, i int64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return time.Time{}, false
	}
	switch {
	case f < 1e11:
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	case f < 1e14:
		return time.UnixMilli(i).UTC(), true
	case f < 1e17:
		return time.UnixMicro(i).UTC(), true
	default:
		return time.Unix(0, i).UTC(), true
	}
}
