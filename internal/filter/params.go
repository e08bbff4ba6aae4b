package filter

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tinytelemetry/logdeck/internal/model"
)

// ErrInvalidCriteria is returned when query parameters cannot form criteria.
var ErrInvalidCriteria = errors.New("filter: invalid criteria")

const dateOnly = "2006-01-02"

// ParseCriteria builds criteria from the dashboard's query parameters:
// level, service, search, startDate and endDate. Missing parameters keep
// their default. Dates are RFC 3339 instants or YYYY-MM-DD calendar days in
// loc; a calendar-day endDate covers the whole day.
func ParseCriteria(values url.Values, loc *time.Location) (model.FilterCriteria, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := model.DefaultCriteria()

	if lvl := strings.TrimSpace(values.Get("level")); lvl != "" && lvl != model.All {
		if !model.Level(lvl).Valid() {
			return c, fmt.Errorf("%w: unknown level %q", ErrInvalidCriteria, lvl)
		}
		c.Level = lvl
	}
	if svc := strings.TrimSpace(values.Get("service")); svc != "" {
		c.Service = svc
	}
	c.Search = values.Get("search")

	if raw := strings.TrimSpace(values.Get("startDate")); raw != "" {
		ts, _, err := parseBound(raw, loc)
		if err != nil {
			return c, fmt.Errorf("%w: startDate: %v", ErrInvalidCriteria, err)
		}
		c.StartDate = &ts
	}
	if raw := strings.TrimSpace(values.Get("endDate")); raw != "" {
		ts, dayOnly, err := parseBound(raw, loc)
		if err != nil {
			return c, fmt.Errorf("%w: endDate: %v", ErrInvalidCriteria, err)
		}
		if dayOnly {
			ts = endOfDay(ts, loc)
		}
		c.EndDate = &ts
	}
	return c, nil
}

// Values renders c back into query parameters, omitting defaults.
func Values(c model.FilterCriteria) url.Values {
	v := url.Values{}
	if c.Level != "" && c.Level != model.All {
		v.Set("level", c.Level)
	}
	if c.Service != "" && c.Service != model.All {
		v.Set("service", c.Service)
	}
	if c.Search != "" {
		v.Set("search", c.Search)
	}
	if c.StartDate != nil {
		v.Set("startDate", c.StartDate.UTC().Format(time.RFC3339Nano))
	}
	if c.EndDate != nil {
		v.Set("endDate", c.EndDate.UTC().Format(time.RFC3339Nano))
	}
	return v
}

func parseBound(raw string, loc *time.Location) (time.Time, bool, error) {
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.UTC(), false, nil
	}
	ts, err := time.ParseInLocation(dateOnly, raw, loc)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("unrecognized date %q", raw)
	}
	return ts.UTC(), true, nil
}

// endOfDay returns the last instant of the calendar day containing ts in
// loc. Days are not always 24h long.
func endOfDay(ts time.Time, loc *time.Location) time.Time {
	y, m, d := ts.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc).Add(-time.Nanosecond).UTC()
}
