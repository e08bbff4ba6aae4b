// Package filter narrows a record collection to the subset matching a
// model.FilterCriteria.
package filter

import (
	"strings"

	"github.com/tinytelemetry/logdeck/internal/model"
)

// Apply returns the records matching every active predicate of c, in input
// order. The result is always a fresh slice; records are not modified.
func Apply(records []model.LogRecord, c model.FilterCriteria) []model.LogRecord {
	m := newMatcher(c)
	out := make([]model.LogRecord, 0, len(records))
	for _, r := range records {
		if m.match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Match reports whether a single record passes c.
func Match(r model.LogRecord, c model.FilterCriteria) bool {
	return newMatcher(c).match(r)
}

// Count returns how many records pass c without materializing the subset.
func Count(records []model.LogRecord, c model.FilterCriteria) int {
	m := newMatcher(c)
	n := 0
	for _, r := range records {
		if m.match(r) {
			n++
		}
	}
	return n
}

// matcher holds criteria with the search query lowered once per Apply.
type matcher struct {
	level   string
	service string
	search  string
	c       model.FilterCriteria
}

func newMatcher(c model.FilterCriteria) matcher {
	m := matcher{c: c}
	if c.Level != model.All {
		m.level = c.Level
	}
	if c.Service != model.All {
		m.service = c.Service
	}
	m.search = strings.ToLower(c.Search)
	return m
}

func (m matcher) match(r model.LogRecord) bool {
	if m.level != "" && string(r.Level) != m.level {
		return false
	}
	if m.service != "" && r.Service != m.service {
		return false
	}
	if m.search != "" &&
		!strings.Contains(strings.ToLower(r.Message), m.search) &&
		!strings.Contains(strings.ToLower(r.Service), m.search) {
		return false
	}
	// time.Time comparisons are instant-based, so zone differences don't matter.
	if m.c.StartDate != nil && r.Timestamp.Before(*m.c.StartDate) {
		return false
	}
	if m.c.EndDate != nil && r.Timestamp.After(*m.c.EndDate) {
		return false
	}
	return true
}
