// Package view owns the dashboard's base record set and the active filter
// criteria, and keeps the derived visible subset consistent with both.
package view

import (
	"sort"
	"sync"
	"time"

	"github.com/tinytelemetry/logdeck/internal/analytics"
	"github.com/tinytelemetry/logdeck/internal/export"
	"github.com/tinytelemetry/logdeck/internal/filter"
	"github.com/tinytelemetry/logdeck/internal/model"
	"github.com/tinytelemetry/logdeck/internal/settings"
)

// Scope selects which record set an analytics summary is computed over.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeFiltered Scope = "filtered"
)

// ParseScope maps a query value onto a Scope. Empty selects ScopeAll.
func ParseScope(s string) (Scope, bool) {
	switch Scope(s) {
	case "", ScopeAll:
		return ScopeAll, true
	case ScopeFiltered:
		return ScopeFiltered, true
	}
	return "", false
}

// View is a consistent snapshot of the coordinator state. Its slices are
// shared with the coordinator and must not be modified.
type View struct {
	Criteria model.FilterCriteria `json:"criteria"`
	Visible  []model.LogRecord    `json:"visible"`
	Total    int                  `json:"total"`
	Rejected int                  `json:"rejected"`
	Services []string             `json:"services"`
}

// Page is one page of the visible subset.
type Page struct {
	Records []model.LogRecord `json:"records"`
	Offset  int               `json:"offset"`
	Limit   int               `json:"limit"`
	Visible int               `json:"visible"`
	Total   int               `json:"total"`

	Criteria model.FilterCriteria `json:"criteria"`
}

// Coordinator is safe for concurrent use. Every recomputation of the visible
// subset reads one (records, criteria) pair under the write lock, so readers
// never observe a subset derived from a stale pair.
type Coordinator struct {
	mu       sync.RWMutex
	records  []model.LogRecord
	byID     map[string]int
	services []string
	criteria model.FilterCriteria
	visible  []model.LogRecord
	rejected int
	settings settings.Settings
	loc      *time.Location

	subMu   sync.Mutex
	subs    map[int]chan Change
	nextSub int

	now func() time.Time
}

// New creates an empty coordinator with default criteria.
func New(s settings.Settings) *Coordinator {
	c := &Coordinator{
		criteria: model.DefaultCriteria(),
		settings: s,
		loc:      s.Location(),
		subs:     make(map[int]chan Change),
		now:      time.Now,
	}
	c.setRecordsLocked(nil)
	return c
}

// Replace swaps the base set for batch (a refresh). Duplicate ids keep their
// first occurrence; the duplicates are added to the rejected count.
func (c *Coordinator) Replace(batch model.Batch) {
	c.mu.Lock()
	dropped := c.setRecordsLocked(batch.Records)
	c.rejected = batch.Rejected + dropped
	c.recomputeLocked()
	ch := c.changeLocked(ChangeReplaced, nil)
	c.mu.Unlock()

	c.publish(ch)
}

// Append adds pushed records to the base set. Records whose id is already
// present are ignored.
func (c *Coordinator) Append(records ...model.LogRecord) {
	if len(records) == 0 {
		return
	}

	c.mu.Lock()
	fresh := make([]model.LogRecord, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := c.byID[r.ID]; dup {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		c.mu.Unlock()
		return
	}

	merged := make([]model.LogRecord, 0, len(c.records)+len(fresh))
	merged = append(merged, c.records...)
	merged = append(merged, fresh...)
	c.setRecordsLocked(merged)
	c.recomputeLocked()

	var alerts []model.LogRecord
	for _, r := range fresh {
		if c.settings.Notifies(r.Level) {
			alerts = append(alerts, r)
		}
	}
	ch := c.changeLocked(ChangeAppended, alerts)
	c.mu.Unlock()

	c.publish(ch)
}

// Update applies new records and new criteria as one logical change. A nil
// records slice keeps the current base set; a nil criteria keeps the current
// criteria. The visible subset is recomputed once.
func (c *Coordinator) Update(records []model.LogRecord, criteria *model.FilterCriteria) {
	c.mu.Lock()
	kind := ChangeCriteria
	if records != nil {
		c.rejected = c.setRecordsLocked(records)
		kind = ChangeReplaced
	}
	if criteria != nil {
		c.criteria = normalizeCriteria(*criteria)
	}
	c.recomputeLocked()
	ch := c.changeLocked(kind, nil)
	c.mu.Unlock()

	c.publish(ch)
}

// SetCriteria replaces the whole criteria value.
func (c *Coordinator) SetCriteria(criteria model.FilterCriteria) {
	c.Update(nil, &criteria)
}

// SetLevel constrains the visible subset to one level, or model.All.
func (c *Coordinator) SetLevel(level string) {
	c.mutateCriteria(func(cr *model.FilterCriteria) { cr.Level = level })
}

// SetService constrains the visible subset to one service, or model.All.
func (c *Coordinator) SetService(service string) {
	c.mutateCriteria(func(cr *model.FilterCriteria) { cr.Service = service })
}

// SetSearch sets the free-text query.
func (c *Coordinator) SetSearch(search string) {
	c.mutateCriteria(func(cr *model.FilterCriteria) { cr.Search = search })
}

// SetDateRange sets the inclusive date bounds. Nil clears a bound.
func (c *Coordinator) SetDateRange(start, end *time.Time) {
	c.mutateCriteria(func(cr *model.FilterCriteria) {
		cr.StartDate = copyTime(start)
		cr.EndDate = copyTime(end)
	})
}

// ClearFilters restores the default criteria.
func (c *Coordinator) ClearFilters() {
	c.SetCriteria(model.DefaultCriteria())
}

func (c *Coordinator) mutateCriteria(fn func(*model.FilterCriteria)) {
	c.mu.Lock()
	next := c.criteria
	fn(&next)
	c.criteria = normalizeCriteria(next)
	c.recomputeLocked()
	ch := c.changeLocked(ChangeCriteria, nil)
	c.mu.Unlock()

	c.publish(ch)
}

// SetSettings swaps the settings used for paging and notifications.
func (c *Coordinator) SetSettings(s settings.Settings) {
	c.mu.Lock()
	c.settings = s
	c.loc = s.Location()
	ch := c.changeLocked(ChangeSettings, nil)
	c.mu.Unlock()

	c.publish(ch)
}

// Settings returns the current settings.
func (c *Coordinator) Settings() settings.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Location returns the settings timezone, resolved once when the settings
// were applied.
func (c *Coordinator) Location() *time.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loc
}

// Criteria returns the active criteria.
func (c *Coordinator) Criteria() model.FilterCriteria {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.criteria
}

// Records returns the full base set in timestamp order.
func (c *Coordinator) Records() []model.LogRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.records
}

// Snapshot returns the current view.
func (c *Coordinator) Snapshot() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return View{
		Criteria: c.criteria,
		Visible:  c.visible,
		Total:    len(c.records),
		Rejected: c.rejected,
		Services: c.services,
	}
}

// Page returns up to MaxLogsPerPage visible records starting at offset.
// An offset past the end yields an empty page.
func (c *Coordinator) Page(offset int) Page {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pageLocked(offset)
}

// PageNumber applies criteria (nil keeps the active ones) and cuts the
// 1-based page n from the resulting subset in one critical section. The
// returned page carries the criteria it was cut from.
func (c *Coordinator) PageNumber(criteria *model.FilterCriteria, n int) Page {
	var p Page
	c.withCriteria(criteria, func() {
		if n < 1 {
			n = 1
		}
		p = c.pageLocked((n - 1) * c.pageLimitLocked())
	})
	return p
}

func (c *Coordinator) pageLimitLocked() int {
	if limit := c.settings.MaxLogsPerPage; limit > 0 {
		return limit
	}
	return model.DefaultPageSize
}

func (c *Coordinator) pageLocked(offset int) Page {
	limit := c.pageLimitLocked()
	if offset < 0 {
		offset = 0
	}
	p := Page{
		Records:  []model.LogRecord{},
		Offset:   offset,
		Limit:    limit,
		Visible:  len(c.visible),
		Total:    len(c.records),
		Criteria: c.criteria,
	}
	if offset >= len(c.visible) {
		return p
	}
	end := min(offset+limit, len(c.visible))
	p.Records = c.visible[offset:end:end]
	return p
}

// withCriteria runs read against the state produced by applying criteria.
// With nil criteria read runs under the read lock and nothing is published.
func (c *Coordinator) withCriteria(criteria *model.FilterCriteria, read func()) {
	if criteria == nil {
		c.mu.RLock()
		read()
		c.mu.RUnlock()
		return
	}

	c.mu.Lock()
	c.criteria = normalizeCriteria(*criteria)
	c.recomputeLocked()
	ch := c.changeLocked(ChangeCriteria, nil)
	read()
	c.mu.Unlock()

	c.publish(ch)
}

// Summary aggregates either the whole base set or the visible subset.
func (c *Coordinator) Summary(scope Scope, w analytics.TrendWindow) model.AggregationResult {
	return analytics.Summarize(c.scoped(scope), w)
}

// Metrics computes the analytics page's key metrics for scope.
func (c *Coordinator) Metrics(scope Scope, w analytics.TrendWindow) analytics.Metrics {
	return analytics.KeyMetrics(c.scoped(scope), w)
}

func (c *Coordinator) scoped(scope Scope) []model.LogRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if scope == ScopeFiltered {
		return c.visible
	}
	return c.records
}

// Export encodes the visible subset.
func (c *Coordinator) Export(columns []export.ColumnSpec) (string, error) {
	return c.ExportWith(nil, columns)
}

// ExportWith applies criteria (nil keeps the active ones) and encodes the
// subset they produce, even if another caller changes the criteria before
// encoding finishes.
func (c *Coordinator) ExportWith(criteria *model.FilterCriteria, columns []export.ColumnSpec) (string, error) {
	var visible []model.LogRecord
	c.withCriteria(criteria, func() { visible = c.visible })
	return export.EncodeDelimited(visible, columns)
}

// Record looks a record up by id in the base set.
func (c *Coordinator) Record(id string) (model.LogRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[id]
	if !ok {
		return model.LogRecord{}, false
	}
	return c.records[i], true
}

// setRecordsLocked installs records as the base set in canonical order and
// rebuilds the id index and service list. It returns the number of records
// dropped for repeating an id.
func (c *Coordinator) setRecordsLocked(records []model.LogRecord) int {
	sorted := model.SortByTimestamp(records)
	out := sorted[:0]
	byID := make(map[string]int, len(sorted))
	services := make(map[string]struct{})
	dropped := 0
	for _, r := range sorted {
		if _, dup := byID[r.ID]; dup {
			dropped++
			continue
		}
		byID[r.ID] = len(out)
		services[r.Service] = struct{}{}
		out = append(out, r)
	}

	names := make([]string, 0, len(services))
	for s := range services {
		names = append(names, s)
	}
	sort.Strings(names)

	c.records = out
	c.byID = byID
	c.services = names
	return dropped
}

func (c *Coordinator) recomputeLocked() {
	c.visible = filter.Apply(c.records, c.criteria)
}

func normalizeCriteria(cr model.FilterCriteria) model.FilterCriteria {
	if cr.Level == "" {
		cr.Level = model.All
	}
	if cr.Service == "" {
		cr.Service = model.All
	}
	cr.StartDate = copyTime(cr.StartDate)
	cr.EndDate = copyTime(cr.EndDate)
	return cr
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
