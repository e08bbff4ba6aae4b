// Package refresh re-fetches the base record set on the interval chosen in
// the dashboard settings.
package refresh

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tinytelemetry/logdeck/internal/duckdb"
	"github.com/tinytelemetry/logdeck/internal/model"
	"github.com/tinytelemetry/logdeck/internal/settings"
)

// DefaultFetchTimeout bounds a single refresh.
const DefaultFetchTimeout = 30 * time.Second

// Replacer receives each freshly fetched base set.
type Replacer interface {
	Replace(batch model.Batch)
}

// Cache persists the base set and the refresh history.
type Cache interface {
	ReplaceRecords(records []model.LogRecord) error
	RecordFetch(e duckdb.FetchEntry) error
}

// Result describes the outcome of one refresh.
type Result struct {
	At       time.Time `json:"at"`
	Source   string    `json:"source"`
	Accepted int       `json:"accepted"`
	Rejected int       `json:"rejected"`
	Error    string    `json:"error,omitempty"`
}

// Config holds optional scheduler parameters.
type Config struct {
	FetchTimeout time.Duration
}

// Scheduler runs refreshes on a cron schedule and on demand. Refreshes never
// overlap: a manual refresh waits for a running one, a scheduled tick that
// fires while one is running is skipped.
type Scheduler struct {
	source  model.RecordSource
	view    Replacer
	cache   Cache // may be nil
	timeout time.Duration
	now     func() time.Time

	cron  *cron.Cron
	runMu sync.Mutex

	mu      sync.Mutex
	entry   cron.EntryID
	every   time.Duration
	last    Result
	hasLast bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a stopped scheduler. cache may be nil.
func New(source model.RecordSource, view Replacer, cache Cache, conf ...Config) *Scheduler {
	timeout := DefaultFetchTimeout
	if len(conf) > 0 && conf[0].FetchTimeout > 0 {
		timeout = conf[0].FetchTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	logger := cron.PrintfLogger(log.Default())
	return &Scheduler{
		source:  source,
		view:    view,
		cache:   cache,
		timeout: timeout,
		now:     time.Now,
		cron:    cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger))),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Apply schedules periodic refreshes according to s. Turning AutoRefresh off
// removes the schedule; changing RefreshInterval reschedules.
func (s *Scheduler) Apply(st settings.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	every := time.Duration(0)
	if st.AutoRefresh {
		every = st.RefreshEvery()
	}
	if every == s.every {
		return nil
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}
	s.every = every
	if every <= 0 {
		log.Printf("refresh: auto refresh disabled")
		return nil
	}

	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", every), s.tick)
	if err != nil {
		s.every = 0
		return fmt.Errorf("schedule refresh every %s: %w", every, err)
	}
	s.entry = id
	log.Printf("refresh: refreshing from %s every %s", s.source.Name(), every)
	return nil
}

// Interval returns the active refresh interval, zero when auto refresh is off.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.every
}

// Start begins running scheduled refreshes.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels any running refresh and waits for scheduled jobs to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

func (s *Scheduler) tick() {
	if _, err := s.RunOnce(s.ctx); err != nil {
		log.Printf("refresh: scheduled refresh failed: %v", err)
	}
}

// RunOnce fetches the base set and hands it to the view and the cache. On a
// fetch failure the view keeps its previous records.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res := Result{At: s.now().UTC(), Source: s.source.Name()}
	batch, err := s.source.FetchRecords(ctx)
	if err != nil {
		res.Error = err.Error()
		s.setLast(res)
		return res, fmt.Errorf("fetch from %s: %w", res.Source, err)
	}
	res.Accepted = len(batch.Records)
	res.Rejected = batch.Rejected

	s.view.Replace(batch)

	if s.cache != nil {
		if err := s.cache.ReplaceRecords(batch.Records); err != nil {
			log.Printf("refresh: cache replace failed: %v", err)
		}
		entry := duckdb.FetchEntry{FetchedAt: res.At, Source: res.Source, Accepted: res.Accepted, Rejected: res.Rejected}
		if err := s.cache.RecordFetch(entry); err != nil {
			log.Printf("refresh: fetch log write failed: %v", err)
		}
	}
	if res.Rejected > 0 {
		log.Printf("refresh: %s: %d records, %d rejected as malformed", res.Source, res.Accepted, res.Rejected)
	}
	s.setLast(res)
	return res, nil
}

func (s *Scheduler) setLast(res Result) {
	s.mu.Lock()
	s.last = res
	s.hasLast = true
	s.mu.Unlock()
}

// Last returns the most recent refresh result.
func (s *Scheduler) Last() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}
