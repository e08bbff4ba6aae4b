package socketrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tinytelemetry/logdeck/internal/analytics"
	"github.com/tinytelemetry/logdeck/internal/export"
	"github.com/tinytelemetry/logdeck/internal/filter"
	"github.com/tinytelemetry/logdeck/internal/model"
	"github.com/tinytelemetry/logdeck/internal/refresh"
	"github.com/tinytelemetry/logdeck/internal/view"
)

const (
	// scannerInitBufSize is the initial buffer size for the per-connection scanner (64 KB).
	scannerInitBufSize = 64 * 1024
	// scannerMaxTokenSize is the maximum token size the scanner will accept (10 MB).
	scannerMaxTokenSize = 10 * 1024 * 1024

	defaultFilterLimit = 100
	topServicesLimit   = 10
)

var errInvalidParams = errors.New("invalid params")

// Refresher re-fetches the base record set.
type Refresher interface {
	RunOnce(ctx context.Context) (refresh.Result, error)
}

// CacheSnapshotter copies the record cache to a file.
type CacheSnapshotter interface {
	SnapshotTo(dstPath string) error
}

// BackupRotator takes a snapshot into the rotating backup directory.
type BackupRotator interface {
	RunOnce() (string, error)
}

// Deps are the components served over the socket. Only View is required.
type Deps struct {
	View      *view.Coordinator
	Refresher Refresher
	Cache     CacheSnapshotter
	Backups   BackupRotator
}

// Server exposes the dashboard engine over a Unix domain socket using JSON-RPC 2.0.
type Server struct {
	socketPath string
	deps       Deps
	listener   net.Listener
	wg         sync.WaitGroup
	quit       chan struct{}
	stopOnce   sync.Once
	ctx        context.Context
	cancel     context.CancelFunc
	now        func() time.Time
}

// NewServer creates a new socket RPC server.
func NewServer(socketPath string, deps Deps) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: socketPath,
		deps:       deps,
		quit:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
	}
}

// Start begins listening on the Unix socket and accepting connections.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("socketrpc: mkdir: %w", err)
	}

	// Remove stale socket if it exists.
	if _, err := os.Stat(s.socketPath); err == nil {
		conn, dialErr := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
		if dialErr != nil {
			os.Remove(s.socketPath)
		} else {
			conn.Close()
			return fmt.Errorf("socketrpc: another server is already listening on %s", s.socketPath)
		}
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("socketrpc: listen: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()

	log.Printf("socketrpc: listening on %s", s.socketPath)
	return nil
}

// Stop closes the listener, waits for connections to drain, and removes the socket file.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		s.cancel()
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		os.Remove(s.socketPath)
	})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				log.Printf("socketrpc: accept error: %v", err)
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the scanner on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.quit:
			conn.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp := Response{JSONRPC: "2.0", ID: 0, Error: &RPCError{Code: codeParseError, Message: "parse error"}}
			encoder.Encode(resp)
			continue
		}

		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
}

// criteriaFor parses a dashboard query string. An empty query selects the
// active criteria.
func (s *Server) criteriaFor(query string) (model.FilterCriteria, error) {
	if query == "" {
		return s.deps.View.Criteria(), nil
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return model.FilterCriteria{}, fmt.Errorf("%w: %v", filter.ErrInvalidCriteria, err)
	}
	return filter.ParseCriteria(values, s.deps.View.Location())
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	marshalResult := func(v interface{}, err error) Response {
		if err != nil {
			code := codeApplication
			if errors.Is(err, filter.ErrInvalidCriteria) || errors.Is(err, errInvalidParams) {
				code = codeInvalidParams
			}
			resp.Error = &RPCError{Code: code, Message: err.Error()}
			return resp
		}
		data, merr := json.Marshal(v)
		if merr != nil {
			resp.Error = &RPCError{Code: codeInternal, Message: merr.Error()}
			return resp
		}
		resp.Result = data
		return resp
	}

	invalidParams := func(err error) Response {
		resp.Error = &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
		return resp
	}

	switch req.Method {
	case "Snapshot":
		snap := s.deps.View.Snapshot()
		return marshalResult(SnapshotResult{
			Criteria: snap.Criteria,
			Total:    snap.Total,
			Visible:  len(snap.Visible),
			Rejected: snap.Rejected,
			Services: snap.Services,
		}, nil)

	case "Filter":
		var p struct {
			Query string
			Limit int
			Apply bool
		}
		// Allow empty/null params for defaults; only reject genuinely malformed JSON.
		if err := json.Unmarshal(req.Params, &p); err != nil && len(req.Params) > 0 {
			return invalidParams(err)
		}
		return marshalResult(s.filter(p.Query, p.Limit, p.Apply))

	case "Summary":
		var p struct {
			Query     string
			Scope     string
			TimeRange string
		}
		if err := json.Unmarshal(req.Params, &p); err != nil && len(req.Params) > 0 {
			return invalidParams(err)
		}
		return marshalResult(s.summary(p.Query, p.Scope, p.TimeRange))

	case "Export":
		var p struct {
			Query   string
			Columns []string
		}
		if err := json.Unmarshal(req.Params, &p); err != nil && len(req.Params) > 0 {
			return invalidParams(err)
		}
		return marshalResult(s.export(p.Query, p.Columns))

	case "Refresh":
		if s.deps.Refresher == nil {
			return marshalResult(nil, errors.New("no record source configured"))
		}
		ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
		defer cancel()
		return marshalResult(s.deps.Refresher.RunOnce(ctx))

	case "BackupCache":
		var p struct{ Path string }
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(err)
		}
		if p.Path == "" {
			if s.deps.Backups == nil {
				return invalidParams(errors.New("path is required when scheduled backups are off"))
			}
			return marshalResult(s.deps.Backups.RunOnce())
		}
		if s.deps.Cache == nil {
			return marshalResult(nil, errors.New("record cache is disabled"))
		}
		return marshalResult(p.Path, s.deps.Cache.SnapshotTo(p.Path))

	default:
		resp.Error = &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
		return resp
	}
}

func (s *Server) filter(query string, limit int, apply bool) (FilterResult, error) {
	criteria, err := s.criteriaFor(query)
	if err != nil {
		return FilterResult{}, err
	}
	if apply {
		s.deps.View.SetCriteria(criteria)
	}
	records := s.deps.View.Records()
	matched := filter.Apply(records, criteria)
	if limit <= 0 {
		limit = defaultFilterLimit
	}
	res := FilterResult{Criteria: criteria, Matched: len(matched), Total: len(records), Records: matched}
	if len(matched) > limit {
		res.Records = matched[:limit]
	}
	return res, nil
}

func (s *Server) summary(query, scopeName, timeRange string) (SummaryResult, error) {
	tr, err := analytics.ParseTimeRange(timeRange)
	if err != nil {
		return SummaryResult{}, fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	scope, ok := view.ParseScope(scopeName)
	if !ok {
		return SummaryResult{}, fmt.Errorf("%w: unknown scope %q", errInvalidParams, scopeName)
	}
	w := tr.Window(s.now().In(s.deps.View.Location()))

	res := SummaryResult{TimeRange: tr}
	if query == "" {
		res.Summary = s.deps.View.Summary(scope, w)
		res.Metrics = s.deps.View.Metrics(scope, w)
		res.TopServices = analytics.TopServices(s.scoped(scope), topServicesLimit)
		return res, nil
	}

	criteria, err := s.criteriaFor(query)
	if err != nil {
		return SummaryResult{}, err
	}
	records := filter.Apply(s.deps.View.Records(), criteria)
	res.Summary = analytics.Summarize(records, w)
	res.Metrics = analytics.KeyMetrics(records, w)
	res.TopServices = analytics.TopServices(records, topServicesLimit)
	return res, nil
}

func (s *Server) scoped(scope view.Scope) []model.LogRecord {
	if scope == view.ScopeFiltered {
		return s.deps.View.Snapshot().Visible
	}
	return s.deps.View.Records()
}

func (s *Server) export(query string, names []string) (string, error) {
	columns, err := export.ColumnsByName(names)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	if query == "" {
		return s.deps.View.Export(columns)
	}
	criteria, err := s.criteriaFor(query)
	if err != nil {
		return "", err
	}
	return export.EncodeDelimited(filter.Apply(s.deps.View.Records(), criteria), columns)
}
