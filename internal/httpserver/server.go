// Package httpserver exposes the dashboard engine to the browser over HTTP.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tinytelemetry/logdeck/internal/duckdb"
	"github.com/tinytelemetry/logdeck/internal/livefeed"
	"github.com/tinytelemetry/logdeck/internal/refresh"
	"github.com/tinytelemetry/logdeck/internal/settings"
	"github.com/tinytelemetry/logdeck/internal/view"
)

// DefaultAddr is the default HTTP listen address.
const DefaultAddr = "127.0.0.1:3000"

// SettingsStore persists settings edited through the API.
type SettingsStore interface {
	Save(s settings.Settings) error
	Reset() (settings.Settings, error)
}

// Refresher re-fetches the base record set on demand.
type Refresher interface {
	RunOnce(ctx context.Context) (refresh.Result, error)
	Last() (refresh.Result, bool)
}

// FetchHistory reports the last refresh persisted in the record cache.
type FetchHistory interface {
	LastFetch() (duckdb.FetchEntry, bool, error)
}

// FeedStats reports live feed counters.
type FeedStats interface {
	Stats() livefeed.Stats
}

// Deps are the engine components behind the API. Only View is required.
type Deps struct {
	View      *view.Coordinator
	Settings  SettingsStore
	Refresher Refresher
	History   FetchHistory
	Feed      FeedStats
	// OnSettings is called after settings were saved and applied to the view.
	OnSettings []func(settings.Settings)
}

// Config holds tunable parameters for the HTTP server.
type Config struct {
	RateLimit rate.Limit // requests per second per client; defaults to 20
	Burst     int        // defaults to 40
}

// Server provides the dashboard HTTP API.
type Server struct {
	addr      string
	deps      Deps
	limiter   *clientLimiter
	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	now       func() time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, deps Deps, conf ...Config) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	limit := rate.Limit(20)
	burst := 40
	if len(conf) > 0 {
		if conf[0].RateLimit > 0 {
			limit = conf[0].RateLimit
		}
		if conf[0].Burst > 0 {
			burst = conf[0].Burst
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		deps:      deps,
		limiter:   newClientLimiter(limit, burst),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Handler builds the gin engine with every API route.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api", s.limiter.middleware())
	api.GET("/health", s.handleHealth)

	api.GET("/logs", s.handleLogs)
	api.GET("/logs/export", s.handleExport)
	api.GET("/logs/:id", s.handleRecord)
	api.POST("/logs/refresh", s.handleRefresh)

	api.GET("/filters", s.handleGetFilters)
	api.DELETE("/filters", s.handleClearFilters)

	analytics := api.Group("/analytics")
	analytics.GET("/dashboard", s.handleDashboard)
	analytics.GET("/levels", s.handleLevels)
	analytics.GET("/services", s.handleServices)
	analytics.GET("/trends", s.handleTrends)
	analytics.GET("/hourly", s.handleHourly)

	api.GET("/settings", s.handleGetSettings)
	api.PUT("/settings", s.handlePutSettings)
	api.POST("/settings/reset", s.handleResetSettings)

	api.GET("/stream", s.handleStream)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the active listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the HTTP server. Open event streams are ended
// by cancelling the base context.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	snap := s.deps.View.Snapshot()
	body := gin.H{
		"status":   "ok",
		"uptime":   time.Since(s.startTime).String(),
		"total":    snap.Total,
		"visible":  len(snap.Visible),
		"rejected": snap.Rejected,
	}
	if s.deps.Refresher != nil {
		if last, ok := s.deps.Refresher.Last(); ok {
			body["last_refresh"] = last
		}
	}
	if s.deps.History != nil {
		entry, ok, err := s.deps.History.LastFetch()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read refresh history"})
			return
		}
		if ok {
			body["last_fetch"] = entry
		}
	}
	if s.deps.Feed != nil {
		body["live_feed"] = s.deps.Feed.Stats()
	}
	c.JSON(http.StatusOK, body)
}
