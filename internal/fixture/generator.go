// Package fixture generates demo log records. It stands in for the upstream
// log API when the dashboard runs without one, and seeds tests.
package fixture

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tinytelemetry/logdeck/internal/model"
)

// DefaultServices is the demo service catalogue.
var DefaultServices = []string{
	"user-service",
	"auth-service",
	"api-gateway",
	"system-monitor",
	"cache-service",
	"database-service",
}

// DefaultMessages is the demo message catalogue.
var DefaultMessages = []string{
	"Database connection established",
	"User authentication failed",
	"API request processed successfully",
	"Memory usage exceeded threshold",
	"Cache miss occurred",
	"Rate limit exceeded",
	"Service health check passed",
	"Configuration updated",
	"Backup completed successfully",
	"Security alert triggered",
}

// Config holds tunable parameters for the generator.
type Config struct {
	Seed     int64
	Count    int
	Span     time.Duration // records are spread over [now-Span, now)
	Services []string
	Messages []string
	Now      func() time.Time
}

// Generator produces a fresh pseudo-random batch on every fetch.
// It implements model.RecordSource.
type Generator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	count    int
	span     time.Duration
	services []string
	messages []string
	now      func() time.Time
}

// NewGenerator creates a generator. Zero config values fall back to 50
// records over the last 7 days.
func NewGenerator(conf ...Config) *Generator {
	cfg := Config{}
	if len(conf) > 0 {
		cfg = conf[0]
	}
	g := &Generator{
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		count:    50,
		span:     7 * 24 * time.Hour,
		services: DefaultServices,
		messages: DefaultMessages,
		now:      time.Now,
	}
	if cfg.Seed == 0 {
		g.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Count > 0 {
		g.count = cfg.Count
	}
	if cfg.Span > 0 {
		g.span = cfg.Span
	}
	if len(cfg.Services) > 0 {
		g.services = cfg.Services
	}
	if len(cfg.Messages) > 0 {
		g.messages = cfg.Messages
	}
	if cfg.Now != nil {
		g.now = cfg.Now
	}
	return g
}

func (g *Generator) Name() string { return "fixture" }

// FetchRecords returns a new batch sorted by timestamp.
func (g *Generator) FetchRecords(ctx context.Context) (model.Batch, error) {
	if err := ctx.Err(); err != nil {
		return model.Batch{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UTC()
	levels := model.AllLevels()
	records := make([]model.LogRecord, 0, g.count)
	for i := 0; i < g.count; i++ {
		records = append(records, model.LogRecord{
			ID:        g.newID(),
			Level:     levels[g.rng.Intn(len(levels))],
			Message:   g.messages[g.rng.Intn(len(g.messages))],
			Service:   g.services[g.rng.Intn(len(g.services))],
			Timestamp: now.Add(-time.Duration(g.rng.Int63n(int64(g.span)))),
			Metadata:  g.metadata(),
		})
	}
	return model.Batch{Records: model.SortByTimestamp(records)}, nil
}

// Next returns a single record stamped at the current time, for the demo live feed.
func (g *Generator) Next() model.LogRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	levels := model.AllLevels()
	return model.LogRecord{
		ID:        g.newID(),
		Level:     levels[g.rng.Intn(len(levels))],
		Message:   g.messages[g.rng.Intn(len(g.messages))],
		Service:   g.services[g.rng.Intn(len(g.services))],
		Timestamp: g.now().UTC(),
		Metadata:  g.metadata(),
	}
}

func (g *Generator) newID() string {
	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (g *Generator) metadata() map[string]any {
	return map[string]any{
		"userId":    g.rng.Intn(1000),
		"requestId": fmt.Sprintf("req-%09x", g.rng.Int63n(1<<36)),
		"ip":        fmt.Sprintf("192.168.1.%d", g.rng.Intn(255)),
	}
}
