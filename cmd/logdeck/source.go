package main

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/tinytelemetry/logdeck/internal/fetch"
	"github.com/tinytelemetry/logdeck/internal/model"
)

// endpointSource fetches from the log API named in the settings and follows
// endpoint changes made on the settings page.
type endpointSource struct {
	mu     sync.RWMutex
	client *fetch.Client
	opts   []fetch.Option
}

func newEndpointSource(endpoint string, opts ...fetch.Option) *endpointSource {
	return &endpointSource{client: fetch.New(endpoint, opts...), opts: opts}
}

func (s *endpointSource) Name() string { return "api" }

func (s *endpointSource) FetchRecords(ctx context.Context) (model.Batch, error) {
	s.mu.RLock()
	c := s.client
	s.mu.RUnlock()
	return c.FetchRecords(ctx)
}

// SetEndpoint points later fetches at endpoint.
func (s *endpointSource) SetEndpoint(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimRight(endpoint, "/") == s.client.BaseURL() {
		return
	}
	s.client = fetch.New(endpoint, s.opts...)
	log.Printf("fetch: log API endpoint changed to %s", s.client.BaseURL())
}

func (s *endpointSource) BaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client.BaseURL()
}
