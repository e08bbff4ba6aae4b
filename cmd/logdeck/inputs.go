package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/tinytelemetry/logdeck/internal/livefeed"
)

// InputSourcePlugin is a small plugin primitive for wiring live feed inputs.
type InputSourcePlugin interface {
	Name() string
	Enabled() bool
	// Start begins pushing records into feed and returns a stop function.
	Start(ctx context.Context, feed *livefeed.Feed) (func(), error)
}

// InputPluginConfig defines runtime input selection.
type InputPluginConfig struct {
	TCPEnabled bool
	TCPAddr    string
}

func buildInputPlugins(cfg InputPluginConfig) []InputSourcePlugin {
	plugins := make([]InputSourcePlugin, 0, 2)
	plugins = append(plugins, tcpInputPlugin{
		addr:    cfg.TCPAddr,
		enabled: cfg.TCPEnabled,
	})
	plugins = append(plugins, stdinInputPlugin{})
	return plugins
}

// startInputs starts every enabled plugin and returns the names of those
// that came up plus a function stopping them all.
func startInputs(ctx context.Context, plugins []InputSourcePlugin, feed *livefeed.Feed) ([]string, func()) {
	var (
		started []string
		stops   []func()
	)
	for _, plugin := range plugins {
		if !plugin.Enabled() {
			continue
		}
		stop, err := plugin.Start(ctx, feed)
		if err != nil {
			log.Printf("Error initializing input plugin %q: %v", plugin.Name(), err)
			continue
		}
		started = append(started, plugin.Name())
		stops = append(stops, stop)
	}
	return started, func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}
}

type tcpInputPlugin struct {
	addr    string
	enabled bool
}

func (p tcpInputPlugin) Name() string { return "tcp" }

func (p tcpInputPlugin) Enabled() bool { return p.enabled }

func (p tcpInputPlugin) Start(_ context.Context, feed *livefeed.Feed) (func(), error) {
	server := livefeed.NewServer(p.addr, feed)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("start tcp server: %w", err)
	}
	return func() { server.Stop() }, nil
}

type stdinInputPlugin struct{}

func (p stdinInputPlugin) Name() string { return "stdin" }

// Enabled reports whether stdin is piped rather than a terminal.
func (p stdinInputPlugin) Enabled() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func (p stdinInputPlugin) Start(ctx context.Context, feed *livefeed.Feed) (func(), error) {
	go func() {
		if err := feed.ConsumeStdin(ctx); err != nil && ctx.Err() == nil {
			log.Printf("livefeed: stdin stopped: %v", err)
		}
	}()
	return func() {}, nil
}
