package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tinytelemetry/logdeck/internal/backup"
	"github.com/tinytelemetry/logdeck/internal/duckdb"
	"github.com/tinytelemetry/logdeck/internal/fetch"
	"github.com/tinytelemetry/logdeck/internal/fixture"
	"github.com/tinytelemetry/logdeck/internal/httpserver"
	"github.com/tinytelemetry/logdeck/internal/livefeed"
	"github.com/tinytelemetry/logdeck/internal/model"
	"github.com/tinytelemetry/logdeck/internal/refresh"
	"github.com/tinytelemetry/logdeck/internal/settings"
	"github.com/tinytelemetry/logdeck/internal/socketrpc"
	"github.com/tinytelemetry/logdeck/internal/view"
)

// runServer loads the dashboard state and serves it until interrupted.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	settingsStore := settings.NewStore(cfg.SettingsPath)
	prefs, err := settingsStore.Load()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	coord := view.New(prefs)

	// Open the record cache and show what it holds before the first refresh.
	var store *duckdb.Store
	if cfg.CacheEnabled {
		store, err = duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
		if err != nil {
			return fmt.Errorf("failed to initialize record cache: %w", err)
		}
		defer store.Close()

		cached, err := store.LoadRecords()
		if err != nil {
			log.Printf("server: reading record cache failed: %v", err)
		} else if len(cached) > 0 {
			coord.Replace(model.Batch{Records: cached})
			log.Printf("server: restored %d cached records", len(cached))
		}
	}

	var backups *backup.Manager
	if store != nil && cfg.BackupEnabled {
		backups, err = backup.NewManager(store, backup.Config{
			Enabled:  true,
			Interval: cfg.BackupInterval,
			Dir:      cfg.BackupDir,
			KeepLast: cfg.BackupKeep,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize cache backups: %w", err)
		}
		backups.Start()
		defer backups.Stop()
	}

	var (
		source      model.RecordSource
		apiSource   *endpointSource
		settingsFns []func(settings.Settings)
	)
	switch cfg.Source {
	case sourceFixture:
		source = fixture.NewGenerator(fixture.Config{Seed: cfg.FixtureSeed, Count: cfg.FixtureCount})
	default:
		opts := []fetch.Option{fetch.WithTimeout(cfg.FetchTimeout)}
		if cfg.APIToken != "" {
			opts = append(opts, fetch.WithToken(cfg.APIToken))
		}
		apiSource = newEndpointSource(prefs.APIEndpoint, opts...)
		source = apiSource
		settingsFns = append(settingsFns, func(s settings.Settings) { apiSource.SetEndpoint(s.APIEndpoint) })
	}

	var cache refresh.Cache
	if store != nil {
		cache = store
	}
	scheduler := refresh.New(source, coord, cache, refresh.Config{FetchTimeout: cfg.RefreshTimeout})
	if err := scheduler.Apply(prefs); err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()
	settingsFns = append(settingsFns, func(s settings.Settings) {
		if err := scheduler.Apply(s); err != nil {
			log.Printf("server: rescheduling refresh failed: %v", err)
		}
	})

	// Live feed records go to the view and, batched, to the cache.
	sinks := []model.RecordSink{coord}
	if store != nil {
		insertBuffer := duckdb.NewInsertBuffer(store, duckdb.InsertBufferConfig{
			BatchSize:     cfg.InsertBatchSize,
			FlushInterval: cfg.InsertFlushInterval,
		})
		defer insertBuffer.Stop()
		sinks = append(sinks, insertBuffer)

		retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
			RetentionDays: prefs.LogRetention,
		})
		if retentionCleaner != nil {
			defer retentionCleaner.Stop()
			settingsFns = append(settingsFns, func(s settings.Settings) { retentionCleaner.SetRetentionDays(s.LogRetention) })
		}
	}
	feed := livefeed.NewFeed(sinks)
	defer feed.Stop()

	if cfg.APIEnabled {
		deps := httpserver.Deps{
			View:       coord,
			Settings:   settingsStore,
			Refresher:  scheduler,
			Feed:       feed,
			OnSettings: settingsFns,
		}
		if store != nil {
			deps.History = store
		}
		apiServer := httpserver.NewServer(cfg.APIAddr, deps, httpserver.Config{
			RateLimit: rate.Limit(cfg.RateLimit),
			Burst:     cfg.RateBurst,
		})
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	// Start socket RPC server for logdeck-cli.
	sockDeps := socketrpc.Deps{View: coord, Refresher: scheduler}
	if store != nil {
		sockDeps.Cache = store
	}
	if backups != nil {
		sockDeps.Backups = backups
	}
	sockServer := socketrpc.NewServer(cfg.SocketPath, sockDeps)
	if err := sockServer.Start(); err != nil {
		log.Printf("Warning: failed to start socket server: %v", err)
	} else {
		defer sockServer.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	inputs, stopInputs := startInputs(ctx, buildInputPlugins(InputPluginConfig{
		TCPEnabled: cfg.TCPEnabled,
		TCPAddr:    cfg.TCPAddr,
	}), feed)
	defer stopInputs()

	sourceLabel := source.Name()
	if apiSource != nil {
		sourceLabel = apiSource.BaseURL()
	}
	printStartupBanner(cfg, prefs, sourceLabel, inputs)

	g, gctx := errgroup.WithContext(ctx)

	// Initial load, as the dashboard does when it is first opened.
	g.Go(func() error {
		res, err := scheduler.RunOnce(gctx)
		if err != nil {
			log.Printf("server: initial refresh failed: %v", err)
			return nil
		}
		log.Printf("server: loaded %d records from %s", res.Accepted, res.Source)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}

	signal.Stop(sigCh)
	return nil
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

func configureRuntimeLogger() func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "logdeck")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := filepath.Join(logDir, "logdeck.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}

func printStartupBanner(cfg appConfig, prefs settings.Settings, source string, inputs []string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╦  ╔═╗╔═╗╔╦╗╔═╗╔═╗╦╔═
    ║  ║ ║║ ╦ ║║║╣ ║  ╠╩╗
    ╩═╝╚═╝╚═╝═╩╝╚═╝╚═╝╩ ╩`)

	ver := dim.Render("v" + version)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+ver)
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")
	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}
	if len(inputs) > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Live Feed      %s", check, cyan.Render(strings.Join(inputs, ", "))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Live Feed      %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Unix Socket    %s", check, cyan.Render(shortenPath(cfg.SocketPath))))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Data"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Source         %s", check, dim.Render(source)))
	if prefs.AutoRefresh {
		lines = append(lines, fmt.Sprintf("    %s  Auto Refresh   %s", check, dim.Render(prefs.RefreshEvery().String())))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Auto Refresh   %s", dot, dim.Render("off")))
	}
	if cfg.CacheEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Cache          %s", check, dim.Render(shortenPath(cfg.DBPath))))
		lines = append(lines, fmt.Sprintf("    %s  Retention      %s", check, dim.Render(fmt.Sprintf("%d days", prefs.LogRetention))))
		if cfg.BackupEnabled {
			lines = append(lines, fmt.Sprintf("    %s  Backups        %s", check, dim.Render(fmt.Sprintf("%s every %s", shortenPath(cfg.BackupDir), cfg.BackupInterval))))
		} else {
			lines = append(lines, fmt.Sprintf("    %s  Backups        %s", dot, dim.Render("off")))
		}
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Cache          %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Settings       %s", check, dim.Render(shortenPath(cfg.SettingsPath))))

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
