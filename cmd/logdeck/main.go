package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tinytelemetry/logdeck/internal/duckdb"
	"github.com/tinytelemetry/logdeck/internal/settings"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run parses args and either serves, checks the setup or restores the
// record cache. It returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("logdeck", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configPath  string
		source      string
		restorePath string
		check       bool
		showVersion bool
	)
	fs.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/logdeck/config.yml)")
	fs.StringVar(&source, "source", "", "record source, api or fixture (overrides the config file)")
	fs.StringVar(&restorePath, "restore", "", "replace the record cache with a backup snapshot and exit")
	fs.BoolVar(&check, "check", false, "validate config, settings and record cache, then exit")
	fs.BoolVar(&showVersion, "version", false, "print version information")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if showVersion {
		fmt.Fprintf(stdout, "Logdeck - Log Dashboard Service\n")
		fmt.Fprintf(stdout, "  Version:    %s\n", version)
		fmt.Fprintf(stdout, "  Commit:     %s\n", commit)
		fmt.Fprintf(stdout, "  Built:      %s\n", buildTime)
		fmt.Fprintf(stdout, "  Go version: %s\n", goVersion)
		return 0
	}

	cfg, err := loadConfig(configPath)
	if err == nil && source != "" {
		err = overrideSource(&cfg, source)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	switch {
	case check:
		err = checkSetup(cfg, stdout)
	case restorePath != "":
		err = restoreCache(cfg, restorePath, stdout)
	default:
		err = runServer(cfg)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func overrideSource(cfg *appConfig, source string) error {
	switch source {
	case sourceAPI, sourceFixture:
		cfg.Source = source
		return nil
	}
	return fmt.Errorf("invalid source: %q (want %s or %s)", source, sourceAPI, sourceFixture)
}

// checkSetup loads everything runServer would load before serving and
// reports it, failing on the first component that would stop startup.
func checkSetup(cfg appConfig, w io.Writer) error {
	configPath := cfg.ConfigPath
	if configPath == "" {
		configPath = "(defaults)"
	}
	fmt.Fprintf(w, "config     %s\n", configPath)
	fmt.Fprintf(w, "source     %s\n", cfg.Source)

	prefs, err := settings.NewStore(cfg.SettingsPath).Load()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "settings   %s (timezone %s, %d per page)\n", cfg.SettingsPath, prefs.Location(), prefs.MaxLogsPerPage)

	if !cfg.CacheEnabled {
		fmt.Fprintln(w, "cache      disabled")
		return nil
	}
	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("record cache: %w", err)
	}
	defer store.Close()

	st, err := store.SchemaStatus()
	if err != nil {
		return fmt.Errorf("record cache schema: %w", err)
	}
	n, err := store.CountRecords()
	if err != nil {
		return fmt.Errorf("record cache: %w", err)
	}
	fmt.Fprintf(w, "cache      %s (schema v%d, %d records)\n", cfg.DBPath, st.Current, n)

	last, ok, err := store.LastFetch()
	if err != nil {
		return fmt.Errorf("record cache fetch log: %w", err)
	}
	if ok {
		fmt.Fprintf(w, "last fetch %s from %s (%d accepted, %d rejected)\n",
			last.FetchedAt.In(prefs.Location()).Format("2006-01-02 15:04:05"), last.Source, last.Accepted, last.Rejected)
	} else {
		fmt.Fprintln(w, "last fetch never")
	}
	return nil
}

func restoreCache(cfg appConfig, snapshotPath string, w io.Writer) error {
	if !cfg.CacheEnabled {
		return errors.New("restore requires cache-enabled")
	}
	m, err := duckdb.RestoreSnapshot(snapshotPath, cfg.DBPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "restored %d records into %s (snapshot taken %s)\n",
		m.Records, cfg.DBPath, m.TakenAt.Format("2006-01-02 15:04:05"))
	return nil
}
