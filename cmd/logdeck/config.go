package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/logdeck/internal/duckdb"
	"github.com/tinytelemetry/logdeck/internal/fetch"
	"github.com/tinytelemetry/logdeck/internal/refresh"
	"github.com/tinytelemetry/logdeck/internal/socketrpc"
)

const (
	defaultBindHost            = "127.0.0.1"
	defaultTCPPort             = 4000
	defaultAPIPort             = 3000
	defaultSource              = sourceAPI
	defaultFixtureCount        = 50
	defaultQueryTimeout        = duckdb.DefaultQueryTimeout
	defaultFetchTimeout        = fetch.DefaultTimeout
	defaultRefreshTimeout      = refresh.DefaultFetchTimeout
	defaultInsertBatchSize     = 500
	defaultInsertFlushInterval = 250 * time.Millisecond
	defaultRateLimit           = 20.0
	defaultRateBurst           = 40
	defaultBackupInterval      = 6 * time.Hour
	defaultBackupKeep          = 24
)

const (
	sourceAPI     = "api"
	sourceFixture = "fixture"
)

// appConfig is internal runtime configuration.
// User preferences edited from the dashboard live in the settings file
// instead; this file covers what the process needs before it can serve.
type appConfig struct {
	Host                string        `mapstructure:"host"`
	TCPEnabled          bool          `mapstructure:"tcp-enabled"`
	TCPPort             int           `mapstructure:"tcp-port"`
	TCPAddr             string        `mapstructure:"tcp-addr"`
	APIEnabled          bool          `mapstructure:"api-enabled"`
	APIPort             int           `mapstructure:"api-port"`
	APIAddr             string        `mapstructure:"api-addr"`
	SocketPath          string        `mapstructure:"socket-path"`
	Source              string        `mapstructure:"source"`
	APIToken            string        `mapstructure:"api-token"`
	FixtureCount        int           `mapstructure:"fixture-count"`
	FixtureSeed         int64         `mapstructure:"fixture-seed"`
	FetchTimeout        time.Duration `mapstructure:"fetch-timeout"`
	RefreshTimeout      time.Duration `mapstructure:"refresh-timeout"`
	CacheEnabled        bool          `mapstructure:"cache-enabled"`
	DBPath              string        `mapstructure:"db-path"`
	QueryTimeout        time.Duration `mapstructure:"query-timeout"`
	InsertBatchSize     int           `mapstructure:"insert-batch-size"`
	InsertFlushInterval time.Duration `mapstructure:"insert-flush-interval"`
	SettingsPath        string        `mapstructure:"settings-path"`
	RateLimit           float64       `mapstructure:"rate-limit"`
	RateBurst           int           `mapstructure:"rate-burst"`
	BackupEnabled       bool          `mapstructure:"backup-enabled"`
	BackupInterval      time.Duration `mapstructure:"backup-interval"`
	BackupDir           string        `mapstructure:"backup-dir"`
	BackupKeep          int           `mapstructure:"backup-keep"`
	ConfigPath          string        `mapstructure:"-"` // not from config file
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("LOGDECK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("host", defaultBindHost)
	v.SetDefault("tcp-enabled", true)
	v.SetDefault("tcp-port", defaultTCPPort)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("source", defaultSource)
	v.SetDefault("fixture-count", defaultFixtureCount)
	v.SetDefault("fixture-seed", 0)
	v.SetDefault("fetch-timeout", defaultFetchTimeout)
	v.SetDefault("refresh-timeout", defaultRefreshTimeout)
	v.SetDefault("cache-enabled", true)
	v.SetDefault("db-path", filepath.Join(home, ".local", "share", "logdeck", "cache.duckdb"))
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("insert-batch-size", defaultInsertBatchSize)
	v.SetDefault("insert-flush-interval", defaultInsertFlushInterval)
	v.SetDefault("settings-path", filepath.Join(home, ".config", "logdeck", "settings.yml"))
	v.SetDefault("rate-limit", defaultRateLimit)
	v.SetDefault("rate-burst", defaultRateBurst)
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-dir", filepath.Join(home, ".local", "share", "logdeck", "backups"))
	v.SetDefault("backup-keep", defaultBackupKeep)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "logdeck", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err == nil {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	if cfg.TCPPort <= 0 || cfg.TCPPort > 65535 {
		return cfg, fmt.Errorf("invalid tcp-port: %d", cfg.TCPPort)
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	switch cfg.Source {
	case sourceAPI, sourceFixture:
	default:
		return cfg, fmt.Errorf("invalid source: %q (want %s or %s)", cfg.Source, sourceAPI, sourceFixture)
	}
	if cfg.FixtureCount <= 0 {
		return cfg, fmt.Errorf("invalid fixture-count: %d", cfg.FixtureCount)
	}
	if cfg.RateLimit <= 0 || cfg.RateBurst <= 0 {
		return cfg, fmt.Errorf("invalid rate-limit/rate-burst: %v/%d", cfg.RateLimit, cfg.RateBurst)
	}

	if cfg.BackupEnabled {
		if !cfg.CacheEnabled {
			return cfg, fmt.Errorf("backup-enabled requires cache-enabled")
		}
		if cfg.BackupInterval < time.Minute {
			return cfg, fmt.Errorf("invalid backup-interval: %s (minimum 1m)", cfg.BackupInterval)
		}
	}

	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.BackupDir = expandHome(cfg.BackupDir, home)
	cfg.SettingsPath = expandHome(cfg.SettingsPath, home)
	cfg.SocketPath = expandHome(cfg.SocketPath, home)

	if cfg.Host == "" {
		cfg.Host = defaultBindHost
	}
	if cfg.TCPAddr == "" {
		cfg.TCPAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.TCPPort))
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
