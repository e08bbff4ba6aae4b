package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/logdeck/internal/socketrpc"
)

const defaultFilterLimit = 20

// cliConfig holds only client-relevant configuration.
type cliConfig struct {
	SocketPath  string `mapstructure:"socket-path"`
	FilterLimit int    `mapstructure:"cli-filter-limit"`
	TimeRange   string `mapstructure:"cli-time-range"`
}

func loadCLIConfig(configPath string) (cliConfig, error) {
	var cfg cliConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("LOGDECK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("cli-filter-limit", defaultFilterLimit)
	v.SetDefault("cli-time-range", "24h")

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
	if cfg.FilterLimit <= 0 {
		cfg.FilterLimit = defaultFilterLimit
	}

	return cfg, nil
}
