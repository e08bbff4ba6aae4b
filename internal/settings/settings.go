// Package settings holds the dashboard's user-editable preferences and
// persists them as YAML.
package settings

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/tinytelemetry/logdeck/internal/logparse"
	"github.com/tinytelemetry/logdeck/internal/model"
)

// ErrInvalidSettings wraps every validation failure.
var ErrInvalidSettings = errors.New("invalid settings")

const (
	MinLogRetention = 1
	MaxLogRetention = 365

	MinRefreshInterval = 5
	MaxRefreshInterval = 300

	MinLogsPerPage = 10
	MaxLogsPerPage = 1000
)

// Notifications selects which levels raise a dashboard notification.
type Notifications struct {
	Errors   bool `yaml:"errors" json:"errors"`
	Warnings bool `yaml:"warnings" json:"warnings"`
	Info     bool `yaml:"info" json:"info"`
}

// Settings mirrors the dashboard settings page.
type Settings struct {
	LogRetention    int           `yaml:"log_retention" json:"logRetention"` // days
	LogLevel        model.Level   `yaml:"log_level" json:"logLevel"`
	AutoRefresh     bool          `yaml:"auto_refresh" json:"autoRefresh"`
	RefreshInterval int           `yaml:"refresh_interval" json:"refreshInterval"` // seconds
	Notifications   Notifications `yaml:"notifications" json:"notifications"`
	APIEndpoint     string        `yaml:"api_endpoint" json:"apiEndpoint"`
	MaxLogsPerPage  int           `yaml:"max_logs_per_page" json:"maxLogsPerPage"`
	Timezone        string        `yaml:"timezone" json:"timezone"`
}

// Defaults returns the factory settings.
func Defaults() Settings {
	return Settings{
		LogRetention:    30,
		LogLevel:        model.LevelInfo,
		AutoRefresh:     true,
		RefreshInterval: int(model.DefaultRefreshInterval / time.Second),
		Notifications: Notifications{
			Errors: true,
		},
		APIEndpoint:    "http://localhost:3001/api",
		MaxLogsPerPage: model.DefaultPageSize,
		Timezone:       "UTC",
	}
}

// Validate checks every field and reports all problems at once.
func (s Settings) Validate() error {
	var problems []string
	if s.LogRetention < MinLogRetention || s.LogRetention > MaxLogRetention {
		problems = append(problems, fmt.Sprintf("logRetention must be between %d and %d days", MinLogRetention, MaxLogRetention))
	}
	if !s.LogLevel.Valid() {
		problems = append(problems, fmt.Sprintf("logLevel %q is not one of error, warning, info, debug", s.LogLevel))
	}
	if s.RefreshInterval < MinRefreshInterval || s.RefreshInterval > MaxRefreshInterval {
		problems = append(problems, fmt.Sprintf("refreshInterval must be between %d and %d seconds", MinRefreshInterval, MaxRefreshInterval))
	}
	if u, err := url.Parse(s.APIEndpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("apiEndpoint %q must be an http(s) URL", s.APIEndpoint))
	}
	if s.MaxLogsPerPage < MinLogsPerPage || s.MaxLogsPerPage > MaxLogsPerPage {
		problems = append(problems, fmt.Sprintf("maxLogsPerPage must be between %d and %d", MinLogsPerPage, MaxLogsPerPage))
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("timezone %q is unknown", s.Timezone))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(problems, "; "))
	}
	return nil
}

// SetNotification toggles notifications for one level. Debug records never
// notify, so only error, warning and info are accepted.
func (s *Settings) SetNotification(level string, on bool) error {
	lvl, ok := logparse.ParseLevel(level)
	if !ok {
		return fmt.Errorf("%w: unknown level %q", ErrInvalidSettings, level)
	}
	switch lvl {
	case model.LevelError:
		s.Notifications.Errors = on
	case model.LevelWarning:
		s.Notifications.Warnings = on
	case model.LevelInfo:
		s.Notifications.Info = on
	default:
		return fmt.Errorf("%w: no notification toggle for %s", ErrInvalidSettings, lvl)
	}
	return nil
}

// Notifies reports whether a record of level l should raise a notification.
// The level must be enabled and at least as severe as LogLevel.
func (s Settings) Notifies(l model.Level) bool {
	if l.Rank() > s.LogLevel.Rank() {
		return false
	}
	switch l {
	case model.LevelError:
		return s.Notifications.Errors
	case model.LevelWarning:
		return s.Notifications.Warnings
	case model.LevelInfo:
		return s.Notifications.Info
	}
	return false
}

// Location resolves Timezone, falling back to UTC.
func (s Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RefreshEvery returns RefreshInterval as a duration.
func (s Settings) RefreshEvery() time.Duration {
	return time.Duration(s.RefreshInterval) * time.Second
}

// Retention returns LogRetention as a duration.
func (s Settings) Retention() time.Duration {
	return time.Duration(s.LogRetention) * 24 * time.Hour
}
