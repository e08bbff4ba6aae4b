package settings

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/logdeck/internal/model"
)

func TestDefaultsAreValid(t *testing.T) {
	d := Defaults()
	if err := d.Validate(); err != nil {
		t.Fatalf("Defaults().Validate() = %v", err)
	}
	if d.LogRetention != 30 || d.RefreshInterval != 30 || d.MaxLogsPerPage != 100 || !d.AutoRefresh {
		t.Errorf("defaults = %+v", d)
	}
	if !d.Notifications.Errors || d.Notifications.Warnings || d.Notifications.Info {
		t.Errorf("notification defaults = %+v", d.Notifications)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		field  string
	}{
		{"retention too low", func(s *Settings) { s.LogRetention = 0 }, "logRetention"},
		{"retention too high", func(s *Settings) { s.LogRetention = 400 }, "logRetention"},
		{"bad level", func(s *Settings) { s.LogLevel = "verbose" }, "logLevel"},
		{"refresh too fast", func(s *Settings) { s.RefreshInterval = 1 }, "refreshInterval"},
		{"endpoint scheme", func(s *Settings) { s.APIEndpoint = "ftp://x" }, "apiEndpoint"},
		{"endpoint host", func(s *Settings) { s.APIEndpoint = "http://" }, "apiEndpoint"},
		{"page size", func(s *Settings) { s.MaxLogsPerPage = 5 }, "maxLogsPerPage"},
		{"timezone", func(s *Settings) { s.Timezone = "Mars/Olympus" }, "timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(&s)
			err := s.Validate()
			if !errors.Is(err, ErrInvalidSettings) {
				t.Fatalf("err = %v, want ErrInvalidSettings", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}

func TestSetNotification(t *testing.T) {
	s := Defaults()
	if err := s.SetNotification("warn", true); err != nil {
		t.Fatalf("SetNotification: %v", err)
	}
	if err := s.SetNotification("error", false); err != nil {
		t.Fatalf("SetNotification: %v", err)
	}
	if s.Notifications.Errors || !s.Notifications.Warnings {
		t.Errorf("notifications = %+v", s.Notifications)
	}
	if err := s.SetNotification("debug", true); err == nil {
		t.Error("expected error for debug")
	}
	if err := s.SetNotification("loud", true); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNotifies(t *testing.T) {
	s := Defaults()
	s.Notifications = Notifications{Errors: true, Warnings: true, Info: true}
	s.LogLevel = model.LevelWarning

	if !s.Notifies(model.LevelError) || !s.Notifies(model.LevelWarning) {
		t.Error("error and warning should notify")
	}
	if s.Notifies(model.LevelInfo) {
		t.Error("info is below the configured log level")
	}
	if s.Notifies(model.LevelDebug) {
		t.Error("debug never notifies")
	}
}

func TestLocation(t *testing.T) {
	s := Defaults()
	s.Timezone = "America/New_York"
	if s.Location().String() != "America/New_York" {
		t.Errorf("location = %v", s.Location())
	}
	s.Timezone = "nowhere"
	if s.Location() != time.UTC {
		t.Errorf("fallback location = %v", s.Location())
	}
}

func TestStoreLoadMissingFileReturnsDefaults(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "settings.yml"))
	got, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != Defaults() {
		t.Errorf("got %+v, want defaults", got)
	}
}

func TestStoreSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yml")
	st := NewStore(path)

	s := Defaults()
	s.LogRetention = 7
	s.Timezone = "Europe/Berlin"
	s.Notifications.Info = true
	if err := st.Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != s {
		t.Errorf("got %+v, want %+v", got, s)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestStorePartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yml")
	if err := os.WriteFile(path, []byte("log_retention: 90\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := NewStore(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.LogRetention != 90 || got.MaxLogsPerPage != 100 || got.Timezone != "UTC" {
		t.Errorf("got %+v", got)
	}
}

func TestStoreRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yml")
	st := NewStore(path)

	bad := Defaults()
	bad.LogRetention = 0
	if err := st.Save(bad); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("Save err = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("invalid settings were written")
	}

	if err := os.WriteFile(path, []byte("log_retention: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Load(); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("Load err = %v", err)
	}
}

func TestStoreReset(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "settings.yml"))
	s := Defaults()
	s.MaxLogsPerPage = 500
	if err := st.Save(s); err != nil {
		t.Fatal(err)
	}
	got, err := st.Reset()
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	loaded, _ := st.Load()
	if got != Defaults() || loaded != Defaults() {
		t.Errorf("reset = %+v, loaded = %+v", got, loaded)
	}
}
