package logparse

import (
	"testing"

	"github.com/tinytelemetry/logdeck/internal/model"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected model.Level
		ok       bool
	}{
		// Canonical forms
		{"error", model.LevelError, true}, {"warning", model.LevelWarning, true},
		{"info", model.LevelInfo, true}, {"debug", model.LevelDebug, true},
		// Variants
		{"ERR", model.LevelError, true}, {"ERRO", model.LevelError, true},
		{"FATAL", model.LevelError, true}, {"CRITICAL", model.LevelError, true}, {"PANIC", model.LevelError, true},
		{"WARN", model.LevelWarning, true}, {"WRN", model.LevelWarning, true},
		{"INFORMATION", model.LevelInfo, true}, {"INF", model.LevelInfo, true},
		{"TRACE", model.LevelDebug, true}, {"DBG", model.LevelDebug, true},
		// Whitespace
		{"  info  ", model.LevelInfo, true}, {"\tWARN\t", model.LevelWarning, true},
		// Rejected
		{"", "", false}, {"UNKNOWN", "", false}, {"notice", "", false}, {"INFORMATION_EXTRA", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseLevel(tt.input)
			if got != tt.expected || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestPinoLevelToLevel(t *testing.T) {
	tests := []struct {
		input    int64
		expected model.Level
		ok       bool
	}{
		{10, model.LevelDebug, true}, {20, model.LevelDebug, true}, {30, model.LevelInfo, true},
		{40, model.LevelWarning, true}, {50, model.LevelError, true}, {60, model.LevelError, true},
		{0, "", false}, {3, "", false}, {-5, "", false}, {35, "", false}, {70, "", false}, {99999, "", false},
	}
	for _, tt := range tests {
		got, ok := PinoLevelToLevel(tt.input)
		if got != tt.expected || ok != tt.ok {
			t.Errorf("PinoLevelToLevel(%d) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.expected, tt.ok)
		}
	}
}

func TestParseNumericLevel(t *testing.T) {
	if got, ok := ParseNumericLevel(" 40 "); !ok || got != model.LevelWarning {
		t.Errorf(`ParseNumericLevel(" 40 ") = (%q, %v)`, got, ok)
	}
	for _, in := range []string{"3", "-5", "99999", "4O"} {
		if _, ok := ParseNumericLevel(in); ok {
			t.Errorf("ParseNumericLevel(%q) accepted", in)
		}
	}
}
