package model

import (
	"testing"
	"time"
)

func TestLevelValid(t *testing.T) {
	tests := []struct {
		level Level
		want  bool
	}{
		{LevelError, true}, {LevelWarning, true}, {LevelInfo, true}, {LevelDebug, true},
		{"", false}, {"warn", false}, {"ERROR", false}, {"fatal", false},
	}
	for _, tt := range tests {
		if got := tt.level.Valid(); got != tt.want {
			t.Errorf("Level(%q).Valid() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestLevelRank(t *testing.T) {
	if LevelError.Rank() >= LevelWarning.Rank() || LevelInfo.Rank() >= LevelDebug.Rank() {
		t.Errorf("ranks out of severity order")
	}
	if Level("bogus").Rank() != 4 {
		t.Errorf("unknown level rank = %d, want 4", Level("bogus").Rank())
	}
}

func TestSortByTimestampStable(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	in := []LogRecord{
		{ID: "c", Timestamp: base.Add(2 * time.Minute)},
		{ID: "a", Timestamp: base},
		{ID: "b1", Timestamp: base.Add(time.Minute)},
		{ID: "b2", Timestamp: base.Add(time.Minute)},
	}

	out := SortByTimestamp(in)

	want := []string{"a", "b1", "b2", "c"}
	for i, id := range want {
		if out[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, out[i].ID, id)
		}
	}
	if in[0].ID != "c" {
		t.Errorf("input was reordered")
	}
}

func TestCloneDetachesMetadata(t *testing.T) {
	r := LogRecord{ID: "1", Metadata: map[string]any{"userId": 42}}
	c := r.Clone()
	c.Metadata["userId"] = 7

	if r.Metadata["userId"] != 42 {
		t.Errorf("clone shares metadata with original")
	}
}

func TestDefaultCriteriaIsDefault(t *testing.T) {
	if !DefaultCriteria().IsDefault() {
		t.Fatal("DefaultCriteria().IsDefault() = false")
	}
	c := DefaultCriteria()
	c.Search = "timeout"
	if c.IsDefault() {
		t.Error("criteria with search reported as default")
	}
	c = DefaultCriteria()
	now := time.Now()
	c.EndDate = &now
	if c.IsDefault() {
		t.Error("criteria with end date reported as default")
	}
}
