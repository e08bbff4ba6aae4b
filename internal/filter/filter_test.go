package filter

import (
	"reflect"
	"testing"
	"time"

	"github.com/tinytelemetry/logdeck/internal/fixture"
	"github.com/tinytelemetry/logdeck/internal/model"
)

var base = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func mixed() []model.LogRecord {
	return fixture.LevelMix(base, map[model.Level]int{
		model.LevelError: 5, model.LevelWarning: 10, model.LevelInfo: 30, model.LevelDebug: 5,
	})
}

func ids(records []model.LogRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func ptr(t time.Time) *time.Time { return &t }

func TestApplyDefaultCriteriaIsIdentity(t *testing.T) {
	in := mixed()
	out := Apply(in, model.DefaultCriteria())

	if !reflect.DeepEqual(out, in) {
		t.Fatal("default criteria changed the record set")
	}
	out[0].Message = "mutated"
	if in[0].Message == "mutated" {
		t.Error("result aliases the input slice")
	}
}

func TestApplyEmptyInput(t *testing.T) {
	out := Apply(nil, model.FilterCriteria{Level: "error", Service: model.All})
	if out == nil || len(out) != 0 {
		t.Errorf("Apply(nil) = %#v, want empty non-nil slice", out)
	}
}

func TestApplyLevelPreservesOrder(t *testing.T) {
	in := mixed()
	c := model.FilterCriteria{Level: "error", Service: model.All}

	out := Apply(in, c)
	if len(out) != 5 {
		t.Fatalf("error records = %d, want 5", len(out))
	}

	var want []string
	for _, r := range in {
		if r.Level == model.LevelError {
			want = append(want, r.ID)
		}
	}
	if !reflect.DeepEqual(ids(out), want) {
		t.Errorf("order = %v, want %v", ids(out), want)
	}
}

func TestApplyServiceExactMatch(t *testing.T) {
	in := []model.LogRecord{
		{ID: "1", Service: "auth-service"},
		{ID: "2", Service: "auth-service-v2"},
		{ID: "3", Service: "Auth-Service"},
	}
	out := Apply(in, model.FilterCriteria{Level: model.All, Service: "auth-service"})
	if !reflect.DeepEqual(ids(out), []string{"1"}) {
		t.Errorf("service filter = %v, want [1]", ids(out))
	}
}

func TestApplySearchMessageOrService(t *testing.T) {
	in := []model.LogRecord{
		{ID: "m1", Message: "Upstream TIMEOUT after 30s", Service: "api-gateway"},
		{ID: "x", Message: "Cache miss occurred", Service: "cache-service"},
		{ID: "s1", Message: "Worker started", Service: "timeout-watchdog"},
		{ID: "m2", Message: "request timeout", Service: "user-service"},
		{ID: "both", Message: "timeout", Service: "timeout-svc"},
		{ID: "meta", Message: "ok", Service: "db", Metadata: map[string]any{"note": "timeout"}},
	}
	out := Apply(in, model.FilterCriteria{Level: model.All, Service: model.All, Search: "timeout"})

	want := []string{"m1", "s1", "m2", "both"}
	if !reflect.DeepEqual(ids(out), want) {
		t.Errorf("search = %v, want %v", ids(out), want)
	}
}

func TestApplySearchScenario(t *testing.T) {
	in := []model.LogRecord{
		{ID: "1", Message: "connection timeout", Service: "api-gateway"},
		{ID: "2", Message: "all good", Service: "user-service"},
		{ID: "3", Message: "read Timeout on socket", Service: "cache-service"},
		{ID: "4", Message: "started", Service: "timeout-monitor"},
		{ID: "5", Message: "stopped", Service: "auth-service"},
	}
	out := Apply(in, model.FilterCriteria{Level: model.All, Service: model.All, Search: "timeout"})
	if !reflect.DeepEqual(ids(out), []string{"1", "3", "4"}) {
		t.Errorf("search = %v, want [1 3 4]", ids(out))
	}
}

func TestApplyDateBoundsInclusive(t *testing.T) {
	in := []model.LogRecord{
		{ID: "before", Timestamp: base.Add(-time.Second)},
		{ID: "start", Timestamp: base},
		{ID: "mid", Timestamp: base.Add(time.Hour)},
		{ID: "end", Timestamp: base.Add(2 * time.Hour)},
		{ID: "after", Timestamp: base.Add(2*time.Hour + time.Second)},
	}
	c := model.FilterCriteria{
		Level: model.All, Service: model.All,
		StartDate: ptr(base), EndDate: ptr(base.Add(2 * time.Hour)),
	}
	out := Apply(in, c)
	if !reflect.DeepEqual(ids(out), []string{"start", "mid", "end"}) {
		t.Errorf("date range = %v", ids(out))
	}
}

func TestApplyDateBoundsCompareInstants(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	in := []model.LogRecord{{ID: "1", Timestamp: base.Add(time.Hour)}}
	// 10:00 JST on the 15th is 01:00 UTC on the 15th.
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, tokyo)
	out := Apply(in, model.FilterCriteria{Level: model.All, Service: model.All, StartDate: &start})
	if len(out) != 1 {
		t.Errorf("record at exactly the start instant was excluded")
	}
}

func TestApplyInvertedRangeIsEmpty(t *testing.T) {
	c := model.FilterCriteria{
		Level: model.All, Service: model.All,
		StartDate: ptr(base.Add(time.Hour)), EndDate: ptr(base),
	}
	if out := Apply(mixed(), c); len(out) != 0 {
		t.Errorf("inverted range matched %d records", len(out))
	}
}

func TestApplyStartAfterEverything(t *testing.T) {
	in := mixed()
	c := model.DefaultCriteria()
	c.StartDate = ptr(in[len(in)-1].Timestamp.Add(time.Second))
	out := Apply(in, c)
	if len(out) != 0 {
		t.Errorf("matched %d records, want 0", len(out))
	}
}

func TestApplyIdempotent(t *testing.T) {
	in := mixed()
	criteria := []model.FilterCriteria{
		model.DefaultCriteria(),
		{Level: "info", Service: model.All},
		{Level: model.All, Service: "api-gateway", Search: "success"},
		{Level: "warning", Service: model.All, StartDate: ptr(base.Add(10 * time.Minute))},
	}
	for _, c := range criteria {
		once := Apply(in, c)
		twice := Apply(once, c)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("Apply not idempotent for %+v", c)
		}
	}
}

func TestApplyMonotonic(t *testing.T) {
	in := mixed()
	loose := model.FilterCriteria{Level: model.All, Service: model.All, Search: "e"}
	strict := loose
	strict.Level = "error"
	stricter := strict
	stricter.Service = fixture.DefaultServices[0]

	a, b, c := len(Apply(in, loose)), len(Apply(in, strict)), len(Apply(in, stricter))
	if b > a || c > b {
		t.Errorf("narrowing increased result size: %d, %d, %d", a, b, c)
	}
}

func TestMatchAndCountAgreeWithApply(t *testing.T) {
	in := mixed()
	c := model.FilterCriteria{Level: "info", Service: model.All, Search: "cache"}
	out := Apply(in, c)
	if Count(in, c) != len(out) {
		t.Errorf("Count = %d, Apply = %d", Count(in, c), len(out))
	}
	for _, r := range out {
		if !Match(r, c) {
			t.Errorf("Match false for applied record %s", r.ID)
		}
	}
}
