package filter

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/tinytelemetry/logdeck/internal/model"
)

func TestParseCriteriaDefaults(t *testing.T) {
	c, err := ParseCriteria(url.Values{}, nil)
	if err != nil {
		t.Fatalf("ParseCriteria: %v", err)
	}
	if !c.IsDefault() {
		t.Errorf("empty params produced %+v", c)
	}
}

func TestParseCriteriaFields(t *testing.T) {
	v := url.Values{
		"level":     {"error"},
		"service":   {"api-gateway"},
		"search":    {"Timeout"},
		"startDate": {"2024-01-15T08:00:00Z"},
		"endDate":   {"2024-01-16"},
	}
	c, err := ParseCriteria(v, time.UTC)
	if err != nil {
		t.Fatalf("ParseCriteria: %v", err)
	}
	if c.Level != "error" || c.Service != "api-gateway" || c.Search != "Timeout" {
		t.Errorf("fields = %+v", c)
	}
	if !c.StartDate.Equal(time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("startDate = %v", c.StartDate)
	}
	wantEnd := time.Date(2024, 1, 16, 23, 59, 59, 999999999, time.UTC)
	if !c.EndDate.Equal(wantEnd) {
		t.Errorf("endDate = %v, want %v", c.EndDate, wantEnd)
	}
}

func TestParseCriteriaDateOnlyUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	c, err := ParseCriteria(url.Values{"startDate": {"2024-01-15"}}, loc)
	if err != nil {
		t.Fatalf("ParseCriteria: %v", err)
	}
	want := time.Date(2024, 1, 14, 22, 0, 0, 0, time.UTC)
	if !c.StartDate.Equal(want) {
		t.Errorf("startDate = %v, want %v", c.StartDate, want)
	}
}

func TestParseCriteriaDateOnlyEndAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	tests := []struct {
		day  string
		want time.Time
	}{
		// 23-hour day: clocks jump forward at 02:00
		{"2024-03-10", time.Date(2024, 3, 10, 23, 59, 59, 999999999, loc)},
		// 25-hour day: clocks fall back at 02:00
		{"2024-11-03", time.Date(2024, 11, 3, 23, 59, 59, 999999999, loc)},
		{"2024-07-01", time.Date(2024, 7, 1, 23, 59, 59, 999999999, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.day, func(t *testing.T) {
			c, err := ParseCriteria(url.Values{"endDate": {tt.day}}, loc)
			if err != nil {
				t.Fatalf("ParseCriteria: %v", err)
			}
			if !c.EndDate.Equal(tt.want) {
				t.Errorf("endDate = %v, want %v", c.EndDate.In(loc), tt.want)
			}
		})
	}
}

func TestParseCriteriaErrors(t *testing.T) {
	tests := []url.Values{
		{"level": {"fatal"}},
		{"startDate": {"yesterday"}},
		{"endDate": {"15/01/2024"}},
	}
	for _, v := range tests {
		if _, err := ParseCriteria(v, nil); !errors.Is(err, ErrInvalidCriteria) {
			t.Errorf("ParseCriteria(%v) err = %v, want ErrInvalidCriteria", v, err)
		}
	}
}

func TestValuesRoundTrip(t *testing.T) {
	start := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	in := model.FilterCriteria{Level: "warning", Service: "auth-service", Search: "denied", StartDate: &start}

	out, err := ParseCriteria(Values(in), nil)
	if err != nil {
		t.Fatalf("ParseCriteria: %v", err)
	}
	if out.Level != in.Level || out.Service != in.Service || out.Search != in.Search ||
		!out.StartDate.Equal(start) || out.EndDate != nil {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
	if len(Values(model.DefaultCriteria())) != 0 {
		t.Error("default criteria rendered parameters")
	}
}
