package export

import (
	"encoding/csv"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/logdeck/internal/model"
)

var ts = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func TestEncodeDelimitedHeaderAndRows(t *testing.T) {
	records := []model.LogRecord{
		{ID: "1", Level: model.LevelError, Service: "api-gateway", Message: "Database connection timeout", Timestamp: ts},
		{ID: "2", Level: model.LevelInfo, Service: "auth-service", Message: "User login", Timestamp: ts.Add(time.Minute)},
	}
	got, err := EncodeDelimited(records, DefaultColumns)
	if err != nil {
		t.Fatalf("EncodeDelimited: %v", err)
	}
	want := "Timestamp,Level,Service,Message\n" +
		"2024-01-15 10:30:00,error,api-gateway,\"Database connection timeout\"\n" +
		"2024-01-15 10:31:00,info,auth-service,\"User login\"\n"
	if got != want {
		t.Errorf("output mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestEncodeDelimitedEmptyInputIsHeaderOnly(t *testing.T) {
	got, err := EncodeDelimited(nil, DefaultColumns)
	if err != nil {
		t.Fatalf("EncodeDelimited: %v", err)
	}
	if got != "Timestamp,Level,Service,Message\n" {
		t.Errorf("got %q", got)
	}
}

func TestEncodeDelimitedRoundTrip(t *testing.T) {
	records := []model.LogRecord{
		{ID: "a", Level: model.LevelWarning, Service: "payment,service", Message: `He said "retry" twice`, Timestamp: ts},
		{ID: "b", Level: model.LevelDebug, Service: "cache-service", Message: "line one\nline two, with comma", Timestamp: ts.Add(time.Second)},
		{ID: "c", Level: model.LevelInfo, Service: "user-service", Message: "", Timestamp: ts.Add(2 * time.Second)},
	}
	cols := []ColumnSpec{IDColumn, TimestampColumn, LevelColumn, ServiceColumn, MessageColumn}

	out, err := EncodeDelimited(records, cols)
	if err != nil {
		t.Fatalf("EncodeDelimited: %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("csv reader rejected output: %v\n%s", err, out)
	}
	if len(rows) != len(records)+1 {
		t.Fatalf("rows = %d, want %d", len(rows), len(records)+1)
	}
	for i, r := range records {
		row := rows[i+1]
		want := []string{r.ID, r.Timestamp.Format(TimestampLayout), string(r.Level), r.Service, r.Message}
		for j := range want {
			if row[j] != want[j] {
				t.Errorf("record %s field %d = %q, want %q", r.ID, j, row[j], want[j])
			}
		}
	}
}

func TestEncodeDelimitedQuotesOnlyWhenNeeded(t *testing.T) {
	records := []model.LogRecord{{ID: "x", Level: model.LevelInfo, Service: `a"b`, Message: "m", Timestamp: ts}}
	got, err := EncodeDelimited(records, []ColumnSpec{LevelColumn, ServiceColumn})
	if err != nil {
		t.Fatalf("EncodeDelimited: %v", err)
	}
	if got != "Level,Service\ninfo,\"a\"\"b\"\n" {
		t.Errorf("got %q", got)
	}
}

func TestEncodeDelimitedTimestampIsUTC(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	records := []model.LogRecord{{ID: "1", Timestamp: ts.In(loc)}}
	got, err := EncodeDelimited(records, []ColumnSpec{TimestampColumn})
	if err != nil {
		t.Fatalf("EncodeDelimited: %v", err)
	}
	if !strings.Contains(got, "2024-01-15 10:30:00") {
		t.Errorf("timestamp not rendered in UTC: %q", got)
	}
}

func TestEncodeDelimitedMetadata(t *testing.T) {
	records := []model.LogRecord{
		{ID: "1", Metadata: map[string]any{"userId": "u1"}},
		{ID: "2"},
	}
	got, err := EncodeDelimited(records, []ColumnSpec{IDColumn, MetadataColumn})
	if err != nil {
		t.Fatalf("EncodeDelimited: %v", err)
	}
	want := "ID,Metadata\n1,\"{\"\"userId\"\":\"\"u1\"\"}\"\n2,\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEncodeDelimitedFailureAbortsExport(t *testing.T) {
	records := []model.LogRecord{
		{ID: "ok", Metadata: map[string]any{"n": 1}},
		{ID: "bad", Metadata: map[string]any{"n": math.NaN()}},
	}
	got, err := EncodeDelimited(records, []ColumnSpec{IDColumn, MetadataColumn})
	if !errors.Is(err, ErrEncodingFailure) {
		t.Fatalf("err = %v, want ErrEncodingFailure", err)
	}
	if got != "" {
		t.Errorf("partial output returned: %q", got)
	}
	if !strings.Contains(err.Error(), "bad") || !strings.Contains(err.Error(), "Metadata") {
		t.Errorf("error does not name record and column: %v", err)
	}
}

func TestWriteDelimitedNoPartialWrite(t *testing.T) {
	var sb strings.Builder
	records := []model.LogRecord{{ID: "1", Message: "fine"}, {ID: "2", Message: "bad \xff"}}
	err := WriteDelimited(&sb, records, DefaultColumns)
	if !errors.Is(err, ErrEncodingFailure) {
		t.Fatalf("err = %v, want ErrEncodingFailure", err)
	}
	if sb.Len() != 0 {
		t.Errorf("writer received %d bytes", sb.Len())
	}
}

func TestEncodeDelimitedNoColumns(t *testing.T) {
	if _, err := EncodeDelimited(nil, nil); !errors.Is(err, ErrEncodingFailure) {
		t.Errorf("err = %v, want ErrEncodingFailure", err)
	}
}

func TestColumnsByName(t *testing.T) {
	cols, err := ColumnsByName([]string{"ID", " message "})
	if err != nil {
		t.Fatalf("ColumnsByName: %v", err)
	}
	if len(cols) != 2 || cols[0].Header != "ID" || cols[1].Header != "Message" {
		t.Errorf("cols = %+v", cols)
	}
	if cols, _ := ColumnsByName(nil); len(cols) != len(DefaultColumns) {
		t.Error("empty list did not select defaults")
	}
	if _, err := ColumnsByName([]string{"host"}); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestFileName(t *testing.T) {
	if got := FileName(ts); got != "logs-2024-01-15.csv" {
		t.Errorf("FileName = %q", got)
	}
}
