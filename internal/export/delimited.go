// Package export renders record sets as delimited text for download.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tinytelemetry/logdeck/internal/model"
)

// ErrEncodingFailure is returned when a record cannot be represented in the
// output. The whole export is abandoned.
var ErrEncodingFailure = errors.New("export: encoding failure")

const (
	delimiter    = ','
	rowSeparator = "\n"

	// TimestampLayout is the human-readable timestamp format used in exports.
	TimestampLayout = "2006-01-02 15:04:05"
)

// ColumnSpec describes one output column.
type ColumnSpec struct {
	Header string
	Value  func(model.LogRecord) (string, error)
	// AlwaysQuote wraps every value of the column in quotes, not only the
	// ones that need it.
	AlwaysQuote bool
}

var (
	IDColumn = ColumnSpec{Header: "ID", Value: func(r model.LogRecord) (string, error) {
		return r.ID, nil
	}}
	TimestampColumn = ColumnSpec{Header: "Timestamp", Value: func(r model.LogRecord) (string, error) {
		return r.Timestamp.UTC().Format(TimestampLayout), nil
	}}
	LevelColumn = ColumnSpec{Header: "Level", Value: func(r model.LogRecord) (string, error) {
		return string(r.Level), nil
	}}
	ServiceColumn = ColumnSpec{Header: "Service", Value: func(r model.LogRecord) (string, error) {
		return r.Service, nil
	}}
	MessageColumn = ColumnSpec{Header: "Message", AlwaysQuote: true, Value: func(r model.LogRecord) (string, error) {
		return r.Message, nil
	}}
	MetadataColumn = ColumnSpec{Header: "Metadata", Value: func(r model.LogRecord) (string, error) {
		if len(r.Metadata) == 0 {
			return "", nil
		}
		b, err := json.Marshal(r.Metadata)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}}
)

// DefaultColumns is the dashboard's export layout.
var DefaultColumns = []ColumnSpec{TimestampColumn, LevelColumn, ServiceColumn, MessageColumn}

var columnsByName = map[string]ColumnSpec{
	"id":        IDColumn,
	"timestamp": TimestampColumn,
	"level":     LevelColumn,
	"service":   ServiceColumn,
	"message":   MessageColumn,
	"metadata":  MetadataColumn,
}

// ColumnsByName resolves a list of column names (case-insensitive). An empty
// list selects DefaultColumns.
func ColumnsByName(names []string) ([]ColumnSpec, error) {
	if len(names) == 0 {
		return DefaultColumns, nil
	}
	cols := make([]ColumnSpec, 0, len(names))
	for _, name := range names {
		col, ok := columnsByName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("export: unknown column %q", name)
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// EncodeDelimited renders records as comma-separated text: a header row, then
// one row per record in input order. Nothing is returned on failure.
func EncodeDelimited(records []model.LogRecord, columns []ColumnSpec) (string, error) {
	var sb strings.Builder
	if err := WriteDelimited(&sb, records, columns); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// WriteDelimited is EncodeDelimited writing into w. Every row is encoded
// before anything is written, so w never receives a partial export.
func WriteDelimited(w io.Writer, records []model.LogRecord, columns []ColumnSpec) error {
	if len(columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrEncodingFailure)
	}

	var sb strings.Builder
	for i, col := range columns {
		if i > 0 {
			sb.WriteByte(delimiter)
		}
		writeField(&sb, col.Header, false)
	}
	sb.WriteString(rowSeparator)

	for _, r := range records {
		for i, col := range columns {
			v, err := col.Value(r)
			if err != nil {
				return fmt.Errorf("%w: column %s, record %s: %v", ErrEncodingFailure, col.Header, r.ID, err)
			}
			if !utf8.ValidString(v) {
				return fmt.Errorf("%w: column %s, record %s: invalid UTF-8", ErrEncodingFailure, col.Header, r.ID)
			}
			if i > 0 {
				sb.WriteByte(delimiter)
			}
			writeField(&sb, v, col.AlwaysQuote)
		}
		sb.WriteString(rowSeparator)
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("export: write: %w", err)
	}
	return nil
}

func writeField(sb *strings.Builder, v string, force bool) {
	if !force && !needsQuotes(v) {
		sb.WriteString(v)
		return
	}
	sb.WriteByte('"')
	sb.WriteString(strings.ReplaceAll(v, `"`, `""`))
	sb.WriteByte('"')
}

func needsQuotes(v string) bool {
	return strings.ContainsAny(v, "\",\r\n")
}

// FileName returns the download name for an export taken at now.
func FileName(now time.Time) string {
	return "logs-" + now.Format("2006-01-02") + ".csv"
}
