// Package ingest turns loosely typed records from the log API and the live
// feed into validated model.LogRecord values.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tinytelemetry/logdeck/internal/logparse"
	"github.com/tinytelemetry/logdeck/internal/model"
	"github.com/tinytelemetry/logdeck/internal/timestamp"
)

// ErrMalformedRecord marks a record that cannot enter the engine.
var ErrMalformedRecord = errors.New("malformed record")

// RawRecord is one record as decoded from JSON, before validation. Numbers
// are kept as json.Number.
type RawRecord map[string]interface{}

var (
	idKeys        = []string{"id", "_id", "logId"}
	levelKeys     = []string{"level", "severity", "severityText"}
	messageKeys   = []string{"message", "msg", "body"}
	serviceKeys   = []string{"service", "service.name", "serviceName", "app"}
	timestampKeys = []string{"timestamp", "time", "ts", "@timestamp"}
	metadataKeys  = []string{"metadata", "meta", "attributes"}
)

var parser = timestamp.NewParser()

// Normalize validates raw and converts it to a LogRecord. The error wraps
// ErrMalformedRecord and names the offending field.
func Normalize(raw RawRecord) (model.LogRecord, error) {
	id := ExtractStringField(raw, idKeys...)
	if id == "" {
		return model.LogRecord{}, malformed("missing id")
	}

	level, err := extractLevel(raw)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("%w: record %s: %v", ErrMalformedRecord, id, err)
	}

	message, ok := firstPresent(raw, messageKeys...)
	if !ok {
		return model.LogRecord{}, malformed("record " + id + ": missing message")
	}

	service := ExtractStringField(raw, serviceKeys...)
	if service == "" {
		return model.LogRecord{}, malformed("record " + id + ": missing service")
	}

	tsValue, ok := firstPresent(raw, timestampKeys...)
	if !ok {
		return model.LogRecord{}, malformed("record " + id + ": missing timestamp")
	}
	ts, ok := parser.ParseTimestamp(tsValue)
	if !ok {
		return model.LogRecord{}, malformed(fmt.Sprintf("record %s: unparseable timestamp %v", id, tsValue))
	}

	return model.LogRecord{
		ID:        id,
		Level:     level,
		Message:   stringifyJSONValue(message),
		Service:   service,
		Timestamp: ts,
		Metadata:  extractMetadata(raw),
	}, nil
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedRecord, reason)
}

func extractLevel(raw RawRecord) (model.Level, error) {
	v, ok := firstPresent(raw, levelKeys...)
	if !ok {
		return "", errors.New("missing level")
	}
	if n, isNum := v.(json.Number); isNum {
		i, err := n.Int64()
		if err != nil {
			return "", fmt.Errorf("invalid numeric level %s", n)
		}
		level, ok := logparse.PinoLevelToLevel(i)
		if !ok {
			return "", fmt.Errorf("numeric level %d out of range", i)
		}
		return level, nil
	}
	s := stringifyJSONValue(v)
	if level, ok := logparse.ParseLevel(s); ok {
		return level, nil
	}
	if level, ok := logparse.ParseNumericLevel(s); ok {
		return level, nil
	}
	return "", fmt.Errorf("unknown level %q", s)
}

func extractMetadata(raw RawRecord) map[string]any {
	for _, k := range metadataKeys {
		if m, ok := raw[k].(map[string]interface{}); ok && len(m) > 0 {
			return normalizeNumbers(m).(map[string]any)
		}
	}
	return nil
}

// normalizeNumbers converts json.Number leaves to float64 or int64 so
// metadata re-encodes the same way it was received.
func normalizeNumbers(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]interface{}:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeNumbers(item)
		}
		return out
	case []interface{}:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeNumbers(item)
		}
		return out
	}
	return v
}

func firstPresent(raw RawRecord, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringifyJSONValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64, bool:
		return fmt.Sprintf("%v", v)
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return ""
}

// ExtractStringField returns the first non-empty string value found among the given keys.
func ExtractStringField(raw map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if str := strings.TrimSpace(stringifyJSONValue(v)); str != "" {
				return str
			}
		}
	}
	return ""
}
