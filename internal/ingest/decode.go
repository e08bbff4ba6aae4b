package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tinytelemetry/logdeck/internal/model"
)

// envelopeKeys are the object fields a log API may wrap its record array in.
var envelopeKeys = []string{"logs", "data", "records"}

// Decode parses a log API response body: either a JSON array of records or an
// object wrapping one under "logs", "data" or "records". Malformed records and
// repeated ids are dropped and counted in Batch.Rejected. Only a payload that
// is not JSON, or JSON of the wrong shape, is an error.
func Decode(data []byte) (model.Batch, error) {
	raws, err := decodeRawRecords(data)
	if err != nil {
		return model.Batch{}, err
	}

	batch := model.Batch{Records: make([]model.LogRecord, 0, len(raws))}
	seen := make(map[string]struct{}, len(raws))
	for _, item := range raws {
		raw, ok := item.(map[string]interface{})
		if !ok {
			batch.Rejected++
			continue
		}
		rec, err := Normalize(raw)
		if err != nil {
			batch.Rejected++
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			batch.Rejected++
			continue
		}
		seen[rec.ID] = struct{}{}
		batch.Records = append(batch.Records, rec)
	}
	batch.Records = model.SortByTimestamp(batch.Records)
	return batch, nil
}

// DecodeLine parses one newline-delimited JSON record from the live feed.
func DecodeLine(line []byte) (model.LogRecord, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return model.LogRecord{}, fmt.Errorf("%w: empty line", ErrMalformedRecord)
	}
	var raw map[string]interface{}
	if err := newDecoder(line).Decode(&raw); err != nil {
		return model.LogRecord{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return Normalize(raw)
}

func decodeRawRecords(data []byte) ([]interface{}, error) {
	var payload interface{}
	if err := newDecoder(data).Decode(&payload); err != nil {
		return nil, fmt.Errorf("ingest: decode payload: %w", err)
	}

	switch v := payload.(type) {
	case []interface{}:
		return v, nil
	case map[string]interface{}:
		for _, k := range envelopeKeys {
			if arr, ok := v[k].([]interface{}); ok {
				return arr, nil
			}
		}
		return nil, errors.New("ingest: payload object has no record array")
	}
	return nil, fmt.Errorf("ingest: unexpected payload type %T", payload)
}

func newDecoder(data []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec
}
