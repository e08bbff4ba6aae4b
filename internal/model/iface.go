package model

import "context"

// RecordSource supplies the base record set. Implementations are the upstream
// log API client and the demo fixture generator.
type RecordSource interface {
	Name() string
	FetchRecords(ctx context.Context) (Batch, error)
}

// Batch is a decoded record collection. Rejected counts records that were
// dropped as malformed before they reached the engine.
type Batch struct {
	Records  []LogRecord `json:"records"`
	Rejected int         `json:"rejected"`
}

// RecordSink receives record batches pushed by the live feed.
type RecordSink interface {
	Append(records ...LogRecord)
}

// RecordStore is the persistence contract of the local record cache.
type RecordStore interface {
	ReplaceRecords(records []LogRecord) error
	AppendRecords(records []LogRecord) error
	LoadRecords() ([]LogRecord, error)
}
