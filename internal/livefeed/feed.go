// Package livefeed accepts newline-delimited JSON records pushed by log
// producers and hands the valid ones to the dashboard's record sinks.
package livefeed

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/logdeck/internal/ingest"
	"github.com/tinytelemetry/logdeck/internal/model"
)

const (
	// DefaultMaxLineSize is the default maximum size (in bytes) of a single record line.
	DefaultMaxLineSize = 1024 * 1024 // 1MB

	// DefaultBatchSize caps how many records are handed to the sinks at once.
	DefaultBatchSize = 200

	// DefaultBatchInterval is how long a partial batch may wait.
	DefaultBatchInterval = 200 * time.Millisecond
)

// FeedConfig holds tunable parameters for a Feed.
type FeedConfig struct {
	MaxLineSize   int
	BatchSize     int
	BatchInterval time.Duration
	BufferSize    int // decoded records waiting for dispatch; defaults to model.DefaultLiveBuffer
}

// Stats counts lines seen by the feed.
type Stats struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}

// Feed decodes record lines from any number of streams and dispatches them to
// sinks in batches, so a burst of pushed records causes one view
// recomputation instead of one per record.
type Feed struct {
	sinks         []model.RecordSink
	records       chan model.LogRecord
	maxLineSize   int
	batchSize     int
	batchInterval time.Duration

	accepted atomic.Int64
	rejected atomic.Int64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewFeed creates a feed and starts its dispatcher.
func NewFeed(sinks []model.RecordSink, conf ...FeedConfig) *Feed {
	maxLineSize := DefaultMaxLineSize
	batchSize := DefaultBatchSize
	batchInterval := DefaultBatchInterval
	bufferSize := model.DefaultLiveBuffer
	if len(conf) > 0 {
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].BatchInterval > 0 {
			batchInterval = conf[0].BatchInterval
		}
		if conf[0].BufferSize > 0 {
			bufferSize = conf[0].BufferSize
		}
	}

	f := &Feed{
		sinks:         sinks,
		records:       make(chan model.LogRecord, bufferSize),
		maxLineSize:   maxLineSize,
		batchSize:     batchSize,
		batchInterval: batchInterval,
		done:          make(chan struct{}),
	}
	f.wg.Add(1)
	go f.dispatch()
	return f
}

// Consume reads record lines from r until EOF, ctx cancellation or Stop.
// Malformed lines are counted and skipped. A line longer than the maximum
// size ends the stream because the reader cannot resynchronise.
func (f *Feed) Consume(ctx context.Context, source string, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, f.maxLineSize)), f.maxLineSize)

	// Use a single goroutine for blocking scan with a done channel to
	// detect context cancellation without spawning a goroutine per line.
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			case <-f.done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case line, ok := <-lines:
			if !ok {
				return f.scanResult(source, scanErr)
			}
			if len(line) == 0 {
				continue
			}
			rec, err := ingest.DecodeLine(line)
			if err != nil {
				n := f.rejected.Add(1)
				if n == 1 || n%100 == 0 {
					log.Printf("livefeed: %s: rejected line (%d so far): %v", source, n, err)
				}
				continue
			}
			select {
			case f.records <- rec:
				f.accepted.Add(1)
			case <-ctx.Done():
				return ctx.Err()
			case <-f.done:
				return nil
			}
		}
	}
}

func (f *Feed) scanResult(source string, scanErr <-chan error) error {
	var err error
	select {
	case err = <-scanErr:
	default:
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, bufio.ErrTooLong) {
		f.rejected.Add(1)
		log.Printf("livefeed: %s: line exceeded max size (%d bytes), closing stream", source, f.maxLineSize)
		return err
	}
	log.Printf("livefeed: %s: read error: %v", source, err)
	return err
}

func (f *Feed) dispatch() {
	defer f.wg.Done()
	ticker := time.NewTicker(f.batchInterval)
	defer ticker.Stop()

	batch := make([]model.LogRecord, 0, f.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		for _, sink := range f.sinks {
			sink.Append(batch...)
		}
		batch = make([]model.LogRecord, 0, f.batchSize)
	}

	for {
		select {
		case rec := <-f.records:
			batch = append(batch, rec)
			if len(batch) >= f.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-f.done:
			// final drain
			for {
				select {
				case rec := <-f.records:
					batch = append(batch, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Stats returns the accepted and rejected line counts.
func (f *Feed) Stats() Stats {
	return Stats{Accepted: f.accepted.Load(), Rejected: f.rejected.Load()}
}

// Stop delivers any queued records and stops the dispatcher.
func (f *Feed) Stop() {
	f.stopOnce.Do(func() {
		close(f.done)
		f.wg.Wait()
	})
}
