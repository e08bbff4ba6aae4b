package duckdb

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/logdeck/internal/model"
)

// DefaultFlushQueueSize is the number of batches that can be queued for async flushing.
const DefaultFlushQueueSize = 64

type recordAppender interface {
	AppendRecords(records []model.LogRecord) error
}

// InsertBuffer batches pushed records and flushes them to the cache asynchronously.
// Append() never blocks on DuckDB writes - records are sent to a flush goroutine.
type InsertBuffer struct {
	writer        recordAppender
	mu            sync.Mutex
	pending       []model.LogRecord
	flushChan     chan []model.LogRecord // async flush queue
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	closed        bool
	stopOnce      sync.Once
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup // separate WaitGroup for tickLoop

	// backpressureCount tracks inline flushes for throttled logging.
	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64 // unix timestamp of last backpressure log
}

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
}

// NewInsertBuffer creates a new insert buffer that flushes to the store.
// The flush goroutine processes batches asynchronously so Append() never blocks on IO.
func NewInsertBuffer(writer recordAppender, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := 500
	flushInterval := 250 * time.Millisecond
	flushQueueSize := DefaultFlushQueueSize
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
		if conf[0].FlushQueueSize > 0 {
			flushQueueSize = conf[0].FlushQueueSize
		}
	}

	b := &InsertBuffer{
		writer:        writer,
		pending:       make([]model.LogRecord, 0, batchSize),
		flushChan:     make(chan []model.LogRecord, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

// tickLoop periodically drains the pending buffer.
func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending() // final drain
			return
		}
	}
}

// logBackpressure emits a throttled warning (at most once per 10 seconds) when
// the flush channel is full and an inline flush is triggered.
func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		log.Printf("duckdb: backpressure: %d inline flushes (flush channel full, cache falling behind)", count)
	}
}

// drainPending moves pending records to the flush channel without blocking on DuckDB.
func (b *InsertBuffer) drainPending() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make([]model.LogRecord, 0, b.maxBatch)
	b.mu.Unlock()

	// Non-blocking send to flush channel. If channel is full, flush synchronously
	// as a safety valve (this means DuckDB is falling behind).
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		if err := b.writer.AppendRecords(batch); err != nil {
			log.Printf("duckdb flush error (inline): %v", err)
		}
	}
}

// flushWorker processes batches from the flush channel.
func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		if err := b.writer.AppendRecords(batch); err != nil {
			log.Printf("duckdb flush error: %v", err)
		}
	}
}

// Append queues records for batch insertion. This never blocks on DuckDB IO.
// Records appended after Stop are dropped.
func (b *InsertBuffer) Append(records ...model.LogRecord) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.pending = append(b.pending, records...)
	var overflow []model.LogRecord
	if len(b.pending) >= b.maxBatch {
		batch := b.pending
		b.pending = make([]model.LogRecord, 0, b.maxBatch)
		select {
		case b.flushChan <- batch:
		default:
			overflow = batch
		}
	}
	b.mu.Unlock()

	if overflow != nil {
		// Backpressure safety valve: flush inline instead of spawning
		// unbounded goroutines under sustained overload.
		b.logBackpressure()
		if err := b.writer.AppendRecords(overflow); err != nil {
			log.Printf("duckdb flush error (overflow-inline): %v", err)
		}
	}
}

// Stop flushes remaining records and waits for all writes to complete.
// It is safe to call more than once.
func (b *InsertBuffer) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		close(b.done)
		// Wait for tickLoop to finish its final drain before closing flushChan,
		// ensuring all pending records are sent to the flush channel.
		b.tickWg.Wait()
		close(b.flushChan)
		b.wg.Wait()
	})
}
