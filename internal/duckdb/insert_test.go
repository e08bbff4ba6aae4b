package duckdb

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/logdeck/internal/model"
)

func TestInsertBuffer_AppendAndStop(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	for _, r := range testRecords(10, t0) {
		buf.Append(r)
	}

	// Stop should flush all pending records
	buf.Stop()

	count, err := store.CountRecords()
	if err != nil {
		t.Fatalf("CountRecords: %v", err)
	}
	if count != 10 {
		t.Errorf("after Stop, CountRecords = %d, want 10", count)
	}
}

func TestInsertBuffer_BatchThreshold(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{BatchSize: 100, FlushInterval: time.Hour})

	buf.Append(testRecords(250, t0)...)
	buf.Stop()

	count, err := store.CountRecords()
	if err != nil {
		t.Fatalf("CountRecords: %v", err)
	}
	if count != 250 {
		t.Errorf("after batch insert, CountRecords = %d, want 250", count)
	}
}

func TestInsertBuffer_FlushInterval(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{FlushInterval: 10 * time.Millisecond})
	defer buf.Stop()

	buf.Append(testRecords(3, t0)...)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := store.CountRecords(); n == 3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("records were not flushed by the ticker")
}

func TestInsertBuffer_AppendAfterStopIsDropped(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)
	buf.Stop()
	buf.Stop()

	buf.Append(testRecords(2, t0)...)
	if n, _ := store.CountRecords(); n != 0 {
		t.Errorf("CountRecords = %d, want 0", n)
	}
}

func TestInsertBuffer_ConcurrentAppend(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{BatchSize: 50, FlushQueueSize: 1})

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				buf.Append(model.LogRecord{
					ID:        fmt.Sprintf("w%d-%d", w, i),
					Level:     model.LevelInfo,
					Service:   "svc",
					Message:   "concurrent",
					Timestamp: t0,
				})
			}
		}(w)
	}
	wg.Wait()
	buf.Stop()

	if n, _ := store.CountRecords(); n != 400 {
		t.Errorf("CountRecords = %d, want 400", n)
	}
}
