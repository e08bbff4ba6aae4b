package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/logdeck/internal/duckdb"
	"github.com/tinytelemetry/logdeck/internal/fixture"
	"github.com/tinytelemetry/logdeck/internal/httpserver"
	"github.com/tinytelemetry/logdeck/internal/livefeed"
	"github.com/tinytelemetry/logdeck/internal/model"
	"github.com/tinytelemetry/logdeck/internal/refresh"
	"github.com/tinytelemetry/logdeck/internal/settings"
	"github.com/tinytelemetry/logdeck/internal/socketrpc"
	"github.com/tinytelemetry/logdeck/internal/view"
)

type pipelineStack struct {
	store     *duckdb.Store
	view      *view.Coordinator
	scheduler *refresh.Scheduler
	apiAddr   string
	tcpAddr   string
	sock      string
}

func startPipeline(t *testing.T) *pipelineStack {
	t.Helper()

	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	coord := view.New(settings.Defaults())

	source := fixture.NewGenerator(fixture.Config{Seed: 7, Count: 40})
	scheduler := refresh.New(source, coord, store)

	insert := duckdb.NewInsertBuffer(store, duckdb.InsertBufferConfig{BatchSize: 64, FlushInterval: 20 * time.Millisecond})
	feed := livefeed.NewFeed([]model.RecordSink{coord, insert}, livefeed.FeedConfig{BatchInterval: 10 * time.Millisecond})

	tcp := livefeed.NewServer("127.0.0.1:0", feed)
	if err := tcp.Start(); err != nil {
		t.Fatalf("tcp Start: %v", err)
	}

	api := httpserver.NewServer("127.0.0.1:0", httpserver.Deps{
		View:      coord,
		Refresher: scheduler,
		History:   store,
		Feed:      feed,
	}, httpserver.Config{RateLimit: 1000, Burst: 1000})
	if err := api.Start(); err != nil {
		t.Fatalf("api Start: %v", err)
	}

	sock := filepath.Join(t.TempDir(), "pipeline.sock")
	rpc := socketrpc.NewServer(sock, socketrpc.Deps{View: coord, Refresher: scheduler, Cache: store})
	if err := rpc.Start(); err != nil {
		t.Fatalf("socket Start: %v", err)
	}

	t.Cleanup(func() {
		rpc.Stop()
		_ = api.Stop()
		_ = tcp.Stop()
		feed.Stop()
		insert.Stop()
		scheduler.Stop()
		_ = store.Close()
	})

	return &pipelineStack{
		store:     store,
		view:      coord,
		scheduler: scheduler,
		apiAddr:   api.Addr(),
		tcpAddr:   tcp.Addr(),
		sock:      sock,
	}
}

func waitEventually(t *testing.T, timeout, interval time.Duration, condition func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(interval)
	}
	t.Fatal(msg)
}

func sendTCPLines(t *testing.T, addr string, lines []string) {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial tcp: %v", err)
	}
	defer conn.Close()
	for _, line := range lines {
		if _, err := fmt.Fprintln(conn, line); err != nil {
			t.Fatalf("write tcp: %v", err)
		}
	}
}

func generateJSONBurst(n int, prefix, service string) []string {
	ts := time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)
	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		level := "info"
		if i%5 == 0 {
			level = "error"
		}
		lines = append(lines, fmt.Sprintf(`{"id":"%s-%d","timestamp":%q,"level":%q,"service":%q,"message":"burst %d"}`,
			prefix, i, ts, level, service, i))
	}
	return lines
}

func logsTotal(t *testing.T, addr, query string) (total, visible int) {
	t.Helper()

	resp, err := http.Get("http://" + addr + "/api/logs" + query)
	if err != nil {
		t.Fatalf("GET /api/logs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/logs status = %d", resp.StatusCode)
	}
	var body struct {
		Total   int `json:"total"`
		Visible int `json:"visible"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	return body.Total, body.Visible
}

func TestPipeline_RefreshThenLiveFeed(t *testing.T) {
	stack := startPipeline(t)

	res, err := stack.scheduler.RunOnce(t.Context())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Accepted != 40 {
		t.Fatalf("accepted = %d, want 40", res.Accepted)
	}
	if n, err := stack.store.CountRecords(); err != nil || n != 40 {
		t.Fatalf("cached records = %d (%v), want 40", n, err)
	}

	sendTCPLines(t, stack.tcpAddr, generateJSONBurst(10, "live", "payment-service"))
	waitEventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		total, _ := logsTotal(t, stack.apiAddr, "")
		return total == 50
	}, "live records did not reach the view")

	total, visible := logsTotal(t, stack.apiAddr, "?service=payment-service&search=burst")
	if total != 50 || visible != 10 {
		t.Fatalf("filtered total/visible = %d/%d, want 50/10", total, visible)
	}

	client, err := socketrpc.Dial(stack.sock)
	if err != nil {
		t.Fatalf("dial socket: %v", err)
	}
	defer client.Close()
	snap, err := client.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Total != 50 || snap.Visible != 10 || snap.Criteria.Service != "payment-service" {
		t.Fatalf("snapshot = %+v", snap)
	}

	waitEventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		n, err := stack.store.CountRecords()
		return err == nil && n == 50
	}, "live records did not reach the cache")
}

func TestPipeline_BurstIngestNoLoss(t *testing.T) {
	stack := startPipeline(t)

	const perConn = 500
	var wg sync.WaitGroup
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			sendTCPLines(t, stack.tcpAddr, generateJSONBurst(perConn, fmt.Sprintf("conn%d", c), "api-gateway"))
		}(c)
	}
	wg.Wait()

	want := 4 * perConn
	waitEventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		return len(stack.view.Records()) == want
	}, "burst did not fully reach the view")
	waitEventually(t, 5*time.Second, 25*time.Millisecond, func() bool {
		n, err := stack.store.CountRecords()
		return err == nil && n == int64(want)
	}, "burst did not fully reach the cache")
}

func TestPipeline_RefreshReplacesLiveRecords(t *testing.T) {
	stack := startPipeline(t)

	sendTCPLines(t, stack.tcpAddr, generateJSONBurst(5, "live", "auth-service"))
	waitEventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return len(stack.view.Records()) == 5
	}, "live records did not reach the view")

	resp, err := http.Post("http://"+stack.apiAddr+"/api/logs/refresh", "application/json", nil)
	if err != nil {
		t.Fatalf("POST refresh: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	if got := len(stack.view.Records()); got != 40 {
		t.Fatalf("records after refresh = %d, want 40", got)
	}
}
