package socketrpc_test

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/logdeck/internal/fixture"
	"github.com/tinytelemetry/logdeck/internal/model"
	"github.com/tinytelemetry/logdeck/internal/settings"
	"github.com/tinytelemetry/logdeck/internal/socketrpc"
	"github.com/tinytelemetry/logdeck/internal/view"
)

func loadedView() *view.Coordinator {
	v := view.New(settings.Defaults())
	v.Replace(model.Batch{
		Records: fixture.LevelMix(time.Now().Add(-time.Hour), map[model.Level]int{
			model.LevelError: 5, model.LevelWarning: 10, model.LevelInfo: 30, model.LevelDebug: 5,
		}),
		Rejected: 2,
	})
	return v
}

func startTestServer(t *testing.T) (string, *socketrpc.Server) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "test.sock")
	srv := socketrpc.NewServer(sockPath, socketrpc.Deps{View: loadedView()})
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	return sockPath, srv
}

func TestRoundtrip(t *testing.T) {
	sockPath, srv := startTestServer(t)
	defer srv.Stop()

	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	t.Run("Snapshot", func(t *testing.T) {
		snap, err := client.Snapshot()
		if err != nil {
			t.Fatal(err)
		}
		if snap.Total != 50 || snap.Rejected != 2 {
			t.Fatalf("unexpected snapshot: %+v", snap)
		}
	})

	t.Run("Filter", func(t *testing.T) {
		res, err := client.Filter("level=error", 0, false)
		if err != nil {
			t.Fatal(err)
		}
		if res.Matched != 5 || len(res.Records) != 5 {
			t.Fatalf("unexpected filter result: matched %d, records %d", res.Matched, len(res.Records))
		}
	})

	t.Run("Summary", func(t *testing.T) {
		res, err := client.Summary("", "all", "24h")
		if err != nil {
			t.Fatal(err)
		}
		if res.Summary.Total != 50 || res.Summary.Levels[model.LevelWarning] != 10 {
			t.Fatalf("unexpected summary: %+v", res.Summary)
		}
		if res.Metrics.ErrorRate != 10 {
			t.Fatalf("error rate = %v, want 10", res.Metrics.ErrorRate)
		}
	})

	t.Run("Export", func(t *testing.T) {
		csv, err := client.Export("level=debug", nil)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(csv, "Timestamp,Level,Service,Message\n") || strings.Count(csv, "\n") != 6 {
			t.Fatalf("unexpected export: %q", csv)
		}
	})

	t.Run("InvalidParams", func(t *testing.T) {
		_, err := client.Filter("level=chatty", 0, false)
		var rpcErr *socketrpc.RPCError
		if !errors.As(err, &rpcErr) || rpcErr.Code != -32602 {
			t.Fatalf("err = %v, want invalid params", err)
		}
	})
}

func TestDialFailure(t *testing.T) {
	_, err := socketrpc.Dial(filepath.Join(t.TempDir(), "nonexistent.sock"))
	if err == nil {
		t.Fatal("expected error dialing nonexistent socket")
	}
}

func TestSecondServerRefused(t *testing.T) {
	sockPath, srv := startTestServer(t)
	defer srv.Stop()

	other := socketrpc.NewServer(sockPath, socketrpc.Deps{View: loadedView()})
	if err := other.Start(); err == nil {
		other.Stop()
		t.Fatal("expected second server on the same socket to fail")
	}
}

func TestServerStopCleansSocket(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "cleanup.sock")
	srv := socketrpc.NewServer(sockPath, socketrpc.Deps{View: loadedView()})
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	srv.Stop()

	if _, err := socketrpc.Dial(sockPath); err == nil {
		t.Fatal("expected dial to fail after server stop")
	}
}

func TestStopIdempotent(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "idempotent.sock")
	srv := socketrpc.NewServer(sockPath, socketrpc.Deps{View: loadedView()})
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	srv.Stop()
	srv.Stop()
}

func TestStopClosesConns(t *testing.T) {
	sockPath, srv := startTestServer(t)
	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	srv.Stop()

	done := make(chan error, 1)
	go func() {
		_, callErr := client.Snapshot()
		done <- callErr
	}()

	select {
	case callErr := <-done:
		if callErr == nil {
			t.Fatal("expected client call to fail after server stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client call hung after server stop")
	}
}
