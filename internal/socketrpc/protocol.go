package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tinytelemetry/logdeck/internal/analytics"
	"github.com/tinytelemetry/logdeck/internal/model"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes the dashboard engine to the logdeck-cli
// command over a Unix domain socket. Query is a dashboard query string
// (level=error&search=timeout); empty selects the active dashboard criteria.
//
//   Method         Params                                              Result
//   ───────────    ─────────────────────────────────────────────────   ──────────────
//   Snapshot       (none)                                              SnapshotResult
//   Filter         {Query: string, Limit: int, Apply: bool}            FilterResult
//   Summary        {Query: string, Scope: string, TimeRange: string}   SummaryResult
//   Export         {Query: string, Columns: []string}                  string (CSV)
//   Refresh        (none)                                              refresh.Result
//   BackupCache    {Path: string}                                      string (path)
//
// BackupCache with an empty Path writes into the rotating backup directory.
//
// Filter with Apply set makes Query the dashboard's active criteria.
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params (including invalid criteria)
//   -32603  Internal error (marshal failure)
//   -32000  Application error (refresh, export or backup failure)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeApplication    = -32000
)

// SnapshotResult summarises the dashboard state.
type SnapshotResult struct {
	Criteria model.FilterCriteria `json:"criteria"`
	Total    int                  `json:"total"`
	Visible  int                  `json:"visible"`
	Rejected int                  `json:"rejected"`
	Services []string             `json:"services"`
}

// FilterResult is the outcome of a Filter call. Records is capped at the
// requested limit; Matched counts every matching record.
type FilterResult struct {
	Criteria model.FilterCriteria `json:"criteria"`
	Records  []model.LogRecord    `json:"records"`
	Matched  int                  `json:"matched"`
	Total    int                  `json:"total"`
}

// SummaryResult carries the analytics page data.
type SummaryResult struct {
	TimeRange   analytics.TimeRange     `json:"timeRange"`
	Summary     model.AggregationResult `json:"summary"`
	Metrics     analytics.Metrics       `json:"metrics"`
	TopServices []model.DimensionCount  `json:"topServices"`
}

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/logdeck/logdeck.sock, falling back to
// ~/.local/state/logdeck/logdeck.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "logdeck", "logdeck.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/logdeck.sock"
	}
	return filepath.Join(home, ".local", "state", "logdeck", "logdeck.sock")
}
