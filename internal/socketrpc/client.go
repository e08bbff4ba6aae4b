package socketrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/logdeck/internal/refresh"
)

// Client calls a logdeck socket RPC server.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	nextID  int
	scanner *bufio.Scanner
	encoder *json.Encoder
	timeout time.Duration
}

// Dial connects to the socket RPC server at the given path.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	return &Client{
		conn:    conn,
		scanner: scanner,
		encoder: json.NewEncoder(conn),
		timeout: 90 * time.Second,
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call performs a JSON-RPC call and unmarshals the result into dest.
func (c *Client) call(method string, params interface{}, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID

	paramsData, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("socketrpc: marshal params: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsData,
	}

	c.conn.SetDeadline(time.Now().Add(c.timeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("socketrpc: send: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return fmt.Errorf("socketrpc: read: %w", err)
		}
		return fmt.Errorf("socketrpc: connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("socketrpc: unmarshal response: %w", err)
	}
	if resp.ID != id {
		return fmt.Errorf("socketrpc: response id %d does not match request %d", resp.ID, id)
	}

	if resp.Error != nil {
		return resp.Error
	}

	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) Snapshot() (SnapshotResult, error) {
	var result SnapshotResult
	err := c.call("Snapshot", map[string]interface{}{}, &result)
	return result, err
}

// Filter evaluates query against the base set. With apply set the query
// also becomes the dashboard's active criteria.
func (c *Client) Filter(query string, limit int, apply bool) (FilterResult, error) {
	var result FilterResult
	err := c.call("Filter", map[string]interface{}{"Query": query, "Limit": limit, "Apply": apply}, &result)
	return result, err
}

func (c *Client) Summary(query, scope, timeRange string) (SummaryResult, error) {
	var result SummaryResult
	err := c.call("Summary", map[string]interface{}{"Query": query, "Scope": scope, "TimeRange": timeRange}, &result)
	return result, err
}

func (c *Client) Export(query string, columns []string) (string, error) {
	var result string
	err := c.call("Export", map[string]interface{}{"Query": query, "Columns": columns}, &result)
	return result, err
}

func (c *Client) Refresh() (refresh.Result, error) {
	var result refresh.Result
	err := c.call("Refresh", map[string]interface{}{}, &result)
	return result, err
}

func (c *Client) BackupCache(path string) (string, error) {
	var result string
	err := c.call("BackupCache", map[string]interface{}{"Path": path}, &result)
	return result, err
}
