package httpserver

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const streamHeartbeat = 15 * time.Second

// handleStream sends a server-sent event for every view change. The first
// event is a snapshot of the current counts.
func (s *Server) handleStream(c *gin.Context) {
	changes, unsubscribe := s.deps.View.Subscribe()
	defer unsubscribe()

	// Event streams outlive the server's write timeout.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	snap := s.deps.View.Snapshot()
	c.SSEvent("snapshot", gin.H{
		"criteria": snap.Criteria,
		"total":    snap.Total,
		"visible":  len(snap.Visible),
		"rejected": snap.Rejected,
	})
	c.Writer.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-s.ctx.Done():
			return false
		case ch, ok := <-changes:
			if !ok {
				return false
			}
			c.SSEvent(string(ch.Kind), ch)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", s.now().UTC().Format(time.RFC3339))
			return true
		}
	})
}
