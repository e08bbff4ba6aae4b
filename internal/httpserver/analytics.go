package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/logdeck/internal/analytics"
	"github.com/tinytelemetry/logdeck/internal/model"
	"github.com/tinytelemetry/logdeck/internal/view"
)

const defaultTopServices = 10

type analyticsQuery struct {
	timeRange analytics.TimeRange
	scope     view.Scope
	window    analytics.TrendWindow
}

func (s *Server) parseAnalyticsQuery(c *gin.Context) (analyticsQuery, bool) {
	tr, err := analytics.ParseTimeRange(c.Query("timeRange"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return analyticsQuery{}, false
	}
	scope, ok := view.ParseScope(c.Query("scope"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope must be all or filtered"})
		return analyticsQuery{}, false
	}
	now := s.now().In(s.deps.View.Location())
	return analyticsQuery{timeRange: tr, scope: scope, window: tr.Window(now)}, true
}

func (s *Server) scopedRecords(scope view.Scope) []model.LogRecord {
	if scope == view.ScopeFiltered {
		return s.deps.View.Snapshot().Visible
	}
	return s.deps.View.Records()
}

func (s *Server) handleDashboard(c *gin.Context) {
	q, ok := s.parseAnalyticsQuery(c)
	if !ok {
		return
	}
	records := s.scopedRecords(q.scope)
	c.JSON(http.StatusOK, gin.H{
		"timeRange":   q.timeRange,
		"scope":       q.scope,
		"summary":     analytics.Summarize(records, q.window),
		"metrics":     analytics.KeyMetrics(records, q.window),
		"topServices": analytics.TopServices(records, defaultTopServices),
	})
}

func (s *Server) handleLevels(c *gin.Context) {
	q, ok := s.parseAnalyticsQuery(c)
	if !ok {
		return
	}
	records := s.scopedRecords(q.scope)
	c.JSON(http.StatusOK, gin.H{
		"scope":  q.scope,
		"total":  analytics.TotalCount(records),
		"levels": analytics.LevelDistribution(records),
	})
}

func (s *Server) handleServices(c *gin.Context) {
	q, ok := s.parseAnalyticsQuery(c)
	if !ok {
		return
	}
	limit := defaultTopServices
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	records := s.scopedRecords(q.scope)
	c.JSON(http.StatusOK, gin.H{
		"scope":    q.scope,
		"services": analytics.TopServices(records, limit),
		"counts":   analytics.ServiceDistribution(records),
	})
}

func (s *Server) handleTrends(c *gin.Context) {
	q, ok := s.parseAnalyticsQuery(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"timeRange": q.timeRange,
		"scope":     q.scope,
		"buckets":   analytics.HourlyTrend(s.scopedRecords(q.scope), q.window),
	})
}

// handleHourly returns 24 hourly buckets for one calendar day (query
// parameter date, YYYY-MM-DD, default today) in the configured timezone.
func (s *Server) handleHourly(c *gin.Context) {
	scope, ok := view.ParseScope(c.Query("scope"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope must be all or filtered"})
		return
	}
	loc := s.deps.View.Location()
	day := s.now().In(loc)
	if raw := c.Query("date"); raw != "" {
		d, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		day = d
	}
	c.JSON(http.StatusOK, gin.H{
		"date":    day.Format("2006-01-02"),
		"scope":   scope,
		"buckets": analytics.HourlyTrend(s.scopedRecords(scope), analytics.DayWindow(day)),
	})
}
