package httpserver

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/logdeck/internal/export"
	"github.com/tinytelemetry/logdeck/internal/filter"
	"github.com/tinytelemetry/logdeck/internal/model"
)

var criteriaParams = []string{"level", "service", "search", "startDate", "endDate"}

// queryCriteria parses the request's filter parameters. A request without
// any filter parameter yields nil and keeps the active criteria, so the
// dashboard can page through a filtered view without repeating them.
func (s *Server) queryCriteria(c *gin.Context) (*model.FilterCriteria, error) {
	values := c.Request.URL.Query()
	if !hasCriteria(values) {
		return nil, nil
	}
	criteria, err := filter.ParseCriteria(values, s.deps.View.Location())
	if err != nil {
		return nil, err
	}
	return &criteria, nil
}

func hasCriteria(values url.Values) bool {
	for _, k := range criteriaParams {
		if _, ok := values[k]; ok {
			return true
		}
	}
	return false
}

func (s *Server) handleLogs(c *gin.Context) {
	criteria, err := s.queryCriteria(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page := 1
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a positive integer"})
			return
		}
		page = n
	}

	p := s.deps.View.PageNumber(criteria, page)
	pages := (p.Visible + p.Limit - 1) / p.Limit

	c.JSON(http.StatusOK, gin.H{
		"logs":     p.Records,
		"page":     page,
		"pages":    pages,
		"limit":    p.Limit,
		"visible":  p.Visible,
		"total":    p.Total,
		"criteria": p.Criteria,
	})
}

func (s *Server) handleRecord(c *gin.Context) {
	rec, ok := s.deps.View.Record(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "log not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleExport(c *gin.Context) {
	criteria, err := s.queryCriteria(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	columns := export.DefaultColumns
	if raw := strings.TrimSpace(c.Query("columns")); raw != "" {
		cols, err := export.ColumnsByName(strings.Split(raw, ","))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		columns = cols
	}

	data, err := s.deps.View.ExportWith(criteria, columns)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := export.FileName(s.now().In(s.deps.View.Location()))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(data))
}

func (s *Server) handleRefresh(c *gin.Context) {
	if s.deps.Refresher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no record source configured"})
		return
	}
	res, err := s.deps.Refresher.RunOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleGetFilters(c *gin.Context) {
	criteria := s.deps.View.Criteria()
	c.JSON(http.StatusOK, gin.H{
		"criteria": criteria,
		"query":    filter.Values(criteria).Encode(),
		"services": s.deps.View.Snapshot().Services,
	})
}

func (s *Server) handleClearFilters(c *gin.Context) {
	s.deps.View.ClearFilters()
	c.JSON(http.StatusOK, gin.H{"criteria": s.deps.View.Criteria()})
}
