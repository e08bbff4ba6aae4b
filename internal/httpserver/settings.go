package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/logdeck/internal/settings"
)

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.View.Settings())
}

// handlePutSettings merges the request body onto the current settings, so a
// client may send only the fields it changes.
func (s *Server) handlePutSettings(c *gin.Context) {
	next := s.deps.View.Settings()
	if err := c.ShouldBindJSON(&next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if err := next.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.deps.Settings != nil {
		if err := s.deps.Settings.Save(next); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, settings.ErrInvalidSettings) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
	}
	s.applySettings(next)
	c.JSON(http.StatusOK, next)
}

func (s *Server) handleResetSettings(c *gin.Context) {
	next := settings.Defaults()
	if s.deps.Settings != nil {
		saved, err := s.deps.Settings.Reset()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		next = saved
	}
	s.applySettings(next)
	c.JSON(http.StatusOK, next)
}

func (s *Server) applySettings(next settings.Settings) {
	s.deps.View.SetSettings(next)
	for _, fn := range s.deps.OnSettings {
		fn(next)
	}
}
