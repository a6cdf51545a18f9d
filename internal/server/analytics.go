package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agenthands/pulse/internal/model"
)

func (s *Server) BusiestCities(c *gin.Context) {
	windowDays := intQuery(c, "window_days", 7)
	limit := intQuery(c, "limit", 10)

	cities, err := s.deps.Analytics.BusiestCities(c.Request.Context(), windowDays, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if cities == nil {
		cities = []model.BusiestCity{}
	}
	c.JSON(http.StatusOK, gin.H{
		"window_days": windowDays,
		"cities":      cities,
	})
}

func (s *Server) PopularEventsDaily(c *gin.Context) {
	date := time.Now().UTC()
	if v := c.Query("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	result, err := s.deps.Analytics.PopularEventsForDay(c.Request.Context(), date)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
