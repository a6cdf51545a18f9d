package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) CacheKeys(c *gin.Context) {
	keys := s.deps.EventCache.Keys(c.Request.Context(), c.Query("pattern"))
	if keys == nil {
		keys = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys, "count": len(keys)})
}

func (s *Server) CacheInfo(c *gin.Context) {
	info := s.deps.EventCache.Info(c.Request.Context(), c.Param("key"))
	if !info.Exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "cache key not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) CacheClear(c *gin.Context) {
	key := c.Param("key")
	cleared := s.deps.EventCache.Clear(c.Request.Context(), key)
	c.JSON(http.StatusOK, gin.H{"key": key, "cleared": cleared})
}
