package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swctools/swctools/internal/util"
)

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":        s.version,
		"uptime":         time.Since(s.started).Round(time.Second).String(),
		"session":        s.runner.Status(),
		"host":           s.host,
		"memory_percent": util.MemoryUsedPercent(),
	})
}
