package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// healthHandler reports the status of every backing service
func (s *Server) healthHandler(c *gin.Context) {
	ctx := c.Request.Context()

	checks := gin.H{
		"mongodb":  "ok",
		"rabbitmq": "ok",
		"redis":    "ok",
	}
	healthy := true

	if err := s.db.Health(); err != nil {
		checks["mongodb"] = err.Error()
		healthy = false
	}
	if err := s.rabbit.Health(); err != nil {
		checks["rabbitmq"] = err.Error()
		healthy = false
	}
	if err := s.events.Ping(ctx); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"healthy": healthy,
		"checks":  checks,
	})
}
