package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// getStatsHandler returns the owner's aggregate practice stats
func (s *Server) getStatsHandler(c *gin.Context) {
	stats, err := s.stats.GetStats(c.Request.Context(), getOwnerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// getAchievementsHandler returns the full catalog annotated with grants
func (s *Server) getAchievementsHandler(c *gin.Context) {
	achievements, err := s.stats.GetAchievements(c.Request.Context(), getOwnerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get achievements: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, achievements)
}
