package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.CORS.AllowedOrigins,
		AllowMethods:     s.config.CORS.AllowedMethods,
		AllowHeaders:     s.config.CORS.AllowedHeaders,
		AllowCredentials: s.config.CORS.AllowCredentials,
		MaxAge:           time.Duration(s.config.CORS.MaxAge) * time.Second,
	}))

	r.GET("/health", s.healthHandler)

	authed := r.Group("/", s.requireOwner)

	authed.POST("/stories", s.submitStoryHandler)
	authed.GET("/stories", s.listStoriesHandler)
	authed.GET("/stories/:id", s.getStoryHandler)
	authed.DELETE("/stories/:id", s.deleteStoryHandler)
	authed.POST("/stories/:id/retry", s.retryStoryHandler)

	authed.GET("/stats", s.getStatsHandler)
	authed.GET("/achievements", s.getAchievementsHandler)

	authed.GET("/events", s.streamEventsHandler)

	return r
}
