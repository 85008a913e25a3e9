package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// requireOwner scopes every request to the submitting user. The actual
// authentication sits in front of this service; by the time a request
// lands here the gateway has verified the identity carried in the
// X-Owner-ID header.
func (s *Server) requireOwner(c *gin.Context) {
	ownerID := c.GetHeader("X-Owner-ID")
	if ownerID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing owner identity"})
		return
	}

	c.Set("ownerID", ownerID)
	c.Next()
}

// getOwnerID gets the owner ID from the context (set by requireOwner)
func getOwnerID(c *gin.Context) string {
	ownerID, exists := c.Get("ownerID")
	if !exists {
		return ""
	}
	return ownerID.(string)
}
