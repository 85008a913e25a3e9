package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// streamEventsHandler bridges the owner's change notification feed to
// the client as a server-sent event stream. Events carry no ordering
// promise; clients should re-fetch the story on receipt.
func (s *Server) streamEventsHandler(c *gin.Context) {
	ownerID := getOwnerID(c)

	events, unsubscribe, err := s.events.Subscribe(c.Request.Context(), ownerID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to subscribe to events: " + err.Error()})
		return
	}
	defer unsubscribe()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	log.Debug().Str("ownerId", ownerID).Msg("Event stream opened")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("story", event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})

	log.Debug().Str("ownerId", ownerID).Msg("Event stream closed")
}
