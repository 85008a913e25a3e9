package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"storycoach/internal/controller"
	"storycoach/internal/database"
	"storycoach/internal/model"
)

// StoryResponse is the wire shape for story operations
type StoryResponse struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	MediaURL    string          `json:"mediaUrl"`
	Transcript  string          `json:"transcript,omitempty"`
	Duration    int             `json:"duration"`
	Category    string          `json:"category"`
	Personality string          `json:"personality"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
	Feedback    *model.Feedback `json:"feedback,omitempty"`
}

// submitStoryHandler accepts a multipart submission: the audio file
// plus category, duration and personality fields
func (s *Server) submitStoryHandler(c *gin.Context) {
	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing audio file"})
		return
	}
	defer file.Close()

	duration, err := strconv.Atoi(c.PostForm("duration"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid duration"})
		return
	}

	req := controller.SubmitStoryRequest{
		OwnerID:     getOwnerID(c),
		Category:    c.PostForm("category"),
		Personality: c.PostForm("personality"),
		Duration:    duration,
		FileName:    header.Filename,
		Audio:       file,
	}

	story, err := s.stories.SubmitStory(c.Request.Context(), req)
	if err != nil {
		if story == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// record exists but the processing trigger failed
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start processing: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, convertStoryToResponse(story, nil))
}

// getStoryHandler returns a story with its feedback when present
func (s *Server) getStoryHandler(c *gin.Context) {
	story, feedback, err := s.stories.GetStory(c.Request.Context(), getOwnerID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrStoryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Story not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get story: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, convertStoryToResponse(story, feedback))
}

// listStoriesHandler returns the owner's stories, newest first
func (s *Server) listStoriesHandler(c *gin.Context) {
	stories, err := s.stories.ListStories(c.Request.Context(), getOwnerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list stories: " + err.Error()})
		return
	}

	response := make([]StoryResponse, 0, len(stories))
	for i := range stories {
		response = append(response, convertStoryToResponse(&stories[i], nil))
	}

	c.JSON(http.StatusOK, response)
}

// deleteStoryHandler removes a story and its feedback
func (s *Server) deleteStoryHandler(c *gin.Context) {
	err := s.stories.DeleteStory(c.Request.Context(), getOwnerID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrStoryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Story not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete story: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// retryStoryHandler re-submits a failed story for processing
func (s *Server) retryStoryHandler(c *gin.Context) {
	story, err := s.stories.RetryStory(c.Request.Context(), getOwnerID(c), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, database.ErrStoryNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Story not found"})
		case errors.Is(err, controller.ErrStoryNotRetryable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retry story: " + err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, convertStoryToResponse(story, nil))
}

// convertStoryToResponse converts a story model to the wire format
func convertStoryToResponse(story *model.Story, feedback *model.Feedback) StoryResponse {
	return StoryResponse{
		ID:          story.ID.Hex(),
		Status:      string(story.Status),
		MediaURL:    story.MediaURL,
		Transcript:  story.Transcript,
		Duration:    story.Duration,
		Category:    string(story.Category),
		Personality: string(story.Personality),
		Error:       story.Error,
		CreatedAt:   story.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   story.UpdatedAt.Format(time.RFC3339),
		Feedback:    feedback,
	}
}
