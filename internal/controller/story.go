package controller

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storycoach/internal/database"
	"storycoach/internal/model"
	"storycoach/internal/storage"
)

var (
	// ErrStoryNotRetryable is returned when retry is requested for a
	// story that is not in failed status
	ErrStoryNotRetryable = errors.New("only failed stories can be retried")
)

// Enqueuer triggers asynchronous processing of a story
type Enqueuer interface {
	Enqueue(story *model.Story) error
}

// StatsRecomputer rebuilds an owner's dashboard aggregate
type StatsRecomputer interface {
	RecomputeStats(ctx context.Context, ownerID string) error
}

// SubmitStoryRequest carries one submission
type SubmitStoryRequest struct {
	OwnerID     string
	Category    string
	Personality string
	Duration    int
	FileName    string
	Audio       io.Reader
}

// StoryController handles story operations
type StoryController interface {
	// SubmitStory uploads the recording, creates the pending record and
	// fires the processing trigger. The caller does not block on
	// processing.
	SubmitStory(ctx context.Context, req SubmitStoryRequest) (*model.Story, error)

	// GetStory returns an owner's story with its feedback when present
	GetStory(ctx context.Context, ownerID, storyID string) (*model.Story, *model.Feedback, error)

	// StoryWithFeedback is GetStory for callers already holding an
	// ObjectID; it satisfies the completion watcher's fetcher contract
	StoryWithFeedback(ctx context.Context, ownerID string, storyID primitive.ObjectID) (*model.Story, *model.Feedback, error)

	// ListStories returns the owner's stories, newest first
	ListStories(ctx context.Context, ownerID string) ([]model.Story, error)

	// DeleteStory removes a story, cascades its feedback and recomputes
	// the owner's stats over the reduced set
	DeleteStory(ctx context.Context, ownerID, storyID string) error

	// RetryStory re-enters processing for a failed story
	RetryStory(ctx context.Context, ownerID, storyID string) (*model.Story, error)
}

type storyController struct {
	db       database.Database
	files    storage.FileService
	enqueuer Enqueuer
	stats    StatsRecomputer
}

// NewStoryController creates a new story controller
func NewStoryController(db database.Database, files storage.FileService, enqueuer Enqueuer, stats StatsRecomputer) StoryController {
	return &storyController{
		db:       db,
		files:    files,
		enqueuer: enqueuer,
		stats:    stats,
	}
}

// SubmitStory implements StoryController
func (c *storyController) SubmitStory(ctx context.Context, req SubmitStoryRequest) (*model.Story, error) {
	category, err := model.ParseStoryCategory(req.Category)
	if err != nil {
		return nil, err
	}
	personality, err := model.ParsePersonality(req.Personality)
	if err != nil {
		return nil, err
	}
	if req.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %d", req.Duration)
	}

	// Submission failures surface synchronously: no record means
	// nothing to track.
	mediaURL, err := c.files.UploadAudio(ctx, req.FileName, req.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to upload audio: %w", err)
	}

	story := &model.Story{
		OwnerID:     req.OwnerID,
		MediaURL:    mediaURL,
		Duration:    req.Duration,
		Category:    category,
		Personality: personality,
	}
	if err := c.db.CreateStory(ctx, story); err != nil {
		return nil, fmt.Errorf("failed to create story: %w", err)
	}

	// The record exists; an enqueue failure now is a processing
	// failure on the story, not a submission failure.
	if err := c.enqueuer.Enqueue(story); err != nil {
		if failErr := c.db.UpdateStoryStatus(ctx, story.ID, model.StatusFailed, "failed to enqueue processing"); failErr != nil {
			log.Error().Err(failErr).Str("storyId", story.ID.Hex()).Msg("Failed to mark unenqueued story failed")
		}
		return story, fmt.Errorf("failed to enqueue story: %w", err)
	}

	log.Info().
		Str("storyId", story.ID.Hex()).
		Str("ownerId", story.OwnerID).
		Str("category", string(category)).
		Msg("Story submitted")

	return story, nil
}

// GetStory implements StoryController
func (c *storyController) GetStory(ctx context.Context, ownerID, storyID string) (*model.Story, *model.Feedback, error) {
	id, err := primitive.ObjectIDFromHex(storyID)
	if err != nil {
		return nil, nil, database.ErrStoryNotFound
	}
	return c.StoryWithFeedback(ctx, ownerID, id)
}

// StoryWithFeedback implements StoryController and watch.Fetcher
func (c *storyController) StoryWithFeedback(ctx context.Context, ownerID string, storyID primitive.ObjectID) (*model.Story, *model.Feedback, error) {
	story, err := c.db.GetStoryForOwner(ctx, ownerID, storyID)
	if err != nil {
		return nil, nil, err
	}

	feedback, err := c.db.GetFeedbackByStory(ctx, storyID)
	if err != nil {
		if errors.Is(err, database.ErrFeedbackNotFound) {
			// A completed story with invisible feedback is the
			// replication-lag window; callers decide how to wait.
			return story, nil, nil
		}
		return nil, nil, err
	}

	return story, feedback, nil
}

// ListStories implements StoryController
func (c *storyController) ListStories(ctx context.Context, ownerID string) ([]model.Story, error) {
	return c.db.ListStoriesByOwner(ctx, ownerID)
}

// DeleteStory implements StoryController
func (c *storyController) DeleteStory(ctx context.Context, ownerID, storyID string) error {
	id, err := primitive.ObjectIDFromHex(storyID)
	if err != nil {
		return database.ErrStoryNotFound
	}

	story, err := c.db.DeleteStory(ctx, ownerID, id)
	if err != nil {
		return err
	}

	// Stale stats are acceptable; the deletion is not rolled back if
	// the recompute fails.
	if err := c.stats.RecomputeStats(ctx, story.OwnerID); err != nil {
		log.Error().Err(err).Str("ownerId", story.OwnerID).Msg("Stats recompute after deletion failed")
	}

	return nil
}

// RetryStory implements StoryController. Status transitions are
// monotonic, so a retry never rewinds the failed story: it creates a
// fresh record reusing the stored media reference and enqueues that.
func (c *storyController) RetryStory(ctx context.Context, ownerID, storyID string) (*model.Story, error) {
	id, err := primitive.ObjectIDFromHex(storyID)
	if err != nil {
		return nil, database.ErrStoryNotFound
	}

	failed, err := c.db.GetStoryForOwner(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if failed.Status != model.StatusFailed {
		return nil, ErrStoryNotRetryable
	}

	retry := &model.Story{
		OwnerID:     failed.OwnerID,
		MediaURL:    failed.MediaURL,
		Duration:    failed.Duration,
		Category:    failed.Category,
		Personality: failed.Personality,
	}
	if err := c.db.CreateStory(ctx, retry); err != nil {
		return nil, fmt.Errorf("failed to create retry story: %w", err)
	}

	if err := c.enqueuer.Enqueue(retry); err != nil {
		if failErr := c.db.UpdateStoryStatus(ctx, retry.ID, model.StatusFailed, "failed to enqueue processing"); failErr != nil {
			log.Error().Err(failErr).Str("storyId", retry.ID.Hex()).Msg("Failed to mark unenqueued retry failed")
		}
		return retry, fmt.Errorf("failed to enqueue retry: %w", err)
	}

	log.Info().
		Str("storyId", retry.ID.Hex()).
		Str("retryOf", failed.ID.Hex()).
		Msg("Retry submitted")

	return retry, nil
}
