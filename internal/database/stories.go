package database

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storycoach/internal/model"
)

// StoryDatabase defines story-related store operations
type StoryDatabase interface {
	// CreateStory persists a new story record; status is forced to pending
	CreateStory(ctx context.Context, story *model.Story) error

	// GetStoryByID retrieves a story by id, unscoped (worker path)
	GetStoryByID(ctx context.Context, id primitive.ObjectID) (*model.Story, error)

	// GetStoryForOwner retrieves a story only if it belongs to the owner
	GetStoryForOwner(ctx context.Context, ownerID string, id primitive.ObjectID) (*model.Story, error)

	// ListStoriesByOwner returns all of an owner's stories, newest first
	ListStoriesByOwner(ctx context.Context, ownerID string) ([]model.Story, error)

	// UpdateStoryStatus advances a story's status. The write is a
	// compare-and-set: it matches only when the current status may
	// legally transition to the requested one, so concurrent or
	// replayed triggers can never move a story backward.
	UpdateStoryStatus(ctx context.Context, id primitive.ObjectID, status model.StoryStatus, errMsg string) error

	// SetTranscript stores the transcript text for a story
	SetTranscript(ctx context.Context, id primitive.ObjectID, transcript string) error

	// DeleteStory removes an owner's story and cascades its feedback.
	// Returns the deleted story so the caller can recompute stats.
	DeleteStory(ctx context.Context, ownerID string, id primitive.ObjectID) (*model.Story, error)
}

// allowedPrev returns the set of statuses that may transition into "to",
// per the forward-only lattice in the model package.
func allowedPrev(to model.StoryStatus) []model.StoryStatus {
	var prev []model.StoryStatus
	for _, from := range []model.StoryStatus{
		model.StatusPending,
		model.StatusProcessing,
		model.StatusCompleted,
		model.StatusFailed,
	} {
		if from.CanTransitionTo(to) {
			prev = append(prev, from)
		}
	}
	return prev
}

// CreateStory persists a new story record
func (m *mongoDB) CreateStory(ctx context.Context, story *model.Story) error {
	if story.ID.IsZero() {
		story.ID = primitive.NewObjectID()
	}

	now := time.Now()
	story.Status = model.StatusPending
	story.CreatedAt = now
	story.UpdatedAt = now

	_, err := m.storiesCol.InsertOne(ctx, story)
	if err != nil {
		log.Error().Err(err).Str("storyId", story.ID.Hex()).Msg("Failed to create story")
		return err
	}

	log.Debug().
		Str("storyId", story.ID.Hex()).
		Str("ownerId", story.OwnerID).
		Str("category", string(story.Category)).
		Msg("Created new story")
	return nil
}

// GetStoryByID retrieves a story by its ID
func (m *mongoDB) GetStoryByID(ctx context.Context, id primitive.ObjectID) (*model.Story, error) {
	var story model.Story
	err := m.storiesCol.FindOne(ctx, bson.M{"_id": id}).Decode(&story)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrStoryNotFound
		}
		log.Error().Err(err).Str("storyId", id.Hex()).Msg("Failed to get story")
		return nil, err
	}

	return &story, nil
}

// GetStoryForOwner retrieves a story scoped to its owner
func (m *mongoDB) GetStoryForOwner(ctx context.Context, ownerID string, id primitive.ObjectID) (*model.Story, error) {
	var story model.Story
	err := m.storiesCol.FindOne(ctx, bson.M{"_id": id, "owner_id": ownerID}).Decode(&story)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrStoryNotFound
		}
		log.Error().Err(err).Str("storyId", id.Hex()).Str("ownerId", ownerID).Msg("Failed to get story")
		return nil, err
	}

	return &story, nil
}

// ListStoriesByOwner retrieves all stories for an owner, newest first
func (m *mongoDB) ListStoriesByOwner(ctx context.Context, ownerID string) ([]model.Story, error) {
	opts := mongoFindNewestFirst()

	cursor, err := m.storiesCol.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		log.Error().Err(err).Str("ownerId", ownerID).Msg("Failed to list stories by owner")
		return nil, err
	}
	defer cursor.Close(ctx)

	stories := []model.Story{}
	if err := cursor.All(ctx, &stories); err != nil {
		log.Error().Err(err).Msg("Failed to decode stories")
		return nil, err
	}

	return stories, nil
}

// UpdateStoryStatus advances the status with a compare-and-set write
func (m *mongoDB) UpdateStoryStatus(ctx context.Context, id primitive.ObjectID, status model.StoryStatus, errMsg string) error {
	prev := allowedPrev(status)
	if len(prev) == 0 {
		return ErrInvalidTransition
	}

	set := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	if errMsg != "" {
		set["error"] = errMsg
	}

	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": prev},
	}

	result, err := m.storiesCol.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		log.Error().Err(err).Str("storyId", id.Hex()).Str("status", string(status)).Msg("Failed to update story status")
		return err
	}

	if result.MatchedCount == 0 {
		// Either the story is gone or its current status forbids this edge.
		count, countErr := m.storiesCol.CountDocuments(ctx, bson.M{"_id": id})
		if countErr == nil && count == 0 {
			return ErrStoryNotFound
		}
		log.Warn().
			Str("storyId", id.Hex()).
			Str("requested", string(status)).
			Msg("Rejected non-forward story status transition")
		return ErrInvalidTransition
	}

	log.Debug().Str("storyId", id.Hex()).Str("status", string(status)).Msg("Updated story status")
	return nil
}

// SetTranscript stores the transcript text for a story
func (m *mongoDB) SetTranscript(ctx context.Context, id primitive.ObjectID, transcript string) error {
	update := bson.M{
		"$set": bson.M{
			"transcript": transcript,
			"updated_at": time.Now(),
		},
	}

	result, err := m.storiesCol.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		log.Error().Err(err).Str("storyId", id.Hex()).Msg("Failed to set transcript")
		return err
	}
	if result.MatchedCount == 0 {
		return ErrStoryNotFound
	}

	log.Debug().Str("storyId", id.Hex()).Int("length", len(transcript)).Msg("Stored transcript")
	return nil
}

// DeleteStory removes a story and cascades its feedback record
func (m *mongoDB) DeleteStory(ctx context.Context, ownerID string, id primitive.ObjectID) (*model.Story, error) {
	var story model.Story
	err := m.storiesCol.FindOneAndDelete(ctx, bson.M{"_id": id, "owner_id": ownerID}).Decode(&story)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrStoryNotFound
		}
		log.Error().Err(err).Str("storyId", id.Hex()).Msg("Failed to delete story")
		return nil, err
	}

	if _, err := m.feedbackCol.DeleteOne(ctx, bson.M{"story_id": id}); err != nil {
		log.Error().Err(err).Str("storyId", id.Hex()).Msg("Failed to cascade feedback deletion")
		return nil, err
	}

	log.Info().Str("storyId", id.Hex()).Str("ownerId", ownerID).Msg("Deleted story and cascaded feedback")
	return &story, nil
}
