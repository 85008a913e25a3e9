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

// FeedbackDatabase defines feedback-related store operations
type FeedbackDatabase interface {
	// CreateFeedback persists the coaching feedback for a story in a
	// single write. The unique story_id index makes a duplicate attempt
	// fail with ErrFeedbackExists instead of producing a second record.
	CreateFeedback(ctx context.Context, feedback *model.Feedback) error

	// GetFeedbackByStory retrieves the feedback attached to a story
	GetFeedbackByStory(ctx context.Context, storyID primitive.ObjectID) (*model.Feedback, error)
}

// CreateFeedback persists the feedback record
func (m *mongoDB) CreateFeedback(ctx context.Context, feedback *model.Feedback) error {
	if feedback.ID.IsZero() {
		feedback.ID = primitive.NewObjectID()
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now()
	}

	_, err := m.feedbackCol.InsertOne(ctx, feedback)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrFeedbackExists
		}
		log.Error().Err(err).Str("storyId", feedback.StoryID.Hex()).Msg("Failed to create feedback")
		return err
	}

	log.Debug().
		Str("storyId", feedback.StoryID.Hex()).
		Int("score", feedback.Score).
		Msg("Created feedback")
	return nil
}

// GetFeedbackByStory retrieves the feedback attached to a story
func (m *mongoDB) GetFeedbackByStory(ctx context.Context, storyID primitive.ObjectID) (*model.Feedback, error) {
	var feedback model.Feedback
	err := m.feedbackCol.FindOne(ctx, bson.M{"story_id": storyID}).Decode(&feedback)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrFeedbackNotFound
		}
		log.Error().Err(err).Str("storyId", storyID.Hex()).Msg("Failed to get feedback")
		return nil, err
	}

	return &feedback, nil
}
