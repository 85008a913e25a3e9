package database

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storycoach/internal/config"
)

// Sentinel errors surfaced by the store
var (
	ErrStoryNotFound     = errors.New("story not found")
	ErrInvalidTransition = errors.New("invalid story status transition")
	ErrFeedbackExists    = errors.New("feedback already exists for story")
	ErrFeedbackNotFound  = errors.New("feedback not found")
)

type Database interface {
	Health() error
	StoryDatabase
	FeedbackDatabase
	StatsDatabase
}

type mongoDB struct {
	client *mongo.Client
	db     *mongo.Database

	storiesCol  *mongo.Collection
	feedbackCol *mongo.Collection
	statsCol    *mongo.Collection
	grantsCol   *mongo.Collection
}

func New(config *config.Config) (Database, error) {
	clientOptions := options.Client().ApplyURI(config.MongoDB.URI)
	if config.MongoDB.Username != "" {
		clientOptions.SetAuth(options.Credential{
			Username: config.MongoDB.Username,
			Password: config.MongoDB.Password,
		})
	}

	client, err := mongo.Connect(context.TODO(), clientOptions)
	if err != nil {
		return nil, err
	}

	db := client.Database(config.MongoDB.DB)

	storiesCol := db.Collection("stories")
	storyIndexModels := []mongo.IndexModel{
		{
			// Owner dashboard listing, newest first
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index(),
		},
	}

	feedbackCol := db.Collection("feedback")
	feedbackIndexModels := []mongo.IndexModel{
		{
			// One feedback record per story
			Keys:    bson.D{{Key: "story_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	statsCol := db.Collection("user_stats")
	statsIndexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	grantsCol := db.Collection("achievement_grants")
	grantIndexModels := []mongo.IndexModel{
		{
			// Grant uniqueness invariant: one grant per (owner, achievement)
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "achievement_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err = storiesCol.Indexes().CreateMany(context.Background(), storyIndexModels)
	if err != nil {
		log.Warn().Err(err).Str("Collection", "Stories").Msg("Error creating indexes")
	}

	_, err = feedbackCol.Indexes().CreateMany(context.Background(), feedbackIndexModels)
	if err != nil {
		log.Warn().Err(err).Str("Collection", "Feedback").Msg("Error creating indexes")
	}

	_, err = statsCol.Indexes().CreateMany(context.Background(), statsIndexModels)
	if err != nil {
		log.Warn().Err(err).Str("Collection", "UserStats").Msg("Error creating indexes")
	}

	_, err = grantsCol.Indexes().CreateMany(context.Background(), grantIndexModels)
	if err != nil {
		log.Warn().Err(err).Str("Collection", "AchievementGrants").Msg("Error creating indexes")
	}

	return &mongoDB{
		client:      client,
		db:          db,
		storiesCol:  storiesCol,
		feedbackCol: feedbackCol,
		statsCol:    statsCol,
		grantsCol:   grantsCol,
	}, nil
}

func mongoFindNewestFirst() *options.FindOptions {
	return options.Find().SetSort(bson.M{"created_at": -1})
}

// Health implements Database interface
func (m *mongoDB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	err := m.client.Ping(ctx, nil)
	if err != nil {
		log.Error().Msgf("Database health error: %v", err)
		return err
	}

	return nil
}
