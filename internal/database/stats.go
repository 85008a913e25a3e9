package database

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storycoach/internal/model"
)

// StatsDatabase defines dashboard aggregate store operations
type StatsDatabase interface {
	// UpsertUserStats replaces the owner's stats document. Because the
	// stats are a deterministic function of the story set, concurrent
	// recomputations converge without a lock.
	UpsertUserStats(ctx context.Context, stats *model.UserStats) error

	// GetUserStats retrieves the owner's stats, or a zero-valued
	// aggregate when none has been computed yet
	GetUserStats(ctx context.Context, ownerID string) (*model.UserStats, error)

	// GrantAchievement records a grant if it does not already exist.
	// Returns true when the grant is new; a duplicate attempt is a no-op.
	GrantAchievement(ctx context.Context, ownerID, achievementID string, grantedAt time.Time) (bool, error)

	// ListAchievementGrants returns every grant the owner holds
	ListAchievementGrants(ctx context.Context, ownerID string) ([]model.AchievementGrant, error)
}

// UpsertUserStats replaces the owner's stats document
func (m *mongoDB) UpsertUserStats(ctx context.Context, stats *model.UserStats) error {
	stats.UpdatedAt = time.Now()

	opts := options.Replace().SetUpsert(true)
	_, err := m.statsCol.ReplaceOne(ctx, bson.M{"owner_id": stats.OwnerID}, stats, opts)
	if err != nil {
		log.Error().Err(err).Str("ownerId", stats.OwnerID).Msg("Failed to upsert user stats")
		return err
	}

	log.Debug().
		Str("ownerId", stats.OwnerID).
		Int("totalStories", stats.TotalStories).
		Int("currentStreak", stats.CurrentStreak).
		Msg("Upserted user stats")
	return nil
}

// GetUserStats retrieves the owner's stats
func (m *mongoDB) GetUserStats(ctx context.Context, ownerID string) (*model.UserStats, error) {
	var stats model.UserStats
	err := m.statsCol.FindOne(ctx, bson.M{"owner_id": ownerID}).Decode(&stats)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &model.UserStats{OwnerID: ownerID}, nil
		}
		log.Error().Err(err).Str("ownerId", ownerID).Msg("Failed to get user stats")
		return nil, err
	}

	return &stats, nil
}

// GrantAchievement records a grant idempotently via a conditional upsert
func (m *mongoDB) GrantAchievement(ctx context.Context, ownerID, achievementID string, grantedAt time.Time) (bool, error) {
	filter := bson.M{
		"owner_id":       ownerID,
		"achievement_id": achievementID,
	}
	update := bson.M{
		"$setOnInsert": bson.M{
			"owner_id":       ownerID,
			"achievement_id": achievementID,
			"granted_at":     grantedAt,
		},
	}

	opts := options.Update().SetUpsert(true)
	result, err := m.grantsCol.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		// A concurrent insert can still race into the unique index;
		// that duplicate means someone else granted it first.
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		log.Error().Err(err).Str("ownerId", ownerID).Str("achievementId", achievementID).Msg("Failed to grant achievement")
		return false, err
	}

	granted := result.UpsertedCount > 0
	if granted {
		log.Info().
			Str("ownerId", ownerID).
			Str("achievementId", achievementID).
			Msg("Granted achievement")
	}
	return granted, nil
}

// ListAchievementGrants returns every grant the owner holds
func (m *mongoDB) ListAchievementGrants(ctx context.Context, ownerID string) ([]model.AchievementGrant, error) {
	opts := options.Find().SetSort(bson.M{"granted_at": -1})

	cursor, err := m.grantsCol.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		log.Error().Err(err).Str("ownerId", ownerID).Msg("Failed to list achievement grants")
		return nil, err
	}
	defer cursor.Close(ctx)

	grants := []model.AchievementGrant{}
	if err := cursor.All(ctx, &grants); err != nil {
		log.Error().Err(err).Msg("Failed to decode achievement grants")
		return nil, err
	}

	return grants, nil
}
