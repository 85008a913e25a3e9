package model

import "time"

// UserStats is the derived dashboard aggregate, one per owner.
// Never independently authored: always recomputed from the owner's
// story set and upserted, so concurrent recomputation converges.
type UserStats struct {
	OwnerID          string        `bson:"owner_id" json:"owner_id"`
	TotalStories     int           `bson:"total_stories" json:"total_stories"`
	TotalMinutes     int           `bson:"total_minutes" json:"total_minutes"`
	CurrentStreak    int           `bson:"current_streak" json:"current_streak"`
	LongestStreak    int           `bson:"longest_streak" json:"longest_streak"`
	FavoriteCategory StoryCategory `bson:"favorite_category,omitempty" json:"favorite_category,omitempty"`
	LastStoryDate    time.Time     `bson:"last_story_date,omitempty" json:"last_story_date,omitempty"`
	UpdatedAt        time.Time     `bson:"updated_at" json:"updated_at"`
}

// Achievement is immutable catalog reference data
type Achievement struct {
	ID          string `bson:"_id" json:"id"`
	Name        string `bson:"name" json:"name"`
	Description string `bson:"description" json:"description"`
}

// AchievementGrant records that an owner met a milestone criterion.
// At most one grant exists per (owner, achievement) pair.
type AchievementGrant struct {
	OwnerID       string    `bson:"owner_id" json:"owner_id"`
	AchievementID string    `bson:"achievement_id" json:"achievement_id"`
	GrantedAt     time.Time `bson:"granted_at" json:"granted_at"`
}
