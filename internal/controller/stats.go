package controller

import (
	"context"
	"time"

	"storycoach/internal/database"
	"storycoach/internal/model"
	"storycoach/internal/stats"
)

// AchievementView pairs a catalog entry with its grant state for one owner
type AchievementView struct {
	Achievement model.Achievement `json:"achievement"`
	Granted     bool              `json:"granted"`
	GrantedAt   string            `json:"granted_at,omitempty"`
}

// StatsController serves the dashboard aggregates
type StatsController interface {
	GetStats(ctx context.Context, ownerID string) (*model.UserStats, error)
	GetAchievements(ctx context.Context, ownerID string) ([]AchievementView, error)
}

type statsController struct {
	db database.Database
}

// NewStatsController creates a new stats controller
func NewStatsController(db database.Database) StatsController {
	return &statsController{db: db}
}

// GetStats implements StatsController
func (c *statsController) GetStats(ctx context.Context, ownerID string) (*model.UserStats, error) {
	return c.db.GetUserStats(ctx, ownerID)
}

// GetAchievements implements StatsController
func (c *statsController) GetAchievements(ctx context.Context, ownerID string) ([]AchievementView, error) {
	grants, err := c.db.ListAchievementGrants(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	grantedAt := make(map[string]string, len(grants))
	for _, grant := range grants {
		grantedAt[grant.AchievementID] = grant.GrantedAt.UTC().Format(time.RFC3339)
	}

	views := make([]AchievementView, 0)
	for _, achievement := range stats.Catalog() {
		view := AchievementView{Achievement: achievement}
		if at, ok := grantedAt[achievement.ID]; ok {
			view.Granted = true
			view.GrantedAt = at
		}
		views = append(views, view)
	}

	return views, nil
}
