package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"storycoach/internal/config"
	"storycoach/internal/database"
	"storycoach/internal/stats"
)

// Rebuilds one owner's dashboard aggregate straight from their story
// history. Useful after manual data fixes, when the async recompute
// was missed, or to verify what the engine derives for a given owner.
func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: statsrecalc <config_path> <owner_id>")
		os.Exit(1)
	}
	configPath := os.Args[1]
	ownerID := os.Args[2]

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return
	}

	setupLogger(cfg.Logging)

	db, err := database.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize database connection")
		return
	}
	log.Info().Msg("Database connection established")

	ctx := context.Background()

	stories, err := db.ListStoriesByOwner(ctx, ownerID)
	if err != nil {
		log.Fatal().Err(err).Str("ownerId", ownerID).Msg("Failed to list stories")
	}

	userStats := stats.Compute(ownerID, stories, time.Now())
	if err := db.UpsertUserStats(ctx, &userStats); err != nil {
		log.Fatal().Err(err).Str("ownerId", ownerID).Msg("Failed to store stats")
	}

	for _, id := range stats.Evaluate(userStats, stories) {
		granted, err := db.GrantAchievement(ctx, ownerID, id, time.Now())
		if err != nil {
			log.Error().Err(err).Str("achievement", id).Msg("Failed to grant achievement")
			continue
		}
		if granted {
			log.Info().Str("achievement", id).Msg("Achievement granted")
		}
	}

	log.Info().
		Str("ownerId", ownerID).
		Int("totalStories", userStats.TotalStories).
		Int("totalMinutes", userStats.TotalMinutes).
		Int("currentStreak", userStats.CurrentStreak).
		Int("longestStreak", userStats.LongestStreak).
		Str("favoriteCategory", string(userStats.FavoriteCategory)).
		Msg("Stats recalculated")
}

func setupLogger(config config.LoggingConfig) {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if config.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	log.Logger = log.With().Timestamp().Logger()
}
