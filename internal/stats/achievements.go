package stats

import "storycoach/internal/model"

// Achievement ids
const (
	AchievementFirstStory  = "first_story"
	AchievementTenStories  = "ten_stories"
	AchievementMarathon    = "marathon"
	AchievementWeekStreak  = "week_streak"
	AchievementRange       = "storyteller_range"
	AchievementHourOfStory = "hour_of_story"
)

// Catalog is the immutable achievement reference data
func Catalog() []model.Achievement {
	return []model.Achievement{
		{ID: AchievementFirstStory, Name: "First Story", Description: "Complete your first story"},
		{ID: AchievementTenStories, Name: "Ten Tales", Description: "Complete ten stories"},
		{ID: AchievementMarathon, Name: "Marathon", Description: "Tell a single story of fifteen minutes or more"},
		{ID: AchievementWeekStreak, Name: "Week Streak", Description: "Practice seven days in a row"},
		{ID: AchievementRange, Name: "Storyteller's Range", Description: "Complete stories in four different categories"},
		{ID: AchievementHourOfStory, Name: "Hour of Story", Description: "Accumulate an hour of completed storytelling"},
	}
}

// Criterion is a pure predicate over the freshly computed stats and the
// owner's story set. Evaluating it twice with the same inputs must
// yield the same boolean.
type Criterion func(stats model.UserStats, stories []model.Story) bool

const marathonSeconds = 900

func criteria() map[string]Criterion {
	return map[string]Criterion{
		AchievementFirstStory: func(stats model.UserStats, _ []model.Story) bool {
			return stats.TotalStories >= 1
		},
		AchievementTenStories: func(stats model.UserStats, _ []model.Story) bool {
			return stats.TotalStories >= 10
		},
		AchievementMarathon: func(_ model.UserStats, stories []model.Story) bool {
			for _, s := range stories {
				if s.Status == model.StatusCompleted && s.Duration >= marathonSeconds {
					return true
				}
			}
			return false
		},
		AchievementWeekStreak: func(stats model.UserStats, _ []model.Story) bool {
			return stats.CurrentStreak >= 7 || stats.LongestStreak >= 7
		},
		AchievementRange: func(_ model.UserStats, stories []model.Story) bool {
			categories := make(map[model.StoryCategory]bool)
			for _, s := range stories {
				if s.Status == model.StatusCompleted {
					categories[s.Category] = true
				}
			}
			return len(categories) >= 4
		},
		AchievementHourOfStory: func(stats model.UserStats, _ []model.Story) bool {
			return stats.TotalMinutes >= 60
		},
	}
}

// Evaluate returns the ids of every achievement whose criterion is
// satisfied. Granting is the store's concern; re-evaluating already
// granted achievements is harmless because grants are idempotent.
func Evaluate(stats model.UserStats, stories []model.Story) []string {
	var satisfied []string
	for _, achievement := range Catalog() {
		criterion := criteria()[achievement.ID]
		if criterion != nil && criterion(stats, stories) {
			satisfied = append(satisfied, achievement.ID)
		}
	}
	return satisfied
}
