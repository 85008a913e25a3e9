// Package stats is the deterministic aggregation engine behind the
// dashboard. Everything here is a pure function of the owner's story
// set, so recomputation after any completion or deletion converges to
// the same value no matter how many triggers race.
package stats

import (
	"time"

	"storycoach/internal/model"
)

// Compute derives the owner's dashboard aggregate from their story set.
// Only completed stories count toward totals, favorites and streaks;
// pending, processing and failed submissions are invisible to the
// dashboard until processing finishes.
func Compute(ownerID string, stories []model.Story, now time.Time) model.UserStats {
	stats := model.UserStats{OwnerID: ownerID}

	var counted []model.Story
	for _, s := range stories {
		if s.Status == model.StatusCompleted {
			counted = append(counted, s)
		}
	}
	if len(counted) == 0 {
		return stats
	}

	stats.TotalStories = len(counted)
	for _, s := range counted {
		stats.TotalMinutes += ceilMinutes(s.Duration)
		if s.CreatedAt.After(stats.LastStoryDate) {
			stats.LastStoryDate = s.CreatedAt
		}
	}

	stats.FavoriteCategory = favoriteCategory(counted)
	stats.CurrentStreak, stats.LongestStreak = streaks(counted, now)

	return stats
}

// ceilMinutes rounds a duration in seconds up to whole minutes
func ceilMinutes(seconds int) int {
	if seconds <= 0 {
		return 0
	}
	return (seconds + 59) / 60
}

// favoriteCategory picks the most-used category; ties go to the
// category containing the most recently created story.
func favoriteCategory(stories []model.Story) model.StoryCategory {
	counts := make(map[model.StoryCategory]int)
	latest := make(map[model.StoryCategory]time.Time)

	for _, s := range stories {
		counts[s.Category]++
		if s.CreatedAt.After(latest[s.Category]) {
			latest[s.Category] = s.CreatedAt
		}
	}

	var favorite model.StoryCategory
	for category, count := range counts {
		if favorite == "" {
			favorite = category
			continue
		}
		if count > counts[favorite] {
			favorite = category
			continue
		}
		if count == counts[favorite] && latest[category].After(latest[favorite]) {
			favorite = category
		}
	}

	return favorite
}

// streaks runs the streak recurrence over the story dates, most recent
// first. The current streak only exists if its newest day is today or
// yesterday; the longest streak is the maximum consecutive-day run
// anywhere in history.
func streaks(stories []model.Story, now time.Time) (current, longest int) {
	days := distinctDaysDesc(stories)
	if len(days) == 0 {
		return 0, 0
	}

	today := dayOf(now)
	yesterday := today.AddDate(0, 0, -1)

	runLen := 1
	firstRunLen := 0
	longest = 1

	for i := 1; i < len(days); i++ {
		if days[i-1].Sub(days[i]) == 24*time.Hour {
			runLen++
		} else {
			if firstRunLen == 0 {
				firstRunLen = runLen
			}
			runLen = 1
		}
		if runLen > longest {
			longest = runLen
		}
	}
	if firstRunLen == 0 {
		firstRunLen = runLen
	}

	if days[0].Equal(today) || days[0].Equal(yesterday) {
		current = firstRunLen
	}

	return current, longest
}

// distinctDaysDesc returns the unique calendar days (UTC) on which
// stories were created, newest first. Input order is not assumed; the
// insertion walk keeps the list sorted regardless.
func distinctDaysDesc(stories []model.Story) []time.Time {
	seen := make(map[time.Time]bool)
	days := make([]time.Time, 0, len(stories))

	for _, s := range stories {
		d := dayOf(s.CreatedAt)
		if seen[d] {
			continue
		}
		seen[d] = true

		// insert keeping descending order
		pos := len(days)
		for pos > 0 && days[pos-1].Before(d) {
			pos--
		}
		days = append(days, time.Time{})
		copy(days[pos+1:], days[pos:])
		days[pos] = d
	}

	return days
}

// dayOf truncates a timestamp to its UTC calendar date
func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
