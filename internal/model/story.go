package model

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StoryStatus represents the current state of a story's processing lifecycle
type StoryStatus string

const (
	StatusPending    StoryStatus = "pending"
	StatusProcessing StoryStatus = "processing"
	StatusCompleted  StoryStatus = "completed"
	StatusFailed     StoryStatus = "failed"
)

// ParseStoryStatus validates a status string read from a wire or store boundary
func ParseStoryStatus(s string) (StoryStatus, error) {
	switch StoryStatus(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return StoryStatus(s), nil
	}
	return "", fmt.Errorf("unknown story status: %q", s)
}

// CanTransitionTo enforces the forward-only status lattice.
// pending -> processing -> completed|failed, plus pending -> failed
// when submission itself blows up. Terminal states have no exits.
func (s StoryStatus) CanTransitionTo(to StoryStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible
func (s StoryStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StoryCategory is the closed set of story tags used for variety criteria
type StoryCategory string

const (
	CategoryAdventure StoryCategory = "adventure"
	CategoryComedy    StoryCategory = "comedy"
	CategoryDrama     StoryCategory = "drama"
	CategoryFable     StoryCategory = "fable"
	CategoryMystery   StoryCategory = "mystery"
	CategoryPersonal  StoryCategory = "personal"
)

// Categories lists every valid story category
func Categories() []StoryCategory {
	return []StoryCategory{
		CategoryAdventure,
		CategoryComedy,
		CategoryDrama,
		CategoryFable,
		CategoryMystery,
		CategoryPersonal,
	}
}

// ParseStoryCategory validates a category string at a read boundary
func ParseStoryCategory(s string) (StoryCategory, error) {
	for _, c := range Categories() {
		if StoryCategory(s) == c {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown story category: %q", s)
}

// Personality selects the coaching voice used for feedback generation
type Personality string

const (
	PersonalityEncouraging Personality = "encouraging"
	PersonalityDirect      Personality = "direct"
	PersonalityPlayful     Personality = "playful"
)

// ParsePersonality validates a coaching personality string
func ParsePersonality(s string) (Personality, error) {
	switch Personality(s) {
	case PersonalityEncouraging, PersonalityDirect, PersonalityPlayful:
		return Personality(s), nil
	}
	return "", fmt.Errorf("unknown coaching personality: %q", s)
}

// Story represents one submitted recording and its processing lifecycle
type Story struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID     string             `bson:"owner_id" json:"owner_id"`
	Status      StoryStatus        `bson:"status" json:"status"`
	MediaURL    string             `bson:"media_url" json:"media_url"`
	Transcript  string             `bson:"transcript,omitempty" json:"transcript,omitempty"`
	Duration    int                `bson:"duration" json:"duration"` // seconds
	Category    StoryCategory      `bson:"category" json:"category"`
	Personality Personality        `bson:"personality" json:"personality"`
	Error       string             `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}
