package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Score bounds for coaching feedback
const (
	MinScore = 1
	MaxScore = 10
)

// Feedback is the structured coaching output attached to a completed story.
// Written exactly once by the processing worker; never mutated after creation.
type Feedback struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	StoryID      primitive.ObjectID `bson:"story_id" json:"story_id"`
	Narrative    string             `bson:"narrative" json:"narrative"`
	Strengths    []string           `bson:"strengths" json:"strengths"`
	Improvements []string           `bson:"improvements" json:"improvements"`
	NextSteps    []string           `bson:"next_steps" json:"next_steps"`
	Score        int                `bson:"score" json:"score"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}
