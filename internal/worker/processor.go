package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storycoach/internal/coach"
	"storycoach/internal/database"
	"storycoach/internal/model"
	"storycoach/internal/notify"
	"storycoach/internal/stats"
	"storycoach/internal/transcribe"
)

// Store is the slice of the job store the processor needs
type Store interface {
	GetStoryByID(ctx context.Context, id primitive.ObjectID) (*model.Story, error)
	UpdateStoryStatus(ctx context.Context, id primitive.ObjectID, status model.StoryStatus, errMsg string) error
	SetTranscript(ctx context.Context, id primitive.ObjectID, transcript string) error
	CreateFeedback(ctx context.Context, feedback *model.Feedback) error
	ListStoriesByOwner(ctx context.Context, ownerID string) ([]model.Story, error)
	UpsertUserStats(ctx context.Context, stats *model.UserStats) error
	GrantAchievement(ctx context.Context, ownerID, achievementID string, grantedAt time.Time) (bool, error)
}

// Processor runs the story pipeline: transcription, feedback
// generation, persistence, then stats and achievement updates. One
// invocation per story, no internal parallelism; concurrency comes
// from independent invocations, which the store's compare-and-set
// status writes keep safe.
type Processor struct {
	db          Store
	transcriber transcribe.Transcriber
	coach       coach.Generator
	events      notify.Publisher
	now         func() time.Time
}

func NewProcessor(db Store, transcriber transcribe.Transcriber, generator coach.Generator, events notify.Publisher) *Processor {
	return &Processor{
		db:          db,
		transcriber: transcriber,
		coach:       generator,
		events:      events,
		now:         time.Now,
	}
}

// Process runs the pipeline for one story. Every step failure is
// terminal for the story (failed status, no automatic retry); the
// return value is diagnostic only and callers must re-read the story
// rather than trust it.
func (p *Processor) Process(ctx context.Context, storyID primitive.ObjectID) error {
	logger := log.With().Str("storyId", storyID.Hex()).Logger()

	story, err := p.db.GetStoryByID(ctx, storyID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load story for processing")
		return err
	}

	// Step 1: claim the story. The CAS write loses against a concurrent
	// claim or a terminal status, in which case this trigger is a
	// duplicate and there is nothing to do.
	if err := p.db.UpdateStoryStatus(ctx, storyID, model.StatusProcessing, ""); err != nil {
		if errors.Is(err, database.ErrInvalidTransition) {
			logger.Warn().Str("status", string(story.Status)).Msg("Story not claimable, skipping duplicate trigger")
			return nil
		}
		logger.Error().Err(err).Msg("Failed to mark story processing")
		return err
	}
	p.publishEvent(ctx, story.OwnerID, storyID, model.StatusProcessing)

	// Step 2: transcription. No partial transcript is ever persisted.
	transcript, err := p.transcriber.Transcribe(ctx, story.MediaURL)
	if err != nil {
		logger.Error().Err(err).Msg("Transcription failed")
		p.fail(ctx, story.OwnerID, storyID, fmt.Sprintf("transcription failed: %v", err))
		return err
	}

	// Persist the transcript before generating feedback so a coaching
	// failure still leaves the transcript as a diagnostic.
	if err := p.db.SetTranscript(ctx, storyID, transcript); err != nil {
		logger.Error().Err(err).Msg("Failed to persist transcript")
		p.fail(ctx, story.OwnerID, storyID, "failed to persist transcript")
		return err
	}

	// Step 3: feedback generation
	result, err := p.coach.Generate(ctx, transcript, story.Personality)
	if err != nil {
		logger.Error().Err(err).Msg("Feedback generation failed")
		p.fail(ctx, story.OwnerID, storyID, fmt.Sprintf("feedback generation failed: %v", err))
		return err
	}

	// Step 4: persist the feedback record. A story must never be
	// completed without one, so a write failure here is a processing
	// failure even though both capability calls succeeded.
	feedback := &model.Feedback{
		StoryID:      storyID,
		Narrative:    result.Narrative,
		Strengths:    result.Strengths,
		Improvements: result.Improvements,
		NextSteps:    result.NextSteps,
		Score:        result.Score,
		CreatedAt:    p.now(),
	}
	if err := p.db.CreateFeedback(ctx, feedback); err != nil && !errors.Is(err, database.ErrFeedbackExists) {
		logger.Error().Err(err).Msg("Failed to persist feedback")
		p.fail(ctx, story.OwnerID, storyID, "failed to persist feedback")
		return err
	}

	// Step 5: mark completed
	if err := p.db.UpdateStoryStatus(ctx, storyID, model.StatusCompleted, ""); err != nil {
		logger.Error().Err(err).Msg("Failed to mark story completed")
		return err
	}
	p.publishEvent(ctx, story.OwnerID, storyID, model.StatusCompleted)
	logger.Info().Msg("Story processed")

	// Step 6: stats and achievements. Failures here never roll back the
	// completed status; the aggregate is recomputed on the next trigger.
	if err := p.RecomputeStats(ctx, story.OwnerID); err != nil {
		logger.Error().Err(err).Str("ownerId", story.OwnerID).Msg("Stats recompute failed, will converge on next trigger")
	}

	return nil
}

// fail marks the story failed and notifies. The terminal status is the
// record of the error; nothing is thrown across the process boundary.
func (p *Processor) fail(ctx context.Context, ownerID string, storyID primitive.ObjectID, reason string) {
	if err := p.db.UpdateStoryStatus(ctx, storyID, model.StatusFailed, reason); err != nil {
		log.Error().Err(err).Str("storyId", storyID.Hex()).Msg("Failed to mark story failed")
		return
	}
	p.publishEvent(ctx, ownerID, storyID, model.StatusFailed)
}

// publishEvent emits a change event, best effort. A lost event is
// absorbed by the client's poll path.
func (p *Processor) publishEvent(ctx context.Context, ownerID string, storyID primitive.ObjectID, status model.StoryStatus) {
	event := notify.StoryEvent{StoryID: storyID.Hex(), Status: status}
	if err := p.events.PublishStoryEvent(ctx, ownerID, event); err != nil {
		log.Warn().Err(err).Str("storyId", storyID.Hex()).Msg("Failed to publish story event")
	}
}

// RecomputeStats rebuilds the owner's aggregate from their story set
// and grants any newly satisfied achievements. Also invoked after a
// story deletion so the dashboard shrinks accordingly.
func (p *Processor) RecomputeStats(ctx context.Context, ownerID string) error {
	stories, err := p.db.ListStoriesByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to list stories for stats: %w", err)
	}

	userStats := stats.Compute(ownerID, stories, p.now())
	if err := p.db.UpsertUserStats(ctx, &userStats); err != nil {
		return fmt.Errorf("failed to upsert stats: %w", err)
	}

	for _, achievementID := range stats.Evaluate(userStats, stories) {
		if _, err := p.db.GrantAchievement(ctx, ownerID, achievementID, p.now()); err != nil {
			return fmt.Errorf("failed to grant achievement %s: %w", achievementID, err)
		}
	}

	return nil
}
