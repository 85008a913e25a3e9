package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storycoach/internal/coach"
	"storycoach/internal/database"
	"storycoach/internal/model"
	"storycoach/internal/notify"
	statsengine "storycoach/internal/stats"
)

// fakeStore is an in-memory Store that honors the status lattice and
// the one-feedback-per-story invariant.
type fakeStore struct {
	mu        sync.Mutex
	stories   map[primitive.ObjectID]*model.Story
	feedback  map[primitive.ObjectID]*model.Feedback
	stats     map[string]*model.UserStats
	granted   map[string]bool // owner:achievement
	attempts  map[string]int
	listErr   error
	fbErr     error
	setTrsErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stories:  make(map[primitive.ObjectID]*model.Story),
		feedback: make(map[primitive.ObjectID]*model.Feedback),
		stats:    make(map[string]*model.UserStats),
		granted:  make(map[string]bool),
		attempts: make(map[string]int),
	}
}

func (f *fakeStore) addStory(story *model.Story) *model.Story {
	if story.ID.IsZero() {
		story.ID = primitive.NewObjectID()
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = time.Now()
	}
	f.stories[story.ID] = story
	return story
}

func (f *fakeStore) GetStoryByID(_ context.Context, id primitive.ObjectID) (*model.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	story, ok := f.stories[id]
	if !ok {
		return nil, database.ErrStoryNotFound
	}
	copy := *story
	return &copy, nil
}

func (f *fakeStore) UpdateStoryStatus(_ context.Context, id primitive.ObjectID, status model.StoryStatus, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	story, ok := f.stories[id]
	if !ok {
		return database.ErrStoryNotFound
	}
	if !story.Status.CanTransitionTo(status) {
		return database.ErrInvalidTransition
	}
	story.Status = status
	story.Error = errMsg
	story.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) SetTranscript(_ context.Context, id primitive.ObjectID, transcript string) error {
	if f.setTrsErr != nil {
		return f.setTrsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	story, ok := f.stories[id]
	if !ok {
		return database.ErrStoryNotFound
	}
	story.Transcript = transcript
	return nil
}

func (f *fakeStore) CreateFeedback(_ context.Context, feedback *model.Feedback) error {
	if f.fbErr != nil {
		return f.fbErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.feedback[feedback.StoryID]; exists {
		return database.ErrFeedbackExists
	}
	f.feedback[feedback.StoryID] = feedback
	return nil
}

func (f *fakeStore) ListStoriesByOwner(_ context.Context, ownerID string) ([]model.Story, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Story
	for _, s := range f.stories {
		if s.OwnerID == ownerID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertUserStats(_ context.Context, stats *model.UserStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[stats.OwnerID] = stats
	return nil
}

func (f *fakeStore) GrantAchievement(_ context.Context, ownerID, achievementID string, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := ownerID + ":" + achievementID
	f.attempts[key]++
	if f.granted[key] {
		return false, nil
	}
	f.granted[key] = true
	return true, nil
}

func (f *fakeStore) hasGrant(ownerID, achievementID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.granted[ownerID+":"+achievementID]
}

func (f *fakeStore) grantAttempts(ownerID, achievementID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[ownerID+":"+achievementID]
}

type fakeTranscriber struct {
	transcript string
	err        error
}

func (t *fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	return t.transcript, t.err
}

type fakeCoach struct {
	result *coach.Result
	err    error
}

func (c *fakeCoach) Generate(context.Context, string, model.Personality) (*coach.Result, error) {
	return c.result, c.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []notify.StoryEvent
	err    error
}

func (p *fakePublisher) PublishStoryEvent(_ context.Context, _ string, event notify.StoryEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *fakePublisher) statuses() []model.StoryStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.StoryStatus
	for _, e := range p.events {
		out = append(out, e.Status)
	}
	return out
}

func goodCoachResult() *coach.Result {
	return &coach.Result{
		Narrative:    "Well told.",
		Strengths:    []string{"pacing"},
		Improvements: []string{"endings"},
		NextSteps:    []string{"retell it"},
		Score:        8,
	}
}

func pendingStory(store *fakeStore, duration int) *model.Story {
	return store.addStory(&model.Story{
		OwnerID:     "owner-1",
		Status:      model.StatusPending,
		MediaURL:    "https://bucket.s3.test/stories/x/take1.wav",
		Duration:    duration,
		Category:    model.CategoryFable,
		Personality: model.PersonalityEncouraging,
	})
}

func TestProcessHappyPath(t *testing.T) {
	store := newFakeStore()
	story := pendingStory(store, 120)
	pub := &fakePublisher{}

	p := NewProcessor(store, &fakeTranscriber{transcript: "once upon a time"}, &fakeCoach{result: goodCoachResult()}, pub)
	require.NoError(t, p.Process(context.Background(), story.ID))

	got, _ := store.GetStoryByID(context.Background(), story.ID)
	require.Equal(t, model.StatusCompleted, got.Status)
	require.Equal(t, "once upon a time", got.Transcript)
	require.NotNil(t, store.feedback[story.ID])
	require.Equal(t, 8, store.feedback[story.ID].Score)

	require.Equal(t, []model.StoryStatus{model.StatusProcessing, model.StatusCompleted}, pub.statuses())

	require.NotNil(t, store.stats["owner-1"])
	require.Equal(t, 1, store.stats["owner-1"].TotalStories)
	require.True(t, store.hasGrant("owner-1", statsengine.AchievementFirstStory))
}

// TestProcessTranscriptionFailure: the story fails, no transcript and
// no feedback are persisted.
func TestProcessTranscriptionFailure(t *testing.T) {
	store := newFakeStore()
	story := pendingStory(store, 120)
	pub := &fakePublisher{}

	p := NewProcessor(store, &fakeTranscriber{err: errors.New("decode error")}, &fakeCoach{result: goodCoachResult()}, pub)
	require.Error(t, p.Process(context.Background(), story.ID))

	got, _ := store.GetStoryByID(context.Background(), story.ID)
	require.Equal(t, model.StatusFailed, got.Status)
	require.Empty(t, got.Transcript)
	require.Nil(t, store.feedback[story.ID])
	require.Contains(t, got.Error, "transcription failed")

	require.Equal(t, []model.StoryStatus{model.StatusProcessing, model.StatusFailed}, pub.statuses())
}

// TestProcessCoachingFailureKeepsTranscript: feedback generation
// failure is terminal, but the transcript survives as a diagnostic.
func TestProcessCoachingFailureKeepsTranscript(t *testing.T) {
	store := newFakeStore()
	story := pendingStory(store, 120)

	p := NewProcessor(store, &fakeTranscriber{transcript: "a tale"}, &fakeCoach{err: errors.New("model overloaded")}, &fakePublisher{})
	require.Error(t, p.Process(context.Background(), story.ID))

	got, _ := store.GetStoryByID(context.Background(), story.ID)
	require.Equal(t, model.StatusFailed, got.Status)
	require.Equal(t, "a tale", got.Transcript)
	require.Nil(t, store.feedback[story.ID])
}

// TestProcessFeedbackPersistFailure: a story is never completed
// without a feedback record, even when both capabilities succeeded.
func TestProcessFeedbackPersistFailure(t *testing.T) {
	store := newFakeStore()
	store.fbErr = errors.New("write concern error")
	story := pendingStory(store, 120)

	p := NewProcessor(store, &fakeTranscriber{transcript: "a tale"}, &fakeCoach{result: goodCoachResult()}, &fakePublisher{})
	require.Error(t, p.Process(context.Background(), story.ID))

	got, _ := store.GetStoryByID(context.Background(), story.ID)
	require.Equal(t, model.StatusFailed, got.Status)
}

// TestProcessStatsFailureDoesNotAffectStatus: a stats engine failure
// is logged, the story stays completed.
func TestProcessStatsFailureDoesNotAffectStatus(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("cursor timeout")
	story := pendingStory(store, 120)

	p := NewProcessor(store, &fakeTranscriber{transcript: "a tale"}, &fakeCoach{result: goodCoachResult()}, &fakePublisher{})
	require.NoError(t, p.Process(context.Background(), story.ID))

	got, _ := store.GetStoryByID(context.Background(), story.ID)
	require.Equal(t, model.StatusCompleted, got.Status)
}

// TestProcessDuplicateTriggerIsNoOp: a second trigger for a terminal
// story loses the claim CAS and leaves everything untouched.
func TestProcessDuplicateTriggerIsNoOp(t *testing.T) {
	store := newFakeStore()
	story := pendingStory(store, 120)
	pub := &fakePublisher{}

	p := NewProcessor(store, &fakeTranscriber{transcript: "a tale"}, &fakeCoach{result: goodCoachResult()}, pub)
	require.NoError(t, p.Process(context.Background(), story.ID))
	eventsAfterFirst := len(pub.statuses())

	require.NoError(t, p.Process(context.Background(), story.ID))

	got, _ := store.GetStoryByID(context.Background(), story.ID)
	require.Equal(t, model.StatusCompleted, got.Status)
	require.Len(t, pub.statuses(), eventsAfterFirst)
}

// TestProcessMarathonGrant: a 950 second story earns the marathon
// grant, and recomputing again attempts but does not duplicate it.
func TestProcessMarathonGrant(t *testing.T) {
	store := newFakeStore()
	story := pendingStory(store, 950)

	p := NewProcessor(store, &fakeTranscriber{transcript: "a long tale"}, &fakeCoach{result: goodCoachResult()}, &fakePublisher{})
	require.NoError(t, p.Process(context.Background(), story.ID))
	require.True(t, store.hasGrant("owner-1", statsengine.AchievementMarathon))
	require.Equal(t, 1, store.grantAttempts("owner-1", statsengine.AchievementMarathon))

	require.NoError(t, p.RecomputeStats(context.Background(), "owner-1"))
	require.Equal(t, 2, store.grantAttempts("owner-1", statsengine.AchievementMarathon))
	require.True(t, store.hasGrant("owner-1", statsengine.AchievementMarathon))
}

// TestRecomputeStatsAfterDeletion: removing a story shrinks the
// aggregate on the next recompute.
func TestRecomputeStatsAfterDeletion(t *testing.T) {
	store := newFakeStore()
	first := pendingStory(store, 120)
	second := pendingStory(store, 180)

	p := NewProcessor(store, &fakeTranscriber{transcript: "a tale"}, &fakeCoach{result: goodCoachResult()}, &fakePublisher{})
	require.NoError(t, p.Process(context.Background(), first.ID))
	require.NoError(t, p.Process(context.Background(), second.ID))
	require.Equal(t, 2, store.stats["owner-1"].TotalStories)

	store.mu.Lock()
	delete(store.stories, second.ID)
	store.mu.Unlock()

	require.NoError(t, p.RecomputeStats(context.Background(), "owner-1"))
	require.Equal(t, 1, store.stats["owner-1"].TotalStories)
}

// TestProcessPublishFailureIsNonFatal: a lost change event does not
// disturb the pipeline; the poll path absorbs it.
func TestProcessPublishFailureIsNonFatal(t *testing.T) {
	store := newFakeStore()
	story := pendingStory(store, 120)
	pub := &fakePublisher{err: fmt.Errorf("connection reset")}

	p := NewProcessor(store, &fakeTranscriber{transcript: "a tale"}, &fakeCoach{result: goodCoachResult()}, pub)
	require.NoError(t, p.Process(context.Background(), story.ID))

	got, _ := store.GetStoryByID(context.Background(), story.ID)
	require.Equal(t, model.StatusCompleted, got.Status)
}
