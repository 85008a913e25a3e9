package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storycoach/internal/model"
	"storycoach/internal/notify"
)

type fakeFetcher struct {
	mu       sync.Mutex
	story    model.Story
	feedback *model.Feedback
	err      error
}

func (f *fakeFetcher) StoryWithFeedback(_ context.Context, _ string, _ primitive.ObjectID) (*model.Story, *model.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, nil, f.err
	}
	story := f.story
	return &story, f.feedback, nil
}

func (f *fakeFetcher) setStatus(status model.StoryStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.story.Status = status
}

func (f *fakeFetcher) setFeedback(feedback *model.Feedback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback = feedback
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeSubscriber struct {
	mu           sync.Mutex
	ch           chan notify.StoryEvent
	err          error
	unsubscribed bool
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{ch: make(chan notify.StoryEvent, 8)}
}

func (s *fakeSubscriber) Subscribe(_ context.Context, _ string) (<-chan notify.StoryEvent, func(), error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.ch, func() {
		s.mu.Lock()
		s.unsubscribed = true
		s.mu.Unlock()
	}, nil
}

func (s *fakeSubscriber) wasUnsubscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribed
}

func testStory(id primitive.ObjectID, status model.StoryStatus) model.Story {
	return model.Story{
		ID:      id,
		OwnerID: "owner-1",
		Status:  status,
	}
}

func testFeedback(id primitive.ObjectID) *model.Feedback {
	return &model.Feedback{
		StoryID:   id,
		Narrative: "Nice arc.",
		Score:     7,
	}
}

func waitOutcome(t *testing.T, outcomes <-chan Outcome) Outcome {
	t.Helper()
	select {
	case outcome, ok := <-outcomes:
		require.True(t, ok, "outcome channel closed without delivering")
		return outcome
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome delivered")
		return Outcome{}
	}
}

func requireClosed(t *testing.T, outcomes <-chan Outcome) {
	t.Helper()
	select {
	case _, ok := <-outcomes:
		require.False(t, ok, "expected channel to be closed after the single outcome")
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

// TestPushPathResolves: the subscription event alone resolves the
// watch (poll effectively disabled by a huge interval).
func TestPushPathResolves(t *testing.T) {
	id := primitive.NewObjectID()
	fetcher := &fakeFetcher{story: testStory(id, model.StatusCompleted), feedback: testFeedback(id)}
	sub := newFakeSubscriber()

	w := New(fetcher, sub, Config{PollInterval: time.Hour, Timeout: time.Hour})
	outcomes, err := w.Track(context.Background(), "owner-1", id)
	require.NoError(t, err)

	sub.ch <- notify.StoryEvent{StoryID: id.Hex(), Status: model.StatusCompleted}

	outcome := waitOutcome(t, outcomes)
	require.NoError(t, outcome.Err)
	require.Equal(t, id, outcome.Story.ID)
	require.NotNil(t, outcome.Feedback)
	requireClosed(t, outcomes)

	_, tracking := w.Tracking()
	require.False(t, tracking)
	require.True(t, sub.wasUnsubscribed())
}

// TestPollPathResolvesWhenPushDropped: no event is ever delivered; the
// poll tick discovers completion on its own.
func TestPollPathResolvesWhenPushDropped(t *testing.T) {
	id := primitive.NewObjectID()
	fetcher := &fakeFetcher{story: testStory(id, model.StatusCompleted), feedback: testFeedback(id)}

	w := New(fetcher, newFakeSubscriber(), Config{PollInterval: 10 * time.Millisecond, Timeout: time.Hour})
	outcomes, err := w.Track(context.Background(), "owner-1", id)
	require.NoError(t, err)

	outcome := waitOutcome(t, outcomes)
	require.NoError(t, outcome.Err)
	require.NotNil(t, outcome.Feedback)
}

// TestSubscribeFailureFallsBackToPoll: a broken subscription transport
// is absorbed by the poll path.
func TestSubscribeFailureFallsBackToPoll(t *testing.T) {
	id := primitive.NewObjectID()
	fetcher := &fakeFetcher{story: testStory(id, model.StatusCompleted), feedback: testFeedback(id)}
	sub := newFakeSubscriber()
	sub.err = errors.New("connection refused")

	w := New(fetcher, sub, Config{PollInterval: 10 * time.Millisecond, Timeout: time.Hour})
	outcomes, err := w.Track(context.Background(), "owner-1", id)
	require.NoError(t, err)

	outcome := waitOutcome(t, outcomes)
	require.NoError(t, outcome.Err)
}

// TestFailedStoryResolvesToError: a failed story resolves immediately
// with no feedback wait.
func TestFailedStoryResolvesToError(t *testing.T) {
	id := primitive.NewObjectID()
	story := testStory(id, model.StatusFailed)
	story.Error = "transcription failed: decode error"
	fetcher := &fakeFetcher{story: story}

	w := New(fetcher, newFakeSubscriber(), Config{PollInterval: 10 * time.Millisecond, Timeout: time.Hour})
	outcomes, err := w.Track(context.Background(), "owner-1", id)
	require.NoError(t, err)

	outcome := waitOutcome(t, outcomes)
	require.ErrorIs(t, outcome.Err, ErrStoryFailed)
	require.Contains(t, outcome.Err.Error(), "decode error")
	requireClosed(t, outcomes)
}

// TestTimeoutForcesFailure: a story stuck in processing resolves to a
// timeout outcome once the bounded wait expires.
func TestTimeoutForcesFailure(t *testing.T) {
	id := primitive.NewObjectID()
	fetcher := &fakeFetcher{story: testStory(id, model.StatusProcessing)}

	w := New(fetcher, newFakeSubscriber(), Config{PollInterval: 10 * time.Millisecond, Timeout: 60 * time.Millisecond})
	outcomes, err := w.Track(context.Background(), "owner-1", id)
	require.NoError(t, err)

	outcome := waitOutcome(t, outcomes)
	require.ErrorIs(t, outcome.Err, ErrWatchTimeout)

	_, tracking := w.Tracking()
	require.False(t, tracking)
}

// TestFeedbackLagKeepsTracking: a completed status without visible
// feedback must not resolve; the next detector firing retries.
func TestFeedbackLagKeepsTracking(t *testing.T) {
	id := primitive.NewObjectID()
	fetcher := &fakeFetcher{story: testStory(id, model.StatusCompleted)} // no feedback yet
	sub := newFakeSubscriber()

	w := New(fetcher, sub, Config{PollInterval: 20 * time.Millisecond, Timeout: time.Hour})
	outcomes, err := w.Track(context.Background(), "owner-1", id)
	require.NoError(t, err)

	sub.ch <- notify.StoryEvent{StoryID: id.Hex(), Status: model.StatusCompleted}

	select {
	case <-outcomes:
		t.Fatal("resolved before feedback was visible")
	case <-time.After(80 * time.Millisecond):
	}
	_, tracking := w.Tracking()
	require.True(t, tracking)

	fetcher.setFeedback(testFeedback(id))

	outcome := waitOutcome(t, outcomes)
	require.NoError(t, outcome.Err)
	require.NotNil(t, outcome.Feedback)
}

// TestDuplicateEventsResolveOnce: at-least-once delivery means the
// same terminal event can arrive repeatedly; exactly one outcome comes
// out.
func TestDuplicateEventsResolveOnce(t *testing.T) {
	id := primitive.NewObjectID()
	fetcher := &fakeFetcher{story: testStory(id, model.StatusCompleted), feedback: testFeedback(id)}
	sub := newFakeSubscriber()

	sub.ch <- notify.StoryEvent{StoryID: id.Hex(), Status: model.StatusCompleted}
	sub.ch <- notify.StoryEvent{StoryID: id.Hex(), Status: model.StatusCompleted}
	sub.ch <- notify.StoryEvent{StoryID: id.Hex(), Status: model.StatusCompleted}

	w := New(fetcher, sub, Config{PollInterval: time.Hour, Timeout: time.Hour})
	outcomes, err := w.Track(context.Background(), "owner-1", id)
	require.NoError(t, err)

	outcome := waitOutcome(t, outcomes)
	require.NoError(t, outcome.Err)
	requireClosed(t, outcomes)
}

// TestEventsForOtherStoriesIgnored: events for a different story id
// never trigger resolution.
func TestEventsForOtherStoriesIgnored(t *testing.T) {
	id := primitive.NewObjectID()
	fetcher := &fakeFetcher{story: testStory(id, model.StatusProcessing)}
	sub := newFakeSubscriber()

	w := New(fetcher, sub, Config{PollInterval: time.Hour, Timeout: time.Hour})
	outcomes, err := w.Track(context.Background(), "owner-1", id)
	require.NoError(t, err)
	defer w.Cancel()

	sub.ch <- notify.StoryEvent{StoryID: primitive.NewObjectID().Hex(), Status: model.StatusCompleted}

	select {
	case <-outcomes:
		t.Fatal("resolved from an unrelated story's event")
	case <-time.After(80 * time.Millisecond):
	}
}

// TestSecondTrackRejectedWhileTracking enforces the one-tracked-story
// invariant.
func TestSecondTrackRejectedWhileTracking(t *testing.T) {
	id := primitive.NewObjectID()
	fetcher := &fakeFetcher{story: testStory(id, model.StatusProcessing)}

	w := New(fetcher, newFakeSubscriber(), Config{PollInterval: time.Hour, Timeout: time.Hour})
	_, err := w.Track(context.Background(), "owner-1", id)
	require.NoError(t, err)
	defer w.Cancel()

	_, err = w.Track(context.Background(), "owner-1", primitive.NewObjectID())
	require.ErrorIs(t, err, ErrAlreadyTracking)
}

// TestCancelTearsDownDetectors: cancellation closes the outcome
// channel without a value and releases the tracking slot.
func TestCancelTearsDownDetectors(t *testing.T) {
	id := primitive.NewObjectID()
	fetcher := &fakeFetcher{story: testStory(id, model.StatusProcessing)}
	sub := newFakeSubscriber()

	w := New(fetcher, sub, Config{PollInterval: time.Hour, Timeout: time.Hour})
	outcomes, err := w.Track(context.Background(), "owner-1", id)
	require.NoError(t, err)

	w.Cancel()

	_, ok := <-outcomes
	require.False(t, ok)
	require.True(t, sub.wasUnsubscribed())

	// the slot is free for the next story
	fetcher.setStatus(model.StatusCompleted)
	fetcher.setFeedback(testFeedback(id))
	next, err := w.Track(context.Background(), "owner-1", id)
	require.NoError(t, err)
	outcome := waitOutcome(t, next)
	require.NoError(t, outcome.Err)
}

// TestTransientFetchErrorKeepsWatching: a poll that fails transiently
// is retried on the next tick, not surfaced.
func TestTransientFetchErrorKeepsWatching(t *testing.T) {
	id := primitive.NewObjectID()
	fetcher := &fakeFetcher{story: testStory(id, model.StatusCompleted), feedback: testFeedback(id)}
	fetcher.setErr(errors.New("network blip"))

	w := New(fetcher, newFakeSubscriber(), Config{PollInterval: 10 * time.Millisecond, Timeout: time.Hour})
	outcomes, err := w.Track(context.Background(), "owner-1", id)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	fetcher.setErr(nil)

	outcome := waitOutcome(t, outcomes)
	require.NoError(t, outcome.Err)
}

// TestRaceInvariant: whichever detector fires first, the end state is
// identical — resolved exactly once with the same story and feedback.
func TestRaceInvariant(t *testing.T) {
	id := primitive.NewObjectID()

	runScenario := func(push bool) Outcome {
		fetcher := &fakeFetcher{story: testStory(id, model.StatusCompleted), feedback: testFeedback(id)}
		sub := newFakeSubscriber()

		var cfg Config
		if push {
			cfg = Config{PollInterval: time.Hour, Timeout: time.Hour}
		} else {
			cfg = Config{PollInterval: 10 * time.Millisecond, Timeout: time.Hour}
		}

		w := New(fetcher, sub, cfg)
		outcomes, err := w.Track(context.Background(), "owner-1", id)
		require.NoError(t, err)

		if push {
			sub.ch <- notify.StoryEvent{StoryID: id.Hex(), Status: model.StatusCompleted}
		}

		outcome := waitOutcome(t, outcomes)
		requireClosed(t, outcomes)
		_, tracking := w.Tracking()
		require.False(t, tracking)
		return outcome
	}

	viaPush := runScenario(true)
	viaPoll := runScenario(false)

	require.NoError(t, viaPush.Err)
	require.NoError(t, viaPoll.Err)
	require.Equal(t, viaPush.Story.ID, viaPoll.Story.ID)
	require.Equal(t, viaPush.Feedback.Score, viaPoll.Feedback.Score)
}
