// Package watch is the client-side completion watcher. A session
// tracks at most one story at a time and discovers its completion
// through three racing signal paths: the push subscription, a periodic
// poll, and a hard timeout. All three are multiplexed into a single
// loop applying one resolve function, so the order in which they fire
// cannot matter.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storycoach/internal/model"
	"storycoach/internal/notify"
)

var (
	// ErrAlreadyTracking is returned when a second story is submitted
	// for tracking while one is still being watched
	ErrAlreadyTracking = errors.New("already tracking a story")

	// ErrWatchTimeout is the outcome error when the bounded wait
	// expires, regardless of the story's true backend status
	ErrWatchTimeout = errors.New("timed out waiting for story processing")

	// ErrStoryFailed is the outcome error for a story that reached
	// failed status
	ErrStoryFailed = errors.New("story processing failed")
)

const (
	defaultPollInterval = 2 * time.Second
	defaultTimeout      = 5 * time.Minute
)

// Outcome is delivered exactly once per tracked story. Err is nil for
// a successful resolution, in which case Story and Feedback are set.
type Outcome struct {
	Story    *model.Story
	Feedback *model.Feedback
	Err      error
}

// Fetcher reads the current story and, when visible, its feedback.
// A completed story whose feedback has not replicated yet comes back
// with a nil Feedback and a nil error.
type Fetcher interface {
	StoryWithFeedback(ctx context.Context, ownerID string, storyID primitive.ObjectID) (*model.Story, *model.Feedback, error)
}

// Config tunes the detector cadence
type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// Watcher owns one session's tracking state
type Watcher struct {
	fetcher Fetcher
	events  notify.Subscriber
	cfg     Config

	mu      sync.Mutex
	tracked string // hex story id, empty when idle
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(fetcher Fetcher, events notify.Subscriber, cfg Config) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Watcher{
		fetcher: fetcher,
		events:  events,
		cfg:     cfg,
	}
}

// Tracking reports the currently tracked story id, if any
func (w *Watcher) Tracking() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tracked, w.tracked != ""
}

// Track starts watching a story. The returned channel delivers exactly
// one Outcome and is then closed; a cancelled watch closes the channel
// without delivering anything. Only one story may be tracked at a
// time.
func (w *Watcher) Track(ctx context.Context, ownerID string, storyID primitive.ObjectID) (<-chan Outcome, error) {
	w.mu.Lock()
	if w.tracked != "" {
		w.mu.Unlock()
		return nil, ErrAlreadyTracking
	}

	trackCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.tracked = storyID.Hex()
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()

	outcomes := make(chan Outcome, 1)
	go w.run(trackCtx, ownerID, storyID, outcomes, done)

	log.Debug().Str("storyId", storyID.Hex()).Msg("Tracking story")
	return outcomes, nil
}

// Cancel aborts the current watch, tearing down every detector, and
// waits until the tracking state is fully released
func (w *Watcher) Cancel() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// clear atomically leaves the tracking state
func (w *Watcher) clear() {
	w.mu.Lock()
	w.tracked = ""
	w.cancel = nil
	w.done = nil
	w.mu.Unlock()
}

// run is the single watch loop. Every detector feeds the same resolve
// attempt, and the loop exits only after at most one outcome has been
// delivered, so resolution is idempotent by construction.
func (w *Watcher) run(ctx context.Context, ownerID string, storyID primitive.ObjectID, outcomes chan<- Outcome, done chan struct{}) {
	defer close(done)
	defer close(outcomes)
	defer w.clear()

	// Push path. Subscription failure is not fatal: the poll path
	// covers every transport failure mode, just more slowly.
	events, unsubscribe, err := w.events.Subscribe(ctx, ownerID)
	if err != nil {
		log.Warn().Err(err).Str("storyId", storyID.Hex()).Msg("Subscription unavailable, relying on poll path")
		events = nil
	} else {
		defer unsubscribe()
	}

	poll := time.NewTicker(w.cfg.PollInterval)
	defer poll.Stop()

	timeout := time.NewTimer(w.cfg.Timeout)
	defer timeout.Stop()

	wanted := storyID.Hex()
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				// Dropped subscription; poll carries on.
				events = nil
				continue
			}
			// Events may be duplicated or out of order, and the payload
			// status is advisory: resolve always re-reads the store.
			if event.StoryID != wanted || !event.Status.IsTerminal() {
				continue
			}
			if outcome, resolved := w.tryResolve(ctx, ownerID, storyID); resolved {
				outcomes <- outcome
				return
			}

		case <-poll.C:
			if outcome, resolved := w.tryResolve(ctx, ownerID, storyID); resolved {
				outcomes <- outcome
				return
			}

		case <-timeout.C:
			// Bounded wait: force-resolve as a failure even if the story
			// is secretly still processing.
			log.Warn().Str("storyId", wanted).Msg("Watch timed out")
			outcomes <- Outcome{Err: ErrWatchTimeout}
			return
		}
	}
}

// tryResolve is the two-phase resolution: fetch the story with its
// feedback, and only hand off a completed story when the feedback is
// actually visible. Transient fetch errors keep the watch alive.
func (w *Watcher) tryResolve(ctx context.Context, ownerID string, storyID primitive.ObjectID) (Outcome, bool) {
	story, feedback, err := w.fetcher.StoryWithFeedback(ctx, ownerID, storyID)
	if err != nil {
		log.Debug().Err(err).Str("storyId", storyID.Hex()).Msg("Fetch failed, detector will retry")
		return Outcome{}, false
	}

	switch story.Status {
	case model.StatusFailed:
		reason := story.Error
		if reason == "" {
			reason = "processing failed"
		}
		return Outcome{Story: story, Err: fmt.Errorf("%w: %s", ErrStoryFailed, reason)}, true

	case model.StatusCompleted:
		if feedback == nil {
			// Replication lag: the status write landed before the
			// feedback became visible. Let the next detector retry.
			log.Debug().Str("storyId", storyID.Hex()).Msg("Story completed but feedback not yet visible")
			return Outcome{}, false
		}
		return Outcome{Story: story, Feedback: feedback}, true

	default:
		return Outcome{}, false
	}
}
