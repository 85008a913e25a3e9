// Package notify is the per-owner change notification feed. Delivery
// is at-least-once with no ordering promise, even for a single story's
// own transitions; consumers must re-read the store rather than trust
// event ordering.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"storycoach/internal/config"
	"storycoach/internal/model"
)

// StoryEvent is emitted whenever a tracked story's record changes
type StoryEvent struct {
	StoryID string            `json:"story_id"`
	Status  model.StoryStatus `json:"status"`
}

// Publisher emits story change events
type Publisher interface {
	PublishStoryEvent(ctx context.Context, ownerID string, event StoryEvent) error
}

// Subscriber delivers an owner's story change events. The returned
// cancel func tears the subscription down and closes the channel.
type Subscriber interface {
	Subscribe(ctx context.Context, ownerID string) (<-chan StoryEvent, func(), error)
}

// RedisChannel implements Publisher and Subscriber over Redis pub/sub
type RedisChannel struct {
	client *redis.Client
	prefix string
}

// NewRedisChannel connects to Redis and verifies the connection
func NewRedisChannel(cfg config.RedisConfig) (*RedisChannel, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("Failed to connect to Redis")
		return nil, err
	}

	log.Info().
		Str("address", cfg.Address).
		Str("prefix", cfg.Prefix).
		Int("db", cfg.DB).
		Msg("Redis notification channel initialized")

	return &RedisChannel{
		client: client,
		prefix: cfg.Prefix,
	}, nil
}

func (c *RedisChannel) channelName(ownerID string) string {
	return c.prefix + ":events:" + ownerID
}

// PublishStoryEvent emits a change event on the owner's channel
func (c *RedisChannel) PublishStoryEvent(ctx context.Context, ownerID string, event StoryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := c.channelName(ownerID)
	if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
		log.Error().
			Err(err).
			Str("channel", channel).
			Str("storyId", event.StoryID).
			Msg("Failed to publish story event")
		return err
	}

	log.Debug().
		Str("channel", channel).
		Str("storyId", event.StoryID).
		Str("status", string(event.Status)).
		Msg("Published story event")
	return nil
}

// Subscribe starts delivering the owner's story events
func (c *RedisChannel) Subscribe(ctx context.Context, ownerID string) (<-chan StoryEvent, func(), error) {
	channel := c.channelName(ownerID)
	pubsub := c.client.Subscribe(ctx, channel)

	// Force the subscription to be established before returning so a
	// completion committed right after Subscribe is not missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}

	events := make(chan StoryEvent)
	go func() {
		defer close(events)
		for msg := range pubsub.Channel() {
			var event StoryEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Str("channel", channel).Msg("Dropping undecodable story event")
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	unsubscribe := func() {
		if err := pubsub.Close(); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("Error closing subscription")
		}
	}

	log.Debug().Str("channel", channel).Msg("Subscribed to story events")
	return events, unsubscribe, nil
}

// Ping tests the Redis connection
func (c *RedisChannel) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis connection
func (c *RedisChannel) Close() error {
	log.Info().Msg("Closing Redis notification channel")
	return c.client.Close()
}
