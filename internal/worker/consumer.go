package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storycoach/internal/config"
	"storycoach/internal/model"
	"storycoach/internal/rabbitmq"
)

// Consumer owns the processing trigger queue: submission publishes a
// story id onto it, and the consume loop hands each delivery to the
// Processor. The full story lives in the store; the message carries
// only its id.
type Consumer struct {
	rabbitClient rabbitmq.Client
	rabbitConfig config.RabbitMQConfig
	processor    *Processor
	consumerTag  string
	shutdown     chan struct{}
	wg           sync.WaitGroup
}

func NewConsumer(rabbitClient rabbitmq.Client, rabbitConfig config.RabbitMQConfig, processor *Processor) *Consumer {
	return &Consumer{
		rabbitClient: rabbitClient,
		rabbitConfig: rabbitConfig,
		processor:    processor,
		shutdown:     make(chan struct{}),
	}
}

// Enqueue publishes the processing trigger for a story. The caller
// does not block on processing; a nil return only means the trigger is
// queued, and callers must re-read story status for the outcome.
func (c *Consumer) Enqueue(story *model.Story) error {
	headers := amqp.Table{
		"story_id": story.ID.Hex(),
		"owner_id": story.OwnerID,
	}

	message := map[string]string{
		"story_id": story.ID.Hex(),
	}
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = c.rabbitClient.Publish(
		c.rabbitConfig.ExchangeName,
		c.rabbitConfig.QueueName,
		messageBytes,
		headers,
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	log.Info().
		Str("storyId", story.ID.Hex()).
		Str("ownerId", story.OwnerID).
		Msg("Story enqueued for processing")
	return nil
}

// Start declares the queue topology and begins consuming
func (c *Consumer) Start(ctx context.Context) error {
	queueName := c.rabbitConfig.QueueName

	err := c.rabbitClient.DeclareExchange(c.rabbitConfig.ExchangeName, "direct")
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := c.rabbitClient.DeclareQueue(queueName)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	err = c.rabbitClient.BindQueue(queueName, c.rabbitConfig.ExchangeName, queueName)
	if err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", queueName, err)
	}

	c.consumerTag = fmt.Sprintf("stories-consumer-%s", primitive.NewObjectID().Hex())
	c.startConsumer(ctx, queue.Name, c.consumerTag)

	log.Info().Str("queue", queue.Name).Msg("Story processing started")
	return nil
}

// Stop shuts down the consume loop and waits for in-flight work
func (c *Consumer) Stop() {
	close(c.shutdown)
	c.wg.Wait()
	log.Info().Msg("Story processing stopped")
}

func (c *Consumer) startConsumer(ctx context.Context, queueName, consumerTag string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		log.Info().
			Str("queue", queueName).
			Str("consumerTag", consumerTag).
			Msg("Starting story consumer")

		for {
			select {
			case <-ctx.Done():
				log.Info().Str("consumerTag", consumerTag).Msg("Context cancelled, stopping consumer")
				return
			case <-c.shutdown:
				log.Info().Str("consumerTag", consumerTag).Msg("Shutdown signal received, stopping consumer")
				return
			default:
			}

			deliveries, err := c.rabbitClient.Consume(queueName, consumerTag)
			if err != nil {
				log.Error().
					Err(err).
					Str("queue", queueName).
					Msg("Failed to consume from queue")

				time.Sleep(5 * time.Second)
				continue
			}

			for delivery := range deliveries {
				c.processDelivery(ctx, delivery)
			}

			log.Warn().
				Str("queue", queueName).
				Msg("Consumer channel closed, reconnecting...")

			time.Sleep(5 * time.Second)
		}
	}()
}

// processDelivery handles one trigger message
func (c *Consumer) processDelivery(ctx context.Context, delivery amqp.Delivery) {
	storyIDStr, ok := delivery.Headers["story_id"].(string)
	if !ok {
		log.Error().Msg("Message missing story_id header, rejecting")
		delivery.Nack(false, false) // don't requeue malformed messages
		return
	}

	storyID, err := primitive.ObjectIDFromHex(storyIDStr)
	if err != nil {
		log.Error().Str("storyId", storyIDStr).Msg("Malformed story_id header, rejecting")
		delivery.Nack(false, false)
		return
	}

	logger := log.With().Str("storyId", storyID.Hex()).Logger()
	logger.Info().Msg("Processing story trigger")

	// Process owns the story's terminal status; the worker does not
	// retry, so the message is acked either way.
	if err := c.processor.Process(ctx, storyID); err != nil {
		logger.Error().Err(err).Msg("Story processing failed")
	}

	delivery.Ack(false)
}
