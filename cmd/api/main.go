package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"storycoach/internal/coach"
	"storycoach/internal/config"
	"storycoach/internal/controller"
	"storycoach/internal/database"
	"storycoach/internal/notify"
	"storycoach/internal/rabbitmq"
	"storycoach/internal/server"
	"storycoach/internal/storage"
	"storycoach/internal/transcribe"
	"storycoach/internal/worker"
)

func main() {
	configPath := "config/config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return
	}

	setupLogger(cfg.Logging)
	log.Info().Str("env", cfg.Env).Msg("Starting " + cfg.AppName)

	// Initialize MongoDB connection
	db, err := database.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize database connection")
		return
	}
	log.Info().Msg("Database connection established")

	// Initialize Redis notification channel
	events, err := notify.NewRedisChannel(cfg.Redis)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize Redis connection")
		return
	}
	defer events.Close()

	// Initialize RabbitMQ connection
	rabbit, err := rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize RabbitMQ connection")
		return
	}
	defer rabbit.Close()
	log.Info().Msg("RabbitMQ connection established")

	// Initialize S3 audio storage
	files, err := storage.NewFileService(cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket, cfg.S3.Region)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize file storage")
		return
	}

	// External capability clients
	capTimeout := time.Duration(cfg.Capabilities.RequestTimeoutSec) * time.Second
	transcriber := transcribe.New(cfg.Capabilities.TranscriberURL, capTimeout)
	generator := coach.New(cfg.Capabilities.CoachURL, capTimeout)

	// Processing pipeline
	processor := worker.NewProcessor(db, transcriber, generator, events)
	consumer := worker.NewConsumer(rabbit, cfg.RabbitMQ, processor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := consumer.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start story consumer")
		return
	}
	defer consumer.Stop()

	stories := controller.NewStoryController(db, files, consumer, processor)
	stats := controller.NewStatsController(db)

	srv := server.New(*cfg, db, events, rabbit, stories, stats)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Server stopped")
}

func setupLogger(config config.LoggingConfig) {
	// Set global log level
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure logger output
	if config.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	// Add timestamp
	log.Logger = log.With().Timestamp().Logger()
}
