package server

import (
	"fmt"
	"net/http"
	"time"

	"storycoach/internal/config"
	"storycoach/internal/controller"
	"storycoach/internal/database"
	"storycoach/internal/notify"
	"storycoach/internal/rabbitmq"
)

type Server struct {
	stories controller.StoryController
	stats   controller.StatsController
	events  *notify.RedisChannel
	db      database.Database
	rabbit  rabbitmq.Client
	config  config.Config
}

func New(config config.Config, db database.Database, events *notify.RedisChannel, rabbit rabbitmq.Client,
	stories controller.StoryController, stats controller.StatsController) *http.Server {

	server := Server{
		stories: stories,
		stats:   stats,
		events:  events,
		db:      db,
		rabbit:  rabbit,
		config:  config,
	}

	return &http.Server{
		Addr:        fmt.Sprintf(":%v", config.Port),
		Handler:     server.RegisterRoutes(),
		IdleTimeout: time.Minute,
		ReadTimeout: 10 * time.Second,
		// no WriteTimeout: the /events stream stays open indefinitely
	}
}
