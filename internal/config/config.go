package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config represents the entire application configuration
type Config struct {
	Env          string             `json:"env"`
	Port         int                `json:"port"`
	AppName      string             `json:"app_name"`
	MongoDB      MongoDBConfig      `json:"mongodb"`
	Redis        RedisConfig        `json:"redis"`
	RabbitMQ     RabbitMQConfig     `json:"rabbitmq"`
	S3           S3Config           `json:"s3"`
	Capabilities CapabilitiesConfig `json:"capabilities"`
	Watcher      WatcherConfig      `json:"watcher"`
	Logging      LoggingConfig      `json:"logging"`
	CORS         CORSConfig         `json:"cors"`
}

// MongoDBConfig contains MongoDB connection details
type MongoDBConfig struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       string `json:"db"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

// RabbitMQConfig contains the processing trigger queue connection details
type RabbitMQConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	VHost         string `json:"vhost"`
	ExchangeName  string `json:"exchange_name"`
	QueueName     string `json:"queue_name"`
	PrefetchCount int    `json:"prefetch_count"`
}

// S3Config contains audio blob storage credentials
type S3Config struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
}

// CapabilitiesConfig points at the external transcription and
// feedback-generation services
type CapabilitiesConfig struct {
	TranscriberURL    string `json:"transcriber_url"`
	CoachURL          string `json:"coach_url"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

// WatcherConfig tunes the client-side completion watcher
type WatcherConfig struct {
	PollIntervalSec int `json:"poll_interval_sec"`
	TimeoutSec      int `json:"timeout_sec"`
}

// LoggingConfig contains logging-related configurations
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age,omitempty"`
}

// LoadConfig reads configuration from the specified file path
func LoadConfig(filePath string) (*Config, error) {
	configData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}
