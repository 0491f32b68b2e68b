package config

import (
	"log/slog"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration read once at startup.
type Config struct {
	// Server
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Upload limits
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"` // 10MB in bytes

	// Store
	StoreProvider string `env:"STORE_PROVIDER" envDefault:"postgres"` // "postgres"
	DBURL         string `env:"DB_URL"`

	// Queue
	QueueProvider string `env:"QUEUE_PROVIDER" envDefault:"nats"` // "nats"
	QueueURL      string `env:"QUEUE_URL"`

	// Job status tracking
	JobsProvider  string `env:"JOBS_PROVIDER" envDefault:"redis"` // "redis" or "noop"
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	JobTTL        int    `env:"JOB_TTL" envDefault:"86400"` // seconds

	// LLM
	LLMProvider   string        `env:"LLM_PROVIDER" envDefault:"openai"` // "openai" or "stub"
	OpenAIKey     string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL"`
	Model         string        `env:"MODEL" envDefault:"gpt-3.5-turbo"`
	Temperature   float64       `env:"TEMPERATURE" envDefault:"0.7"`
	MaxTokens     int64         `env:"MAX_TOKENS" envDefault:"2000"`
	LLMTimeout    time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	// Generation
	DefaultTestingType string   `env:"DEFAULT_TESTING_TYPE" envDefault:"functional"`
	NumCases           int      `env:"NUM_CASES" envDefault:"5"`
	TestTypes          []string `env:"TEST_TYPES" envDefault:"functional,regression,edge_case,integration,performance,security,usability" envSeparator:","`

	// Requirement documents
	ChunkMaxTokens int `env:"CHUNK_MAX_TOKENS" envDefault:"400"`
	ChunkOverlap   int `env:"CHUNK_OVERLAP" envDefault:"0"`
}

// JobTTLDuration returns JobTTL as a duration.
func (c Config) JobTTLDuration() time.Duration {
	return time.Duration(c.JobTTL) * time.Second
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}
