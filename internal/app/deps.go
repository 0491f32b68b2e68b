package app

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"

	"testgen/internal/config"
	"testgen/internal/generator"
	"testgen/internal/jobs"
	"testgen/internal/llm"
	"testgen/internal/logger"
	"testgen/internal/queue"
	"testgen/internal/store"
)

// Deps bundles common runtime dependencies for services.
type Deps struct {
	Config    config.Config
	Log       *slog.Logger
	Store     store.Store
	Queue     queue.Queue
	Jobs      jobs.Tracker
	LLM       llm.Client
	Generator generator.Generator
}

// Build loads env, config, and every shared component used by the services.
func Build() (Deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return Deps{}, err
	}
	log := logger.New(cfg.LogLevel)

	deps, err := buildGenerator(cfg, log)
	if err != nil {
		return Deps{}, err
	}
	st, err := buildStore(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize store: %w", err)
	}
	q, err := buildQueue(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize queue: %w", err)
	}
	deps.Store = st
	deps.Queue = q
	deps.Jobs = buildTracker(cfg, log)
	return deps, nil
}

// BuildCLI loads only what a local generation run needs: config, a logger
// writing to w, the model client and the generator. An empty level keeps
// LOG_LEVEL.
func BuildCLI(w io.Writer, level string) (Deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return Deps{}, err
	}
	if level == "" {
		level = cfg.LogLevel
	}
	return buildGenerator(cfg, logger.NewWithWriter(w, level))
}

func loadConfig() (config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return config.Config{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	return config.Load(), nil
}

func buildGenerator(cfg config.Config, log *slog.Logger) (Deps, error) {
	client, err := buildLLM(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	return Deps{
		Config:    cfg,
		Log:       log,
		LLM:       client,
		Generator: generator.New(client, log, cfg.TestTypes, cfg.DefaultTestingType),
	}, nil
}

// loadDotEnv reads .env when present. A missing file is not an error.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func buildStore(cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreProvider {
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when STORE_PROVIDER=postgres")
		}
		db, err := store.NewPostgres(cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		log.Info("using Postgres store")
		return db, nil
	default:
		return nil, fmt.Errorf("invalid STORE_PROVIDER: %s (valid option: postgres)", cfg.StoreProvider)
	}
}

func buildQueue(cfg config.Config, log *slog.Logger) (queue.Queue, error) {
	switch cfg.QueueProvider {
	case "nats":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("using NATS queue")
		return queue.NewNATS(log, nc), nil
	default:
		return nil, fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid option: nats)", cfg.QueueProvider)
	}
}

// buildTracker never fails: job status is advisory, so an unreachable Redis
// degrades to the no-op tracker.
func buildTracker(cfg config.Config, log *slog.Logger) jobs.Tracker {
	switch cfg.JobsProvider {
	case "redis":
		t, err := jobs.NewRedisTracker(cfg.RedisAddr, cfg.RedisPassword, cfg.JobTTLDuration())
		if err != nil {
			log.Warn("redis unavailable, job status disabled", "addr", cfg.RedisAddr, "err", err)
			return jobs.NewNoOpTracker()
		}
		log.Info("using Redis job tracker", "addr", cfg.RedisAddr)
		return t
	case "noop", "":
		return jobs.NewNoOpTracker()
	default:
		log.Warn("unknown JOBS_PROVIDER, job status disabled", "provider", cfg.JobsProvider)
		return jobs.NewNoOpTracker()
	}
}

func buildLLM(cfg config.Config, log *slog.Logger) (llm.Client, error) {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
		client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:      cfg.OpenAIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       openai.ChatModel(cfg.Model),
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.LLMTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
		}
		log.Info("using OpenAI LLM client", "model", cfg.Model)
		return client, nil
	case "stub":
		log.Info("using stub LLM client")
		return llm.NewStubClient(), nil
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER: %s (valid options: openai, stub)", cfg.LLMProvider)
	}
}
