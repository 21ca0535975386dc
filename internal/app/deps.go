package app

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"insight-agents/internal/config"
	"insight-agents/internal/llm"
	"insight-agents/internal/lock"
	"insight-agents/internal/logger"
	"insight-agents/internal/orchestrator"
	"insight-agents/internal/parser"
	"insight-agents/internal/prompt"
	"insight-agents/internal/queue"
	"insight-agents/internal/sample"
	"insight-agents/internal/store"
)

// Deps bundles common runtime dependencies for services.
type Deps struct {
	Config       config.Config
	Log          *slog.Logger
	Store        store.Store
	Queue        queue.Queue
	Locker       lock.Locker
	LLM          llm.Client
	Parser       *parser.Parser
	Orchestrator *orchestrator.Orchestrator

	closers []io.Closer
}

// Build loads env, config, and shared components for the named service.
func Build(service string) (Deps, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return Deps{}, err
	}
	return BuildWith(cfg, logger.New(service, cfg.LogLevel))
}

// BuildWith wires components from an already loaded configuration.
func BuildWith(cfg config.Config, log *slog.Logger) (Deps, error) {
	deps := Deps{Config: cfg, Log: log, Parser: parser.New()}

	st, err := buildStore(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize store: %w", err)
	}
	deps.Store = st
	deps.track(st)

	q, err := buildQueue(cfg, log)
	if err != nil {
		deps.Close()
		return Deps{}, fmt.Errorf("failed to initialize queue: %w", err)
	}
	deps.Queue = q
	deps.track(q)

	locker, err := buildLocker(cfg, log)
	if err != nil {
		deps.Close()
		return Deps{}, fmt.Errorf("failed to initialize lock: %w", err)
	}
	deps.Locker = locker
	deps.track(locker)

	client, err := buildLLM(cfg, log)
	if err != nil {
		deps.Close()
		return Deps{}, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	deps.LLM = client

	deps.Orchestrator = orchestrator.New(log, st, locker, client, orchestrator.Options{
		Prompt:       buildPrompt(cfg),
		ModelTimeout: cfg.SummarizeTimeout,
	})
	return deps, nil
}

// Close releases connections opened by Build in reverse order.
func (d Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil && d.Log != nil {
			d.Log.Warn("failed to close dependency", "err", err)
		}
	}
}

func (d *Deps) track(v any) {
	if c, ok := v.(io.Closer); ok {
		d.closers = append(d.closers, c)
	}
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
	case "sqlite":
		db, err := store.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
		}
		log.Info("using SQLite store", "path", cfg.SQLitePath)
		return db, nil
	case "memory":
		log.Info("using in-memory store")
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("invalid STORE_PROVIDER: %s (valid options: postgres, sqlite, memory)", cfg.StoreProvider)
	}
}

func buildQueue(cfg config.Config, log *slog.Logger) (queue.Queue, error) {
	switch cfg.QueueProvider {
	case "nats":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL, nats.Name("insight-agents"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("using NATS queue", "concurrency", cfg.WorkerConcurrency)
		return queue.NewNATS(log, nc, cfg.WorkerConcurrency), nil
	case "memory":
		log.Info("using in-process queue", "concurrency", cfg.WorkerConcurrency)
		return queue.NewMemory(log, cfg.WorkerConcurrency), nil
	default:
		return nil, fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid options: nats, memory)", cfg.QueueProvider)
	}
}

func buildLocker(cfg config.Config, log *slog.Logger) (lock.Locker, error) {
	if cfg.RedisAddr == "" {
		log.Info("using in-process record lock")
		return lock.NewMemoryLocker(), nil
	}
	l, err := lock.NewRedisLocker(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, err
	}
	log.Info("using Redis record lock", "addr", cfg.RedisAddr)
	return l, nil
}

// buildLLM returns a nil client when the selected provider has no credential.
func buildLLM(cfg config.Config, log *slog.Logger) (llm.Client, error) {
	key := cfg.ModelKey()
	if key == "" {
		log.Warn("no model credential configured; summaries will use the offline stub", "provider", cfg.LLMProvider)
		return nil, nil
	}
	opts := llm.Options{
		Model:           cfg.LLMModel,
		Temperature:     cfg.LLMTemperature,
		MaxOutputTokens: cfg.LLMMaxOutputTokens,
		Timeout:         cfg.SummarizeTimeout,
		BaseURL:         cfg.LLMBaseURL,
	}
	switch cfg.LLMProvider {
	case llm.ProviderOpenAI:
		client, err := llm.NewOpenAIClient(key, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
		}
		log.Info("using OpenAI LLM client", "model", cfg.LLMModel)
		return client, nil
	case llm.ProviderGemini:
		client, err := llm.NewGeminiClient(key, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
		}
		log.Info("using Gemini LLM client", "model", cfg.LLMModel)
		return client, nil
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER: %s (valid options: openai, gemini)", cfg.LLMProvider)
	}
}

func buildPrompt(cfg config.Config) *prompt.Builder {
	b := prompt.NewBuilder()
	b.Sample = sample.Options{
		MaxRows:    cfg.SampleRows,
		MaxColumns: cfg.SampleColumns,
		MaxLines:   cfg.SampleLines,
		MaxKeys:    cfg.SampleKeys,
	}
	if cfg.PromptMaxChars > 0 {
		b.SampleBudget = cfg.PromptMaxChars
	}
	if cfg.MetadataMaxChars > 0 {
		b.MetadataBudget = cfg.MetadataMaxChars
	}
	return b
}
