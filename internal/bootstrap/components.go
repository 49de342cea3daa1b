package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/medscript-analyzer/internal/config"
	"github.com/kirillkom/medscript-analyzer/internal/core/ports"
	"github.com/kirillkom/medscript-analyzer/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/medscript-analyzer/internal/infrastructure/llm/openai"
	"github.com/kirillkom/medscript-analyzer/internal/infrastructure/queue/inprocess"
	natsqueue "github.com/kirillkom/medscript-analyzer/internal/infrastructure/queue/nats"
	"github.com/kirillkom/medscript-analyzer/internal/infrastructure/repository/memory"
	"github.com/kirillkom/medscript-analyzer/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/medscript-analyzer/internal/infrastructure/resilience"
	"github.com/kirillkom/medscript-analyzer/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/medscript-analyzer/internal/infrastructure/storage/minio"
	"github.com/kirillkom/medscript-analyzer/internal/observability/metrics"
)

func newGenerator(cfg config.Config, executor *resilience.Executor) (ports.Generator, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" && cfg.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("init generator: OPENAI_API_KEY is required for provider %q", cfg.LLMProvider)
		}
		return openai.New(openai.Config{
			APIKey:   cfg.OpenAIAPIKey,
			BaseURL:  cfg.OpenAIBaseURL,
			Model:    cfg.OpenAIModel,
			Executor: executor,
		}), nil
	default:
		return ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, ollama.WithExecutor(executor)), nil
	}
}

func newObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	if cfg.StorageBackend == config.StorageMinIO {
		return minio.New(ctx, minio.Config{
			Endpoint:  cfg.MinIOEndpoint,
			Region:    cfg.MinIORegion,
			Bucket:    cfg.MinIOBucket,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
		})
	}
	return localfs.New(cfg.StoragePath)
}

// newRecordStore opens postgres unless the memory store is selected. With
// RECORD_STORE_FALLBACK an unreachable database degrades to memory.
func (a *App) newRecordStore(ctx context.Context) (ports.RecordStore, error) {
	cfg := a.Config
	if cfg.RecordStore == config.RecordStoreMemory {
		a.Logger.Info("record_store_selected", "backend", config.RecordStoreMemory)
		return memory.NewStore(), nil
	}

	store, err := a.openPostgres(ctx)
	if err == nil {
		a.Logger.Info("record_store_selected", "backend", config.RecordStorePostgres)
		return store, nil
	}
	if !cfg.RecordStoreFallback {
		return nil, err
	}
	a.Logger.Warn("record_store_fallback", "backend", config.RecordStoreMemory, "error", err)
	return memory.NewStore(), nil
}

func (a *App) openPostgres(ctx context.Context) (ports.RecordStore, error) {
	db, err := postgres.OpenDB(ctx, a.Config.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewAnalysisRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	a.health = db.PingContext
	a.closers = append(a.closers, func(context.Context) { _ = db.Close() })
	return repo, nil
}

func newNATSQueue(cfg config.Config, logger *slog.Logger) (*natsqueue.Queue, error) {
	executor := resilience.NewExecutor(resilience.DefaultConfig(), resilience.WithLogger(logger))
	return natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
}

func newWorkerPool(cfg config.Config, runner ports.AnalysisRunner, observer *metrics.AnalysisMetrics, logger *slog.Logger) *inprocess.Queue {
	return inprocess.New(runner, inprocess.Options{
		Workers:   cfg.JobWorkers,
		QueueSize: cfg.JobQueueSize,
		Observer:  observer,
		Logger:    logger,
	})
}
