package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/medscript-analyzer/internal/config"
	"github.com/kirillkom/medscript-analyzer/internal/core/pipeline"
	"github.com/kirillkom/medscript-analyzer/internal/core/ports"
	"github.com/kirillkom/medscript-analyzer/internal/core/usecase"
	"github.com/kirillkom/medscript-analyzer/internal/infrastructure/extractor"
	natsqueue "github.com/kirillkom/medscript-analyzer/internal/infrastructure/queue/nats"
	"github.com/kirillkom/medscript-analyzer/internal/infrastructure/resilience"
	"github.com/kirillkom/medscript-analyzer/internal/observability/metrics"
)

// Role selects which parts of the graph New wires.
type Role string

const (
	// RoleAPI serves HTTP and dispatches analysis per JOB_DISPATCH.
	RoleAPI Role = "api"
	// RoleWorker consumes analysis tasks from NATS.
	RoleWorker Role = "worker"
	// RoleCLI runs extraction and the pipeline without stores or queues.
	RoleCLI Role = "cli"
)

const terminalWriteAttempts = 5

type Options struct {
	Role   Role
	Logger *slog.Logger
	// Registry receives the analysis collectors. Nil creates a private one.
	Registry *prometheus.Registry
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Extractor    ports.TextExtractor
	Orchestrator *pipeline.Orchestrator
	Metrics      *metrics.AnalysisMetrics

	Store      ports.RecordStore
	Storage    ports.ObjectStorage
	Dispatcher ports.JobDispatcher
	// Queue is set when tasks travel over NATS.
	Queue *natsqueue.Queue

	UploadUC  *usecase.UploadDocumentUseCase
	AnalyzeUC *usecase.AnalyzeDocumentUseCase
	QueryUC   *usecase.AnalysisQueryUseCase

	health  func(context.Context) error
	closers []func(context.Context)
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	role := opts.Role
	if role == "" {
		role = RoleAPI
	}

	app := &App{Config: cfg, Logger: logger}
	app.Metrics = metrics.NewAnalysisMetrics(string(role), opts.Registry)

	llmCfg := resilience.DefaultConfig()
	llmCfg.RetryMaxAttempts = cfg.LLMRetryMaxAttempts
	llmCfg.BreakerEnabled = cfg.LLMBreakerEnabled
	llmExecutor := resilience.NewExecutor(llmCfg,
		resilience.WithLogger(logger),
		resilience.WithStateObserver(app.Metrics),
	)

	generator, err := newGenerator(cfg, llmExecutor)
	if err != nil {
		return nil, err
	}

	rules, err := pipeline.LoadSafetyRules(cfg.SafetyRulesPath)
	if err != nil {
		return nil, fmt.Errorf("load safety rules: %w", err)
	}
	if cfg.SafetyRulesPath != "" {
		logger.Info("safety_rules_loaded", "path", cfg.SafetyRulesPath, "interactions", len(rules.Interactions), "lab_ranges", len(rules.LabRanges))
	}

	app.Orchestrator = pipeline.NewOrchestrator(generator, pipeline.OrchestratorOptions{
		StepTimeout: cfg.LLMStepTimeout,
		Rules:       rules,
		Observer:    app.Metrics,
		Logger:      logger,
	})
	app.Extractor = extractor.New(extractor.Config{
		Tesseract:     cfg.TesseractPath,
		TesseractLang: cfg.TesseractLang,
	}, logger)

	if role == RoleCLI {
		return app, nil
	}

	if err := app.wireJobs(ctx, role); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wireJobs(ctx context.Context, role Role) error {
	cfg := a.Config

	storage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}
	a.Storage = storage

	store, err := a.newRecordStore(ctx)
	if err != nil {
		return err
	}
	a.Store = store

	storeExecutor := resilience.NewExecutor(resilience.StoreWriteConfig(terminalWriteAttempts), resilience.WithLogger(a.Logger))
	a.AnalyzeUC = usecase.NewAnalyzeDocumentUseCase(store, storage, a.Orchestrator, usecase.AnalyzeOptions{
		JobTimeout: cfg.JobTimeout,
		Retrier:    storeExecutor.Retrier(resilience.StoreWriteClassifier),
		Logger:     a.Logger,
	})
	a.QueryUC = usecase.NewAnalysisQueryUseCase(store)

	if role == RoleWorker || cfg.JobDispatch == config.DispatchNATS {
		queue, err := newNATSQueue(cfg, a.Logger)
		if err != nil {
			return fmt.Errorf("init message queue: %w", err)
		}
		a.Queue = queue
		a.Dispatcher = queue
		a.closers = append(a.closers, func(context.Context) { queue.Close() })
	} else {
		pool := newWorkerPool(cfg, a.AnalyzeUC, a.Metrics, a.Logger)
		a.Dispatcher = pool
		a.closers = append(a.closers, func(ctx context.Context) {
			if err := pool.Shutdown(ctx); err != nil {
				a.Logger.Warn("analysis_queue_shutdown_failed", "error", err)
			}
		})
	}

	a.UploadUC = usecase.NewUploadDocumentUseCase(store, storage, a.Extractor, a.Dispatcher, a.Logger)
	return nil
}

// HealthCheck reports whether the record store is reachable.
func (a *App) HealthCheck(ctx context.Context) error {
	if a.health == nil {
		return nil
	}
	return a.health(ctx)
}

// Shutdown releases resources in reverse order of acquisition. ctx bounds the
// drain of in-process analysis jobs.
func (a *App) Shutdown(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
}

func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.Shutdown(ctx)
}
