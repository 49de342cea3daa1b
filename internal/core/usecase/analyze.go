package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
	"github.com/kirillkom/medscript-analyzer/internal/core/ports"
)

const (
	MessageAnalyzing = "AI analysis in progress."
	MessageComplete  = "Analysis successful."

	failurePrefix      = "An unexpected error occurred: "
	defaultJobTimeout  = 5 * time.Minute
	statusWriteTimeout = 30 * time.Second
)

type AnalyzeOptions struct {
	JobTimeout time.Duration
	// Retrier wraps terminal status writes. Nil means a single attempt.
	Retrier ports.Retrier
	Logger  *slog.Logger
}

// AnalyzeDocumentUseCase drives one job through
// processing -> analyzing -> complete|failed.
type AnalyzeDocumentUseCase struct {
	repo       ports.RecordStore
	storage    ports.ObjectStorage
	analyzer   ports.DocumentAnalyzer
	retrier    ports.Retrier
	jobTimeout time.Duration
	logger     *slog.Logger
}

var _ ports.AnalysisRunner = (*AnalyzeDocumentUseCase)(nil)

func NewAnalyzeDocumentUseCase(
	repo ports.RecordStore,
	storage ports.ObjectStorage,
	analyzer ports.DocumentAnalyzer,
	opts AnalyzeOptions,
) *AnalyzeDocumentUseCase {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.JobTimeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	retrier := opts.Retrier
	if retrier == nil {
		retrier = singleAttempt{}
	}
	return &AnalyzeDocumentUseCase{
		repo:       repo,
		storage:    storage,
		analyzer:   analyzer,
		retrier:    retrier,
		jobTimeout: timeout,
		logger:     logger,
	}
}

// Run returns the analysis error after recording it on the job. A task whose
// job is already terminal is skipped.
func (uc *AnalyzeDocumentUseCase) Run(ctx context.Context, task domain.AnalysisTask) error {
	logger := uc.logger.With("document_id", task.DocumentID)
	start := time.Now()

	if err := uc.markStatus(ctx, task.DocumentID, domain.StatusAnalyzing, MessageAnalyzing); err != nil {
		if domain.IsKind(err, domain.ErrInvalidTransition) || domain.IsKind(err, domain.ErrDocumentNotFound) {
			logger.Warn("analysis_task_skipped", "error", err)
			return nil
		}
		logger.Warn("analysis_status_update_failed", "status", domain.StatusAnalyzing, "error", err)
	}

	result, err := uc.analyze(ctx, task)
	if err == nil {
		err = uc.complete(ctx, task.DocumentID, result)
	}
	if err != nil {
		uc.markFailed(ctx, task.DocumentID, err)
		logger.Error("analysis_failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return err
	}

	logger.Info("analysis_completed",
		"document_type", result.DocumentType,
		"entities", len(result.ExtractedEntities),
		"alerts", len(result.SafetyAssessment),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (uc *AnalyzeDocumentUseCase) analyze(ctx context.Context, task domain.AnalysisTask) (result domain.AnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, uc.jobTimeout)
	defer cancel()

	text, err := uc.loadText(ctx, task)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	result, err = uc.analyzer.Analyze(ctx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.AnalysisResult{}, fmt.Errorf("analysis exceeded %s: %w", uc.jobTimeout, err)
		}
		return domain.AnalysisResult{}, fmt.Errorf("run analysis pipeline: %w", err)
	}
	return result, nil
}

func (uc *AnalyzeDocumentUseCase) loadText(ctx context.Context, task domain.AnalysisTask) (string, error) {
	if task.Text != "" || task.TextKey == "" {
		return task.Text, nil
	}
	rc, err := uc.storage.Open(ctx, task.TextKey)
	if err != nil {
		return "", fmt.Errorf("open extracted text: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", domain.WrapError(domain.ErrTemporary, "read extracted text", err)
	}
	return string(data), nil
}

func (uc *AnalyzeDocumentUseCase) complete(ctx context.Context, documentID string, result domain.AnalysisResult) error {
	update := domain.CompleteUpdate(result, MessageComplete, time.Now().UTC())
	if err := uc.writeTerminal(ctx, documentID, update); err != nil {
		return fmt.Errorf("persist analysis result: %w", err)
	}
	return nil
}

// markFailed never returns an error; the job keeps its last durable status when
// the write cannot be made.
func (uc *AnalyzeDocumentUseCase) markFailed(ctx context.Context, documentID string, cause error) {
	update := domain.FailUpdate(failureMessage(cause), time.Now().UTC())
	if err := uc.writeTerminal(ctx, documentID, update); err != nil {
		uc.logger.Error("analysis_status_update_failed",
			"document_id", documentID,
			"status", domain.StatusFailed,
			"error", err,
		)
	}
}

func (uc *AnalyzeDocumentUseCase) writeTerminal(ctx context.Context, documentID string, update domain.JobUpdate) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	return uc.retrier.Do(writeCtx, "record_store_update", func(ctx context.Context) error {
		return uc.repo.Update(ctx, documentID, update)
	})
}

func (uc *AnalyzeDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.ProcessingStatus, message string) error {
	return uc.repo.Update(ctx, documentID, domain.StatusUpdate(status, message))
}

func failureMessage(err error) string {
	return failurePrefix + err.Error()
}

type singleAttempt struct{}

func (singleAttempt) Do(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}
