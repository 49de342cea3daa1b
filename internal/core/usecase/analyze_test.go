package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
)

func TestRunCompletesJob(t *testing.T) {
	store := newRecordStoreFake()
	seedJob(store, "doc-1", domain.StatusProcessing)
	uc := NewAnalyzeDocumentUseCase(store, newStorageFake(), &analyzerFake{result: sampleResult()}, AnalyzeOptions{})

	if err := uc.Run(context.Background(), domain.AnalysisTask{DocumentID: "doc-1", Text: "text"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	job := store.job("doc-1")
	if job.Status != domain.StatusComplete || job.Message != MessageComplete {
		t.Fatalf("unexpected final state: %s %q", job.Status, job.Message)
	}
	if job.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
	if job.DocumentType != "prescription" || len(job.ExtractedEntities) != 1 || job.Summary != "summary" {
		t.Fatalf("result not persisted: %+v", job)
	}
	if len(store.updates) != 2 || *store.updates[0].Status != domain.StatusAnalyzing {
		t.Fatalf("expected analyzing then complete, got %d updates", len(store.updates))
	}
	if *store.updates[0].Message != MessageAnalyzing {
		t.Fatalf("unexpected analyzing message %q", *store.updates[0].Message)
	}
}

func TestRunLoadsTextFromStorage(t *testing.T) {
	store := newRecordStoreFake()
	seedJob(store, "doc-1", domain.StatusProcessing)
	storage := newStorageFake()
	storage.objects["uploads/doc-1/extracted.txt"] = []byte("stored text")
	analyzer := &analyzerFake{result: sampleResult()}
	uc := NewAnalyzeDocumentUseCase(store, storage, analyzer, AnalyzeOptions{})

	if err := uc.Run(context.Background(), domain.AnalysisTask{DocumentID: "doc-1", TextKey: "uploads/doc-1/extracted.txt"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if analyzer.text != "stored text" {
		t.Fatalf("expected text from storage, got %q", analyzer.text)
	}
}

func TestRunAnalyzingWriteFailureIsNotFatal(t *testing.T) {
	store := newRecordStoreFake()
	seedJob(store, "doc-1", domain.StatusProcessing)
	store.updateErrs = []error{errStoreDown}
	uc := NewAnalyzeDocumentUseCase(store, newStorageFake(), &analyzerFake{result: sampleResult()}, AnalyzeOptions{})

	if err := uc.Run(context.Background(), domain.AnalysisTask{DocumentID: "doc-1", Text: "text"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if job := store.job("doc-1"); job.Status != domain.StatusComplete {
		t.Fatalf("expected processing -> complete, got %s", job.Status)
	}
}

func TestRunPipelineErrorMarksFailed(t *testing.T) {
	store := newRecordStoreFake()
	seedJob(store, "doc-1", domain.StatusProcessing)
	pipelineErr := domain.WrapError(domain.ErrTemporary, "generate", errors.New("ollama unreachable"))
	uc := NewAnalyzeDocumentUseCase(store, newStorageFake(), &analyzerFake{err: pipelineErr}, AnalyzeOptions{})

	err := uc.Run(context.Background(), domain.AnalysisTask{DocumentID: "doc-1", Text: "text"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected pipeline error returned, got %v", err)
	}
	job := store.job("doc-1")
	if job.Status != domain.StatusFailed || job.CompletedAt == nil {
		t.Fatalf("expected failed with completion time, got %+v", job)
	}
	if !strings.HasPrefix(job.Message, "An unexpected error occurred: ") || !strings.Contains(job.Message, "ollama unreachable") {
		t.Fatalf("unexpected failure message %q", job.Message)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	store := newRecordStoreFake()
	seedJob(store, "doc-1", domain.StatusProcessing)
	uc := NewAnalyzeDocumentUseCase(store, newStorageFake(), &analyzerFake{panic: "boom"}, AnalyzeOptions{})

	err := uc.Run(context.Background(), domain.AnalysisTask{DocumentID: "doc-1", Text: "text"})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected panic converted to error, got %v", err)
	}
	if job := store.job("doc-1"); job.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
}

func TestRunJobTimeout(t *testing.T) {
	store := newRecordStoreFake()
	seedJob(store, "doc-1", domain.StatusProcessing)
	uc := NewAnalyzeDocumentUseCase(store, newStorageFake(), &analyzerFake{block: true}, AnalyzeOptions{JobTimeout: 20 * time.Millisecond})

	err := uc.Run(context.Background(), domain.AnalysisTask{DocumentID: "doc-1", Text: "text"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if job := store.job("doc-1"); job.Status != domain.StatusFailed {
		t.Fatalf("expected failed after timeout, got %s", job.Status)
	}
}

func TestRunRetriesFailedWrite(t *testing.T) {
	store := newRecordStoreFake()
	seedJob(store, "doc-1", domain.StatusProcessing)
	store.updateErrs = []error{nil, errStoreDown, nil}
	retrier := &retrierFake{attempts: 3}
	uc := NewAnalyzeDocumentUseCase(store, newStorageFake(), &analyzerFake{err: errors.New("bad")}, AnalyzeOptions{Retrier: retrier})

	_ = uc.Run(context.Background(), domain.AnalysisTask{DocumentID: "doc-1", Text: "text"})
	if retrier.calls != 2 {
		t.Fatalf("expected two write attempts, got %d", retrier.calls)
	}
	if job := store.job("doc-1"); job.Status != domain.StatusFailed {
		t.Fatalf("expected failed after retry, got %s", job.Status)
	}
}

func TestRunSwallowsFailedWriteError(t *testing.T) {
	store := newRecordStoreFake()
	seedJob(store, "doc-1", domain.StatusProcessing)
	store.updateErrs = []error{nil, errStoreDown, errStoreDown}
	uc := NewAnalyzeDocumentUseCase(store, newStorageFake(), &analyzerFake{err: errors.New("bad")}, AnalyzeOptions{Retrier: &retrierFake{attempts: 2}})

	err := uc.Run(context.Background(), domain.AnalysisTask{DocumentID: "doc-1", Text: "text"})
	if err == nil || err.Error() != "run analysis pipeline: bad" {
		t.Fatalf("expected only the pipeline error, got %v", err)
	}
	if job := store.job("doc-1"); job.Status != domain.StatusAnalyzing {
		t.Fatalf("expected last durable status analyzing, got %s", job.Status)
	}
}

func TestRunCompleteWriteFailureMarksFailed(t *testing.T) {
	store := newRecordStoreFake()
	seedJob(store, "doc-1", domain.StatusProcessing)
	store.updateErrs = []error{nil, errStoreDown, nil}
	uc := NewAnalyzeDocumentUseCase(store, newStorageFake(), &analyzerFake{result: sampleResult()}, AnalyzeOptions{})

	err := uc.Run(context.Background(), domain.AnalysisTask{DocumentID: "doc-1", Text: "text"})
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}
	if job := store.job("doc-1"); job.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
}

func TestRunSkipsTerminalJob(t *testing.T) {
	store := newRecordStoreFake()
	seedJob(store, "doc-1", domain.StatusComplete)
	analyzer := &analyzerFake{result: sampleResult()}
	uc := NewAnalyzeDocumentUseCase(store, newStorageFake(), analyzer, AnalyzeOptions{})

	if err := uc.Run(context.Background(), domain.AnalysisTask{DocumentID: "doc-1", Text: "text"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if analyzer.text != "" {
		t.Fatal("analyzer must not run for a terminal job")
	}
	if job := store.job("doc-1"); job.Status != domain.StatusComplete {
		t.Fatalf("terminal status must not change, got %s", job.Status)
	}
}
