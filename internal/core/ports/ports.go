package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
)

// RecordStore persists analysis jobs keyed by document id.
type RecordStore interface {
	Create(ctx context.Context, job *domain.AnalysisJob) error
	GetByID(ctx context.Context, documentID string) (*domain.AnalysisJob, error)
	Update(ctx context.Context, documentID string, update domain.JobUpdate) error
}

// ObjectStorage stores uploaded documents and derived text.
type ObjectStorage interface {
	Save(ctx context.Context, key, contentType string, data io.Reader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// TextExtractor turns raw document bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, content []byte, contentType string) (string, error)
}

// Generator is the generative model capability. Output is untrusted and may not
// be valid JSON even from GenerateJSON.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// JobDispatcher hands analysis tasks to a background runner.
type JobDispatcher interface {
	Dispatch(ctx context.Context, task domain.AnalysisTask) (*domain.JobHandle, error)
}

// DocumentAnalyzer runs the stage pipeline over extracted text.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, text string) (domain.AnalysisResult, error)
}

// Retrier runs fn with bounded retries.
type Retrier interface {
	Do(ctx context.Context, operation string, fn func(context.Context) error) error
}

// JobObserver receives background job lifecycle events.
type JobObserver interface {
	JobStarted()
	JobFinished(err error, duration time.Duration)
	ObserveQueueLag(lag time.Duration)
}
