package ports

import (
	"context"
	"io"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
)

// DocumentUploader is the inbound contract for document upload.
type DocumentUploader interface {
	Upload(ctx context.Context, filename, contentType string, body io.Reader) (*domain.AnalysisJob, error)
}

// AnalysisRunner executes one background analysis task.
type AnalysisRunner interface {
	Run(ctx context.Context, task domain.AnalysisTask) error
}

// AnalysisReader is the read model behind the status and result endpoints.
type AnalysisReader interface {
	GetStatus(ctx context.Context, documentID string) (*domain.AnalysisJob, error)
	GetResult(ctx context.Context, documentID string) (*domain.AnalysisJob, error)
}
