package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
	"github.com/kirillkom/medscript-analyzer/internal/core/ports"
)

type AnalysisQueryUseCase struct {
	repo ports.RecordStore
}

var _ ports.AnalysisReader = (*AnalysisQueryUseCase)(nil)

func NewAnalysisQueryUseCase(repo ports.RecordStore) *AnalysisQueryUseCase {
	return &AnalysisQueryUseCase{repo: repo}
}

func (uc *AnalysisQueryUseCase) GetStatus(ctx context.Context, documentID string) (*domain.AnalysisJob, error) {
	return uc.load(ctx, documentID)
}

// GetResult returns the job only once it is complete.
func (uc *AnalysisQueryUseCase) GetResult(ctx context.Context, documentID string) (*domain.AnalysisJob, error) {
	job, err := uc.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.StatusComplete {
		return nil, domain.WrapError(
			domain.ErrAnalysisNotReady,
			"get analysis result",
			fmt.Errorf("document %s is %s", documentID, job.Status),
		)
	}
	return job, nil
}

func (uc *AnalysisQueryUseCase) load(ctx context.Context, documentID string) (*domain.AnalysisJob, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get analysis", errors.New("document id is required"))
	}
	job, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch analysis by id: %w", err)
	}
	return job, nil
}
