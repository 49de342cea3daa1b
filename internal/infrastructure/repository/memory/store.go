package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
)

// Store keeps analysis jobs in process memory. Updates are serialized so the
// status machine is enforced per document.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*domain.AnalysisJob
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*domain.AnalysisJob),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Create(_ context.Context, job *domain.AnalysisJob) error {
	if job == nil || job.DocumentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "create analysis job", fmt.Errorf("document id is required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.DocumentID]; exists {
		return domain.WrapError(domain.ErrInvalidInput, "create analysis job", fmt.Errorf("duplicate id %s", job.DocumentID))
	}
	s.jobs[job.DocumentID] = cloneJob(job)
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.AnalysisJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get analysis job", fmt.Errorf("id=%s", id))
	}
	return cloneJob(job), nil
}

func (s *Store) Update(_ context.Context, id string, update domain.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update analysis job", fmt.Errorf("id=%s", id))
	}
	next := cloneJob(job)
	if err := update.Apply(next, s.now()); err != nil {
		return fmt.Errorf("update analysis job %s: %w", id, err)
	}
	s.jobs[id] = next
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// cloneJob copies the slices and completion time so callers never share
// state with the store.
func cloneJob(job *domain.AnalysisJob) *domain.AnalysisJob {
	out := *job
	out.ExtractedEntities = slices.Clone(job.ExtractedEntities)
	out.RetrievedKnowledge = slices.Clone(job.RetrievedKnowledge)
	out.KeyFindings = slices.Clone(job.KeyFindings)
	out.SafetyAssessment = slices.Clone(job.SafetyAssessment)
	if job.CompletedAt != nil {
		completedAt := *job.CompletedAt
		out.CompletedAt = &completedAt
	}
	return &out
}
