package domain

import (
	"testing"
	"time"
)

func TestCanTransitionOnlyMovesForward(t *testing.T) {
	cases := []struct {
		from, to ProcessingStatus
		want     bool
	}{
		{StatusProcessing, StatusAnalyzing, true},
		{StatusProcessing, StatusFailed, true},
		{StatusAnalyzing, StatusComplete, true},
		{StatusAnalyzing, StatusFailed, true},
		{StatusProcessing, StatusComplete, true},
		{StatusAnalyzing, StatusProcessing, false},
		{StatusComplete, StatusAnalyzing, false},
		{StatusComplete, StatusFailed, false},
		{StatusFailed, StatusComplete, false},
		{StatusAnalyzing, StatusAnalyzing, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestValidateTransitionReturnsKinds(t *testing.T) {
	if err := ValidateTransition(StatusComplete, StatusAnalyzing); !IsKind(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := ValidateTransition(StatusProcessing, "bogus"); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPredecessors(t *testing.T) {
	got := Predecessors(StatusFailed)
	if len(got) != 2 || got[0] != StatusProcessing || got[1] != StatusAnalyzing {
		t.Fatalf("unexpected predecessors of failed: %v", got)
	}
	if got := Predecessors(StatusComplete); len(got) != 2 {
		t.Fatalf("unexpected predecessors of complete: %v", got)
	}
	if got := Predecessors(StatusProcessing); len(got) != 0 {
		t.Fatalf("processing must have no predecessors, got %v", got)
	}
}

func TestJobUpdateSetsCompletedAtOnce(t *testing.T) {
	job := &AnalysisJob{DocumentID: "doc-1", Status: StatusAnalyzing}
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := CompleteUpdate(AnalysisResult{Summary: "ok"}, "done", first).Apply(job, first); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if job.CompletedAt == nil || !job.CompletedAt.Equal(first) {
		t.Fatalf("expected completed_at %v, got %v", first, job.CompletedAt)
	}

	later := first.Add(time.Hour)
	msg := "note"
	if err := (JobUpdate{Message: &msg, CompletedAt: &later}).Apply(job, later); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !job.CompletedAt.Equal(first) {
		t.Fatalf("completed_at overwritten: %v", job.CompletedAt)
	}
	if job.Summary != "ok" || job.Message != "note" {
		t.Fatalf("unexpected merge result: %+v", job)
	}
}

func TestCompleteUpdateFromProcessing(t *testing.T) {
	job := &AnalysisJob{DocumentID: "doc-1", Status: StatusProcessing}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := CompleteUpdate(AnalysisResult{Summary: "ok"}, "done", now).Apply(job, now); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if job.Status != StatusComplete || job.CompletedAt == nil {
		t.Fatalf("expected complete with completed_at, got %+v", job)
	}
}

func TestJobUpdateRejectsRegression(t *testing.T) {
	job := &AnalysisJob{DocumentID: "doc-1", Status: StatusComplete}
	err := StatusUpdate(StatusAnalyzing, "again").Apply(job, time.Now())
	if !IsKind(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if job.Status != StatusComplete {
		t.Fatalf("status changed on rejected update: %s", job.Status)
	}
}

func TestJobHandleFinishIsIdempotent(t *testing.T) {
	h := NewJobHandle("doc-1")
	h.Finish(nil)
	h.Finish(ErrTemporary)
	select {
	case <-h.Done():
	default:
		t.Fatalf("expected done channel closed")
	}
	if h.Err() != nil {
		t.Fatalf("expected first outcome to stick, got %v", h.Err())
	}
}
