package domain

import "time"

type ProcessingStatus string

const (
	StatusProcessing ProcessingStatus = "processing"
	StatusAnalyzing  ProcessingStatus = "analyzing"
	StatusComplete   ProcessingStatus = "complete"
	StatusFailed     ProcessingStatus = "failed"
)

// AnalysisJob is the persisted aggregate for one uploaded document.
type AnalysisJob struct {
	DocumentID        string           `json:"document_id"`
	FileName          string           `json:"file_name"`
	ContentType       string           `json:"content_type"`
	StoragePath       string           `json:"storage_path"`
	ExtractedTextPath string           `json:"extracted_text_path,omitempty"`
	Status            ProcessingStatus `json:"processing_status"`
	Message           string           `json:"message"`

	DocumentType       string          `json:"document_type,omitempty"`
	ConfidenceScore    float64         `json:"confidence_score"`
	ExtractedEntities  []MedicalEntity `json:"extracted_entities"`
	RetrievedKnowledge []string        `json:"retrieved_knowledge"`
	Summary            string          `json:"summary,omitempty"`
	KeyFindings        []string        `json:"key_findings"`
	SafetyAssessment   []SafetyAlert   `json:"safety_assessment"`

	UploadedAt  time.Time  `json:"uploaded_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Result returns the analysis envelope stored on the job.
func (j *AnalysisJob) Result() AnalysisResult {
	return AnalysisResult{
		DocumentType:       j.DocumentType,
		ConfidenceScore:    j.ConfidenceScore,
		ExtractedEntities:  j.ExtractedEntities,
		RetrievedKnowledge: j.RetrievedKnowledge,
		Summary:            j.Summary,
		KeyFindings:        j.KeyFindings,
		SafetyAssessment:   j.SafetyAssessment,
	}
}

// JobUpdate is a partial merge applied to a stored AnalysisJob.
// Nil fields are left untouched.
type JobUpdate struct {
	Status      *ProcessingStatus
	Message     *string
	Result      *AnalysisResult
	CompletedAt *time.Time
}

// Apply merges the update into job. CompletedAt is only written once.
func (u JobUpdate) Apply(job *AnalysisJob, now time.Time) error {
	if u.Status != nil {
		if err := ValidateTransition(job.Status, *u.Status); err != nil {
			return err
		}
		job.Status = *u.Status
	}
	if u.Message != nil {
		job.Message = *u.Message
	}
	if u.Result != nil {
		job.DocumentType = u.Result.DocumentType
		job.ConfidenceScore = u.Result.ConfidenceScore
		job.ExtractedEntities = u.Result.ExtractedEntities
		job.RetrievedKnowledge = u.Result.RetrievedKnowledge
		job.Summary = u.Result.Summary
		job.KeyFindings = u.Result.KeyFindings
		job.SafetyAssessment = u.Result.SafetyAssessment
	}
	if u.CompletedAt != nil && job.CompletedAt == nil {
		completedAt := u.CompletedAt.UTC()
		job.CompletedAt = &completedAt
	}
	job.UpdatedAt = now
	return nil
}

func StatusUpdate(status ProcessingStatus, message string) JobUpdate {
	return JobUpdate{Status: &status, Message: &message}
}

func CompleteUpdate(result AnalysisResult, message string, at time.Time) JobUpdate {
	status := StatusComplete
	return JobUpdate{Status: &status, Message: &message, Result: &result, CompletedAt: &at}
}

func FailUpdate(message string, at time.Time) JobUpdate {
	status := StatusFailed
	return JobUpdate{Status: &status, Message: &message, CompletedAt: &at}
}
