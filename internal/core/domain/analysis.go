package domain

const (
	EntityMedication = "medication"
	EntityDosage     = "dosage"
	EntityLabTest    = "lab_test"
	EntityLabValue   = "lab_value"
	EntityDiagnosis  = "diagnosis"
	EntityProcedure  = "procedure"
	EntityVitalSign  = "vital_sign"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityModerate, SeverityMajor, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

const DocumentTypeUnknown = "unknown"

// DocumentTypes is the closed classifier vocabulary.
var DocumentTypes = []string{
	"prescription",
	"lab results",
	"discharge summary",
	"radiology report",
	"pathology report",
	"diagnostic report",
	"vaccination records",
	"referral letters",
	"treatment plans",
	DocumentTypeUnknown,
}

func IsKnownDocumentType(label string) bool {
	for _, known := range DocumentTypes {
		if known == label {
			return true
		}
	}
	return false
}

type MedicalEntity struct {
	EntityType      string         `json:"entity_type"`
	EntityValue     string         `json:"entity_value"`
	ConfidenceScore float64        `json:"confidence_score"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type SafetyAlert struct {
	Severity       Severity `json:"severity"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	ActionRequired bool     `json:"action_required"`
}

type DocumentTypeResult struct {
	DocumentType    string  `json:"document_type"`
	ConfidenceScore float64 `json:"confidence_score"`
}

type ReasoningResult struct {
	Summary     string   `json:"summary"`
	KeyFindings []string `json:"key_findings"`
}

// AnalysisResult is the envelope produced by one pipeline run.
type AnalysisResult struct {
	DocumentType       string          `json:"document_type"`
	ConfidenceScore    float64         `json:"confidence_score"`
	ExtractedEntities  []MedicalEntity `json:"extracted_entities"`
	RetrievedKnowledge []string        `json:"retrieved_knowledge"`
	Summary            string          `json:"summary"`
	KeyFindings        []string        `json:"key_findings"`
	SafetyAssessment   []SafetyAlert   `json:"safety_assessment"`
}
