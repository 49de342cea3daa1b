package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
	"github.com/kirillkom/medscript-analyzer/internal/core/ports"
)

const (
	StageClassify = "classify"

	classifierInputLimit = 4000
	// The generator exposes no token probabilities, so an accepted label gets a
	// fixed score.
	classifierConfidence = 0.85
)

type Classifier struct {
	step *Step[string, domain.DocumentTypeResult]
}

func NewClassifier(generator ports.Generator, opts StepOptions) *Classifier {
	return &Classifier{step: NewStep(StepDefinition[string, domain.DocumentTypeResult]{
		Name: StageClassify,
		Mode: ModeText,
		Render: func(text string) string {
			return buildClassifierPrompt(truncateRunes(text, classifierInputLimit))
		},
		Parse: parseDocumentType,
		Fallback: func(string) domain.DocumentTypeResult {
			return domain.DocumentTypeResult{DocumentType: domain.DocumentTypeUnknown}
		},
		Skip: isBlank,
	}, generator, opts)}
}

// Classify labels text with one entry of domain.DocumentTypes.
func (c *Classifier) Classify(ctx context.Context, text string) (domain.DocumentTypeResult, StepReport, error) {
	return c.step.Run(ctx, text)
}

func parseDocumentType(raw string) (domain.DocumentTypeResult, error) {
	label := raw
	if obj := extractJSONObject(raw); obj != "" {
		var payload struct {
			DocumentType string `json:"document_type"`
		}
		if err := json.Unmarshal([]byte(obj), &payload); err == nil && payload.DocumentType != "" {
			label = payload.DocumentType
		}
	}

	label = normalizeLabel(label)
	if !domain.IsKnownDocumentType(label) {
		return domain.DocumentTypeResult{}, fmt.Errorf("label %q outside vocabulary", label)
	}
	return domain.DocumentTypeResult{DocumentType: label, ConfidenceScore: classifierConfidence}, nil
}

func normalizeLabel(raw string) string {
	label := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.IndexByte(label, '\n'); idx >= 0 {
		label = label[:idx]
	}
	label = strings.TrimPrefix(label, "document type:")
	label = strings.Trim(label, " \t\"'`*.:;!")
	label = strings.NewReplacer("_", " ", "-", " ").Replace(label)
	return strings.Join(strings.Fields(label), " ")
}

func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
