package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
	"github.com/kirillkom/medscript-analyzer/internal/core/ports"
)

const (
	StageReason = "reason"

	reasoningInputLimit = 2000
	DefaultSummary      = "Could not generate summary."
)

type ReasoningInput struct {
	Text         string
	DocumentType string
	Entities     []domain.MedicalEntity
	Knowledge    []string
}

type Reasoner struct {
	step *Step[ReasoningInput, domain.ReasoningResult]
}

func NewReasoner(generator ports.Generator, opts StepOptions) *Reasoner {
	return &Reasoner{step: NewStep(StepDefinition[ReasoningInput, domain.ReasoningResult]{
		Name: StageReason,
		Mode: ModeJSON,
		Render: func(in ReasoningInput) string {
			in.Text = truncateRunes(in.Text, reasoningInputLimit)
			return buildReasoningPrompt(in)
		},
		Parse:    parseReasoning,
		Fallback: func(ReasoningInput) domain.ReasoningResult { return defaultReasoning() },
		Skip:     func(in ReasoningInput) bool { return isBlank(in.Text) },
	}, generator, opts)}
}

func (r *Reasoner) Reason(ctx context.Context, in ReasoningInput) (domain.ReasoningResult, StepReport, error) {
	return r.step.Run(ctx, in)
}

func defaultReasoning() domain.ReasoningResult {
	return domain.ReasoningResult{Summary: DefaultSummary, KeyFindings: []string{}}
}

func parseReasoning(raw string) (domain.ReasoningResult, error) {
	value, err := decodeAndValidate(reasoningSchema, extractJSONObject(raw))
	if err != nil {
		return domain.ReasoningResult{}, err
	}
	fields, ok := value.(map[string]any)
	if !ok {
		return domain.ReasoningResult{}, fmt.Errorf("reasoning payload is %T, want object", value)
	}

	summary := strings.TrimSpace(fields["summary"].(string))
	if summary == "" {
		return domain.ReasoningResult{}, fmt.Errorf("summary is blank")
	}
	rawFindings, _ := fields["key_findings"].([]any)
	findings := make([]string, 0, len(rawFindings))
	for _, item := range rawFindings {
		finding := strings.TrimSpace(item.(string))
		if finding != "" {
			findings = append(findings, finding)
		}
	}
	return domain.ReasoningResult{Summary: summary, KeyFindings: findings}, nil
}
