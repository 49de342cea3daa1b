package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
	"github.com/kirillkom/medscript-analyzer/internal/core/ports"
)

const (
	StageExtract = "extract_entities"

	entityInputLimit = 8000
)

type EntityInput struct {
	Text         string
	DocumentType string
}

type EntityExtractor struct {
	step *Step[EntityInput, []domain.MedicalEntity]
}

func NewEntityExtractor(generator ports.Generator, opts StepOptions) *EntityExtractor {
	return &EntityExtractor{step: NewStep(StepDefinition[EntityInput, []domain.MedicalEntity]{
		Name: StageExtract,
		Mode: ModeJSON,
		Render: func(in EntityInput) string {
			return buildEntityPrompt(truncateRunes(in.Text, entityInputLimit), in.DocumentType)
		},
		Parse: parseEntities,
		Fallback: func(EntityInput) []domain.MedicalEntity {
			return []domain.MedicalEntity{}
		},
		Skip: func(in EntityInput) bool { return isBlank(in.Text) },
	}, generator, opts)}
}

// Extract returns the entities named in the model output. A malformed answer
// yields an empty slice, never a partial one.
func (e *EntityExtractor) Extract(ctx context.Context, text, documentType string) ([]domain.MedicalEntity, StepReport, error) {
	return e.step.Run(ctx, EntityInput{Text: text, DocumentType: documentType})
}

func parseEntities(raw string) ([]domain.MedicalEntity, error) {
	payload := ""
	if arrayFirst(raw) {
		payload = extractJSONArray(raw)
	} else if obj := extractJSONObject(raw); obj != "" {
		wrapped, err := unwrapEntities(obj)
		if err != nil {
			return nil, err
		}
		payload = wrapped
	}

	value, err := decodeAndValidate(entitiesSchema, payload)
	if err != nil {
		return nil, err
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("entities payload is %T, want array", value)
	}

	entities := make([]domain.MedicalEntity, 0, len(items))
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("entity item is %T, want object", item)
		}
		entities = append(entities, toEntity(fields))
	}
	return entities, nil
}

// unwrapEntities accepts {"entities": [...]} and returns the inner array.
func unwrapEntities(obj string) (string, error) {
	value, err := decodeObject(obj)
	if err != nil {
		return "", err
	}
	inner, ok := value["entities"]
	if !ok {
		return "", fmt.Errorf("object response has no entities key")
	}
	encoded, err := encodeJSON(inner)
	if err != nil {
		return "", err
	}
	return encoded, nil
}

func toEntity(fields map[string]any) domain.MedicalEntity {
	entity := domain.MedicalEntity{
		EntityType:      strings.ToLower(strings.TrimSpace(fields["entity_type"].(string))),
		EntityValue:     stringifyValue(fields["entity_value"]),
		ConfidenceScore: clamp01(fields["confidence_score"].(float64)),
	}
	if meta, ok := fields["metadata"].(map[string]any); ok && len(meta) > 0 {
		entity.Metadata = meta
	}
	return entity
}

func stringifyValue(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return fmt.Sprint(value)
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
