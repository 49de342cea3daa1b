package pipeline

import (
	"fmt"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
)

const (
	StageKnowledge = "retrieve_knowledge"

	NoKnowledgeSnippet = "No specific knowledge found for the extracted entities."
)

var knowledgeTemplates = map[string]string{
	domain.EntityMedication: "Knowledge about %s: medication; review indication, dosing and known side effects.",
	domain.EntityLabTest:    "Knowledge about %s: lab test; compare the result against the laboratory reference range.",
	domain.EntityDiagnosis:  "Knowledge about %s: diagnosis; review characteristic symptoms and standard treatment.",
}

// KnowledgeRetriever maps entities to templated reference snippets. It has no
// retrieval backend and makes no model calls.
type KnowledgeRetriever struct{}

func NewKnowledgeRetriever() *KnowledgeRetriever {
	return &KnowledgeRetriever{}
}

// Retrieve never returns an empty slice.
func (r *KnowledgeRetriever) Retrieve(entities []domain.MedicalEntity) []string {
	snippets := make([]string, 0, len(entities))
	for _, entity := range entities {
		tmpl, ok := knowledgeTemplates[entity.EntityType]
		if !ok {
			continue
		}
		snippets = append(snippets, fmt.Sprintf(tmpl, entity.EntityValue))
	}
	if len(snippets) == 0 {
		return []string{NoKnowledgeSnippet}
	}
	return snippets
}
