package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
)

func buildClassifierPrompt(text string) string {
	return fmt.Sprintf(`You identify the type of medical documents.
Classify the document text below as exactly one of: %s.
Answer with the document type only. If you are unsure, answer "unknown".

Document text:
%s

Document type:`, strings.Join(domain.DocumentTypes, ", "), text)
}

func buildEntityPrompt(text, documentType string) string {
	return fmt.Sprintf(`You extract medical entities from documents.
The document below is of type %q. Extract medications, dosages, lab test names,
lab values, diagnoses, procedures and vital signs.

Return a JSON array of objects with keys:
- "entity_type": one of "medication", "dosage", "lab_test", "lab_value", "diagnosis", "procedure", "vital_sign"
- "entity_value": the text of the entity as written in the document
- "confidence_score": a number between 0.0 and 1.0
- "metadata": optional object, for lab values include "test_name"

Return [] if no entities are found. Return JSON only.

Document text:
%s`, documentType, text)
}

func buildReasoningPrompt(in ReasoningInput) string {
	entities, err := json.MarshalIndent(in.Entities, "", "  ")
	if err != nil || len(in.Entities) == 0 {
		entities = []byte("[]")
	}
	return fmt.Sprintf(`You summarize medical documents.
Using the document text, its type, the extracted entities and the retrieved knowledge,
write a concise summary of the medical content and a list of key findings.

Document type: %s

Document text:
%s

Extracted entities:
%s

Retrieved knowledge:
%s

Return a JSON object: {"summary": "<string>", "key_findings": ["<string>", ...]}. Return JSON only.`,
		in.DocumentType, in.Text, string(entities), strings.Join(in.Knowledge, "\n"))
}
