package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
)

func TestClassifierNormalizesLabels(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{raw: "Prescription", want: "prescription"},
		{raw: "  LAB RESULTS.\n", want: "lab results"},
		{raw: "Document Type: discharge_summary", want: "discharge summary"},
		{raw: "\"radiology-report\"", want: "radiology report"},
		{raw: "**Pathology Report**", want: "pathology report"},
		{raw: "```json\n{\"document_type\": \"Vaccination Records\"}\n```", want: "vaccination records"},
	}
	for _, tc := range cases {
		raw, want := tc.raw, tc.want
		gen := &scriptedGenerator{classify: raw}
		got, report, err := NewClassifier(gen, StepOptions{}).Classify(context.Background(), "Rx: amoxicillin")
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", raw, err)
		}
		if got.DocumentType != want {
			t.Fatalf("%q: expected %q, got %q", raw, want, got.DocumentType)
		}
		if got.ConfidenceScore != classifierConfidence || report.Fallback {
			t.Fatalf("%q: unexpected confidence/report %v %+v", raw, got.ConfidenceScore, report)
		}
	}
}

func TestClassifierCoercesUnknownLabels(t *testing.T) {
	for _, raw := range []string{"invoice", "This looks like a prescription to me", "{\"type\": 3}"} {
		gen := &scriptedGenerator{classify: raw}
		got, report, err := NewClassifier(gen, StepOptions{}).Classify(context.Background(), "text")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.DocumentType != domain.DocumentTypeUnknown {
			t.Fatalf("%q: expected unknown, got %q", raw, got.DocumentType)
		}
		if !domain.IsGenerationParseError(report.Err) {
			t.Fatalf("%q: expected parse error in report, got %v", raw, report.Err)
		}
		if !domain.IsKnownDocumentType(got.DocumentType) {
			t.Fatalf("label outside vocabulary: %q", got.DocumentType)
		}
	}
}

func TestClassifierTruncatesInput(t *testing.T) {
	gen := &scriptedGenerator{classify: "prescription"}
	text := strings.Repeat("é", classifierInputLimit+500)
	if _, _, err := NewClassifier(gen, StepOptions{}).Classify(context.Background(), text); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := strings.Count(gen.prompts[0], "é"); n != classifierInputLimit {
		t.Fatalf("expected %d runes of input in prompt, got %d", classifierInputLimit, n)
	}
}

func TestClassifierEmptyTextSkipsModel(t *testing.T) {
	gen := &scriptedGenerator{classify: "prescription"}
	got, _, err := NewClassifier(gen, StepOptions{}).Classify(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DocumentType != domain.DocumentTypeUnknown || got.ConfidenceScore != 0 {
		t.Fatalf("expected unknown/0, got %+v", got)
	}
	if gen.calls() != 0 {
		t.Fatalf("expected no model call, got %d", gen.calls())
	}
}
