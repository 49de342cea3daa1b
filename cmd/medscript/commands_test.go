package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
	"github.com/kirillkom/medscript-analyzer/internal/core/pipeline"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRulesPrintsDefaults(t *testing.T) {
	t.Setenv("SAFETY_RULES_PATH", "")

	out, err := execute(t, "rules")
	if err != nil {
		t.Fatalf("rules error = %v", err)
	}
	rules, err := pipeline.ParseSafetyRules([]byte(out))
	if err != nil {
		t.Fatalf("printed rules do not parse: %v\n%s", err, out)
	}
	if rules.PolypharmacyThreshold != pipeline.DefaultSafetyRules().PolypharmacyThreshold {
		t.Fatalf("unexpected threshold %d", rules.PolypharmacyThreshold)
	}
	if !strings.Contains(out, "metformin") {
		t.Fatalf("expected default interaction in output:\n%s", out)
	}
}

func TestRulesHonorsFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("polypharmacy_threshold: 7\n"), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	out, err := execute(t, "rules", "--rules", path)
	if err != nil {
		t.Fatalf("rules error = %v", err)
	}
	if !strings.Contains(out, "polypharmacy_threshold: 7") {
		t.Fatalf("override not applied:\n%s", out)
	}
}

func TestAnalyzeRejectsUnsupportedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.zip")
	if err := os.WriteFile(path, []byte("PK"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	_, err := execute(t, "analyze", path)
	if !domain.IsKind(err, domain.ErrUnsupportedMediaType) {
		t.Fatalf("expected unsupported media type, got %v", err)
	}
}

func TestAnalyzePrintsEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		answer := "lab results"
		switch {
		case strings.HasPrefix(req.Prompt, "You extract medical entities"):
			answer = `[{"entity_type":"lab_value","entity_value":"Glucose: 220 mg/dL","confidence_score":0.9}]`
		case strings.HasPrefix(req.Prompt, "You summarize"):
			answer = `{"summary":"Elevated glucose.","key_findings":["Glucose 220 mg/dL"]}`
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": answer, "done": true})
	}))
	defer server.Close()

	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("OLLAMA_URL", server.URL)
	t.Setenv("LLM_RETRY_MAX_ATTEMPTS", "1")
	t.Setenv("SAFETY_RULES_PATH", "")

	path := filepath.Join(t.TempDir(), "labs.txt")
	if err := os.WriteFile(path, []byte("Glucose: 220 mg/dL"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	out, err := execute(t, "analyze", path)
	if err != nil {
		t.Fatalf("analyze error = %v", err)
	}
	var result domain.AnalysisResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not an envelope: %v\n%s", err, out)
	}
	if result.DocumentType != "lab results" {
		t.Fatalf("unexpected document type %q", result.DocumentType)
	}
	foundHigh := false
	for _, alert := range result.SafetyAssessment {
		if alert.Severity == domain.SeverityHigh {
			foundHigh = true
		}
	}
	if !foundHigh {
		t.Fatalf("expected high glucose alert, got %+v", result.SafetyAssessment)
	}
}
