package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
)

func upperStep(gen *scriptedGenerator) *Step[string, string] {
	return NewStep(StepDefinition[string, string]{
		Name:   "upper",
		Mode:   ModeText,
		Render: func(in string) string { return "You identify the type " + in },
		Parse: func(raw string) (string, error) {
			if raw == "bad" {
				return "", errors.New("bad output")
			}
			return strings.ToUpper(raw), nil
		},
		Fallback: func(string) string { return "default" },
		Skip:     isBlank,
	}, gen, StepOptions{})
}

func TestStepParsesOutput(t *testing.T) {
	gen := &scriptedGenerator{classify: "ok"}
	out, report, err := upperStep(gen).Run(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "OK" {
		t.Fatalf("expected OK, got %q", out)
	}
	if report.Fallback || report.Err != nil {
		t.Fatalf("expected clean report, got %+v", report)
	}
}

func TestStepMalformedOutputFallsBack(t *testing.T) {
	gen := &scriptedGenerator{classify: "bad"}
	out, report, err := upperStep(gen).Run(context.Background(), "text")
	if err != nil {
		t.Fatalf("parse failure must not propagate: %v", err)
	}
	if out != "default" {
		t.Fatalf("expected fallback, got %q", out)
	}
	if !report.Fallback || !domain.IsGenerationParseError(report.Err) {
		t.Fatalf("expected parse error in report, got %+v", report)
	}
}

func TestStepSkipDoesNotCallGenerator(t *testing.T) {
	gen := &scriptedGenerator{classify: "ok"}
	out, report, err := upperStep(gen).Run(context.Background(), "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "default" || !report.Skipped {
		t.Fatalf("expected skipped fallback, got %q %+v", out, report)
	}
	if gen.calls() != 0 {
		t.Fatalf("expected no generator calls, got %d", gen.calls())
	}
}

func TestStepTemporaryErrorPropagates(t *testing.T) {
	gen := &scriptedGenerator{err: domain.WrapError(domain.ErrTemporary, "generate", errors.New("connection refused"))}
	_, _, err := upperStep(gen).Run(context.Background(), "text")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestStepRequestErrorDegrades(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("model rejected prompt")}
	out, report, err := upperStep(gen).Run(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "default" || !report.Fallback || report.Err == nil {
		t.Fatalf("expected degraded output, got %q %+v", out, report)
	}
}

func TestStepEmptyResponseDegrades(t *testing.T) {
	gen := &scriptedGenerator{classify: "  "}
	out, report, err := upperStep(gen).Run(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "default" || !report.Fallback {
		t.Fatalf("expected fallback on empty response, got %q %+v", out, report)
	}
}

func TestStepTimeoutIsTemporary(t *testing.T) {
	step := NewStep(StepDefinition[string, string]{
		Name:     "slow",
		Render:   func(in string) string { return in },
		Parse:    func(raw string) (string, error) { return raw, nil },
		Fallback: func(string) string { return "" },
	}, blockingGenerator{}, StepOptions{Timeout: 10 * time.Millisecond})

	_, _, err := step.Run(context.Background(), "text")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error on step timeout, got %v", err)
	}
}
