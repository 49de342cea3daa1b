package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
	"github.com/kirillkom/medscript-analyzer/internal/core/ports"
)

type GenerationMode int

const (
	ModeText GenerationMode = iota
	ModeJSON
)

// StepDefinition describes one prompted stage: how to render its prompt, how to
// parse the model answer and what to return when the answer is unusable.
type StepDefinition[In, Out any] struct {
	Name     string
	Mode     GenerationMode
	Render   func(In) string
	Parse    func(raw string) (Out, error)
	Fallback func(In) Out
	// Skip returns true when the stage must answer with Fallback without calling
	// the model, e.g. for empty text.
	Skip func(In) bool
}

// StepReport describes how a single stage run ended.
type StepReport struct {
	Stage    string
	Duration time.Duration
	Skipped  bool
	Fallback bool
	Err      error
}

type StepOptions struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Step runs a StepDefinition against a generator.
type Step[In, Out any] struct {
	def       StepDefinition[In, Out]
	generator ports.Generator
	timeout   time.Duration
	logger    *slog.Logger
}

func NewStep[In, Out any](def StepDefinition[In, Out], generator ports.Generator, opts StepOptions) *Step[In, Out] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Step[In, Out]{
		def:       def,
		generator: generator,
		timeout:   opts.Timeout,
		logger:    logger,
	}
}

// Run renders, generates and parses. Malformed output yields the fallback and a
// *domain.GenerationParseError in the report. Only temporary generation failures
// are returned as errors.
func (s *Step[In, Out]) Run(ctx context.Context, in In) (Out, StepReport, error) {
	start := time.Now()
	report := StepReport{Stage: s.def.Name}

	if s.def.Skip != nil && s.def.Skip(in) {
		report.Skipped = true
		report.Fallback = true
		report.Duration = time.Since(start)
		return s.def.Fallback(in), report, nil
	}

	raw, err := s.generate(ctx, s.def.Render(in))
	report.Duration = time.Since(start)
	if err != nil {
		if isInfrastructureError(ctx, err) {
			var zero Out
			report.Err = err
			return zero, report, fmt.Errorf("%s stage: %w", s.def.Name, err)
		}
		s.logger.Warn("generation_failed_fallback", "stage", s.def.Name, "error", err)
		report.Fallback = true
		report.Err = err
		return s.def.Fallback(in), report, nil
	}

	out, err := s.def.Parse(raw)
	if err != nil {
		parseErr := domain.NewGenerationParseError(s.def.Name, raw, err)
		s.logger.Warn("generation_parse_fallback",
			"stage", s.def.Name,
			"error", err,
			"raw_preview", truncateRunes(raw, 200),
		)
		report.Fallback = true
		report.Err = parseErr
		return s.def.Fallback(in), report, nil
	}
	return out, report, nil
}

func (s *Step[In, Out]) generate(ctx context.Context, prompt string) (string, error) {
	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var (
		raw string
		err error
	)
	switch s.def.Mode {
	case ModeJSON:
		raw, err = s.generator.GenerateJSON(callCtx, prompt)
	default:
		raw, err = s.generator.Generate(callCtx, prompt)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", domain.WrapError(domain.ErrTemporary, s.def.Name+" generation timeout", err)
		}
		return "", err
	}
	if strings.TrimSpace(raw) == "" {
		return "", errEmptyGeneration
	}
	return raw, nil
}

var errEmptyGeneration = errors.New("empty generation response")

// isInfrastructureError separates unreachable-backend failures, which abort the
// job, from request-level failures a stage can absorb.
func isInfrastructureError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return domain.IsKind(err, domain.ErrTemporary)
}
