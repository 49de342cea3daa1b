package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
	"github.com/kirillkom/medscript-analyzer/internal/core/ports"
)

// StageObserver receives one event per finished stage.
type StageObserver interface {
	ObserveStage(stage string, duration time.Duration, fallback bool)
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, time.Duration, bool) {}

type OrchestratorOptions struct {
	StepTimeout time.Duration
	Rules       SafetyRules
	Observer    StageObserver
	Logger      *slog.Logger
}

// Orchestrator runs the analysis stages in a fixed order and assembles the
// result envelope.
type Orchestrator struct {
	classifier *Classifier
	extractor  *EntityExtractor
	knowledge  *KnowledgeRetriever
	reasoner   *Reasoner
	safety     *SafetyAssessor
	observer   StageObserver
	logger     *slog.Logger
}

var _ ports.DocumentAnalyzer = (*Orchestrator)(nil)

func NewOrchestrator(generator ports.Generator, opts OrchestratorOptions) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	rules := opts.Rules
	if rules.PolypharmacyThreshold == 0 {
		rules = DefaultSafetyRules()
	}
	stepOpts := StepOptions{Timeout: opts.StepTimeout, Logger: logger}

	return &Orchestrator{
		classifier: NewClassifier(generator, stepOpts),
		extractor:  NewEntityExtractor(generator, stepOpts),
		knowledge:  NewKnowledgeRetriever(),
		reasoner:   NewReasoner(generator, stepOpts),
		safety:     NewSafetyAssessor(rules),
		observer:   observer,
		logger:     logger,
	}
}

// Analyze returns an error only when the generation backend is unavailable.
// Malformed model output degrades the affected stage to its default.
func (o *Orchestrator) Analyze(ctx context.Context, text string) (domain.AnalysisResult, error) {
	docType, report, err := o.classifier.Classify(ctx, text)
	o.observe(report)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	entities, report, err := o.extractor.Extract(ctx, text, docType.DocumentType)
	o.observe(report)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	start := time.Now()
	knowledge := o.knowledge.Retrieve(entities)
	o.observer.ObserveStage(StageKnowledge, time.Since(start), false)

	reasoning, report, err := o.reasoner.Reason(ctx, ReasoningInput{
		Text:         text,
		DocumentType: docType.DocumentType,
		Entities:     entities,
		Knowledge:    knowledge,
	})
	o.observe(report)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	start = time.Now()
	alerts := o.safety.Assess(entities, knowledge)
	o.observer.ObserveStage(StageSafety, time.Since(start), false)

	return domain.AnalysisResult{
		DocumentType:       docType.DocumentType,
		ConfidenceScore:    docType.ConfidenceScore,
		ExtractedEntities:  entities,
		RetrievedKnowledge: knowledge,
		Summary:            reasoning.Summary,
		KeyFindings:        reasoning.KeyFindings,
		SafetyAssessment:   alerts,
	}, nil
}

func (o *Orchestrator) SafetyRules() SafetyRules {
	return o.safety.Rules()
}

func (o *Orchestrator) observe(report StepReport) {
	o.observer.ObserveStage(report.Stage, report.Duration, report.Fallback)
	if report.Fallback && !report.Skipped {
		o.logger.Debug("analysis_stage_degraded", "stage", report.Stage, "error", report.Err)
	}
}
