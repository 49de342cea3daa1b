package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"
)

// scriptedGenerator answers by the first prompt marker it recognizes.
type scriptedGenerator struct {
	mu        sync.Mutex
	classify  string
	entities  string
	reasoning string
	err       error
	prompts   []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return g.answer(prompt)
}

func (g *scriptedGenerator) GenerateJSON(_ context.Context, prompt string) (string, error) {
	return g.answer(prompt)
}

func (g *scriptedGenerator) answer(prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	switch {
	case strings.HasPrefix(prompt, "You identify the type"):
		return g.classify, nil
	case strings.HasPrefix(prompt, "You extract medical entities"):
		return g.entities, nil
	case strings.HasPrefix(prompt, "You summarize"):
		return g.reasoning, nil
	default:
		return "", nil
	}
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (g blockingGenerator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return g.Generate(ctx, prompt)
}

type stageEvent struct {
	stage    string
	fallback bool
}

type recordingObserver struct {
	events []stageEvent
}

func (o *recordingObserver) ObserveStage(stage string, _ time.Duration, fallback bool) {
	o.events = append(o.events, stageEvent{stage: stage, fallback: fallback})
}
