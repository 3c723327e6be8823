package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"skeptic/internal/artifact"
	"skeptic/internal/gateway"
	"skeptic/internal/logging"
	"skeptic/internal/parse"
)

// GenerateQuestions fans the PMS prompt out to every configured model.
//
// Each model contributes exactly artifact.QuestionsPerModel entries. A model
// whose call fails is filled with its failure sentinel and does not affect
// the others. The outcome is Placeholder when any model failed and Absent
// only when no models are configured.
func (p *Pipeline) GenerateQuestions(ctx context.Context, in artifact.ExtractedInput) Outcome[artifact.RawQuestionSet] {
	return p.generate(ctx, in, p.opts.Models)
}

// GenerateForModel re-runs generation for a single model and returns its
// entries. The boolean is false when the model's call failed.
func (p *Pipeline) GenerateForModel(ctx context.Context, in artifact.ExtractedInput, model string) ([]string, bool) {
	prompt := buildPMSPrompt(in, p.opts)
	return p.generateOne(ctx, prompt, model)
}

func (p *Pipeline) generate(ctx context.Context, in artifact.ExtractedInput, models []string) Outcome[artifact.RawQuestionSet] {
	if len(models) == 0 {
		return Absent[artifact.RawQuestionSet]("no generation models configured")
	}
	timer := logging.StartTimer(logging.CategoryPipeline, "phase 2 generate")
	defer timer.StopWithInfo()

	prompt := buildPMSPrompt(in, p.opts)
	set := make(artifact.RawQuestionSet, len(models))
	var (
		mu     sync.Mutex
		failed []string
	)
	record := func(model string, qs []string, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		set[model] = qs
		if !ok {
			failed = append(failed, model)
		}
	}

	if p.opts.Parallel {
		var g errgroup.Group
		if p.opts.MaxParallel > 0 {
			g.SetLimit(p.opts.MaxParallel)
		}
		for _, model := range models {
			g.Go(func() error {
				qs, ok := p.generateOne(ctx, prompt, model)
				record(model, qs, ok)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, model := range models {
			qs, ok := p.generateOne(ctx, prompt, model)
			record(model, qs, ok)
		}
	}

	if len(failed) > 0 {
		// Order follows the configured list, not completion order.
		ordered := make([]string, 0, len(failed))
		for _, m := range models {
			for _, f := range failed {
				if f == m {
					ordered = append(ordered, m)
				}
			}
		}
		reason := fmt.Sprintf("%d of %d models failed: %s", len(ordered), len(models), strings.Join(ordered, ", "))
		logging.PipelineWarn("phase 2: %s", reason)
		return Placeholder(set, reason)
	}
	logging.Pipeline("phase 2: %d models produced questions", len(models))
	return Ok(set)
}

func (p *Pipeline) generateOne(ctx context.Context, prompt, model string) ([]string, bool) {
	if err := p.throttle.Wait(ctx); err != nil {
		logging.PipelineWarn("phase 2: throttle wait for %s: %v", model, err)
		return parse.Filled(model, artifact.QuestionsPerModel), false
	}
	logging.PipelineDebug("phase 2: calling %s", model)
	content, err := p.call(ctx, gateway.UserPrompt(model, prompt, generateTemperature, generateMaxTokens, false))
	if err != nil {
		return parse.Filled(model, artifact.QuestionsPerModel), false
	}
	return parse.Lines(content, artifact.QuestionsPerModel), true
}
