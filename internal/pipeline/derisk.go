package pipeline

import (
	"context"
	"fmt"

	"skeptic/internal/artifact"
	"skeptic/internal/gateway"
	"skeptic/internal/logging"
	"skeptic/internal/parse"
)

const keyDeRiskingPlan = "de_risking_plan"

type planItem struct {
	ResearchStrategies []artifact.Strategy `json:"research_strategies"`
	TestStrategies     []artifact.Strategy `json:"test_strategies"`
	ActStrategies      []artifact.Strategy `json:"act_strategies"`
}

// SelectForDerisk returns the question numbers chosen for strategy
// generation: non-placeholder records with score >= minScore, highest first,
// at most maxRisks of them.
func SelectForDerisk(risks []artifact.RiskAssessment, minScore, maxRisks int) []int {
	var picked []int
	for _, r := range artifact.SortByScore(risks) {
		if len(picked) >= maxRisks {
			break
		}
		if r.IsPlaceholder() || r.RiskScore < minScore {
			continue
		}
		picked = append(picked, r.QuestionNumber)
	}
	return picked
}

// Derisk attaches a DeRiskingPlan to every record, in score order.
// Selected records get one model call each; the rest are marked not
// selected. A failed call or parse yields an error plan for that record
// only.
func (p *Pipeline) Derisk(ctx context.Context, risks []artifact.RiskAssessment, in artifact.ExtractedInput, ventureContext string) Outcome[[]artifact.RiskAssessment] {
	timer := logging.StartTimer(logging.CategoryPipeline, "phase 5 derisk")
	defer timer.Stop()

	if len(risks) == 0 {
		return Absent[[]artifact.RiskAssessment]("no risk assessments")
	}

	selected := make(map[int]bool)
	for _, n := range SelectForDerisk(risks, p.opts.DeriskMinScore, p.opts.DeriskMaxRisks) {
		selected[n] = true
	}
	logging.Pipeline("phase 5: %d of %d risks selected (score >= %d, cap %d)",
		len(selected), len(risks), p.opts.DeriskMinScore, p.opts.DeriskMaxRisks)

	out := artifact.SortByScore(risks)
	errs := 0
	for i := range out {
		r := &out[i]
		if !selected[r.QuestionNumber] {
			r.DeRiskingPlan = artifact.NotSelectedPlan()
			continue
		}
		r.DeRiskingPlan = p.planFor(ctx, *r, in, ventureContext)
		if r.DeRiskingPlan.Status == artifact.PlanError {
			errs++
		}
	}

	if errs > 0 {
		return Placeholder(out, fmt.Sprintf("%d of %d selected risks have no strategies", errs, len(selected)))
	}
	return Ok(out)
}

func (p *Pipeline) planFor(ctx context.Context, r artifact.RiskAssessment, in artifact.ExtractedInput, ventureContext string) *artifact.DeRiskingPlan {
	if err := p.throttle.Wait(ctx); err != nil {
		logging.PipelineWarn("phase 5: throttle wait for question %d: %v", r.QuestionNumber, err)
		return artifact.ErrorPlan(artifact.NoResponseNote, "")
	}
	prompt := buildDeriskPrompt(r, ventureContext, in, p.opts.DeriskExcerptLimit)
	content, err := p.call(ctx, gateway.UserPrompt(p.opts.HighReasoningModel, prompt, deriskTemperature, deriskMaxTokens, true))
	if err != nil {
		return artifact.ErrorPlan(artifact.NoResponseNote, "")
	}

	obj, err := parse.JSONObject(content, keyDeRiskingPlan)
	if err != nil {
		logging.PipelineWarn("phase 5: question %d: %v", r.QuestionNumber, err)
		return artifact.ErrorPlan("Failed to parse strategies from LLM.", content)
	}
	item, err := parse.Decode[planItem](obj, keyDeRiskingPlan)
	if err != nil {
		logging.PipelineWarn("phase 5: question %d: %v", r.QuestionNumber, err)
		return artifact.ErrorPlan("Failed to parse strategies from LLM.", content)
	}

	plan := &artifact.DeRiskingPlan{
		Status:             artifact.PlanGenerated,
		ResearchStrategies: item.ResearchStrategies,
		TestStrategies:     item.TestStrategies,
		ActStrategies:      item.ActStrategies,
	}
	logging.PipelineDebug("phase 5: question %d: %d/%d/%d strategies", r.QuestionNumber,
		len(plan.ResearchStrategies), len(plan.TestStrategies), len(plan.ActStrategies))
	return plan
}
