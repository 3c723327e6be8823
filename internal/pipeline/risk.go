package pipeline

import (
	"context"
	"fmt"
	"strings"

	"skeptic/internal/artifact"
	"skeptic/internal/gateway"
	"skeptic/internal/logging"
	"skeptic/internal/parse"
)

const keyRiskAssessments = "risk_assessments"

// riskItem is the wire shape of one assessment. Numbers go through
// artifact.Rating so "4" and 4.0 decode the same as 4.
type riskItem struct {
	QuestionNumber artifact.Rating `json:"question_number"`
	QuestionText   string          `json:"question_text"`
	RiskCategory   string          `json:"risk_category"`
	Probability    artifact.Rating `json:"probability"`
	Impact         artifact.Rating `json:"impact"`
	RiskScore      artifact.Rating `json:"risk_score"`
	RiskTier       string          `json:"risk_tier"`
	Justification  string          `json:"justification"`
}

// AssessRisk scores the consolidated questions in one batched call.
//
// The parsed result is all-or-nothing: unless it holds exactly one record
// for each question number 1..N, every record is replaced by a uniform
// placeholder. Accepted records have score and tier recomputed.
func (p *Pipeline) AssessRisk(ctx context.Context, qs []artifact.ConsolidatedQuestion, in artifact.ExtractedInput) Outcome[artifact.RiskBundle] {
	timer := logging.StartTimer(logging.CategoryPipeline, "phase 4 risk")
	defer timer.Stop()

	if len(qs) == 0 {
		return Absent[artifact.RiskBundle]("no consolidated questions")
	}

	if allConsolidationPlaceholders(qs) {
		logging.PipelineWarn("phase 4: every consolidated question is a placeholder, skipping model call")
		return Placeholder(artifact.NewRiskBundle(riskPlaceholders(qs)), "no genuine questions to assess")
	}

	prompt := buildRiskPrompt(qs, in.Context)
	content, err := p.call(ctx, gateway.UserPrompt(p.opts.HighReasoningModel, prompt, riskTemperature, riskMaxTokens, true))
	if err != nil {
		return Placeholder(artifact.NewRiskBundle(riskPlaceholders(qs)), err.Error())
	}

	obj, err := parse.JSONObject(content, keyRiskAssessments)
	if err != nil {
		return Placeholder(artifact.NewRiskBundle(riskPlaceholders(qs)), err.Error())
	}
	items, err := parse.Decode[[]riskItem](obj, keyRiskAssessments)
	if err != nil {
		return Placeholder(artifact.NewRiskBundle(riskPlaceholders(qs)), err.Error())
	}
	if err := checkRiskNumbers(items, len(qs)); err != nil {
		logging.PipelineWarn("phase 4: discarding parsed assessments: %v", err)
		return Placeholder(artifact.NewRiskBundle(riskPlaceholders(qs)), err.Error())
	}

	texts := make(map[int]string, len(qs))
	for _, q := range qs {
		texts[q.QuestionNumber] = q.QuestionText
	}
	risks := make([]artifact.RiskAssessment, 0, len(items))
	flagged := 0
	for _, it := range items {
		r := artifact.RiskAssessment{
			QuestionNumber: int(it.QuestionNumber),
			QuestionText:   it.QuestionText,
			RiskCategory:   it.RiskCategory,
			Probability:    it.Probability,
			Impact:         it.Impact,
			RiskScore:      int(it.RiskScore),
			RiskTier:       artifact.Tier(it.RiskTier),
			Justification:  it.Justification,
		}
		if strings.TrimSpace(r.QuestionText) == "" {
			r.QuestionText = texts[r.QuestionNumber]
		}
		r.Normalize()
		if len(r.QualityFlags) > 0 {
			flagged++
			logging.PipelineWarn("phase 4: question %d flagged: %s", r.QuestionNumber, strings.Join(r.QualityFlags, "; "))
		}
		risks = append(risks, r)
	}

	bundle := artifact.NewRiskBundle(risks)
	logging.Pipeline("phase 4: high=%d medium=%d low=%d flagged=%d",
		bundle.SummaryStats.HighRisks, bundle.SummaryStats.MediumRisks, bundle.SummaryStats.LowRisks, flagged)
	return Ok(bundle)
}

// checkRiskNumbers requires exactly one record per number 1..n.
func checkRiskNumbers(items []riskItem, n int) error {
	if len(items) != n {
		return fmt.Errorf("model returned %d assessments, want %d", len(items), n)
	}
	seen := make(map[int]bool, n)
	for _, it := range items {
		num := int(it.QuestionNumber)
		if num < 1 || num > n {
			return fmt.Errorf("question_number %d outside 1-%d", num, n)
		}
		if seen[num] {
			return fmt.Errorf("question_number %d repeated", num)
		}
		seen[num] = true
	}
	return nil
}

func riskPlaceholders(qs []artifact.ConsolidatedQuestion) []artifact.RiskAssessment {
	out := make([]artifact.RiskAssessment, len(qs))
	for i, q := range qs {
		out[i] = artifact.RiskPlaceholder(q.QuestionNumber, q.QuestionText)
	}
	return out
}

func allConsolidationPlaceholders(qs []artifact.ConsolidatedQuestion) bool {
	for _, q := range qs {
		if !q.IsPlaceholder() {
			return false
		}
	}
	return true
}
