package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"skeptic/internal/artifact"
	"skeptic/internal/gateway"
	"skeptic/internal/logging"
	"skeptic/internal/parse"
)

const keyFinalQuestions = "final_questions"

// Consolidate asks the high-reasoning model to reduce the raw questions to
// exactly artifact.ConsolidatedCount records numbered 1..N by position.
// Every failure path yields labelled placeholders rather than no artifact.
func (p *Pipeline) Consolidate(ctx context.Context, set artifact.RawQuestionSet, in artifact.ExtractedInput) Outcome[[]artifact.ConsolidatedQuestion] {
	timer := logging.StartTimer(logging.CategoryPipeline, "phase 3 consolidate")
	defer timer.Stop()

	questions := p.flatten(set)
	if len(questions) == 0 {
		logging.PipelineWarn("phase 3: no usable questions, skipping model call")
		return Placeholder(consolidationPlaceholders("No usable questions"), "no usable questions after filtering sentinels")
	}
	logging.Pipeline("phase 3: consolidating %d questions with %s", len(questions), p.opts.HighReasoningModel)

	prompt := buildConsolidationPrompt(questions, in.Context)
	content, err := p.call(ctx, gateway.UserPrompt(p.opts.HighReasoningModel, prompt, consolidateTemperature, consolidateMaxTokens, true))
	if err != nil {
		return Placeholder(consolidationPlaceholders("No LLM response"), err.Error())
	}

	obj, err := parse.JSONObject(content, keyFinalQuestions)
	if err != nil {
		return Placeholder(consolidationPlaceholders("Failed to parse"), err.Error())
	}
	parsed, err := parse.Decode[[]consolidatedItem](obj, keyFinalQuestions)
	if err != nil {
		return Placeholder(consolidationPlaceholders("Failed to parse"), err.Error())
	}

	out, filled := normalizeConsolidated(parsed)
	if filled > 0 {
		reason := fmt.Sprintf("%d of %d questions are placeholders (model returned %d)", filled, artifact.ConsolidatedCount, len(parsed))
		logging.PipelineWarn("phase 3: %s", reason)
		return Placeholder(out, reason)
	}
	return Ok(out)
}

// flatten lists usable questions: configured models first in order, then
// any other keys sorted. Sentinel entries are dropped.
func (p *Pipeline) flatten(set artifact.RawQuestionSet) []string {
	seen := make(map[string]bool, len(set))
	var order []string
	for _, m := range p.opts.Models {
		if _, ok := set[m]; ok && !seen[m] {
			seen[m] = true
			order = append(order, m)
		}
	}
	var extra []string
	for m := range set {
		if !seen[m] {
			extra = append(extra, m)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	var out []string
	for _, m := range order {
		for _, q := range set[m] {
			q = strings.TrimSpace(q)
			if q == "" || parse.IsSentinel(q) {
				continue
			}
			out = append(out, q)
		}
	}
	return out
}

// consolidatedItem is the wire shape of one final question. The model's own
// question_number is ignored since records are renumbered by position.
type consolidatedItem struct {
	QuestionText string `json:"question_text"`
	Reasoning    string `json:"reasoning"`
}

// normalizeConsolidated truncates, pads and renumbers parsed records. It
// returns the number of placeholder records in the result.
func normalizeConsolidated(parsed []consolidatedItem) ([]artifact.ConsolidatedQuestion, int) {
	if len(parsed) > artifact.ConsolidatedCount {
		parsed = parsed[:artifact.ConsolidatedCount]
	}
	out := make([]artifact.ConsolidatedQuestion, 0, artifact.ConsolidatedCount)
	filled := 0
	for i, q := range parsed {
		n := i + 1
		if strings.TrimSpace(q.QuestionText) == "" {
			out = append(out, artifact.ConsolidationPlaceholder(n, fmt.Sprintf("Empty question %d", n)))
			filled++
			continue
		}
		out = append(out, artifact.ConsolidatedQuestion{QuestionNumber: n, QuestionText: q.QuestionText, Reasoning: q.Reasoning})
	}
	for n := len(out) + 1; n <= artifact.ConsolidatedCount; n++ {
		out = append(out, artifact.ConsolidationPlaceholder(n, fmt.Sprintf("Missing question %d", n)))
		filled++
	}
	return out, filled
}

func consolidationPlaceholders(reason string) []artifact.ConsolidatedQuestion {
	out := make([]artifact.ConsolidatedQuestion, artifact.ConsolidatedCount)
	for i := range out {
		out[i] = artifact.ConsolidationPlaceholder(i+1, reason)
	}
	return out
}
