// Package artifact defines the records each pipeline phase produces.
//
// Every record is JSON-serializable and written exactly once per phase run.
// Placeholder constructors keep the fixed shape of an artifact when the model
// output cannot be used; every placeholder is textually distinguishable from
// model output.
package artifact

import (
	"fmt"
	"sort"
	"strings"
)

// QuestionsPerModel is the fixed arity of every RawQuestionSet entry.
const QuestionsPerModel = 10

// ConsolidatedCount is the fixed number of consolidated questions.
const ConsolidatedCount = 5

// ExtractedInput is the Phase 1 artifact.
type ExtractedInput struct {
	MarketNarrative  string `json:"market_narrative"`
	Context          string `json:"context"`
	PitchDeckText    string `json:"pitch_deck_text"`
	MarketReportText string `json:"market_report_text"`
}

// RawQuestionSet maps a model identifier to exactly QuestionsPerModel
// questions. Failed generations are kept as sentinel strings.
type RawQuestionSet map[string][]string

// Models returns the model keys in lexical order.
func (r RawQuestionSet) Models() []string {
	models := make([]string, 0, len(r))
	for m := range r {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Validate checks the fixed-arity invariant.
func (r RawQuestionSet) Validate() error {
	for model, qs := range r {
		if len(qs) != QuestionsPerModel {
			return fmt.Errorf("model %s has %d questions, want %d", model, len(qs), QuestionsPerModel)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (r RawQuestionSet) Clone() RawQuestionSet {
	out := make(RawQuestionSet, len(r))
	for m, qs := range r {
		out[m] = append([]string(nil), qs...)
	}
	return out
}

// ConsolidatedQuestion is one of the five Phase 3 records.
type ConsolidatedQuestion struct {
	QuestionNumber int    `json:"question_number"`
	QuestionText   string `json:"question_text"`
	Reasoning      string `json:"reasoning"`
}

// ConsolidationPlaceholder builds the stand-in for question n.
func ConsolidationPlaceholder(n int, reason string) ConsolidatedQuestion {
	return ConsolidatedQuestion{
		QuestionNumber: n,
		QuestionText:   fmt.Sprintf("[Consolidation Error: %s]", reason),
		Reasoning:      "[Error]",
	}
}

// IsPlaceholder reports whether the question was produced by ConsolidationPlaceholder.
func (q ConsolidatedQuestion) IsPlaceholder() bool {
	return strings.HasPrefix(q.QuestionText, "[Consolidation Error:")
}

// ValidateConsolidated checks cardinality and contiguous 1..5 numbering.
func ValidateConsolidated(qs []ConsolidatedQuestion) error {
	if len(qs) != ConsolidatedCount {
		return fmt.Errorf("got %d consolidated questions, want %d", len(qs), ConsolidatedCount)
	}
	for i, q := range qs {
		if q.QuestionNumber != i+1 {
			return fmt.Errorf("question at position %d numbered %d", i+1, q.QuestionNumber)
		}
	}
	return nil
}

// StrategicReflection is the Phase 6 artifact.
type StrategicReflection struct {
	ILike   []string `json:"i_like_reflection"`
	IWish   []string `json:"i_wish_reflection"`
	IWonder []string `json:"i_wonder_reflection"`
}
