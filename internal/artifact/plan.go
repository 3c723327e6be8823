package artifact

// PlanStatus tags a DeRiskingPlan.
type PlanStatus string

const (
	PlanGenerated   PlanStatus = "generated"
	PlanNotSelected PlanStatus = "not_selected"
	PlanError       PlanStatus = "error"
)

// NotSelectedNote is attached to risks below the de-risking cut.
const NotSelectedNote = "Not high priority for strategy generation"

// NoResponseNote is recorded when the gateway returned no usable response.
const NoResponseNote = "No LLM response for strategies."

// Strategy is one research, test, or act action.
type Strategy struct {
	ActionTitle         string `json:"action_title"`
	Description         string `json:"description"`
	MitigationEffect    string `json:"mitigation_effect"`
	EffortLevel         string `json:"effort_level"`
	PotentialChallenges string `json:"potential_challenges,omitempty"`
}

// DeRiskingPlan is attached to every Phase 5 record. Only plans with
// status generated carry strategies.
type DeRiskingPlan struct {
	Status             PlanStatus `json:"status"`
	Note               string     `json:"note,omitempty"`
	Error              string     `json:"error,omitempty"`
	RawResponseSnippet string     `json:"raw_response_snippet,omitempty"`
	ResearchStrategies []Strategy `json:"research_strategies,omitempty"`
	TestStrategies     []Strategy `json:"test_strategies,omitempty"`
	ActStrategies      []Strategy `json:"act_strategies,omitempty"`
}

// NotSelectedPlan marks a risk that was not chosen for strategy generation.
func NotSelectedPlan() *DeRiskingPlan {
	return &DeRiskingPlan{Status: PlanNotSelected, Note: NotSelectedNote}
}

// ErrorPlan records why strategies could not be produced for a selected risk.
func ErrorPlan(reason, raw string) *DeRiskingPlan {
	return &DeRiskingPlan{Status: PlanError, Error: reason, RawResponseSnippet: Snippet(raw, 200)}
}

// HasStrategies reports whether any strategy list is non-empty.
func (p *DeRiskingPlan) HasStrategies() bool {
	return p != nil && (len(p.ResearchStrategies) > 0 || len(p.TestStrategies) > 0 || len(p.ActStrategies) > 0)
}

// Snippet returns at most n runes of s.
func Snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
