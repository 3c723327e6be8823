package artifact

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Tier is the risk tier derived from a risk score.
type Tier string

const (
	TierHigh   Tier = "High"   // 15-25
	TierMedium Tier = "Medium" // 8-14
	TierLow    Tier = "Low"    // 1-7
	TierError  Tier = "Error"  // placeholder records, score 0
)

// Tier thresholds on the product scale.
const (
	HighTierMin   = 15
	MediumTierMin = 8
	MaxScore      = 25
)

// TierFor maps a score to its tier. Scores below 1 belong to placeholders.
func TierFor(score int) Tier {
	switch {
	case score >= HighTierMin:
		return TierHigh
	case score >= MediumTierMin:
		return TierMedium
	case score >= 1:
		return TierLow
	default:
		return TierError
	}
}

// Rating is a 1..5 score as emitted by a model. It decodes JSON integers,
// integral floats, and numeric strings. Out-of-range values are kept.
type Rating int

// UnmarshalJSON implements json.Unmarshaler.
func (r *Rating) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*r = 0
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("rating %s is not a number", string(data))
	}
	if f != math.Trunc(f) {
		return fmt.Errorf("rating %s is not an integer", string(data))
	}
	*r = Rating(int(f))
	return nil
}

// RiskAssessment is one Phase 4 record, optionally carrying a Phase 5 plan.
type RiskAssessment struct {
	QuestionNumber int            `json:"question_number"`
	QuestionText   string         `json:"question_text"`
	RiskCategory   string         `json:"risk_category"`
	Probability    Rating         `json:"probability"`
	Impact         Rating         `json:"impact"`
	RiskScore      int            `json:"risk_score"`
	RiskTier       Tier           `json:"risk_tier"`
	Justification  string         `json:"justification"`
	QualityFlags   []string       `json:"quality_flags,omitempty"`
	DeRiskingPlan  *DeRiskingPlan `json:"de_risking_plan,omitempty"`
}

// Placeholder text for risk records that could not be assessed.
const (
	RiskPlaceholderCategory      = "[Assessment Error]"
	RiskPlaceholderJustification = "Failed to get or parse assessment from LLM."
)

// RiskPlaceholder builds the uniform stand-in for question n.
func RiskPlaceholder(n int, questionText string) RiskAssessment {
	return RiskAssessment{
		QuestionNumber: n,
		QuestionText:   questionText,
		RiskCategory:   RiskPlaceholderCategory,
		RiskTier:       TierError,
		Justification:  RiskPlaceholderJustification,
	}
}

// IsPlaceholder reports whether the record was produced by RiskPlaceholder.
func (r RiskAssessment) IsPlaceholder() bool {
	return r.RiskCategory == RiskPlaceholderCategory
}

// Normalize recomputes the derived fields from probability and impact.
// Ratings outside 1..5 are left untouched and flagged; a model-reported
// score or tier that disagrees with the derivation is flagged and replaced.
func (r *RiskAssessment) Normalize() {
	var flags []string
	if r.Probability < 1 || r.Probability > 5 {
		flags = append(flags, fmt.Sprintf("probability %d outside 1-5", r.Probability))
	}
	if r.Impact < 1 || r.Impact > 5 {
		flags = append(flags, fmt.Sprintf("impact %d outside 1-5", r.Impact))
	}

	score := int(r.Probability) * int(r.Impact)
	if r.RiskScore != 0 && r.RiskScore != score {
		flags = append(flags, fmt.Sprintf("reported risk_score %d recomputed as %d", r.RiskScore, score))
	}
	tier := TierFor(score)
	if r.RiskTier != "" && !strings.EqualFold(string(r.RiskTier), string(tier)) {
		flags = append(flags, fmt.Sprintf("reported risk_tier %q recomputed as %q", r.RiskTier, tier))
	}

	r.RiskScore = score
	r.RiskTier = tier
	r.QualityFlags = append(r.QualityFlags, flags...)
}

// ValidateRisks checks a risk list: one record per consolidated question,
// numbers 1..5 in any order, score equal to probability times impact and
// tier derived from the score.
func ValidateRisks(risks []RiskAssessment) error {
	if len(risks) != ConsolidatedCount {
		return fmt.Errorf("got %d risk records, want %d", len(risks), ConsolidatedCount)
	}
	seen := make(map[int]bool, len(risks))
	for _, r := range risks {
		n := r.QuestionNumber
		if n < 1 || n > ConsolidatedCount || seen[n] {
			return fmt.Errorf("risk question_number %d out of range or repeated", n)
		}
		seen[n] = true
		if score := int(r.Probability) * int(r.Impact); r.RiskScore != score {
			return fmt.Errorf("question %d: risk_score %d, want %d", n, r.RiskScore, score)
		}
		if tier := TierFor(r.RiskScore); r.RiskTier != tier {
			return fmt.Errorf("question %d: risk_tier %q, want %q", n, r.RiskTier, tier)
		}
	}
	return nil
}

// ValidateDerisked checks a de-risking report: a valid risk list in which
// every record carries a plan.
func ValidateDerisked(risks []RiskAssessment) error {
	if err := ValidateRisks(risks); err != nil {
		return err
	}
	for _, r := range risks {
		if r.DeRiskingPlan == nil {
			return fmt.Errorf("question %d has no de_risking_plan", r.QuestionNumber)
		}
	}
	return nil
}

// SummaryStats counts records per tier.
type SummaryStats struct {
	HighRisks          int `json:"high_risks"`
	MediumRisks        int `json:"medium_risks"`
	LowRisks           int `json:"low_risks"`
	TotalRisksAssessed int `json:"total_risks_assessed"`
}

// Summarize computes SummaryStats. Placeholders count toward the total only.
func Summarize(risks []RiskAssessment) SummaryStats {
	s := SummaryStats{TotalRisksAssessed: len(risks)}
	for _, r := range risks {
		switch r.RiskTier {
		case TierHigh:
			s.HighRisks++
		case TierMedium:
			s.MediumRisks++
		case TierLow:
			s.LowRisks++
		}
	}
	return s
}

// RiskBundle is the in-memory Phase 4 result. Only Risks is persisted.
type RiskBundle struct {
	Risks        []RiskAssessment `json:"risks"`
	SummaryStats SummaryStats     `json:"summary_stats"`
}

// NewRiskBundle sorts a copy of risks by score and attaches stats.
func NewRiskBundle(risks []RiskAssessment) RiskBundle {
	sorted := SortByScore(risks)
	return RiskBundle{Risks: sorted, SummaryStats: Summarize(sorted)}
}

// SortByScore returns a copy ordered by risk_score descending, ties by
// question_number ascending.
func SortByScore(risks []RiskAssessment) []RiskAssessment {
	out := append([]RiskAssessment(nil), risks...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		return out[i].QuestionNumber < out[j].QuestionNumber
	})
	return out
}

// MarshalJSON keeps Rating as a plain JSON integer.
func (r Rating) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(r))
}
