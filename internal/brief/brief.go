// Package brief joins the phase artifacts into one readable report.
package brief

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"skeptic/internal/artifact"
	"skeptic/internal/logging"
)

// Item is one consolidated question with whatever later phases attached.
type Item struct {
	Number    int
	Question  string
	Reasoning string
	// Risk is the de-risked record when Phase 5 ran, else the Phase 4
	// record, else nil.
	Risk *artifact.RiskAssessment
}

// Brief is the assembled report.
type Brief struct {
	AnalysisDate time.Time
	Context      string
	Items        []Item
	Stats        *artifact.SummaryStats
	Reflection   *artifact.StrategicReflection
}

// Sources are the artifacts a Brief can be built from. Any may be empty.
type Sources struct {
	Input        *artifact.ExtractedInput
	Consolidated []artifact.ConsolidatedQuestion
	Risks        []artifact.RiskAssessment
	Derisked     []artifact.RiskAssessment
	Reflection   *artifact.StrategicReflection
}

// Assemble joins the artifacts by question number and sorts the items by
// number. Risk records without a matching consolidated question still get
// an item so nothing is dropped.
func Assemble(src Sources, now time.Time) Brief {
	b := Brief{AnalysisDate: now, Reflection: src.Reflection}
	if src.Input != nil {
		b.Context = src.Input.Context
	}

	byNum := make(map[int]*Item)
	item := func(n int) *Item {
		if it, ok := byNum[n]; ok {
			return it
		}
		it := &Item{Number: n}
		byNum[n] = it
		return it
	}

	for _, q := range src.Consolidated {
		it := item(q.QuestionNumber)
		it.Question = q.QuestionText
		it.Reasoning = q.Reasoning
	}
	for _, r := range src.Risks {
		it := item(r.QuestionNumber)
		it.Risk = &r
		if it.Question == "" {
			it.Question = r.QuestionText
		}
	}
	for _, r := range src.Derisked {
		it := item(r.QuestionNumber)
		it.Risk = &r
		if it.Question == "" {
			it.Question = r.QuestionText
		}
	}

	for _, it := range byNum {
		b.Items = append(b.Items, *it)
	}
	sort.Slice(b.Items, func(i, j int) bool { return b.Items[i].Number < b.Items[j].Number })

	switch {
	case len(src.Derisked) > 0:
		s := artifact.Summarize(src.Derisked)
		b.Stats = &s
	case len(src.Risks) > 0:
		s := artifact.Summarize(src.Risks)
		b.Stats = &s
	}
	logging.Brief("assembled brief with %d items", len(b.Items))
	return b
}

// Markdown renders the brief as GitHub-flavoured markdown.
func Markdown(b Brief) string {
	var sb strings.Builder
	sb.WriteString("# Market Risk Brief\n\n")
	fmt.Fprintf(&sb, "_Analysis date: %s_\n\n", b.AnalysisDate.Format("2006-01-02"))
	if b.Context != "" {
		fmt.Fprintf(&sb, "**Context:** %s\n\n", b.Context)
	}

	if b.Stats != nil {
		sb.WriteString("## Summary\n\n")
		sb.WriteString("| Tier | Count |\n|---|---|\n")
		fmt.Fprintf(&sb, "| High | %d |\n| Medium | %d |\n| Low | %d |\n| Total | %d |\n\n",
			b.Stats.HighRisks, b.Stats.MediumRisks, b.Stats.LowRisks, b.Stats.TotalRisksAssessed)
	}

	if len(b.Items) > 0 {
		sb.WriteString("## Critical Questions\n\n")
	}
	for _, it := range b.Items {
		fmt.Fprintf(&sb, "### %d. %s\n\n", it.Number, it.Question)
		if it.Reasoning != "" {
			fmt.Fprintf(&sb, "%s\n\n", it.Reasoning)
		}
		if it.Risk != nil {
			writeRisk(&sb, *it.Risk)
		}
	}

	if r := b.Reflection; r != nil {
		sb.WriteString("## Strategic Reflection\n\n")
		writeList(&sb, "I Like", r.ILike)
		writeList(&sb, "I Wish", r.IWish)
		writeList(&sb, "I Wonder", r.IWonder)
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func writeRisk(sb *strings.Builder, r artifact.RiskAssessment) {
	if r.IsPlaceholder() {
		fmt.Fprintf(sb, "**Risk:** %s %s\n\n", r.RiskCategory, r.Justification)
		return
	}
	fmt.Fprintf(sb, "**Risk:** %s (probability %d, impact %d, score %d, %s)\n\n",
		r.RiskCategory, r.Probability, r.Impact, r.RiskScore, r.RiskTier)
	if r.Justification != "" {
		fmt.Fprintf(sb, "%s\n\n", r.Justification)
	}
	for _, f := range r.QualityFlags {
		fmt.Fprintf(sb, "> quality: %s\n\n", f)
	}

	p := r.DeRiskingPlan
	if p == nil {
		return
	}
	switch p.Status {
	case artifact.PlanNotSelected:
		fmt.Fprintf(sb, "_%s._\n\n", p.Note)
	case artifact.PlanError:
		fmt.Fprintf(sb, "_De-risking failed: %s_\n\n", p.Error)
	case artifact.PlanGenerated:
		writeStrategies(sb, "Research", p.ResearchStrategies)
		writeStrategies(sb, "Test", p.TestStrategies)
		writeStrategies(sb, "Act", p.ActStrategies)
	}
}

func writeStrategies(sb *strings.Builder, title string, ss []artifact.Strategy) {
	if len(ss) == 0 {
		return
	}
	fmt.Fprintf(sb, "#### %s\n\n", title)
	for _, s := range ss {
		fmt.Fprintf(sb, "- **%s** (%s): %s", s.ActionTitle, s.EffortLevel, s.Description)
		if s.MitigationEffect != "" {
			fmt.Fprintf(sb, " Mitigation: %s", s.MitigationEffect)
		}
		if s.PotentialChallenges != "" {
			fmt.Fprintf(sb, " Challenges: %s", s.PotentialChallenges)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func writeList(sb *strings.Builder, title string, items []string) {
	fmt.Fprintf(sb, "### %s\n\n", title)
	if len(items) == 0 {
		sb.WriteString("_None._\n\n")
		return
	}
	for _, s := range items {
		fmt.Fprintf(sb, "- %s\n", s)
	}
	sb.WriteString("\n")
}
