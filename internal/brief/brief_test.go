package brief

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skeptic/internal/artifact"
)

func sources() Sources {
	in := artifact.ExtractedInput{Context: "Grid storage startup"}
	qs := []artifact.ConsolidatedQuestion{
		{QuestionNumber: 2, QuestionText: "Who buys?", Reasoning: "Demand."},
		{QuestionNumber: 1, QuestionText: "How big?", Reasoning: "Size."},
	}
	risks := []artifact.RiskAssessment{
		{QuestionNumber: 1, RiskCategory: "Market Size", Probability: 4, Impact: 5, RiskScore: 20, RiskTier: artifact.TierHigh, Justification: "Thin TAM."},
		{QuestionNumber: 2, RiskCategory: "Adoption", Probability: 1, Impact: 2, RiskScore: 2, RiskTier: artifact.TierLow},
	}
	derisked := []artifact.RiskAssessment{risks[0], risks[1]}
	derisked[0].DeRiskingPlan = &artifact.DeRiskingPlan{
		Status:             artifact.PlanGenerated,
		ResearchStrategies: []artifact.Strategy{{ActionTitle: "Interview utilities", Description: "Talk to 20.", EffortLevel: "Low"}},
	}
	derisked[1].DeRiskingPlan = artifact.NotSelectedPlan()
	return Sources{
		Input:        &in,
		Consolidated: qs,
		Risks:        risks,
		Derisked:     derisked,
		Reflection:   &artifact.StrategicReflection{ILike: []string{"Strong pilots?"}},
	}
}

func TestAssembleJoinsByNumber(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	b := Assemble(sources(), now)

	require.Len(t, b.Items, 2)
	assert.Equal(t, 1, b.Items[0].Number)
	assert.Equal(t, "How big?", b.Items[0].Question)
	require.NotNil(t, b.Items[0].Risk)
	require.NotNil(t, b.Items[0].Risk.DeRiskingPlan)
	assert.Equal(t, artifact.PlanGenerated, b.Items[0].Risk.DeRiskingPlan.Status)
	assert.Equal(t, "Grid storage startup", b.Context)
	require.NotNil(t, b.Stats)
	assert.Equal(t, 1, b.Stats.HighRisks)
	assert.Equal(t, now, b.AnalysisDate)
}

func TestAssemblePartial(t *testing.T) {
	src := Sources{Risks: []artifact.RiskAssessment{{QuestionNumber: 3, QuestionText: "Orphan?"}}}
	b := Assemble(src, time.Now())
	require.Len(t, b.Items, 1)
	assert.Equal(t, "Orphan?", b.Items[0].Question)
	assert.Nil(t, b.Reflection)

	empty := Assemble(Sources{}, time.Now())
	assert.Empty(t, empty.Items)
	assert.Nil(t, empty.Stats)
}

func TestMarkdown(t *testing.T) {
	md := Markdown(Assemble(sources(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))

	assert.Contains(t, md, "_Analysis date: 2026-03-01_")
	assert.Contains(t, md, "### 1. How big?")
	assert.Contains(t, md, "(probability 4, impact 5, score 20, High)")
	assert.Contains(t, md, "- **Interview utilities** (Low): Talk to 20.")
	assert.Contains(t, md, artifact.NotSelectedNote)
	assert.Contains(t, md, "### I Wonder\n\n_None._")
	assert.Less(t, strings.Index(md, "### 1."), strings.Index(md, "### 2."))
}

func TestMarkdownPlaceholderRisk(t *testing.T) {
	src := Sources{Risks: []artifact.RiskAssessment{artifact.RiskPlaceholder(1, "Q?")}}
	md := Markdown(Assemble(src, time.Now()))
	assert.Contains(t, md, artifact.RiskPlaceholderCategory)
	assert.NotContains(t, md, "probability 0")
}

func TestRender(t *testing.T) {
	out, err := Render("# Title\n\nbody text\n", "notty", 60)
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "body text")
}
