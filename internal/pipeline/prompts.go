package pipeline

import (
	"fmt"
	"strings"

	"skeptic/internal/artifact"
)

// clip returns at most n runes of s. n <= 0 disables clipping.
func clip(s string, n int) string {
	if n <= 0 {
		return s
	}
	return artifact.Snippet(s, n)
}

const pmsPromptTemplate = `Given the following documents:
1. Market Chapter: %s
2. Pitch Deck: %s
3. Market Report: %s

And the following context for evaluation:
Context: %s

Please act as a highly intelligent and skeptical investor. Your goal is to identify potential weaknesses and critical risks SPECIFICALLY RELATED TO THE MARKET ASPECTS of this venture.

IMPORTANT: Focus ONLY on market-related questions. DO NOT ask about finances, team, operations, go-to-market strategy, or other non-market aspects.

Your questions should focus on:
- Market size, growth, and trends
- Competition and market positioning
- Market barriers and challenges
- Market adoption of the technology/solution
- Regulatory environment affecting the market
- How the venture specifically plays within this market
- Market-specific risks

Generate exactly %d distinct questions that probe the "Point of Maximum Skepticism" (PMS) for the market aspects of the venture described.
The questions should highlight significant market-related risks or reasons the venture might face major challenges or fail due to market factors.

Output only the %d questions, each on a new line. Do not include preambles, numbering, or any other text. Just the questions.
`

func buildPMSPrompt(in artifact.ExtractedInput, opts Options) string {
	return fmt.Sprintf(pmsPromptTemplate,
		clip(in.MarketNarrative, opts.NarrativeLimit),
		clip(in.PitchDeckText, opts.DocumentLimit),
		clip(in.MarketReportText, opts.DocumentLimit),
		in.Context,
		artifact.QuestionsPerModel, artifact.QuestionsPerModel)
}

const consolidationPromptTemplate = `You are an expert investment analyst. You have been provided with a list of raw questions generated by various AI models about a venture.
Venture Context: %s

Your task is to consolidate these raw questions into the **Top %d most critical and insightful MARKET-FOCUSED intelligence questions**.

Follow these steps:
1.  **Understand Context & Focus:** All questions should strictly pertain to MARKET aspects (e.g., market size, competition, adoption, regulation impacting markets). Ignore questions about team, finance, operations, etc.
2.  **Thematic Grouping:** Identify recurring themes or areas of concern within the provided questions.
3.  **Synthesize & Select:** For each major theme, either craft a new, comprehensive "meta-question" or select the best-phrased, most impactful existing question that represents that theme.
4.  **Prioritize:** From your synthesized/selected questions, determine the %d most critical ones. Prioritize questions that highlight fundamental market-related risks or points of maximum skepticism.
5.  **Provide Reasoning:** For each final question, write a brief (1-2 sentences) justification explaining why this question is critical from a market perspective for this venture.

**Output Format:**
Return your response as a single, valid JSON object.
This JSON object should contain one key: "final_questions".
The value of "final_questions" should be a list of exactly %d JSON objects.
Each object in the list must have the following keys:
- "question_number": (integer) The number of the question (1 through %d).
- "question_text": (string) The text of the final consolidated question.
- "reasoning": (string) Your justification for this question's criticality.

Example JSON structure:
{
  "final_questions": [
    {
      "question_number": 1,
      "question_text": "What is the true addressable market size considering realistic adoption rates and competitive pressures?",
      "reasoning": "This question challenges optimistic TAM projections and forces a realistic assessment of market penetration potential."
    }
  ]
}

Here are the raw questions to analyze:
%s

Ensure your entire output is ONLY the JSON object described.
`

func buildConsolidationPrompt(questions []string, ventureContext string) string {
	var sb strings.Builder
	for i, q := range questions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, q)
	}
	n := artifact.ConsolidatedCount
	return fmt.Sprintf(consolidationPromptTemplate, ventureContext, n, n, n, n, strings.TrimRight(sb.String(), "\n"))
}

const riskPromptTemplate = `You are a senior risk analyst evaluating a venture.
Venture Context: %s

For each of the following %d critical market-focused questions, provide a risk assessment.
Your assessment for each question should include:
1.  **Risk Category:** A concise category for the risk (e.g., "Market Size & Growth Risk", "Competitive Landscape Risk", "Regulatory & Policy Risk", "Technology Adoption Risk", "Strategic Positioning Risk").
2.  **Probability Score (1-5):**
    1: Very Unlikely, 2: Unlikely, 3: Possible, 4: Likely, 5: Near Certainty
3.  **Impact Score (1-5):**
    1: Minimal, 2: Minor, 3: Moderate, 4: Major, 5: Catastrophic (threatens viability)
4.  **Risk Score (Calculated):** Multiply Probability by Impact (Score range 1-25).
5.  **Risk Tier (Calculated):**
    - High: 15-25
    - Medium: 8-14
    - Low: 1-7
6.  **Justification (2-3 sentences):** Explain your probability and impact scores, referencing the venture context and market dynamics.

**Output Format:**
Return your response as a single, valid JSON object.
This JSON object should contain one key: "risk_assessments".
The value of "risk_assessments" should be a list of exactly %d JSON objects, one for each question assessed.
Each object in the list must have the following keys:
- "question_number": (integer) The original number of the question being assessed.
- "question_text": (string) The text of the question being assessed.
- "risk_category": (string) Your assigned risk category.
- "probability": (integer) Your probability score (1-5).
- "impact": (integer) Your impact score (1-5).
- "risk_score": (integer) Calculated as probability * impact.
- "risk_tier": (string) "High", "Medium", or "Low".
- "justification": (string) Your detailed justification.

Here are the questions to assess:
%s

Ensure your entire output is ONLY the JSON object described.
`

func buildRiskPrompt(qs []artifact.ConsolidatedQuestion, ventureContext string) string {
	var sb strings.Builder
	for _, q := range qs {
		fmt.Fprintf(&sb, "Question %d: %s\nReasoning for criticality: %s\n\n", q.QuestionNumber, q.QuestionText, q.Reasoning)
	}
	return fmt.Sprintf(riskPromptTemplate, ventureContext, len(qs), len(qs), strings.TrimRight(sb.String(), "\n"))
}

const deriskPromptTemplate = `You are a strategic advisor tasked with creating de-risking plans.
Venture Context: %s

You are focusing on the following specific market risk:
Risk Details:
- Question Number: %d
- Question Text: "%s"
- Risk Category: %s
- Probability: %d/5
- Impact: %d/5
- Overall Risk Score: %d
- Justification for Risk: %s

Relevant Background Information (Excerpts from company documents):
Market Chapter Excerpt:
---
%s
---
Pitch Deck Excerpt:
---
%s
---
Market Report Excerpt:
---
%s
---

**Your Task:**
For THIS SPECIFIC market risk, propose a de-risking plan. The plan should include strategies categorized under "Research," "Test," and "Act."
For each category, suggest 1-2 specific, actionable strategies.

Each suggested strategy must include:
1.  "action_title": A concise title (e.g., "Conduct Competitor Regulatory Timeline Analysis").
2.  "description": A brief explanation of the action.
3.  "mitigation_effect": How this action helps mitigate the risk (reduce probability or impact).
4.  "effort_level": Qualitative assessment (e.g., "Low", "Medium (Cost & Time)", "High (Strategic Shift)").
5.  "potential_challenges" (optional): Brief note on potential difficulties.

**Output Format:**
Return your response as a single, valid JSON object. This object should represent the de-risking plan for THIS ONE risk.
The JSON object must have a key "de_risking_plan".
The value of "de_risking_plan" should be an object with three keys: "research_strategies", "test_strategies", and "act_strategies".
Each of these three keys should map to a list of strategy objects (as described above).

Focus on practical, market-oriented strategies grounded in the provided context and documents.
Ensure your entire output is ONLY the JSON object described.
`

func buildDeriskPrompt(r artifact.RiskAssessment, ventureContext string, in artifact.ExtractedInput, limit int) string {
	return fmt.Sprintf(deriskPromptTemplate,
		ventureContext,
		r.QuestionNumber, r.QuestionText, r.RiskCategory,
		int(r.Probability), int(r.Impact), r.RiskScore, r.Justification,
		clip(in.MarketNarrative, limit),
		clip(in.PitchDeckText, limit),
		clip(in.MarketReportText, limit))
}

const reflectionPromptTemplate = `You are a seasoned strategic advisor providing a final reflection on a comprehensive market risk analysis for a venture.

**Venture Context:**
%s

**Summary of Analysis Performed:**
The venture's market position has been analyzed based on its market chapter, pitch deck, and a market report. This led to the identification of critical market-focused questions, which were then assessed for risk. De-risking strategies have also been considered for the highest priority risks.

**Key Findings Recap (for your reference):**
*   **Original Document Snippets:**
    *   Market Chapter Snippet: "%s..."
    *   Pitch Deck Snippet: "%s..."
    *   Market Report Snippet: "%s..."
*   **Critical Questions Identified:**
%s
*   **Top Identified Risks (Summary):**
%s
*   **General De-risking Themes Explored:** %s

**Your Task: Strategic Reflection (I Like, I Wish, I Wonder)**
Based on all the preceding analysis, provide a holistic strategic reflection using the "I Like, I Wish, I Wonder" framework. Frame your outputs primarily as insightful questions or actionable wonderings that the venture's leadership should consider. Aim for 2-3 points per category.

*   **I Like (Strengths & Opportunities to Build Upon):** core market-related strengths, unique advantages, or significant opportunities, phrased as questions that prompt further leverage.
*   **I Wish (Strategic Gaps & Desired Shifts):** significant strategic gaps or desired shifts in market approach, phrased as questions that challenge current assumptions.
*   **I Wonder (Pivotal Uncertainties & Future Explorations):** open-ended "what if" questions about pivotal market-related uncertainties that warrant ongoing monitoring.

**Output Format:**
Return your response as a single, valid JSON object.
This JSON object must have three keys: "i_like_reflection", "i_wish_reflection", and "i_wonder_reflection".
Each key should map to a list of strings.

Your entire output must be ONLY the JSON object described.
`

// Theme phrases used in the reflection digest, in fixed order.
const (
	themeResearch = "further market research and validation"
	themeTest     = "pilot programs and hypothesis testing"
	themeAct      = "strategic partnerships and policy engagement"
)

// deriskDigest summarizes which strategy categories Phase 5 produced.
func deriskDigest(derisked []artifact.RiskAssessment) string {
	if len(derisked) == 0 {
		return "De-risking strategy development phase was not run or yielded no specific plans."
	}
	var research, test, act bool
	for _, r := range derisked {
		p := r.DeRiskingPlan
		if p == nil || p.Status != artifact.PlanGenerated {
			continue
		}
		research = research || len(p.ResearchStrategies) > 0
		test = test || len(p.TestStrategies) > 0
		act = act || len(p.ActStrategies) > 0
	}
	var themes []string
	if research {
		themes = append(themes, themeResearch)
	}
	if test {
		themes = append(themes, themeTest)
	}
	if act {
		themes = append(themes, themeAct)
	}
	if len(themes) == 0 {
		return "De-risking strategies for high-priority risks were considered (details not summarized here)."
	}
	return "De-risking strategies were developed for high-priority risks, focusing on " + strings.Join(themes, ", ") + "."
}

func buildReflectionPrompt(ventureContext string, qs []artifact.ConsolidatedQuestion, risks []artifact.RiskAssessment,
	derisked []artifact.RiskAssessment, in artifact.ExtractedInput, snippetLimit int) string {

	var questions strings.Builder
	if len(qs) == 0 {
		questions.WriteString("No final questions provided for summary.")
	}
	for i, q := range qs {
		if i == artifact.ConsolidatedCount {
			break
		}
		fmt.Fprintf(&questions, "  %d. %s (Reasoning: %s)\n", i+1, q.QuestionText, q.Reasoning)
	}

	var riskText strings.Builder
	top := artifact.SortByScore(risks)
	if len(top) == 0 {
		riskText.WriteString("No risk assessment summary provided.")
	}
	for i, r := range top {
		if i == 3 {
			break
		}
		fmt.Fprintf(&riskText, "  - Risk %d: %s (Score: %d, Tier: %s). Justification: %s...\n",
			i+1, r.RiskCategory, r.RiskScore, r.RiskTier, clip(r.Justification, 150))
	}

	return fmt.Sprintf(reflectionPromptTemplate,
		ventureContext,
		clip(in.MarketNarrative, snippetLimit),
		clip(in.PitchDeckText, snippetLimit),
		clip(in.MarketReportText, snippetLimit),
		strings.TrimRight(questions.String(), "\n"),
		strings.TrimRight(riskText.String(), "\n"),
		deriskDigest(derisked))
}
