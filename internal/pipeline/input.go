package pipeline

import (
	"context"
	"fmt"
	"strings"

	"skeptic/internal/artifact"
	"skeptic/internal/logging"
)

// InputPaths names the three source documents. Empty paths are skipped.
type InputPaths struct {
	Narrative    string
	PitchDeck    string
	MarketReport string
}

// ProcessInputs reads the source documents into an ExtractedInput.
//
// Documents that cannot be read contribute empty text. The result is Absent
// only when every document came back empty; otherwise a Placeholder outcome
// names the empty ones.
func (p *Pipeline) ProcessInputs(ctx context.Context, paths InputPaths, ventureContext string) Outcome[artifact.ExtractedInput] {
	timer := logging.StartTimer(logging.CategoryPipeline, "phase 1 input")
	defer timer.Stop()

	in := artifact.ExtractedInput{
		MarketNarrative:  p.extractor.Extract(ctx, paths.Narrative),
		Context:          ventureContext,
		PitchDeckText:    p.extractor.Extract(ctx, paths.PitchDeck),
		MarketReportText: p.extractor.Extract(ctx, paths.MarketReport),
	}

	var empty []string
	if strings.TrimSpace(in.MarketNarrative) == "" {
		empty = append(empty, "market narrative")
	}
	if strings.TrimSpace(in.PitchDeckText) == "" {
		empty = append(empty, "pitch deck")
	}
	if strings.TrimSpace(in.MarketReportText) == "" {
		empty = append(empty, "market report")
	}

	switch len(empty) {
	case 0:
		logging.Pipeline("phase 1: extracted narrative=%d deck=%d report=%d chars",
			len(in.MarketNarrative), len(in.PitchDeckText), len(in.MarketReportText))
		return Ok(in)
	case 3:
		logging.PipelineError("phase 1: no source document yielded text")
		return Absent[artifact.ExtractedInput]("no source document yielded text")
	default:
		reason := fmt.Sprintf("empty documents: %s", strings.Join(empty, ", "))
		logging.PipelineWarn("phase 1: %s", reason)
		return Placeholder(in, reason)
	}
}
