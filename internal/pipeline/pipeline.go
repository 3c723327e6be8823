package pipeline

import (
	"context"

	"skeptic/internal/config"
	"skeptic/internal/gateway"
	"skeptic/internal/ingest"
	"skeptic/internal/logging"
)

// Sampling parameters per phase.
const (
	generateTemperature    = 0.7
	generateMaxTokens      = 5024
	consolidateTemperature = 0.3
	consolidateMaxTokens   = 5048
	riskTemperature        = 0.2
	riskMaxTokens          = 5000
	deriskTemperature      = 0.6
	deriskMaxTokens        = 5000
	reflectTemperature     = 0.6
	reflectMaxTokens       = 5048
)

// Options tunes the phase functions.
type Options struct {
	// Models is the ordered Phase 2 fan-out list.
	Models []string
	// HighReasoningModel serves phases 3 to 6.
	HighReasoningModel string

	// Parallel runs Phase 2 calls concurrently, at most MaxParallel at once.
	Parallel    bool
	MaxParallel int

	DeriskMinScore int
	DeriskMaxRisks int

	NarrativeLimit      int
	DocumentLimit       int
	DeriskExcerptLimit  int
	ReflectSnippetLimit int
}

// DefaultOptions mirrors config.DefaultConfig.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig())
}

// OptionsFromConfig maps the pipeline-relevant config sections.
func OptionsFromConfig(cfg *config.Config) Options {
	p := cfg.Pipeline
	return Options{
		Models:              cfg.GenerationModels(),
		HighReasoningModel:  cfg.Models.HighReasoning,
		Parallel:            p.ParallelGeneration,
		MaxParallel:         p.MaxParallel,
		DeriskMinScore:      p.DeriskMinScore,
		DeriskMaxRisks:      p.DeriskMaxRisks,
		NarrativeLimit:      p.NarrativeLimit,
		DocumentLimit:       p.DocumentLimit,
		DeriskExcerptLimit:  p.DeriskExcerptLimit,
		ReflectSnippetLimit: p.ReflectSnippetLimit,
	}
}

// Pipeline holds the collaborators shared by every phase function.
type Pipeline struct {
	gw        gateway.Gateway
	throttle  *gateway.Throttle
	extractor ingest.Extractor
	opts      Options
}

// New creates a Pipeline. A nil throttle disables inter-call delays.
func New(gw gateway.Gateway, throttle *gateway.Throttle, extractor ingest.Extractor, opts Options) *Pipeline {
	if extractor == nil {
		extractor = ingest.NewFileExtractor()
	}
	return &Pipeline{gw: gw, throttle: throttle, extractor: extractor, opts: opts}
}

// Options returns the options the pipeline was built with.
func (p *Pipeline) Options() Options { return p.opts }

// call issues one gateway request and reduces it to content or a failure.
// Empty content from a 2xx response is returned as "" with a nil error.
func (p *Pipeline) call(ctx context.Context, req gateway.Request) (string, error) {
	resp, err := p.gw.Call(ctx, req)
	if err != nil {
		f := gateway.AsFailure(req.Model, err)
		logging.PipelineWarn("gateway failure for %s: %v", req.Model, f)
		return "", f
	}
	return resp.Content(), nil
}
