package pipeline

import (
	"context"

	"skeptic/internal/artifact"
	"skeptic/internal/gateway"
	"skeptic/internal/logging"
	"skeptic/internal/parse"
)

const (
	keyILike   = "i_like_reflection"
	keyIWish   = "i_wish_reflection"
	keyIWonder = "i_wonder_reflection"
)

// Reflect produces the I Like / I Wish / I Wonder reflection. Any call or
// parse failure yields an Absent outcome; no placeholder is written.
func (p *Pipeline) Reflect(ctx context.Context, ventureContext string, qs []artifact.ConsolidatedQuestion,
	bundle artifact.RiskBundle, derisked []artifact.RiskAssessment, in artifact.ExtractedInput) Outcome[artifact.StrategicReflection] {

	timer := logging.StartTimer(logging.CategoryPipeline, "phase 6 reflect")
	defer timer.Stop()

	prompt := buildReflectionPrompt(ventureContext, qs, bundle.Risks, derisked, in, p.opts.ReflectSnippetLimit)
	content, err := p.call(ctx, gateway.UserPrompt(p.opts.HighReasoningModel, prompt, reflectTemperature, reflectMaxTokens, true))
	if err != nil {
		return Absent[artifact.StrategicReflection](err.Error())
	}

	obj, err := parse.JSONObject(content, keyILike, keyIWish, keyIWonder)
	if err != nil {
		return Absent[artifact.StrategicReflection](err.Error())
	}
	var out artifact.StrategicReflection
	if out.ILike, err = parse.Decode[[]string](obj, keyILike); err != nil {
		return Absent[artifact.StrategicReflection](err.Error())
	}
	if out.IWish, err = parse.Decode[[]string](obj, keyIWish); err != nil {
		return Absent[artifact.StrategicReflection](err.Error())
	}
	if out.IWonder, err = parse.Decode[[]string](obj, keyIWonder); err != nil {
		return Absent[artifact.StrategicReflection](err.Error())
	}
	logging.Pipeline("phase 6: reflection with %d/%d/%d points", len(out.ILike), len(out.IWish), len(out.IWonder))
	return Ok(out)
}
