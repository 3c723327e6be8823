package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"skeptic/internal/artifact"
	"skeptic/internal/gateway"
	"skeptic/internal/logging"
	"skeptic/internal/store"
)

// RunLedger records phase runs. *store.Ledger satisfies it.
type RunLedger interface {
	StartRun(ctx context.Context, phase int) (string, error)
	FinishRun(ctx context.Context, id, status, detail string) error
}

// Result summarizes one phase run.
type Result struct {
	Phase    Phase
	Kind     OutcomeKind
	Reason   string
	RunID    string
	Duration time.Duration
}

// Status is the phase status implied by the result.
func (r Result) Status() Status {
	if r.Kind == KindAbsent {
		return StatusFailed
	}
	return StatusComplete
}

// Runner owns the session: it loads persisted artifacts, enforces phase
// preconditions, writes results and cascades resets. It is not safe for
// concurrent use.
type Runner struct {
	pipe    *Pipeline
	store   *store.ArtifactStore
	ledger  RunLedger
	inputs  InputPaths
	context string
	state   State
}

// NewRunner creates a runner with an empty state. Call Load to pick up
// artifacts from a previous session. ledger may be nil.
func NewRunner(pipe *Pipeline, st *store.ArtifactStore, ledger RunLedger, inputs InputPaths, ventureContext string) *Runner {
	return &Runner{
		pipe:    pipe,
		store:   st,
		ledger:  ledger,
		inputs:  inputs,
		context: ventureContext,
		state:   NewState(),
	}
}

// State returns a snapshot of the session.
func (r *Runner) State() State { return r.state }

// Load rebuilds the session from the artifact store. Corrupt, undecodable
// or invalid artifacts are treated as missing, and so is any artifact whose
// upstream phases are not complete.
func (r *Runner) Load() error {
	s := NewState()
	for _, p := range AllPhases {
		key := p.Key()
		switch r.store.Check(key) {
		case store.StateMissing:
			continue
		case store.StateCorrupt:
			logging.PipelineWarn("artifact %s is corrupt, treating phase %d as missing", key, p)
			continue
		}
		if err := r.loadPhase(&s, p); err != nil {
			logging.PipelineWarn("artifact %s unreadable, treating phase %d as missing: %v", key, p, err)
			continue
		}
		s.status[p] = StatusComplete
	}
	for _, p := range s.dropOrphans() {
		logging.PipelineWarn("artifact %s has no complete upstream, treating phase %d as missing", p.Key(), p)
	}
	r.state = s
	if s.Input != nil && s.Input.Context != "" {
		r.context = s.Input.Context
	}
	logging.Pipeline("session loaded: %s", r.summary())
	return nil
}

func (r *Runner) loadPhase(s *State, p Phase) error {
	key := p.Key()
	switch p {
	case PhaseInput:
		v, err := store.LoadAs[artifact.ExtractedInput](r.store, key)
		if err != nil {
			return err
		}
		s.Input = &v
	case PhaseGenerate:
		v, err := store.LoadAs[artifact.RawQuestionSet](r.store, key)
		if err != nil {
			return err
		}
		if err := v.Validate(); err != nil {
			return err
		}
		s.Questions = v
	case PhaseConsolidate:
		v, err := store.LoadAs[[]artifact.ConsolidatedQuestion](r.store, key)
		if err != nil {
			return err
		}
		if err := artifact.ValidateConsolidated(v); err != nil {
			return err
		}
		s.Consolidated = v
	case PhaseRisk:
		v, err := store.LoadAs[[]artifact.RiskAssessment](r.store, key)
		if err != nil {
			return err
		}
		if err := artifact.ValidateRisks(v); err != nil {
			return err
		}
		b := artifact.NewRiskBundle(v)
		s.Risks = &b
	case PhaseDerisk:
		v, err := store.LoadAs[[]artifact.RiskAssessment](r.store, key)
		if err != nil {
			return err
		}
		if err := artifact.ValidateDerisked(v); err != nil {
			return err
		}
		s.Derisked = v
	case PhaseReflect:
		v, err := store.LoadAs[artifact.StrategicReflection](r.store, key)
		if err != nil {
			return err
		}
		s.Reflection = &v
	}
	return nil
}

func (r *Runner) summary() string {
	parts := make([]string, 0, len(AllPhases))
	for _, p := range AllPhases {
		parts = append(parts, fmt.Sprintf("%d=%s", p, r.state.Status(p)))
	}
	return strings.Join(parts, " ")
}

// Reset forces phases from..6 back to missing and deletes their artifacts.
func (r *Runner) Reset(from Phase) error {
	if !from.Valid() {
		return fmt.Errorf("invalid phase %d", int(from))
	}
	next := Reset(r.state, from)
	for _, p := range Cleared(r.state, next) {
		logging.PipelineDebug("reset clears phase %d (%s)", p, p)
	}
	r.state = next
	for p := from; p <= PhaseReflect; p++ {
		if err := r.store.Delete(p.Key()); err != nil {
			return err
		}
	}
	logging.Pipeline("reset from phase %d: %s", from, r.summary())
	return nil
}

// RunPhase runs p after checking that its upstream phases are complete.
// Running a phase resets it and every later phase first. Only a
// *PreconditionError, a storage failure or cancellation of ctx is returned
// as an error; model failures are reported through Result.Kind. A phase
// interrupted by ctx persists nothing and is left failed.
func (r *Runner) RunPhase(ctx context.Context, p Phase) (Result, error) {
	if !p.Valid() {
		return Result{}, fmt.Errorf("invalid phase %d", int(p))
	}
	if missing := r.state.MissingUpstream(p); len(missing) > 0 {
		return Result{}, &PreconditionError{Phase: p, Missing: missing}
	}
	if err := r.Reset(p); err != nil {
		return Result{}, err
	}

	start := time.Now()
	runID := r.startRun(ctx, p)
	r.state = r.state.WithStatus(p, StatusRunning)
	logging.Pipeline("phase %d (%s) running", p, p)

	res, err := r.execute(gateway.WithCallTag(ctx, runID, int(p)), p)
	res.Phase = p
	res.RunID = runID
	res.Duration = time.Since(start)
	if err == nil && ctx.Err() != nil {
		err = interrupted(p, ctx.Err())
	}
	if err != nil {
		r.state = r.state.WithStatus(p, StatusFailed)
		r.finishRun(ctx, runID, StatusFailed, err.Error())
		return res, err
	}

	r.state = r.state.WithStatus(p, res.Status())
	r.finishRun(ctx, runID, res.Status(), res.Reason)
	switch res.Kind {
	case KindOk:
		logging.Pipeline("phase %d (%s) complete in %v", p, p, res.Duration)
	case KindPlaceholder:
		logging.PipelineWarn("phase %d (%s) complete with placeholders: %s", p, p, res.Reason)
	default:
		logging.PipelineError("phase %d (%s) failed: %s", p, p, res.Reason)
	}
	return res, nil
}

// execute runs the phase function and persists a present outcome.
func (r *Runner) execute(ctx context.Context, p Phase) (Result, error) {
	s := r.state
	switch p {
	case PhaseInput:
		o := r.pipe.ProcessInputs(ctx, r.inputs, r.context)
		if o.Present() {
			if err := r.save(ctx, p, o.Value); err != nil {
				return Result{}, err
			}
			v := o.Value
			r.state.Input = &v
		}
		return Result{Kind: o.Kind, Reason: o.Reason}, nil

	case PhaseGenerate:
		o := r.pipe.GenerateQuestions(ctx, *s.Input)
		if o.Present() {
			if err := r.save(ctx, p, o.Value); err != nil {
				return Result{}, err
			}
			r.state.Questions = o.Value
		}
		return Result{Kind: o.Kind, Reason: o.Reason}, nil

	case PhaseConsolidate:
		o := r.pipe.Consolidate(ctx, s.Questions, *s.Input)
		if o.Present() {
			if err := r.save(ctx, p, o.Value); err != nil {
				return Result{}, err
			}
			r.state.Consolidated = o.Value
		}
		return Result{Kind: o.Kind, Reason: o.Reason}, nil

	case PhaseRisk:
		o := r.pipe.AssessRisk(ctx, s.Consolidated, *s.Input)
		if o.Present() {
			if err := r.save(ctx, p, o.Value.Risks); err != nil {
				return Result{}, err
			}
			v := o.Value
			r.state.Risks = &v
		}
		return Result{Kind: o.Kind, Reason: o.Reason}, nil

	case PhaseDerisk:
		o := r.pipe.Derisk(ctx, s.Risks.Risks, *s.Input, s.Input.Context)
		if o.Present() {
			if err := r.save(ctx, p, o.Value); err != nil {
				return Result{}, err
			}
			r.state.Derisked = o.Value
		}
		return Result{Kind: o.Kind, Reason: o.Reason}, nil

	case PhaseReflect:
		o := r.pipe.Reflect(ctx, s.Input.Context, s.Consolidated, *s.Risks, s.Derisked, *s.Input)
		if o.Present() {
			if err := r.save(ctx, p, o.Value); err != nil {
				return Result{}, err
			}
			v := o.Value
			r.state.Reflection = &v
		}
		return Result{Kind: o.Kind, Reason: o.Reason}, nil
	}
	return Result{}, fmt.Errorf("invalid phase %d", int(p))
}

// save persists the artifact for p unless ctx is already done. Gateway
// failures caused by cancellation must not be stored as model output.
func (r *Runner) save(ctx context.Context, p Phase, v any) error {
	if err := ctx.Err(); err != nil {
		return interrupted(p, err)
	}
	return r.store.Save(p.Key(), v)
}

func interrupted(p Phase, err error) error {
	return fmt.Errorf("phase %d (%s) interrupted: %w", p, p, err)
}

// Resume runs every phase up to through that is not already complete.
// It stops at the first phase that fails or cannot start.
func (r *Runner) Resume(ctx context.Context, through Phase) ([]Result, error) {
	if !through.Valid() {
		return nil, fmt.Errorf("invalid phase %d", int(through))
	}
	var results []Result
	for _, p := range AllPhases {
		if p > through {
			break
		}
		if r.state.Status(p) == StatusComplete {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := r.RunPhase(ctx, p)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if res.Kind == KindAbsent {
			break
		}
	}
	return results, nil
}

// SetContext replaces the venture context and re-saves the extracted input.
// Downstream artifacts are kept.
func (r *Runner) SetContext(text string) error {
	r.context = text
	if r.state.Input == nil {
		return nil
	}
	in := *r.state.Input
	in.Context = text
	if err := r.store.Save(PhaseInput.Key(), in); err != nil {
		return err
	}
	r.state.Input = &in
	logging.Pipeline("venture context updated (%d chars)", len(text))
	return nil
}

// ErrUnknownModel is returned by RegenerateModel for a model that is not in
// the current question set or the configured list.
var ErrUnknownModel = errors.New("unknown model")

// RegenerateModel re-runs generation for one model, writes a complete new
// question set and resets phases 3..6.
func (r *Runner) RegenerateModel(ctx context.Context, model string) (Result, error) {
	if missing := r.state.MissingUpstream(PhaseConsolidate); len(missing) > 0 {
		return Result{}, &PreconditionError{Phase: PhaseGenerate, Missing: missing}
	}
	if _, ok := r.state.Questions[model]; !ok && !slices.Contains(r.pipe.opts.Models, model) {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}

	start := time.Now()
	runID := r.startRun(ctx, PhaseGenerate)
	qs, ok := r.pipe.GenerateForModel(gateway.WithCallTag(ctx, runID, int(PhaseGenerate)), *r.state.Input, model)
	if err := ctx.Err(); err != nil {
		err = interrupted(PhaseGenerate, err)
		r.finishRun(ctx, runID, StatusFailed, err.Error())
		return Result{}, err
	}

	set := r.state.Questions.Clone()
	set[model] = qs
	if err := r.Reset(PhaseConsolidate); err != nil {
		r.finishRun(ctx, runID, StatusFailed, err.Error())
		return Result{}, err
	}
	if err := r.store.Save(PhaseGenerate.Key(), set); err != nil {
		r.finishRun(ctx, runID, StatusFailed, err.Error())
		return Result{}, err
	}
	r.state.Questions = set

	res := Result{Phase: PhaseGenerate, Kind: KindOk, RunID: runID, Duration: time.Since(start)}
	if !ok {
		res.Kind = KindPlaceholder
		res.Reason = fmt.Sprintf("model %s failed", model)
	}
	r.finishRun(ctx, runID, StatusComplete, res.Reason)
	logging.Pipeline("regenerated questions for %s (%s)", model, res.Kind)
	return res, nil
}

func (r *Runner) startRun(ctx context.Context, p Phase) string {
	if r.ledger == nil {
		return ""
	}
	id, err := r.ledger.StartRun(ctx, int(p))
	if err != nil {
		logging.PipelineWarn("ledger: start run for phase %d: %v", p, err)
		return ""
	}
	return id
}

func (r *Runner) finishRun(ctx context.Context, id string, status Status, detail string) {
	if r.ledger == nil || id == "" {
		return
	}
	if err := r.ledger.FinishRun(context.WithoutCancel(ctx), id, string(status), detail); err != nil {
		logging.PipelineWarn("ledger: finish run %s: %v", id, err)
	}
}
