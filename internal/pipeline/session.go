package pipeline

import (
	"skeptic/internal/artifact"
)

// State is the in-memory mirror of the persisted artifacts plus the
// status of every phase. Treat it as a value: Reset returns a new State.
type State struct {
	Input        *artifact.ExtractedInput
	Questions    artifact.RawQuestionSet
	Consolidated []artifact.ConsolidatedQuestion
	Risks        *artifact.RiskBundle
	Derisked     []artifact.RiskAssessment
	Reflection   *artifact.StrategicReflection

	status [7]Status // indexed by Phase; slot 0 unused
}

// NewState returns a state with every phase missing.
func NewState() State {
	var s State
	for _, p := range AllPhases {
		s.status[p] = StatusMissing
	}
	return s
}

// Status returns the status of p.
func (s State) Status(p Phase) Status {
	if !p.Valid() || s.status[p] == "" {
		return StatusMissing
	}
	return s.status[p]
}

// WithStatus returns a copy of s with p set to st.
func (s State) WithStatus(p Phase, st Status) State {
	if p.Valid() {
		s.status[p] = st
	}
	return s
}

// MissingUpstream lists upstream phases of p that are not complete.
func (s State) MissingUpstream(p Phase) []Phase {
	var missing []Phase
	for _, up := range p.Upstream() {
		if s.Status(up) != StatusComplete {
			missing = append(missing, up)
		}
	}
	return missing
}

// Reset clears phases from..6 and returns the new state. Phases before
// from are untouched. This is a pure function of its inputs.
func Reset(s State, from Phase) State {
	if from < PhaseInput {
		from = PhaseInput
	}
	next := s
	for p := from; p <= PhaseReflect; p++ {
		next.clear(p)
	}
	return next
}

// clear drops the artifact of p and marks it missing.
func (s *State) clear(p Phase) {
	s.status[p] = StatusMissing
	switch p {
	case PhaseInput:
		s.Input = nil
	case PhaseGenerate:
		s.Questions = nil
	case PhaseConsolidate:
		s.Consolidated = nil
	case PhaseRisk:
		s.Risks = nil
	case PhaseDerisk:
		s.Derisked = nil
	case PhaseReflect:
		s.Reflection = nil
	}
}

// dropOrphans marks missing every complete phase whose upstream is not
// complete. Phases are visited in order so demotion cascades.
func (s *State) dropOrphans() []Phase {
	var dropped []Phase
	for _, p := range AllPhases {
		if s.Status(p) != StatusComplete || len(s.MissingUpstream(p)) == 0 {
			continue
		}
		s.clear(p)
		dropped = append(dropped, p)
	}
	return dropped
}

// Cleared lists phases that held an artifact in before and none in after.
func Cleared(before, after State) []Phase {
	var out []Phase
	for _, p := range AllPhases {
		if before.has(p) && !after.has(p) {
			out = append(out, p)
		}
	}
	return out
}

func (s State) has(p Phase) bool {
	switch p {
	case PhaseInput:
		return s.Input != nil
	case PhaseGenerate:
		return s.Questions != nil
	case PhaseConsolidate:
		return s.Consolidated != nil
	case PhaseRisk:
		return s.Risks != nil
	case PhaseDerisk:
		return s.Derisked != nil
	case PhaseReflect:
		return s.Reflection != nil
	}
	return false
}
