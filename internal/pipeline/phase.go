// Package pipeline sequences the six analysis phases.
//
// Each phase function is a transformation from prior artifacts to a new
// artifact and reports an Outcome: Ok, Placeholder (complete shape, some
// records stand in for unusable model output) or Absent. The Runner enforces
// upstream preconditions, persists results and cascades resets.
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"skeptic/internal/store"
)

// Phase identifies one pipeline step.
type Phase int

const (
	PhaseInput       Phase = 1 // document ingestion
	PhaseGenerate    Phase = 2 // multi-model question generation
	PhaseConsolidate Phase = 3 // five consolidated questions
	PhaseRisk        Phase = 4 // risk scoring
	PhaseDerisk      Phase = 5 // de-risking strategies
	PhaseReflect     Phase = 6 // strategic reflection
)

// AllPhases lists the phases in execution order.
var AllPhases = []Phase{PhaseInput, PhaseGenerate, PhaseConsolidate, PhaseRisk, PhaseDerisk, PhaseReflect}

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseGenerate:
		return "generate"
	case PhaseConsolidate:
		return "consolidate"
	case PhaseRisk:
		return "risk"
	case PhaseDerisk:
		return "derisk"
	case PhaseReflect:
		return "reflect"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Valid reports whether p is one of the six phases.
func (p Phase) Valid() bool {
	return p >= PhaseInput && p <= PhaseReflect
}

// ParsePhase accepts a number or a phase name.
func ParsePhase(s string) (Phase, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for _, p := range AllPhases {
		if s == p.String() || s == fmt.Sprint(int(p)) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q (use 1-6 or a name)", s)
}

// Key returns the artifact file for p.
func (p Phase) Key() store.Key {
	return store.AllKeys[int(p)-1]
}

// Upstream lists the phases whose artifacts p reads.
func (p Phase) Upstream() []Phase {
	switch p {
	case PhaseGenerate:
		return []Phase{PhaseInput}
	case PhaseConsolidate:
		return []Phase{PhaseInput, PhaseGenerate}
	case PhaseRisk:
		return []Phase{PhaseInput, PhaseConsolidate}
	case PhaseDerisk:
		return []Phase{PhaseInput, PhaseRisk}
	case PhaseReflect:
		return []Phase{PhaseInput, PhaseConsolidate, PhaseRisk, PhaseDerisk}
	default:
		return nil
	}
}

// Status is the lifecycle state of one phase.
type Status string

const (
	StatusMissing  Status = "missing"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// ErrInputMissing is wrapped by PreconditionError.
var ErrInputMissing = errors.New("upstream artifact missing")

// PreconditionError reports a phase that cannot start.
type PreconditionError struct {
	Phase   Phase
	Missing []Phase
}

func (e *PreconditionError) Error() string {
	names := make([]string, len(e.Missing))
	for i, p := range e.Missing {
		names[i] = fmt.Sprintf("%d (%s)", int(p), p)
	}
	return fmt.Sprintf("phase %d (%s) cannot start: %v: %s", int(e.Phase), e.Phase, ErrInputMissing, strings.Join(names, ", "))
}

func (e *PreconditionError) Unwrap() error { return ErrInputMissing }
