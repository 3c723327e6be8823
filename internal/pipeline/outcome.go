package pipeline

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	KindOk OutcomeKind = iota
	KindPlaceholder
	KindAbsent
)

func (k OutcomeKind) String() string {
	switch k {
	case KindOk:
		return "ok"
	case KindPlaceholder:
		return "placeholder"
	default:
		return "absent"
	}
}

// Outcome is the result of one phase function. Value is meaningful unless
// Kind is KindAbsent. Reason explains a Placeholder or Absent result.
type Outcome[T any] struct {
	Kind   OutcomeKind
	Value  T
	Reason string
}

// Ok wraps a fully model-derived artifact.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Kind: KindOk, Value: v}
}

// Placeholder wraps a complete artifact where some records are stand-ins.
func Placeholder[T any](v T, reason string) Outcome[T] {
	return Outcome[T]{Kind: KindPlaceholder, Value: v, Reason: reason}
}

// Absent reports that no artifact could be produced.
func Absent[T any](reason string) Outcome[T] {
	return Outcome[T]{Kind: KindAbsent, Reason: reason}
}

// Present reports whether the outcome carries an artifact.
func (o Outcome[T]) Present() bool { return o.Kind != KindAbsent }
