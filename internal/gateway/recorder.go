package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"

	"skeptic/internal/logging"
)

// CallRecord captures one gateway call for the run ledger.
type CallRecord struct {
	ID               string
	RunID            string
	Phase            int
	Model            string
	OK               bool
	StatusCode       int
	Error            string
	PromptChars      int
	ResponseChars    int
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration
	At               time.Time
}

// CallSink persists call records.
type CallSink interface {
	RecordCall(ctx context.Context, rec CallRecord) error
}

type callTagKey struct{}

type callTag struct {
	runID string
	phase int
}

// WithCallTag attributes calls made with ctx to a run and phase.
func WithCallTag(ctx context.Context, runID string, phase int) context.Context {
	return context.WithValue(ctx, callTagKey{}, callTag{runID: runID, phase: phase})
}

// Recorder wraps a Gateway and writes one CallRecord per call. Sink errors
// are logged and never change the call outcome.
type Recorder struct {
	next Gateway
	sink CallSink
	now  func() time.Time
}

// NewRecorder creates a recording decorator.
func NewRecorder(next Gateway, sink CallSink) *Recorder {
	return &Recorder{next: next, sink: sink, now: time.Now}
}

// Call implements Gateway.
func (r *Recorder) Call(ctx context.Context, req Request) (*Response, error) {
	start := r.now()
	resp, err := r.next.Call(ctx, req)

	tag, _ := ctx.Value(callTagKey{}).(callTag)
	rec := CallRecord{
		ID:          uuid.NewString(),
		RunID:       tag.runID,
		Phase:       tag.phase,
		Model:       req.Model,
		OK:          err == nil,
		PromptChars: req.PromptChars(),
		Duration:    r.now().Sub(start),
		At:          start,
	}
	if err != nil {
		f := AsFailure(req.Model, err)
		rec.StatusCode = f.StatusCode
		rec.Error = f.Message
		err = f
	} else {
		rec.ResponseChars = len(resp.Content())
		rec.PromptTokens = resp.Usage.PromptTokens
		rec.CompletionTokens = resp.Usage.CompletionTokens
	}

	if r.sink != nil {
		// Recording must survive caller cancellation.
		if serr := r.sink.RecordCall(context.WithoutCancel(ctx), rec); serr != nil {
			logging.Get(logging.CategoryAPI).With("call", rec.ID, "model", rec.Model).Warn("failed to record call: %v", serr)
		}
	}
	return resp, err
}
