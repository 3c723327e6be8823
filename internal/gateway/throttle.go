package gateway

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle enforces a fixed minimum spacing between calls. The first Wait
// returns immediately; each later Wait blocks until delay has passed since
// the previous one. A nil Throttle or zero delay never blocks.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle creates a fixed-delay throttle.
func NewThrottle(delay time.Duration) *Throttle {
	if delay <= 0 {
		return &Throttle{}
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

// Wait blocks until the next call may proceed or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}
