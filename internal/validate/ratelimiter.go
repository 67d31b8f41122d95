package validate

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// gate is the process-wide minimum-interval limiter from spec.md §4.3: at
// most one outbound call may proceed per second, regardless of endpoint or
// connection. golang.org/x/time/rate's token bucket with burst 1 behaves
// exactly like the "sleep to close the gap on a last-call timestamp"
// description once the bucket is kept at capacity 1.
type gate struct {
	limiter *rate.Limiter
}

func newGate() *gate {
	return &gate{limiter: rate.NewLimiter(rate.Every(time.Second), 1)}
}

// wait blocks until the next outbound call is allowed, or ctx is done.
func (g *gate) wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}
