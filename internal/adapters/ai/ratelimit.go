package ai

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedCompleter enforces a requests-per-minute budget and a
// concurrency ceiling in front of a provider client.
type RateLimitedCompleter struct {
	inner   Completer
	limiter *rate.Limiter
	sem     chan struct{}
}

// NewRateLimited wraps inner so at most rpm requests start per minute
// and at most concurrency are in flight. Requests are spaced evenly,
// which keeps burst traffic under provider quotas.
func NewRateLimited(inner Completer, rpm, concurrency int) *RateLimitedCompleter {
	if rpm < 1 {
		rpm = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &RateLimitedCompleter{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		sem:     make(chan struct{}, concurrency),
	}
}

func (r *RateLimitedCompleter) Name() string {
	return r.inner.Name()
}

func (r *RateLimitedCompleter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return r.inner.Complete(ctx, req)
}
