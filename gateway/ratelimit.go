package gateway

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/hupe1980/agentgraph/core"
)

// WithRateLimit wraps next with a token bucket allowing perSecond decision
// requests per second with the given burst. A non-positive perSecond
// returns next unchanged.
func WithRateLimit(next Gateway, perSecond float64, burst int) Gateway {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

type rateLimited struct {
	next    Gateway
	limiter *rate.Limiter
}

func (r *rateLimited) Decide(ctx context.Context, req Request) (core.Decision, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// Wait fails early when the deadline cannot accommodate the next token.
		return nil, &core.GatewayTimeoutError{Err: err}
	}
	return r.next.Decide(ctx, req)
}
