package gateway

import (
	"context"
	"time"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/logging"
)

// RetryOptions controls retry behavior for decision requests.
type RetryOptions struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Backoff is the pause between attempts. Zero retries immediately.
	Backoff time.Duration
	// ShouldRetry classifies errors. Defaults to core.IsRetryable.
	ShouldRetry func(error) bool
	// OnRetry observes each failed attempt that will be retried.
	OnRetry func(req Request, attempt int, err error)
	Logger  logging.Logger
}

// WithRetry wraps next so that retryable failures (malformed decisions and
// timeouts by default) are repeated with the same inputs. The default is two
// attempts: one immediate retry before the failure escalates.
func WithRetry(next Gateway, optFns ...func(o *RetryOptions)) Gateway {
	opts := RetryOptions{
		MaxAttempts: 2,
		ShouldRetry: core.IsRetryable,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &retrying{next: next, opts: opts}
}

type retrying struct {
	next Gateway
	opts RetryOptions
}

func (r *retrying) Decide(ctx context.Context, req Request) (core.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	attempts := normalizedAttempts(r.opts.MaxAttempts)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		d, err := r.next.Decide(ctx, req)
		if err == nil {
			return d, nil
		}
		lastErr = err
		if attempt == attempts || ctx.Err() != nil || !r.opts.ShouldRetry(err) {
			break
		}

		r.opts.Logger.Warn("gateway.decide.retry", "node", req.Node, "attempt", attempt, "error", err)
		if r.opts.OnRetry != nil {
			r.opts.OnRetry(req, attempt, err)
		}
		if r.opts.Backoff > 0 {
			t := time.NewTimer(r.opts.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
	}
	return nil, lastErr
}

func normalizedAttempts(maxAttempts int) int {
	if maxAttempts < 1 {
		return 1
	}
	return maxAttempts
}
