package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/agentgraph/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequence returns the scripted outcomes in order and counts calls.
type sequence struct {
	outcomes []any
	calls    int
}

func (s *sequence) Decide(context.Context, Request) (core.Decision, error) {
	o := s.outcomes[s.calls]
	s.calls++
	if err, ok := o.(error); ok {
		return nil, err
	}
	return o.(core.Decision), nil
}

func TestWithRetry_RetriesMalformedOnce(t *testing.T) {
	seq := &sequence{outcomes: []any{&core.MalformedDecisionError{Reason: "x"}, core.FinalAnswer{Text: "ok"}}}

	var retried []int
	gw := WithRetry(seq, func(o *RetryOptions) {
		o.OnRetry = func(_ Request, attempt int, _ error) { retried = append(retried, attempt) }
	})

	d, err := gw.Decide(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, core.FinalAnswer{Text: "ok"}, d)
	assert.Equal(t, 2, seq.calls)
	assert.Equal(t, []int{1}, retried)
}

func TestWithRetry_SecondConsecutiveFailureEscalates(t *testing.T) {
	seq := &sequence{outcomes: []any{
		&core.MalformedDecisionError{Reason: "first"},
		&core.GatewayTimeoutError{},
		core.FinalAnswer{Text: "never reached"},
	}}

	_, err := WithRetry(seq).Decide(context.Background(), Request{})
	var timeout *core.GatewayTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 2, seq.calls)
}

func TestWithRetry_NonRetryableFailsImmediately(t *testing.T) {
	seq := &sequence{outcomes: []any{errors.New("auth"), core.FinalAnswer{Text: "x"}}}

	_, err := WithRetry(seq).Decide(context.Background(), Request{})
	require.EqualError(t, err, "auth")
	assert.Equal(t, 1, seq.calls)
}

func TestWithRetry_BackoffHonorsCancellation(t *testing.T) {
	seq := &sequence{outcomes: []any{&core.MalformedDecisionError{}, core.FinalAnswer{Text: "x"}}}
	gw := WithRetry(seq, func(o *RetryOptions) { o.Backoff = time.Hour })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := gw.Decide(ctx, Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, seq.calls)
}

func TestWithRateLimit(t *testing.T) {
	seq := &sequence{outcomes: []any{core.FinalAnswer{Text: "a"}, core.FinalAnswer{Text: "b"}}}
	gw := WithRateLimit(seq, 1, 1)

	_, err := gw.Decide(context.Background(), Request{})
	require.NoError(t, err)

	// The bucket is empty and the deadline is shorter than the refill interval.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = gw.Decide(ctx, Request{})
	require.Error(t, err)
	assert.Equal(t, 1, seq.calls)

	assert.Same(t, seq, WithRateLimit(seq, 0, 0))
}
