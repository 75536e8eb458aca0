package agent

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseBackoff = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
)

// RetryPolicy controls how a RetryingInvoker repeats failed calls.
type RetryPolicy struct {
	// MaxRetries is the number of extra attempts after the first. Zero
	// disables retries.
	MaxRetries int
	// BaseBackoff is the wait before the first retry. It doubles on each
	// further retry up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// RatePerSecond caps how often calls start across all workers sharing
	// the invoker. Zero means unlimited.
	RatePerSecond float64
	// Burst is the limiter burst size. Defaults to 1.
	Burst int
}

// DefaultRetryPolicy makes a single attempt with no rate limit.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseBackoff: defaultBaseBackoff,
		MaxBackoff:  defaultMaxBackoff,
	}
}

// Backoff returns the wait before retry number attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base := p.BaseBackoff
	if base <= 0 {
		base = defaultBaseBackoff
	}
	max := p.MaxBackoff
	if max <= 0 {
		max = defaultMaxBackoff
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// RetryingInvoker wraps an Invoker with retries and a shared rate limit.
type RetryingInvoker struct {
	inner   Invoker
	policy  RetryPolicy
	limiter *rate.Limiter

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Retrying wraps inv with policy.
func Retrying(inv Invoker, policy RetryPolicy) *RetryingInvoker {
	r := &RetryingInvoker{
		inner:  inv,
		policy: policy,
		sleep:  sleepCtx,
	}
	if policy.RatePerSecond > 0 {
		burst := policy.Burst
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(policy.RatePerSecond), burst)
	}
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Invoke calls the wrapped invoker, retrying failures.
func (r *RetryingInvoker) Invoke(ctx context.Context, prompt string) (Response, error) {
	return r.do(ctx, func() (Response, error) {
		return r.inner.Invoke(ctx, prompt)
	})
}

// InvokeStream streams through the wrapped invoker, retrying failures.
func (r *RetryingInvoker) InvokeStream(ctx context.Context, prompt string, onText func(string)) (Response, error) {
	return r.do(ctx, func() (Response, error) {
		return Stream(ctx, r.inner, prompt, onText)
	})
}

func (r *RetryingInvoker) do(ctx context.Context, call func() (Response, error)) (Response, error) {
	var (
		resp Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if serr := r.sleep(ctx, r.policy.Backoff(attempt)); serr != nil {
				return resp, serr
			}
		}
		if r.limiter != nil {
			if lerr := r.limiter.Wait(ctx); lerr != nil {
				return Response{ExitCode: 1}, fmt.Errorf("rate limiter: %w", lerr)
			}
		}

		resp, err = call()
		if err == nil && resp.OK() {
			return resp, nil
		}
		if ctx.Err() != nil {
			if err == nil {
				err = ctx.Err()
			}
			return resp, err
		}
		if attempt >= r.policy.MaxRetries {
			return resp, err
		}
	}
}

var _ StreamingInvoker = (*RetryingInvoker)(nil)
