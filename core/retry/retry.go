// Package retry runs remote store calls with a per-attempt timeout and
// exponential backoff between retryable failures.
package retry

import (
	"context"
	"math"
	"time"

	"deadsongs/config"
	"deadsongs/core/apperr"
	"deadsongs/logger"
)

// Policy configures attempts and backoff.
type Policy struct {
	MaxAttempts    int
	InitialWait    time.Duration
	MaxWait        time.Duration
	Multiplier     float64
	AttemptTimeout time.Duration
}

// DefaultPolicy: 3 attempts, 100ms doubling up to 2s, 5s per attempt.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialWait:    100 * time.Millisecond,
		MaxWait:        2 * time.Second,
		Multiplier:     2.0,
		AttemptTimeout: 5 * time.Second,
	}
}

// FromConfig builds the remote call policy from the REMOTE_* and RETRY_* settings.
func FromConfig(cfg *config.Config) Policy {
	p := DefaultPolicy()
	if cfg.RemoteMaxAttempts > 0 {
		p.MaxAttempts = cfg.RemoteMaxAttempts
	}
	if cfg.RetryInitialWait > 0 {
		p.InitialWait = cfg.RetryInitialWait
	}
	if cfg.RetryMaxWait > 0 {
		p.MaxWait = cfg.RetryMaxWait
	}
	if cfg.RemoteTimeout > 0 {
		p.AttemptTimeout = cfg.RemoteTimeout
	}
	return p
}

// WithAttempts returns a copy of p allowing n attempts.
func (p Policy) WithAttempts(n int) Policy {
	p.MaxAttempts = n
	return p
}

// Backoff returns the wait before retry number attempt (0-based).
func (p Policy) Backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	wait := time.Duration(float64(p.InitialWait) * math.Pow(mult, float64(attempt)))
	if p.MaxWait > 0 && wait > p.MaxWait {
		wait = p.MaxWait
	}
	return wait
}

// Do calls fn until it succeeds, fails with a non-retryable error, the
// attempts run out, or ctx ends. Each attempt gets its own timeout.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := p.Backoff(attempt - 1)
			logger.Debug("retrying remote call",
				logger.String("op", op),
				logger.Int("attempt", attempt+1),
				logger.Duration("wait", wait),
				logger.ErrorField(err))

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return apperr.Wrap(ctx.Err(), apperr.RemoteUnavailable, "Request cancelled.")
			case <-timer.C:
			}
		}

		err = call(ctx, p.AttemptTimeout, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !apperr.Retryable(err) {
			return err
		}
	}

	logger.Warn("remote call failed after retries",
		logger.String("op", op),
		logger.Int("attempts", attempts),
		logger.ErrorField(err))
	return err
}

// Value is Do for calls that return a result.
func Value[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func call(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}
