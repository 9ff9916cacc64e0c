package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deadsongs/config"
	"deadsongs/core/apperr"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}
}

func TestBackoff(t *testing.T) {
	p := Policy{InitialWait: 100 * time.Millisecond, MaxWait: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(3))
	assert.Equal(t, time.Second, p.Backoff(10), "capped at MaxWait")
}

func TestDoRetriesRemoteFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperr.New(apperr.RemoteUnavailable, "down")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), "test", func(ctx context.Context) error {
		calls++
		return apperr.New(apperr.RaceConditionConflict, "dup")
	})

	assert.True(t, apperr.Is(err, apperr.RaceConditionConflict))
	assert.Equal(t, 1, calls)
}

func TestDoGivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(2), "test", func(ctx context.Context) error {
		calls++
		return apperr.New(apperr.RemoteUnavailable, "down")
	})

	assert.True(t, apperr.Is(err, apperr.RemoteUnavailable))
	assert.Equal(t, 2, calls)
}

func TestDoAppliesAttemptTimeout(t *testing.T) {
	p := fastPolicy(1)
	p.AttemptTimeout = 10 * time.Millisecond

	err := Do(context.Background(), p, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, InitialWait: time.Hour, MaxWait: time.Hour}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, p, "test", func(ctx context.Context) error {
		calls++
		return apperr.New(apperr.RemoteUnavailable, "down")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestValue(t *testing.T) {
	n, err := Value(context.Background(), fastPolicy(2), "count", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(&config.Config{RemoteMaxAttempts: 4, RemoteTimeout: time.Second})
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, time.Second, p.AttemptTimeout)
	assert.Equal(t, DefaultPolicy().InitialWait, p.InitialWait, "unset values keep defaults")
}
