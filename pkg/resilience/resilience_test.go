package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
)

var errBoom = errors.New("boom")

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "install", RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return !errors.Is(err, errBoom) },
	}, func() error {
		calls++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "install", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return apperrors.ErrVersionConflict
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhausted(t *testing.T) {
	err := Retry(context.Background(), "install", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		return apperrors.ErrVersionConflict
	})
	assert.ErrorIs(t, err, apperrors.ErrVersionConflict)
	assert.Contains(t, err.Error(), "all 2 attempts failed")
}

func TestCircuitBreakerTrips(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("cache", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
		IsFailure:        func(err error) bool { return !errors.Is(err, apperrors.ErrTypeNotFound) },
		OnStateChange:    func(_ string, _, to State) { transitions = append(transitions, to) },
	})

	for i := 0; i < 5; i++ {
		_ = cb.Execute(func() error { return apperrors.ErrTypeNotFound })
	}
	assert.Equal(t, StateClosed, cb.GetState(), "misses are not failures")

	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, StateOpen, cb.GetState())
	assert.False(t, cb.Allow())

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)

	time.Sleep(30 * time.Millisecond)
	assert.True(t, cb.Allow())
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "publish", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return ctx.Err()
	})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, WithTimeout(context.Background(), 0, "publish", func(context.Context) error { return nil }))
}
