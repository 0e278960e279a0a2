package retry

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vaultwork/orchestrator/pkg/vaulterrors"
)

func TestDelayGrowsExponentiallyAndCapsAtMax(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 30 * time.Second, Rand: rand.New(rand.NewSource(7))}

	for attempt, want := range map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		6: 30 * time.Second, // 32s would exceed Max, so capped
	} {
		d := b.Delay(attempt)
		require.LessOrEqual(t, d, want, "attempt %d", attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
	}
}

func TestDelayNeverExceedsMax(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 10 * time.Second, Rand: rand.New(rand.NewSource(1))}
	for attempt := 1; attempt <= 20; attempt++ {
		require.LessOrEqual(t, b.Delay(attempt), 10*time.Second)
	}
}

func TestRunRetriesTransientAndSucceeds(t *testing.T) {
	b := NewBackoff(time.Millisecond, 5*time.Millisecond, 5)
	calls := 0
	err := b.Run(context.Background(), func() error {
		calls++
		if calls < 3 {
			return vaulterrors.ErrUnavailable
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRunPropagatesPermanentImmediately(t *testing.T) {
	b := NewBackoff(time.Millisecond, time.Millisecond, 5)
	calls := 0
	err := b.Run(context.Background(), func() error {
		calls++
		return vaulterrors.ErrAuthFailed
	})
	require.ErrorIs(t, err, vaulterrors.ErrAuthFailed)
	require.Equal(t, 1, calls)
}

func TestRunStopsAtMaxAttempts(t *testing.T) {
	b := NewBackoff(time.Millisecond, time.Millisecond, 3)
	calls := 0
	err := b.Run(context.Background(), func() error {
		calls++
		return vaulterrors.ErrTimeout
	})
	require.ErrorIs(t, err, vaulterrors.ErrTimeout)
	require.Equal(t, 3, calls)
}

func TestRunRespectsContextCancellation(t *testing.T) {
	b := NewBackoff(time.Hour, time.Hour, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := b.Run(ctx, func() error {
		calls++
		return vaulterrors.ErrTimeout
	})
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, 1, calls)
}
