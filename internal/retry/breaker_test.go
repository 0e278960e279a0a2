package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vaultwork/orchestrator/pkg/vaulterrors"
)

func TestBreakerTripsAfterThresholdConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "email", FailureThreshold: 3, Cooldown: 50 * time.Millisecond})

	failing := func() (any, error) { return nil, errors.New("boom") }

	for i := 0; i < 3; i++ {
		_, err := b.Execute(failing)
		require.Error(t, err)
	}

	_, err := b.Execute(func() (any, error) { return "should not run", nil })
	require.ErrorIs(t, err, vaulterrors.ErrBreakerOpen)
}

func TestBreakerHalfOpenAfterCooldownRecoversOnSuccess(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "social_post", FailureThreshold: 1, Cooldown: 20 * time.Millisecond})

	_, err := b.Execute(func() (any, error) { return nil, errors.New("boom") })
	require.Error(t, err)

	_, err = b.Execute(func() (any, error) { return nil, nil })
	require.ErrorIs(t, err, vaulterrors.ErrBreakerOpen)

	time.Sleep(30 * time.Millisecond)

	_, err = b.Execute(func() (any, error) { return "ok", nil })
	require.NoError(t, err)
}

func TestRegistryBuildsOnePerResourceName(t *testing.T) {
	calls := map[string]int{}
	reg := NewRegistry(func(name string) BreakerConfig {
		calls[name]++
		return BreakerConfig{Name: name, FailureThreshold: 5, Cooldown: time.Second}
	})

	first := reg.For("email")
	second := reg.For("email")
	require.Same(t, first, second)
	require.Equal(t, 1, calls["email"])

	reg.For("payment")
	require.Equal(t, 1, calls["payment"])
}
