package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaultsToInfoLevel(t *testing.T) {
	logger, err := New("test", func(string) string { return "" })
	require.NoError(t, err)
	require.NotNil(t, logger)
	require.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	require.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestNewHonorsLogLevelEnvVar(t *testing.T) {
	logger, err := New("test", func(k string) string {
		if k == LevelEnvVar {
			return "debug"
		}
		return ""
	})
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New("test", func(k string) string {
		if k == LevelEnvVar {
			return "not-a-level"
		}
		return ""
	})
	require.Error(t, err)
}
