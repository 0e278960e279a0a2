// Package logging builds the process-wide *zap.Logger every cmd/* entry
// point uses, following theRebelliousNerd-codenerd's cmd/nerd/main.go
// pattern: zap.NewProductionConfig() with the level driven by an
// environment variable rather than a CLI flag alone, so a supervised
// daemon can be made verbose without a restart-with-new-args cycle.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelEnvVar is the environment variable controlling log verbosity.
const LevelEnvVar = "LOG_LEVEL"

// New builds a *zap.Logger for component (used as the "component" field
// on every record), honoring LOG_LEVEL if set (debug, info, warn, error;
// defaults to info) and getenv for testability.
func New(component string, getenv func(string) string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	level := zapcore.InfoLevel
	if raw := getenv(LevelEnvVar); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("logging: invalid %s=%q: %w", LevelEnvVar, raw, err)
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger.With(zap.String("component", component)), nil
}

// NewFromEnv is New against the real process environment, the entry point
// every cmd/* main calls.
func NewFromEnv(component string) (*zap.Logger, error) {
	return New(component, os.Getenv)
}
