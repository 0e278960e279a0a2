// Package config loads the orchestrator's configuration from environment
// variables and an optional YAML file, following the
// file-then-env-overrides pattern of `jra3-linear-fuse`'s
// internal/config/config.go. Credentials are always environment-only,
// never persisted into the vault or any YAML file (spec.md §6).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vaultwork/orchestrator/internal/retry"
)

// AgentMode names which half of the claim protocol this process plays.
type AgentMode string

const (
	ModeLocal AgentMode = "local"
	ModeCloud AgentMode = "cloud"
)

// Config is the fully resolved runtime configuration for one component
// binary (orchestratord, watcherd, syncbridged).
type Config struct {
	VaultPath string    `yaml:"-"` // VAULT_PATH, required
	DryRun    bool      `yaml:"-"` // DRY_RUN
	AgentMode AgentMode `yaml:"-"` // AGENT_MODE

	GitVaultBranch string `yaml:"-"` // GIT_VAULT_BRANCH

	// Adapter credentials — environment only, never read from YAML.
	SMTPAddr string `yaml:"-"`
	SMTPUser string `yaml:"-"`
	SMTPPass string `yaml:"-"`

	Policy   PolicyConfig          `yaml:"policy"`
	Channels []retry.ChannelConfig `yaml:"rate_limits"`
	Cadences map[string]string     `yaml:"scheduler"`
}

// PolicyConfig mirrors internal/orchestrator.PolicyConfig's shape without
// importing it, so config stays a leaf package with no dependency on
// internal/orchestrator.
type PolicyConfig struct {
	AmountThreshold float64 `yaml:"amount_threshold"`
}

// Default returns the built-in configuration before any file or
// environment overrides are applied.
func Default() *Config {
	return &Config{
		AgentMode:      ModeLocal,
		GitVaultBranch: "main",
		Policy:         PolicyConfig{AmountThreshold: 100},
		Channels:       append([]retry.ChannelConfig{}, retry.DefaultChannels...),
	}
}

// Load reads configPath (if it exists) then applies environment
// overrides using the real process environment.
func Load(configPath string) (*Config, error) {
	return LoadWithEnv(configPath, os.Getenv)
}

// LoadWithEnv reads configPath (if non-empty and it exists) then applies
// environment overrides via getenv, so tests can supply an isolated
// environment without mutating the process's actual env.
func LoadWithEnv(configPath string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", configPath, err)
		}
	}

	if v := getenv("VAULT_PATH"); v != "" {
		cfg.VaultPath = v
	}
	if v := getenv("DRY_RUN"); v != "" {
		cfg.DryRun = v == "1" || v == "true"
	}
	if v := getenv("AGENT_MODE"); v != "" {
		cfg.AgentMode = AgentMode(v)
	}
	if v := getenv("GIT_VAULT_BRANCH"); v != "" {
		cfg.GitVaultBranch = v
	}
	if v := getenv("SMTP_ADDR"); v != "" {
		cfg.SMTPAddr = v
	}
	if v := getenv("SMTP_USER"); v != "" {
		cfg.SMTPUser = v
	}
	if v := getenv("SMTP_PASS"); v != "" {
		cfg.SMTPPass = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and rejects obviously malformed values,
// mapping to CLI exit code 2 (configuration error) per spec.md §6.
func (c *Config) Validate() error {
	if c.VaultPath == "" {
		return fmt.Errorf("config: VAULT_PATH is required")
	}
	if c.AgentMode != ModeLocal && c.AgentMode != ModeCloud {
		return fmt.Errorf("config: AGENT_MODE must be %q or %q, got %q", ModeLocal, ModeCloud, c.AgentMode)
	}
	if c.Policy.AmountThreshold < 0 {
		return fmt.Errorf("config: policy.amount_threshold must be non-negative")
	}
	return nil
}

// CadenceFor looks up a named scheduler override, falling back to
// fallback when the config YAML doesn't mention that job.
func (c *Config) CadenceFor(job, fallback string) string {
	if v, ok := c.Cadences[job]; ok && v != "" {
		return v
	}
	return fallback
}

// DefaultCallTimeout is the per-adapter-call deadline absent an override
// (spec.md §5).
const DefaultCallTimeout = 30 * time.Second
