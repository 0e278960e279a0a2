package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadRequiresVaultPath(t *testing.T) {
	_, err := LoadWithEnv("", env(map[string]string{}))
	require.Error(t, err)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	cfg, err := LoadWithEnv("", env(map[string]string{
		"VAULT_PATH":       "/tmp/vault",
		"DRY_RUN":          "true",
		"AGENT_MODE":       "cloud",
		"GIT_VAULT_BRANCH": "release",
		"SMTP_ADDR":        "smtp.example.com:587",
	}))
	require.NoError(t, err)
	require.Equal(t, "/tmp/vault", cfg.VaultPath)
	require.True(t, cfg.DryRun)
	require.Equal(t, ModeCloud, cfg.AgentMode)
	require.Equal(t, "release", cfg.GitVaultBranch)
	require.Equal(t, "smtp.example.com:587", cfg.SMTPAddr)
}

func TestLoadDefaultsAgentModeLocal(t *testing.T) {
	cfg, err := LoadWithEnv("", env(map[string]string{"VAULT_PATH": "/tmp/vault"}))
	require.NoError(t, err)
	require.Equal(t, ModeLocal, cfg.AgentMode)
}

func TestLoadRejectsUnknownAgentMode(t *testing.T) {
	_, err := LoadWithEnv("", env(map[string]string{
		"VAULT_PATH": "/tmp/vault", "AGENT_MODE": "bogus",
	}))
	require.Error(t, err)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
policy:
  amount_threshold: 250
rate_limits:
  - name: email
    capacity: 20
    refill: 20
    interval: 1h
scheduler:
  inbox-processing: "@every 10m"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := LoadWithEnv(path, env(map[string]string{"VAULT_PATH": "/tmp/vault"}))
	require.NoError(t, err)
	require.Equal(t, 250.0, cfg.Policy.AmountThreshold)
	require.Len(t, cfg.Channels, 1)
	require.Equal(t, "email", cfg.Channels[0].Name)
	require.Equal(t, "@every 10m", cfg.Cadences["inbox-processing"])
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"), env(map[string]string{"VAULT_PATH": "/tmp/vault"}))
	require.NoError(t, err)
	require.Equal(t, 100.0, cfg.Policy.AmountThreshold)
}

func TestLoadRejectsNegativeThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policy:\n  amount_threshold: -5\n"), 0o644))

	_, err := LoadWithEnv(path, env(map[string]string{"VAULT_PATH": "/tmp/vault"}))
	require.Error(t, err)
}

func TestCadenceForFallback(t *testing.T) {
	cfg := Default()
	cfg.VaultPath = "/tmp/vault"
	require.Equal(t, "@every 30m", cfg.CadenceFor("inbox-processing", "@every 30m"))

	cfg.Cadences = map[string]string{"inbox-processing": "@every 10m"}
	require.Equal(t, "@every 10m", cfg.CadenceFor("inbox-processing", "@every 30m"))
}

func TestDefaultChannelsCarriedWhenNoYAMLOverride(t *testing.T) {
	cfg, err := LoadWithEnv("", env(map[string]string{"VAULT_PATH": "/tmp/vault"}))
	require.NoError(t, err)
	require.Len(t, cfg.Channels, 3)
}
