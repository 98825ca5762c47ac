package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: rally-coach\n"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "mock", cfg.Engine.Mode)
	assert.Equal(t, 120, cfg.Engine.TimeoutSeconds)
	assert.Equal(t, 21, cfg.Format.Target)
	assert.Equal(t, 30, cfg.Format.Cap)
	assert.Equal(t, 3, cfg.Format.BestOf)
	assert.Equal(t, 30, cfg.Strategy.Window)
	assert.Equal(t, 60, cfg.Strategy.Budget)
	assert.InDelta(t, 0.3, cfg.Strategy.L1Bound, 1e-12)
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
app:
  name: rally-coach
  log_level: debug
engine:
  mode: real
  console_path: /opt/pat/PAT3.Console.exe
  timeout_seconds: 30
format:
  target: 15
  cap: 21
  best_of: 5
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "real", cfg.Engine.Mode)
	assert.Equal(t, 15, cfg.Format.Target)
	assert.Equal(t, 5, cfg.Format.BestOf)
}

func TestLoadExpandsEnvironmentPlaceholders(t *testing.T) {
	t.Setenv("PAT_HOME", "/opt/pat3")
	cfg, err := Load(writeConfig(t, "engine:\n  console_path: ${PAT_HOME}/PAT3.Console.exe\n"))
	require.NoError(t, err)
	assert.Equal(t, "/opt/pat3/PAT3.Console.exe", cfg.Engine.ConsolePath)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfigValidates(t *testing.T) {
	assert.NoError(t, Validate(Default()))
}

func TestValidateRejectsEvenBestOf(t *testing.T) {
	cfg := Default()
	cfg.Format.BestOf = 4
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsCapBelowTarget(t *testing.T) {
	cfg := Default()
	cfg.Format.Target = 30
	cfg.Format.Cap = 21
	assert.Error(t, Validate(cfg))
}

func TestValidateRealModeRequiresConsolePath(t *testing.T) {
	cfg := Default()
	cfg.Engine.Mode = "real"
	cfg.Engine.ConsolePath = ""
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "console_path")

	cfg.Engine.ConsolePath = "/opt/pat/PAT3.Console.exe"
	assert.NoError(t, Validate(cfg))
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := Default()
	cfg.App.LogLevel = "verbose"
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsUnknownEngineMode(t *testing.T) {
	cfg := Default()
	cfg.Engine.Mode = "dry-run"
	assert.Error(t, Validate(cfg))
}

func TestEngineTimeout(t *testing.T) {
	cfg := Default()
	cfg.Engine.TimeoutSeconds = 45
	assert.Equal(t, "45s", cfg.EngineTimeout().String())
}
