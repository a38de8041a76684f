package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestLoadDefaults checks that an almost-empty file picks up every default.
func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "llm:\n  api_key: test-key\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 3, cfg.Loop.MaxAttempts)
	assert.Equal(t, EngineAuto, cfg.Compiler.Engine)
	assert.Equal(t, 60*time.Second, cfg.Compiler.Timeout.Std())
	assert.Equal(t, 2, cfg.Compiler.ExtraPasses)
}

// TestLoadEnvExpansion verifies ${VAR} expansion in the YAML content.
func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("DECKFORGE_TEST_KEY", "sk-12345")
	path := writeConfig(t, "llm:\n  api_key: ${DECKFORGE_TEST_KEY}\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-12345", cfg.LLM.APIKey)
}

// TestLoadMissingFile returns an explicit error.
func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

// TestValidateRejectsBadValues covers validation error paths.
func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad engine", func(c *Config) { c.Compiler.Engine = "luatex" }},
		{"zero attempts", func(c *Config) { c.Loop.MaxAttempts = 0 }},
		{"negative passes", func(c *Config) { c.Compiler.ExtraPasses = -1 }},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// TestNormalizers check fallback behavior for unknown inputs.
func TestNormalizers(t *testing.T) {
	assert.Equal(t, LogLevelWarn, NormalizeLogLevel("WARNING"))
	assert.Equal(t, LogLevelInfo, NormalizeLogLevel("weird"))
	assert.Equal(t, LogFormatJSON, NormalizeLogFormat("JSON"))
	assert.Equal(t, LogFormatText, NormalizeLogFormat(""))
}

// TestDurationYAML covers string, bare-number and invalid duration forms.
func TestDurationYAML(t *testing.T) {
	path := writeConfig(t, "compiler:\n  timeout: 90s\nloop:\n  repair_delay: 2\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Compiler.Timeout.Std())
	// Bare numbers are seconds.
	assert.Equal(t, 2*time.Second, cfg.Loop.RepairDelay.Std())

	bad := writeConfig(t, "compiler:\n  timeout: ninety\n")
	_, err = Load(bad)
	require.Error(t, err)
}

// TestInitRefusesOverwrite ensures existing files survive without --force.
func TestInitRefusesOverwrite(t *testing.T) {
	path := writeConfig(t, "llm: {}\n")
	require.Error(t, Init(path, false))
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err, "generated config should load")
	assert.Equal(t, ":8080", cfg.Server.Addr)
}
