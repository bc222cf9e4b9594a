package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func emptyEnvFile(t *testing.T) string {
	return writeFile(t, "empty.env", "")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.Engine.MaxSteps)
	assert.Equal(t, 60*time.Second, cfg.Engine.ModelTimeout)
	assert.Equal(t, 30*time.Second, cfg.Engine.ToolTimeout)
	assert.Equal(t, 8, cfg.Engine.ToolConcurrency)
	assert.Equal(t, 3, cfg.Engine.Retry.Attempts)
	assert.Equal(t, BackendMemory, cfg.Cache.Backend)
	assert.Equal(t, 1024, cfg.Cache.Capacity)
	assert.Equal(t, BackendMemory, cfg.Checkpoint.Backend)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "lattice.yaml", `
log_level: debug
graphs: ./graphs
engine:
  max_steps: 12
  tool_timeout: 5s
  retry:
    attempts: 5
    initial: 50ms
    max: 1s
model:
  default: openai/gpt-4o-mini
  rate_limit: 2.5
  openai:
    api_key: sk-test
cache:
  backend: redis
  ttl: 10m
redis:
  addr: localhost:6379
`)
	t.Setenv("LATTICE_OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(path, emptyEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "./graphs", cfg.Graphs)
	assert.Equal(t, 12, cfg.Engine.MaxSteps)
	assert.Equal(t, 5*time.Second, cfg.Engine.ToolTimeout)
	assert.Equal(t, 60*time.Second, cfg.Engine.ModelTimeout, "unset keys keep their default")
	assert.Equal(t, 50*time.Millisecond, cfg.Engine.Retry.Initial)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.Model.Default)
	assert.InDelta(t, 2.5, cfg.Model.RateLimit, 1e-9)
	assert.Equal(t, "sk-test", cfg.Model.OpenAI.APIKey)
	assert.Equal(t, BackendRedis, cfg.Cache.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LATTICE_MAX_STEPS", "7")
	t.Setenv("LATTICE_MODEL_TIMEOUT", "2s")
	t.Setenv("LATTICE_LOG_LEVEL", "WARN")
	t.Setenv("LATTICE_METRICS", "true")
	t.Setenv("LATTICE_OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "from-conventional-name")

	cfg, err := Load("", emptyEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Engine.MaxSteps)
	assert.Equal(t, 2*time.Second, cfg.Engine.ModelTimeout)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.Observation.Metrics)
	assert.Equal(t, "from-conventional-name", cfg.Model.OpenAI.APIKey)
}

func TestLoad_EnvFile(t *testing.T) {
	env := writeFile(t, "test.env", "LATTICE_ANTHROPIC_API_KEY=from-dotenv\n")
	require.NoError(t, os.Unsetenv("LATTICE_ANTHROPIC_API_KEY"))
	t.Cleanup(func() { os.Unsetenv("LATTICE_ANTHROPIC_API_KEY") })

	cfg, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Model.Anthropic.APIKey)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), emptyEnvFile(t))
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeFile(t, "bad.yaml", "engine: [1"), emptyEnvFile(t))
		assert.Error(t, err)
	})

	t.Run("bad env value", func(t *testing.T) {
		t.Setenv("LATTICE_MAX_STEPS", "many")
		_, err := Load("", emptyEnvFile(t))
		assert.ErrorContains(t, err, "LATTICE_MAX_STEPS")
	})

	t.Run("missing env file", func(t *testing.T) {
		_, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"max steps", func(c *Config) { c.Engine.MaxSteps = 0 }, "MaxSteps"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "LogLevel"},
		{"cache backend", func(c *Config) { c.Cache.Backend = "disk" }, "Backend"},
		{"retry attempts", func(c *Config) { c.Engine.Retry.Attempts = 0 }, "Attempts"},
		{"retry window", func(c *Config) { c.Engine.Retry.Max = time.Millisecond }, "Max"},
		{"file dir", func(c *Config) { c.Checkpoint.Backend = BackendFile; c.Checkpoint.Dir = "" }, "Dir"},
		{"redis addr", func(c *Config) { c.Checkpoint.Backend = BackendRedis }, "Addr"},
		{"base url", func(c *Config) { c.Model.OpenAI.BaseURL = "not a url" }, "BaseURL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestApplyEnv_FirstKeyWins(t *testing.T) {
	env := map[string]string{
		"LATTICE_REDIS_ADDR": "primary:6379",
		"REDIS_ADDR":         "fallback:6379",
	}
	cfg := Default()
	require.NoError(t, applyEnv(cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	assert.Equal(t, "primary:6379", cfg.Redis.Addr)
}
