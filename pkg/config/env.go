package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LATTICE_"

type lookupFunc func(key string) (string, bool)

type envBinding struct {
	keys []string
	set  func(c *Config, v string) error
}

// envBindings lists the overrides. The first key found wins; provider keys also accept
// the conventional unprefixed names.
var envBindings = []envBinding{
	{[]string{"LATTICE_LOG_LEVEL"}, func(c *Config, v string) error { c.LogLevel = strings.ToLower(v); return nil }},
	{[]string{"LATTICE_GRAPHS"}, func(c *Config, v string) error { c.Graphs = v; return nil }},
	{[]string{"LATTICE_TOOLS"}, func(c *Config, v string) error { c.Tools = v; return nil }},
	{[]string{"LATTICE_MAX_STEPS"}, intVar(func(c *Config) *int { return &c.Engine.MaxSteps })},
	{[]string{"LATTICE_MODEL_TIMEOUT"}, durationVar(func(c *Config) *time.Duration { return &c.Engine.ModelTimeout })},
	{[]string{"LATTICE_TOOL_TIMEOUT"}, durationVar(func(c *Config) *time.Duration { return &c.Engine.ToolTimeout })},
	{[]string{"LATTICE_TOOL_CONCURRENCY"}, intVar(func(c *Config) *int { return &c.Engine.ToolConcurrency })},
	{[]string{"LATTICE_RETRY_ATTEMPTS"}, intVar(func(c *Config) *int { return &c.Engine.Retry.Attempts })},
	{[]string{"LATTICE_MODEL"}, func(c *Config, v string) error { c.Model.Default = v; return nil }},
	{[]string{"LATTICE_OPENAI_API_KEY", "OPENAI_API_KEY"}, func(c *Config, v string) error { c.Model.OpenAI.APIKey = v; return nil }},
	{[]string{"LATTICE_OPENAI_BASE_URL"}, func(c *Config, v string) error { c.Model.OpenAI.BaseURL = v; return nil }},
	{[]string{"LATTICE_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"}, func(c *Config, v string) error { c.Model.Anthropic.APIKey = v; return nil }},
	{[]string{"LATTICE_ANTHROPIC_BASE_URL"}, func(c *Config, v string) error { c.Model.Anthropic.BaseURL = v; return nil }},
	{[]string{"LATTICE_OLLAMA_URL", "OLLAMA_HOST"}, func(c *Config, v string) error { c.Model.Ollama.ServerURL = v; return nil }},
	{[]string{"LATTICE_CACHE_BACKEND"}, func(c *Config, v string) error { c.Cache.Backend = v; return nil }},
	{[]string{"LATTICE_CHECKPOINT_BACKEND"}, func(c *Config, v string) error { c.Checkpoint.Backend = v; return nil }},
	{[]string{"LATTICE_CHECKPOINT_DIR"}, func(c *Config, v string) error { c.Checkpoint.Dir = v; return nil }},
	{[]string{"LATTICE_CHECKPOINT_KEY"}, func(c *Config, v string) error { c.Checkpoint.EncryptionKey = v; return nil }},
	{[]string{"LATTICE_REDIS_ADDR", "REDIS_ADDR"}, func(c *Config, v string) error { c.Redis.Addr = v; return nil }},
	{[]string{"LATTICE_REDIS_PASSWORD"}, func(c *Config, v string) error { c.Redis.Password = v; return nil }},
	{[]string{"LATTICE_HTTP_ADDR"}, func(c *Config, v string) error { c.HTTP.Addr = v; return nil }},
	{[]string{"LATTICE_METRICS"}, boolVar(func(c *Config) *bool { return &c.Observation.Metrics })},
	{[]string{"LATTICE_TRACING"}, boolVar(func(c *Config) *bool { return &c.Observation.Tracing })},
}

func applyEnv(c *Config, lookup lookupFunc) error {
	for _, b := range envBindings {
		for _, key := range b.keys {
			v, ok := lookup(key)
			if !ok || v == "" {
				continue
			}
			if err := b.set(c, v); err != nil {
				return fmt.Errorf("env %s: %w", key, err)
			}
			break
		}
	}
	return nil
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}
