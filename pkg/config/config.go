// Package config loads the configuration of the lattice CLI and server from a YAML
// file, .env files and LATTICE_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend names accepted by the cache and checkpoint sections.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendFile   = "file"
)

// Config is the root configuration.
type Config struct {
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
	// Graphs is a directory of YAML graph definitions.
	Graphs string `yaml:"graphs"`
	// Tools is a YAML file declaring process tools.
	Tools string `yaml:"tools"`

	Engine      EngineConfig      `yaml:"engine"`
	Model       ModelConfig       `yaml:"model"`
	Cache       CacheConfig       `yaml:"cache"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`
	Redis       RedisConfig       `yaml:"redis"`
	HTTP        HTTPConfig        `yaml:"http"`
	Observation ObservationConfig `yaml:"observability"`
}

// EngineConfig mirrors the engine options.
type EngineConfig struct {
	MaxSteps        int           `yaml:"max_steps" validate:"gt=0"`
	ModelTimeout    time.Duration `yaml:"model_timeout" validate:"gt=0"`
	ToolTimeout     time.Duration `yaml:"tool_timeout" validate:"gt=0"`
	ToolConcurrency int           `yaml:"tool_concurrency" validate:"gt=0"`
	Retry           RetryConfig   `yaml:"retry"`
}

// RetryConfig configures the retries of transient model failures.
type RetryConfig struct {
	Attempts int           `yaml:"attempts" validate:"gte=1"`
	Initial  time.Duration `yaml:"initial" validate:"gte=0"`
	Max      time.Duration `yaml:"max" validate:"gtefield=Initial"`
}

// ModelConfig selects and configures the model providers. A provider is enabled when
// its credentials (or server URL) are set.
type ModelConfig struct {
	// Default is the model id used by nodes that do not name one, e.g. "openai/gpt-4o-mini".
	Default string `yaml:"default"`
	// RateLimit caps requests per second across providers. Zero disables it.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	Burst     int     `yaml:"burst" validate:"gte=0"`

	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	Ollama    OllamaConfig   `yaml:"ollama"`
}

// ProviderConfig holds hosted provider credentials.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
}

// OllamaConfig configures a local Ollama server reached through langchaingo.
type OllamaConfig struct {
	ServerURL string `yaml:"server_url" validate:"omitempty,url"`
	Model     string `yaml:"model"`
}

// CacheConfig configures the prompt/response cache.
type CacheConfig struct {
	Backend  string        `yaml:"backend" validate:"oneof=none memory redis"`
	Capacity int           `yaml:"capacity" validate:"gte=0"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
}

// CheckpointConfig configures the checkpoint store.
type CheckpointConfig struct {
	Backend string        `yaml:"backend" validate:"oneof=none memory redis file"`
	Dir     string        `yaml:"dir" validate:"required_if=Backend file"`
	LockTTL time.Duration `yaml:"lock_ttl" validate:"gte=0"`
	// EncryptionKey is a base64 AES-256 key. When set, checkpoints are encrypted at rest.
	EncryptionKey string `yaml:"encryption_key" validate:"omitempty,base64"`
	// FallbackKeys are previous keys still accepted for decryption.
	FallbackKeys []string `yaml:"fallback_keys" validate:"dive,base64"`
	// Mask lists regular expressions of scratch keys whose values are masked when saved.
	Mask []string `yaml:"mask"`
}

// RedisConfig is shared by the redis cache, checkpoint store and locker.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix"`
}

// HTTPConfig configures the server.
type HTTPConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// ObservationConfig toggles the stock observers.
type ObservationConfig struct {
	Metrics bool `yaml:"metrics"`
	Tracing bool `yaml:"tracing"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Engine: EngineConfig{
			MaxSteps:        50,
			ModelTimeout:    60 * time.Second,
			ToolTimeout:     30 * time.Second,
			ToolConcurrency: 8,
			Retry: RetryConfig{
				Attempts: 3,
				Initial:  200 * time.Millisecond,
				Max:      5 * time.Second,
			},
		},
		Cache: CacheConfig{
			Backend:  BackendMemory,
			Capacity: 1024,
		},
		Checkpoint: CheckpointConfig{
			Backend: BackendMemory,
			Dir:     ".lattice/checkpoints",
		},
		Redis: RedisConfig{
			Prefix: "lattice",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (skipped when
// path is empty), then the environment. envFiles are loaded into the environment first
// without overriding variables that are already set; when none is given an optional
// ".env" in the working directory is used.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		cfg := sl.Current().Interface().(Config)
		needsRedis := cfg.Cache.Backend == BackendRedis || cfg.Checkpoint.Backend == BackendRedis
		if needsRedis && cfg.Redis.Addr == "" {
			sl.ReportError(cfg.Redis.Addr, "Redis.Addr", "Addr", "required_with_redis_backend", "")
		}
	}, Config{})
	return v
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return &ValidationError{Errors: verrs}
		}
		return err
	}
	return nil
}

// ValidationError lists the invalid fields.
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	msg := "invalid configuration:"
	for _, fe := range e.Errors {
		msg += fmt.Sprintf(" %s (%s)", fe.Namespace(), fe.Tag())
	}
	return msg
}
