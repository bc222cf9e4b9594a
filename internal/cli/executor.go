package cli

import (
	"errors"

	"github.com/aretw0/lattice/pkg/adapters/anthropic"
	"github.com/aretw0/lattice/pkg/adapters/langchaingo"
	"github.com/aretw0/lattice/pkg/adapters/openai"
	"github.com/aretw0/lattice/pkg/config"
	"github.com/aretw0/lattice/pkg/executor"
	"github.com/aretw0/lattice/pkg/ports"
)

// ErrNoProvider is returned by BuildExecutor when no provider is configured.
var ErrNoProvider = errors.New("no model provider configured")

// Provider prefixes understood by the executor router.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// BuildExecutor routes model ids to the configured providers by their prefix.
// When exactly one provider is configured it also serves model ids without a prefix.
func BuildExecutor(cfg config.ModelConfig) (ports.ModelExecutor, error) {
	router := executor.NewRouter()
	var only ports.ModelExecutor

	if cfg.OpenAI.APIKey != "" {
		exec := openai.New(openai.WithAPIKey(cfg.OpenAI.APIKey), openai.WithBaseURL(cfg.OpenAI.BaseURL))
		router.Route(ProviderOpenAI, exec)
		only = exec
	}
	if cfg.Anthropic.APIKey != "" {
		exec := anthropic.New(anthropic.WithAPIKey(cfg.Anthropic.APIKey), anthropic.WithBaseURL(cfg.Anthropic.BaseURL))
		router.Route(ProviderAnthropic, exec)
		only = exec
	}
	if cfg.Ollama.ServerURL != "" || cfg.Ollama.Model != "" {
		exec, err := langchaingo.NewOllama(cfg.Ollama.ServerURL, cfg.Ollama.Model)
		if err != nil {
			return nil, err
		}
		router.Route(ProviderOllama, exec)
		only = exec
	}

	switch len(router.Providers()) {
	case 0:
		return nil, ErrNoProvider
	case 1:
		router.Fallback(only)
	}

	if cfg.RateLimit > 0 {
		return executor.NewRateLimited(router, cfg.RateLimit, cfg.Burst), nil
	}
	return router, nil
}
