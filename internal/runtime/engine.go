package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/lattice/internal/logging"
	"github.com/aretw0/lattice/pkg/cache"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/observability"
	"github.com/aretw0/lattice/pkg/ports"
	"github.com/aretw0/lattice/pkg/registry"
)

const (
	DefaultMaxSteps        = 50
	DefaultModelTimeout    = 60 * time.Second
	DefaultToolTimeout     = 30 * time.Second
	DefaultToolConcurrency = 8
)

// ChunkHandler receives streamed chunks of LLMCall nodes configured to stream.
type ChunkHandler func(ctx context.Context, runID, nodeID string, chunk domain.Chunk)

// Engine walks strategy graphs. It holds no per-run state and is safe for concurrent
// use: every Run owns the RunState it is given.
type Engine struct {
	registry        *registry.Registry
	executor        ports.ModelExecutor
	cache           *cache.Cache
	pipeline        *observability.Pipeline
	logger          *slog.Logger
	maxSteps        int
	retry           RetryPolicy
	modelTimeout    time.Duration
	toolTimeout     time.Duration
	toolConcurrency int
	defaultModel    string
	onChunk         ChunkHandler
	now             func() time.Time
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRegistry sets the tool registry used by ToolCall nodes.
func WithRegistry(r *registry.Registry) EngineOption {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithExecutor sets the model executor used by LLMCall nodes.
func WithExecutor(exec ports.ModelExecutor) EngineOption {
	return func(e *Engine) {
		e.executor = exec
	}
}

// WithCache routes every model call through c.
func WithCache(c *cache.Cache) EngineOption {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithPipeline sets the feature pipeline receiving lifecycle events.
func WithPipeline(p *observability.Pipeline) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.pipeline = p
		}
	}
}

// WithMaxSteps sets the step ceiling of a run.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithRetry sets the retry policy for transient model failures.
func WithRetry(p RetryPolicy) EngineOption {
	return func(e *Engine) {
		e.retry = p
	}
}

// WithModelTimeout bounds each model call attempt.
func WithModelTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.modelTimeout = d
	}
}

// WithToolTimeout bounds each tool invocation.
func WithToolTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.toolTimeout = d
	}
}

// WithToolConcurrency bounds the tool calls of one turn running in parallel.
func WithToolConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.toolConcurrency = n
		}
	}
}

// WithDefaultModel sets the model id of LLMCall nodes that do not name one.
func WithDefaultModel(model string) EngineOption {
	return func(e *Engine) {
		e.defaultModel = model
	}
}

// WithChunkHandler receives streamed chunks.
func WithChunkHandler(h ChunkHandler) EngineOption {
	return func(e *Engine) {
		e.onChunk = h
	}
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine. Without an executor, LLMCall nodes fail permanently;
// without a registry, every tool call yields a not_found result.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		logger:          logging.NewNop(),
		maxSteps:        DefaultMaxSteps,
		retry:           DefaultRetryPolicy(),
		modelTimeout:    DefaultModelTimeout,
		toolTimeout:     DefaultToolTimeout,
		toolConcurrency: DefaultToolConcurrency,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pipeline == nil {
		e.pipeline = observability.NewPipeline(nil, observability.WithLogger(e.logger))
	}
	return e
}

// Pipeline returns the feature pipeline, so callers can subscribe more observers.
func (e *Engine) Pipeline() *observability.Pipeline {
	return e.pipeline
}

// Registry returns the tool registry (may be nil).
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// MaxSteps returns the step ceiling.
func (e *Engine) MaxSteps() int {
	return e.maxSteps
}
