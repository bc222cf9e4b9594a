package lattice

import (
	"log/slog"
	"time"

	"github.com/aretw0/lattice/internal/runtime"
	"github.com/aretw0/lattice/pkg/cache"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
	"github.com/aretw0/lattice/pkg/registry"
)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRegistry sets the tool registry.
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithExecutor sets the model executor.
func WithExecutor(exec ports.ModelExecutor) Option {
	return func(e *Engine) {
		e.executor = exec
	}
}

// WithCache puts a prompt/response cache in front of the executor.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithObservers subscribes observers to the feature pipeline, in order.
// Each observer implements any subset of the handler interfaces of pkg/ports.
func WithObservers(observers ...any) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, observers...)
	}
}

// WithCheckpointStore enables durable runs: the state is saved at every node entry and
// Resume becomes available.
func WithCheckpointStore(store ports.CheckpointStore) Option {
	return func(e *Engine) {
		e.checkpoints = store
	}
}

// WithLocker coordinates runs of the same checkpoint across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithLockTTL bounds how long a distributed session lock is held before it expires.
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.lockTTL = ttl
	}
}

// WithMaxSteps sets the step ceiling of a run.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxSteps(n))
	}
}

// WithRetry configures the retries of transient model failures: attempts counts every
// call, the first one included; the wait grows exponentially from initial up to max.
func WithRetry(attempts int, initial, max time.Duration) Option {
	return func(e *Engine) {
		e.retry = &runtime.RetryPolicy{Attempts: attempts, Initial: initial, Max: max}
	}
}

// WithModelTimeout bounds each model call attempt.
func WithModelTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithModelTimeout(d))
	}
}

// WithToolTimeout bounds each tool invocation.
func WithToolTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithToolTimeout(d))
	}
}

// WithToolConcurrency bounds the parallel tool calls of one model turn.
func WithToolConcurrency(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithToolConcurrency(n))
	}
}

// WithDefaultModel sets the model id used by LLMCall nodes that do not name one.
func WithDefaultModel(model string) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithDefaultModel(model))
	}
}

// WithChunkHandler receives the chunks of streaming LLMCall nodes.
func WithChunkHandler(h runtime.ChunkHandler) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithChunkHandler(h))
	}
}

// WithRunIDGenerator replaces the uuid generator of run ids.
func WithRunIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newRunID = fn
	}
}

// RunOption configures a single run.
type RunOption func(*runConfig)

type runConfig struct {
	runID      string
	checkpoint *domain.RunState
}

// WithRunID fixes the run id (and checkpoint token) instead of generating one.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithCheckpoint starts the run from a deep copy of state instead of a fresh state.
// The run gets its own id unless WithRunID is also given.
func WithCheckpoint(state *domain.RunState) RunOption {
	return func(c *runConfig) {
		c.checkpoint = state
	}
}
