package lattice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/lattice/internal/logging"
	"github.com/aretw0/lattice/internal/runtime"
	"github.com/aretw0/lattice/pkg/cache"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/observability"
	"github.com/aretw0/lattice/pkg/ports"
	"github.com/aretw0/lattice/pkg/registry"
	"github.com/aretw0/lattice/pkg/session"
	"github.com/google/uuid"
)

// ErrNoCheckpointStore is reported when Resume is used without a checkpoint store.
var ErrNoCheckpointStore = errors.New("no checkpoint store configured")

// Engine is the high-level entry point of the library.
// It wraps the internal runtime with run ids, checkpoints and session locking.
// An Engine is safe for concurrent use by many runs.
type Engine struct {
	runtime  *runtime.Engine
	pipeline *observability.Pipeline
	sessions *session.Manager

	logger      *slog.Logger
	registry    *registry.Registry
	executor    ports.ModelExecutor
	cache       *cache.Cache
	observers   []any
	checkpoints ports.CheckpointStore
	locker      ports.DistributedLocker
	lockTTL     time.Duration
	retry       *runtime.RetryPolicy
	runtimeOpts []runtime.EngineOption
	newRunID    func() string
}

// New initializes an Engine.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.newRunID == nil {
		eng.newRunID = uuid.NewString
	}
	if eng.locker != nil && eng.checkpoints == nil {
		return nil, fmt.Errorf("a locker requires a checkpoint store")
	}
	if eng.retry != nil && eng.retry.Attempts < 1 {
		return nil, fmt.Errorf("retry attempts must be at least 1, got %d", eng.retry.Attempts)
	}

	var observers []any
	if eng.checkpoints != nil {
		observers = append(observers, observability.NewCheckpointObserver(eng.checkpoints))
		sessionOpts := []session.Option{session.WithLogger(eng.logger)}
		if eng.locker != nil {
			sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
		}
		if eng.lockTTL > 0 {
			sessionOpts = append(sessionOpts, session.WithLockTTL(eng.lockTTL))
		}
		eng.sessions = session.NewManager(eng.checkpoints, sessionOpts...)
	}
	observers = append(observers, eng.observers...)
	eng.pipeline = observability.NewPipeline(observers, observability.WithLogger(eng.logger))

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLogger(eng.logger),
		runtime.WithPipeline(eng.pipeline),
		runtime.WithRegistry(eng.registry),
		runtime.WithExecutor(eng.executor),
		runtime.WithCache(eng.cache),
	}
	if eng.retry != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithRetry(*eng.retry))
	}
	runtimeOpts = append(runtimeOpts, eng.runtimeOpts...)
	eng.runtime = runtime.NewEngine(runtimeOpts...)

	return eng, nil
}

// Run executes graph from its start node, or from a checkpoint given with
// WithCheckpoint. It always returns an Outcome; failures are in Outcome.Err.
func (e *Engine) Run(ctx context.Context, graph *domain.Graph, input any, opts ...RunOption) domain.Outcome {
	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	runID := cfg.runID
	if runID == "" {
		runID = e.newRunID()
	}

	if graph == nil {
		return failed(runID, nil, &domain.InvalidGraphError{Reason: "nil graph"})
	}

	var state *domain.RunState
	if cfg.checkpoint != nil {
		state = cfg.checkpoint.Clone()
		state.RunID = runID
		if err := position(graph, state); err != nil {
			return failed(runID, state, err)
		}
	} else {
		state = domain.NewRunState(runID, graph.Name(), graph.Start().ID)
	}

	return e.locked(ctx, runID, state, func(ctx context.Context) domain.Outcome {
		return e.runtime.Run(ctx, graph, state, input, cfg.checkpoint != nil)
	})
}

// Resume continues the run saved under token (its run id) with the same run id.
// A non-nil input is appended to the history as a user message before continuing.
func (e *Engine) Resume(ctx context.Context, graph *domain.Graph, token string, input any) domain.Outcome {
	if e.sessions == nil {
		return failed(token, nil, ErrNoCheckpointStore)
	}
	if graph == nil {
		return failed(token, nil, &domain.InvalidGraphError{Reason: "nil graph"})
	}

	var out domain.Outcome
	err := e.sessions.WithLock(ctx, token, func(ctx context.Context) error {
		state, err := e.checkpoints.Load(ctx, token)
		if err != nil {
			return fmt.Errorf("load checkpoint %q: %w", token, err)
		}
		if state.GraphName != "" && state.GraphName != graph.Name() {
			return fmt.Errorf("checkpoint %q belongs to graph %q, not %q", token, state.GraphName, graph.Name())
		}
		state.RunID = token
		if err := position(graph, state); err != nil {
			out = failed(token, state, err)
			return nil
		}
		e.logger.DebugContext(ctx, "resuming run", "run_id", token, "graph", graph.Name(), "node", state.CurrentNodeID, "step", state.Step)
		out = e.runtime.Run(ctx, graph, state, input, true)
		return nil
	})
	if err != nil {
		return failed(token, nil, err)
	}
	return out
}

// Inspect returns the saved state of a run.
func (e *Engine) Inspect(ctx context.Context, token string) (*domain.RunState, error) {
	if e.sessions == nil {
		return nil, ErrNoCheckpointStore
	}
	return e.checkpoints.Load(ctx, token)
}

// Checkpoints lists the saved run ids.
func (e *Engine) Checkpoints(ctx context.Context) ([]string, error) {
	if e.sessions == nil {
		return nil, ErrNoCheckpointStore
	}
	return e.sessions.List(ctx)
}

// DeleteCheckpoint removes the saved state of a run.
func (e *Engine) DeleteCheckpoint(ctx context.Context, token string) error {
	if e.sessions == nil {
		return ErrNoCheckpointStore
	}
	return e.sessions.Delete(ctx, token)
}

// Subscribe appends an observer to the feature pipeline.
func (e *Engine) Subscribe(observer any) {
	e.pipeline.Subscribe(observer)
}

// Registry returns the tool registry (nil when none was configured).
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// locked runs fn under the session lock of runID when checkpoints are enabled.
func (e *Engine) locked(ctx context.Context, runID string, state *domain.RunState, fn func(context.Context) domain.Outcome) domain.Outcome {
	if e.sessions == nil {
		return fn(ctx)
	}
	var out domain.Outcome
	err := e.sessions.WithLock(ctx, runID, func(ctx context.Context) error {
		out = fn(ctx)
		return nil
	})
	if err != nil {
		return failed(runID, state, err)
	}
	return out
}

// position checks that state sits on a node of graph. A state left on a terminal node
// by a finished run is moved back to the start node.
func position(graph *domain.Graph, state *domain.RunState) error {
	if state.GraphName == "" {
		state.GraphName = graph.Name()
	}
	node, ok := graph.Node(state.CurrentNodeID)
	if !ok {
		return &domain.InvalidGraphError{
			Graph:  graph.Name(),
			Reason: fmt.Sprintf("checkpoint is positioned on unknown node %q", state.CurrentNodeID),
		}
	}
	if node.Kind == domain.KindTerminal {
		state.CurrentNodeID = graph.Start().ID
		state.PendingToolCalls = nil
	}
	return nil
}

func failed(runID string, state *domain.RunState, err error) domain.Outcome {
	status := domain.StatusFailed
	if errors.Is(err, domain.ErrCancelled) || errors.Is(err, context.Canceled) {
		status = domain.StatusCancelled
	}
	return domain.Outcome{RunID: runID, Status: status, Err: err, State: state}
}
