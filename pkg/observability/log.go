package observability

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/lattice/pkg/domain"
)

// LogObserver writes one structured record per event. At debug level it also logs the
// state diff between consecutive node entries of a run.
type LogObserver struct {
	logger *slog.Logger

	mu   sync.Mutex
	last map[string]*domain.RunState
}

// NewLogObserver creates a log observer writing to logger.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger, last: make(map[string]*domain.RunState)}
}

func (l *LogObserver) Name() string { return "log" }

func (l *LogObserver) attrs(e domain.Event) []any {
	b := e.Base()
	return []any{"run_id", b.RunID, "graph", b.Graph, "step", b.Step}
}

func (l *LogObserver) OnRunStarted(ctx context.Context, e *domain.RunStarted) error {
	l.remember(e.RunID, e.State)
	l.logger.InfoContext(ctx, "run started", append(l.attrs(e), "resumed", e.Resumed)...)
	return nil
}

func (l *LogObserver) OnNodeEntered(ctx context.Context, e *domain.NodeEntered) error {
	l.logger.InfoContext(ctx, "node entered", append(l.attrs(e), "node_id", e.NodeID, "kind", string(e.Kind))...)

	if l.logger.Enabled(ctx, slog.LevelDebug) {
		l.mu.Lock()
		prev := l.last[e.RunID]
		l.mu.Unlock()
		if d := domain.Diff(prev, e.State); d != nil {
			l.logger.DebugContext(ctx, "state changed", append(l.attrs(e), "diff", d)...)
		}
	}
	l.remember(e.RunID, e.State)
	return nil
}

func (l *LogObserver) OnModelCallStarted(ctx context.Context, e *domain.ModelCallStarted) error {
	l.logger.DebugContext(ctx, "model call started",
		append(l.attrs(e), "node_id", e.NodeID, "attempt", e.Attempt, "model", e.Request.Model, "messages", len(e.Request.Messages))...)
	return nil
}

func (l *LogObserver) OnModelCallCompleted(ctx context.Context, e *domain.ModelCallCompleted) error {
	attrs := append(l.attrs(e),
		"node_id", e.NodeID,
		"attempt", e.Attempt,
		"model", e.Model,
		"from_cache", e.FromCache,
		"duration", e.Duration,
	)
	if e.Err != nil {
		l.logger.WarnContext(ctx, "model call failed", append(attrs, "error", e.Err)...)
		return nil
	}
	if e.Response != nil {
		attrs = append(attrs, "tool_calls", len(e.Response.ToolCalls), "finish_reason", e.Response.FinishReason)
	}
	l.logger.InfoContext(ctx, "model call completed", attrs...)
	return nil
}

func (l *LogObserver) OnToolCallStarted(ctx context.Context, e *domain.ToolCallStarted) error {
	l.logger.DebugContext(ctx, "tool call started", append(l.attrs(e), "node_id", e.NodeID, "tool", e.Call.Name, "call_id", e.Call.ID)...)
	return nil
}

func (l *LogObserver) OnToolCallCompleted(ctx context.Context, e *domain.ToolCallCompleted) error {
	attrs := append(l.attrs(e), "node_id", e.NodeID, "tool", e.Result.Name, "call_id", e.Result.ID, "duration", e.Duration)
	if e.Result.Failed() {
		l.logger.WarnContext(ctx, "tool call failed",
			append(attrs, "kind", string(e.Result.Failure.Kind), "error", e.Result.Failure.Message)...)
		return nil
	}
	l.logger.InfoContext(ctx, "tool call completed", attrs...)
	return nil
}

func (l *LogObserver) OnRunCompleted(ctx context.Context, e *domain.RunCompleted) error {
	l.forget(e.RunID)
	l.logger.InfoContext(ctx, "run completed", l.attrs(e)...)
	return nil
}

func (l *LogObserver) OnRunFailed(ctx context.Context, e *domain.RunFailed) error {
	l.forget(e.RunID)
	l.logger.ErrorContext(ctx, "run failed", append(l.attrs(e), "status", string(e.Status), "error", e.Err)...)
	return nil
}

func (l *LogObserver) remember(runID string, s *domain.RunState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last[runID] = s
}

func (l *LogObserver) forget(runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.last, runID)
}
