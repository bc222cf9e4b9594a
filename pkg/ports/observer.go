package ports

import (
	"context"

	"github.com/aretw0/lattice/pkg/domain"
)

// Observers subscribe to the Feature Pipeline and implement any subset of the handler
// interfaces below; unhandled event variants are no-ops. Returned errors are logged by
// the pipeline and never reach the engine.

type RunStartedHandler interface {
	OnRunStarted(ctx context.Context, e *domain.RunStarted) error
}

type NodeEnteredHandler interface {
	OnNodeEntered(ctx context.Context, e *domain.NodeEntered) error
}

type ModelCallStartedHandler interface {
	OnModelCallStarted(ctx context.Context, e *domain.ModelCallStarted) error
}

type ModelCallCompletedHandler interface {
	OnModelCallCompleted(ctx context.Context, e *domain.ModelCallCompleted) error
}

type ToolCallStartedHandler interface {
	OnToolCallStarted(ctx context.Context, e *domain.ToolCallStarted) error
}

type ToolCallCompletedHandler interface {
	OnToolCallCompleted(ctx context.Context, e *domain.ToolCallCompleted) error
}

type RunCompletedHandler interface {
	OnRunCompleted(ctx context.Context, e *domain.RunCompleted) error
}

type RunFailedHandler interface {
	OnRunFailed(ctx context.Context, e *domain.RunFailed) error
}

// EventHandler receives every event, after the variant-specific handler (if any).
type EventHandler interface {
	HandleEvent(ctx context.Context, e domain.Event) error
}

// Named lets an observer choose the name used in logs and metrics.
type Named interface {
	Name() string
}
