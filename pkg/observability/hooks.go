package observability

import (
	"context"

	"github.com/aretw0/lattice/pkg/domain"
)

// Hooks is a function-table observer for callers who only care about a few events.
// Nil fields are skipped.
type Hooks struct {
	OnRunStarted         func(ctx context.Context, e *domain.RunStarted)
	OnNodeEntered        func(ctx context.Context, e *domain.NodeEntered)
	OnModelCallStarted   func(ctx context.Context, e *domain.ModelCallStarted)
	OnModelCallCompleted func(ctx context.Context, e *domain.ModelCallCompleted)
	OnToolCallStarted    func(ctx context.Context, e *domain.ToolCallStarted)
	OnToolCallCompleted  func(ctx context.Context, e *domain.ToolCallCompleted)
	OnRunCompleted       func(ctx context.Context, e *domain.RunCompleted)
	OnRunFailed          func(ctx context.Context, e *domain.RunFailed)
}

func (h Hooks) Name() string { return "hooks" }

// HandleEvent implements ports.EventHandler.
func (h Hooks) HandleEvent(ctx context.Context, event domain.Event) error {
	switch e := event.(type) {
	case *domain.RunStarted:
		if h.OnRunStarted != nil {
			h.OnRunStarted(ctx, e)
		}
	case *domain.NodeEntered:
		if h.OnNodeEntered != nil {
			h.OnNodeEntered(ctx, e)
		}
	case *domain.ModelCallStarted:
		if h.OnModelCallStarted != nil {
			h.OnModelCallStarted(ctx, e)
		}
	case *domain.ModelCallCompleted:
		if h.OnModelCallCompleted != nil {
			h.OnModelCallCompleted(ctx, e)
		}
	case *domain.ToolCallStarted:
		if h.OnToolCallStarted != nil {
			h.OnToolCallStarted(ctx, e)
		}
	case *domain.ToolCallCompleted:
		if h.OnToolCallCompleted != nil {
			h.OnToolCallCompleted(ctx, e)
		}
	case *domain.RunCompleted:
		if h.OnRunCompleted != nil {
			h.OnRunCompleted(ctx, e)
		}
	case *domain.RunFailed:
		if h.OnRunFailed != nil {
			h.OnRunFailed(ctx, e)
		}
	}
	return nil
}
