package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aretw0/lattice/internal/logging"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
)

// Pipeline dispatches events to its observers in subscription order.
type Pipeline struct {
	mu        sync.RWMutex
	observers []any
	logger    *slog.Logger
	failures  atomic.Int64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger receiving observer failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline creates a pipeline with the given observers, in order.
func NewPipeline(observers []any, opts ...Option) *Pipeline {
	p := &Pipeline{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	for _, o := range observers {
		p.Subscribe(o)
	}
	return p
}

// Subscribe appends an observer. Values implementing none of the handler interfaces
// are accepted and simply never called. Subscribing while a run publishes is safe; the
// new observer sees the following events.
func (p *Pipeline) Subscribe(observer any) {
	if observer == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Len returns the number of observers.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.observers)
}

// Failures returns how many observer invocations failed since creation.
func (p *Pipeline) Failures() int64 {
	return p.failures.Load()
}

// Publish delivers the event to every observer and returns once all of them ran.
// It never fails: observer errors are logged as *domain.ObserverError.
func (p *Pipeline) Publish(ctx context.Context, event domain.Event) {
	if p == nil || event == nil {
		return
	}
	p.mu.RLock()
	observers := make([]any, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, o := range observers {
		if err := p.deliver(ctx, o, event); err != nil {
			p.failures.Add(1)
			p.logger.Warn("observer failed",
				"observer", err.Observer,
				"event", string(err.Event),
				"run_id", event.Base().RunID,
				"error", err.Err,
			)
		}
	}
}

func (p *Pipeline) deliver(ctx context.Context, o any, event domain.Event) (oerr *domain.ObserverError) {
	defer func() {
		if r := recover(); r != nil {
			oerr = &domain.ObserverError{
				Observer: observerName(o),
				Event:    event.Base().Type,
				Err:      &domain.PanicError{Where: "observer", Value: r},
			}
		}
	}()

	if err := dispatch(ctx, o, event); err != nil {
		return &domain.ObserverError{Observer: observerName(o), Event: event.Base().Type, Err: err}
	}
	if h, ok := o.(ports.EventHandler); ok {
		if err := h.HandleEvent(ctx, event); err != nil {
			return &domain.ObserverError{Observer: observerName(o), Event: event.Base().Type, Err: err}
		}
	}
	return nil
}

func dispatch(ctx context.Context, o any, event domain.Event) error {
	switch e := event.(type) {
	case *domain.RunStarted:
		if h, ok := o.(ports.RunStartedHandler); ok {
			return h.OnRunStarted(ctx, e)
		}
	case *domain.NodeEntered:
		if h, ok := o.(ports.NodeEnteredHandler); ok {
			return h.OnNodeEntered(ctx, e)
		}
	case *domain.ModelCallStarted:
		if h, ok := o.(ports.ModelCallStartedHandler); ok {
			return h.OnModelCallStarted(ctx, e)
		}
	case *domain.ModelCallCompleted:
		if h, ok := o.(ports.ModelCallCompletedHandler); ok {
			return h.OnModelCallCompleted(ctx, e)
		}
	case *domain.ToolCallStarted:
		if h, ok := o.(ports.ToolCallStartedHandler); ok {
			return h.OnToolCallStarted(ctx, e)
		}
	case *domain.ToolCallCompleted:
		if h, ok := o.(ports.ToolCallCompletedHandler); ok {
			return h.OnToolCallCompleted(ctx, e)
		}
	case *domain.RunCompleted:
		if h, ok := o.(ports.RunCompletedHandler); ok {
			return h.OnRunCompleted(ctx, e)
		}
	case *domain.RunFailed:
		if h, ok := o.(ports.RunFailedHandler); ok {
			return h.OnRunFailed(ctx, e)
		}
	}
	return nil
}

func observerName(o any) string {
	if n, ok := o.(ports.Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", o)
}
