package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/lattice/pkg/domain"
	"golang.org/x/sync/errgroup"
)

// callTools executes the pending tool calls of the last model turn concurrently and
// appends their results to the history in request order. Tool failures are data: they
// never fail the step. Cancellation lets started calls finish and drops every result,
// so a cancelled turn has ToolCallStarted events without a matching completion; calls
// not yet started when the run is cancelled are skipped and emit nothing.
func (r *run) callTools(ctx context.Context, g *domain.Graph, node *domain.Node, state *domain.RunState) error {
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}

	e := r.engine
	timeout, limit := e.toolTimeout, e.toolConcurrency
	if node.Tool != nil {
		if node.Tool.Timeout > 0 {
			timeout = node.Tool.Timeout
		}
		if node.Tool.MaxConcurrency > 0 {
			limit = node.Tool.MaxConcurrency
		}
	}

	calls := make([]domain.ToolCall, len(state.PendingToolCalls))
	for i, c := range state.PendingToolCalls {
		calls[i] = c.Clone()
	}

	results := make([]domain.ToolResult, len(calls))
	durations := make([]time.Duration, len(calls))

	var (
		eg     errgroup.Group
		emitMu sync.Mutex
	)
	eg.SetLimit(limit)
	for i, call := range calls {
		eg.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			emitMu.Lock()
			r.emit(ctx, &domain.ToolCallStarted{
				EventBase: r.base(g, state, domain.EventToolCallStarted),
				NodeID:    node.ID,
				Call:      call.Clone(),
			})
			emitMu.Unlock()

			started := e.now()
			results[i] = e.invokeTool(ctx, call, timeout)
			durations[i] = e.now().Sub(started)
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}

	for i := range results {
		r.emit(ctx, &domain.ToolCallCompleted{
			EventBase: r.base(g, state, domain.EventToolCallCompleted),
			NodeID:    node.ID,
			Result:    results[i],
			Duration:  durations[i],
		})
	}
	for _, res := range results {
		state.Append(domain.ToolMessage(res))
	}
	state.PendingToolCalls = nil
	return nil
}

// invokeTool runs one call with its own deadline. The call context is detached from
// the run cancellation so a started call can finish; the timeout is enforced even for
// tools that ignore their context.
func (e *Engine) invokeTool(ctx context.Context, call domain.ToolCall, timeout time.Duration) domain.ToolResult {
	if e.registry == nil {
		return domain.FailedResult(call, domain.ToolFailureNotFound, "tool %q not found: no registry configured", call.Name)
	}

	callCtx := context.WithoutCancel(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, timeout)
		defer cancel()
	}

	done := make(chan domain.ToolResult, 1)
	go func() {
		done <- e.registry.Execute(callCtx, call)
	}()

	select {
	case res := <-done:
		return res
	case <-callCtx.Done():
		return domain.FailedResult(call, domain.ToolFailureTimeout, "tool %q timed out after %s", call.Name, timeout)
	}
}
