package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/lattice/pkg/domain"
)

// run carries what one Run call needs besides the state it mutates.
type run struct {
	engine *Engine
	runID  string
	root   *domain.Graph
	depth  int
}

// Run drives state through g until a terminal node is executed, the run fails or ctx
// is cancelled. state must be positioned on a node of g: a fresh state sits on the
// start node, a checkpointed one on the last node it entered. A non-nil input is stored
// in scratch and appended to the history as a user message.
//
// Run never returns an error: every failure is reported in the Outcome, whose State is
// the last consistent state of the run.
func (e *Engine) Run(ctx context.Context, g *domain.Graph, state *domain.RunState, input any, resumed bool) domain.Outcome {
	r := &run{engine: e, runID: state.RunID, root: g}
	if state.GraphName == "" {
		state.GraphName = g.Name()
	}
	if err := applyInput(state, input); err != nil {
		return r.finish(ctx, nil, state, err)
	}

	r.emit(ctx, &domain.RunStarted{
		EventBase: r.base(g, state, domain.EventRunStarted),
		Input:     input,
		Resumed:   resumed,
		State:     state.Clone(),
	})
	e.logger.DebugContext(ctx, "run started", "run_id", state.RunID, "graph", g.Name(), "step", state.Step, "resumed", resumed)

	output, last, err := r.walk(ctx, g, state)
	return r.finish(ctx, output, last, err)
}

// walk executes nodes of g on state until a terminal node of g ran. On failure it
// returns the state as it was before the failing step.
func (r *run) walk(ctx context.Context, g *domain.Graph, state *domain.RunState) (any, *domain.RunState, error) {
	e := r.engine
	for {
		if err := ctx.Err(); err != nil {
			return nil, state, cancelled(err)
		}

		node, err := next(g, state)
		if err != nil {
			return nil, state, err
		}
		if state.Step >= e.maxSteps {
			return nil, state, &domain.StepLimitError{Limit: e.maxSteps, NodeID: node.ID}
		}

		snapshot := state.Clone()
		state.Step++
		state.CurrentNodeID = node.ID
		r.emit(ctx, &domain.NodeEntered{
			EventBase: r.base(g, state, domain.EventNodeEntered),
			NodeID:    node.ID,
			Kind:      node.Kind,
			Nested:    r.depth > 0,
			State:     snapshot,
		})
		e.logger.DebugContext(ctx, "node entered", "run_id", r.runID, "graph", g.Name(), "node", node.ID, "step", state.Step)

		output, done, err := r.execute(ctx, g, node, state)
		if err != nil {
			return nil, snapshot, err
		}
		if done {
			return output, state, nil
		}
	}
}

// next selects the following node, turning a panicking guard into an error.
func next(g *domain.Graph, state *domain.RunState) (node *domain.Node, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &domain.PanicError{Where: fmt.Sprintf("guard leaving node %q", state.CurrentNodeID), Value: rec}
		}
	}()
	return g.Next(state)
}

func (r *run) execute(ctx context.Context, g *domain.Graph, node *domain.Node, state *domain.RunState) (output any, done bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &domain.NodeError{NodeID: node.ID, Err: &domain.PanicError{Where: "node " + node.ID, Value: rec}}
		}
	}()

	switch node.Kind {
	case domain.KindLLMCall:
		return nil, false, r.callModel(ctx, g, node, state)
	case domain.KindToolCall:
		return nil, false, r.callTools(ctx, g, node, state)
	case domain.KindTransform:
		if err := node.Transform(state); err != nil {
			return nil, false, &domain.NodeError{NodeID: node.ID, Err: err}
		}
		return nil, false, nil
	case domain.KindSubGraph:
		return nil, false, r.runSubGraph(ctx, node, state)
	case domain.KindTerminal:
		return terminalOutput(node, state), true, nil
	default:
		return nil, false, &domain.NodeError{NodeID: node.ID, Err: fmt.Errorf("unsupported node kind %q", node.Kind)}
	}
}

func terminalOutput(node *domain.Node, state *domain.RunState) any {
	if node.Terminal != nil && node.Terminal.Output != nil {
		return node.Terminal.Output(state)
	}
	return state.LastAssistantText()
}

func (r *run) finish(ctx context.Context, output any, state *domain.RunState, err error) domain.Outcome {
	e := r.engine
	final := state.Clone()

	if err == nil {
		r.emit(ctx, &domain.RunCompleted{
			EventBase: r.base(r.root, final, domain.EventRunCompleted),
			Output:    output,
			State:     final.Clone(),
		})
		e.logger.DebugContext(ctx, "run completed", "run_id", r.runID, "graph", r.root.Name(), "step", final.Step)
		return domain.Outcome{RunID: r.runID, Status: domain.StatusSucceeded, Output: output, State: final}
	}

	status := domain.StatusFailed
	if errors.Is(err, domain.ErrCancelled) {
		status = domain.StatusCancelled
		e.logger.InfoContext(ctx, "run cancelled", "run_id", r.runID, "graph", r.root.Name(), "step", final.Step)
	} else {
		e.logger.ErrorContext(ctx, "run failed", "run_id", r.runID, "graph", r.root.Name(), "step", final.Step, "err", err)
	}
	r.emit(ctx, &domain.RunFailed{
		EventBase: r.base(r.root, final, domain.EventRunFailed),
		Status:    status,
		Err:       err,
		State:     final.Clone(),
	})
	return domain.Outcome{RunID: r.runID, Status: status, Err: err, State: final}
}

func (r *run) base(g *domain.Graph, state *domain.RunState, t domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp: r.engine.now(),
		Type:      t,
		RunID:     r.runID,
		Graph:     g.Name(),
		Step:      state.Step,
	}
}

// emit publishes synchronously. Observers get a context that outlives cancellation
// of the run so that the final events can still be persisted.
func (r *run) emit(ctx context.Context, event domain.Event) {
	r.engine.pipeline.Publish(context.WithoutCancel(ctx), event)
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", domain.ErrCancelled, cause)
}

func applyInput(state *domain.RunState, input any) error {
	if input == nil {
		return nil
	}
	state.Set(domain.ScratchInput, input)

	switch v := input.(type) {
	case string:
		state.Append(domain.UserMessage(v))
	case domain.Message:
		state.Append(v.Clone())
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode run input: %w", err)
		}
		state.Append(domain.UserMessage(string(data)))
	}
	return nil
}
