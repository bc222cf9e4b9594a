package runtime

import (
	"context"

	"github.com/aretw0/lattice/pkg/domain"
)

// runSubGraph walks a nested graph. Shared mode runs it on the parent state; fork mode
// runs it on a deep copy and merges back only the declared output keys. In both modes
// the nested steps count toward the run step ceiling.
func (r *run) runSubGraph(ctx context.Context, node *domain.Node, state *domain.RunState) error {
	cfg := node.SubGraph
	sub := cfg.Graph
	r.depth++
	defer func() { r.depth-- }()

	var output any
	switch cfg.Isolation {
	case domain.IsolationForkAndMerge:
		fork := state.Clone()
		fork.CurrentNodeID = sub.Start().ID
		out, _, err := r.walk(ctx, sub, fork)
		if err != nil {
			return err
		}
		for _, key := range cfg.OutputKeys {
			if v, ok := fork.Get(key); ok {
				state.Set(key, v)
			}
		}
		state.Step = fork.Step
		output = out

	default:
		parent := state.CurrentNodeID
		state.CurrentNodeID = sub.Start().ID
		out, _, err := r.walk(ctx, sub, state)
		state.CurrentNodeID = parent
		if err != nil {
			return err
		}
		output = out
	}

	if cfg.ResultKey != "" {
		state.Set(cfg.ResultKey, output)
	}
	return nil
}
