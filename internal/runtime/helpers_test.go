package runtime_test

import (
	"context"
	"testing"

	"github.com/aretw0/lattice/internal/runtime"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/observability"
	"github.com/aretw0/lattice/pkg/registry"
	"github.com/aretw0/lattice/pkg/schema"
	"github.com/stretchr/testify/require"
)

func hasToolCalls(s *domain.RunState) bool { return s.HasPendingToolCalls() }
func noToolCalls(s *domain.RunState) bool  { return !s.HasPendingToolCalls() }

// agentGraph is start -> ask -(tool calls)-> lookup -> ask -(no tool calls)-> done.
func agentGraph(t *testing.T) *domain.Graph {
	t.Helper()
	g, err := domain.NewGraph("agent",
		[]domain.Node{
			{ID: "start", Kind: domain.KindStart},
			{ID: "ask", Kind: domain.KindLLMCall, LLM: &domain.LLMConfig{Model: "test-model", AllTools: true}},
			{ID: "lookup", Kind: domain.KindToolCall},
			{ID: "done", Kind: domain.KindTerminal},
		},
		[]domain.Edge{
			{From: "start", To: "ask"},
			{From: "ask", To: "lookup", Guard: hasToolCalls, Label: "has tool calls"},
			{From: "ask", To: "done", Guard: noToolCalls, Label: "no tool calls"},
			{From: "lookup", To: "ask"},
		},
	)
	require.NoError(t, err)
	return g
}

func lookupRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.NewRegistry()
	input := schema.Object(map[string]*schema.Field{
		"query": schema.String("what to look up"),
	}, "query")
	require.NoError(t, r.Register(registry.NewFuncTool("lookup", "Looks things up", input,
		func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"result": 42}, nil
		})))
	return r
}

func lookupCall() domain.ToolCall {
	return domain.ToolCall{ID: "c1", Name: "lookup", Args: map[string]any{"query": "the answer"}}
}

func newState(g *domain.Graph) *domain.RunState {
	return domain.NewRunState("run-1", g.Name(), g.Start().ID)
}

func newEngine(rec *observability.Recorder, opts ...runtime.EngineOption) *runtime.Engine {
	base := []runtime.EngineOption{
		runtime.WithPipeline(observability.NewPipeline([]any{rec})),
		runtime.WithRetry(runtime.RetryPolicy{Attempts: 3, Initial: 1e6, Max: 1e6}),
	}
	return runtime.NewEngine(append(base, opts...)...)
}
