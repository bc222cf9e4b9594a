package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hasToolCalls(s *RunState) bool { return s.HasPendingToolCalls() }
func noToolCalls(s *RunState) bool  { return !s.HasPendingToolCalls() }

func agentGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := NewGraph("agent",
		[]Node{
			{ID: "start", Kind: KindStart},
			{ID: "ask", Kind: KindLLMCall},
			{ID: "lookup", Kind: KindToolCall},
			{ID: "done", Kind: KindTerminal},
		},
		[]Edge{
			{From: "start", To: "ask"},
			{From: "ask", To: "lookup", Guard: hasToolCalls},
			{From: "ask", To: "done", Guard: noToolCalls},
			{From: "lookup", To: "ask"},
		},
	)
	require.NoError(t, err)
	return g
}

func TestNewGraph_Valid(t *testing.T) {
	g := agentGraph(t)

	assert.Equal(t, "agent", g.Name())
	assert.Equal(t, "start", g.Start().ID)
	assert.Len(t, g.Nodes(), 4)
	assert.Len(t, g.Edges(), 4)

	ask, ok := g.Node("ask")
	require.True(t, ok)
	assert.NotNil(t, ask.LLM, "llm nodes get a default config")
}

func TestNewGraph_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		nodes  []Node
		edges  []Edge
		reason string
	}{
		{
			name:   "No Start",
			nodes:  []Node{{ID: "done", Kind: KindTerminal}},
			reason: "no start node",
		},
		{
			name:   "Two Starts",
			nodes:  []Node{{ID: "a", Kind: KindStart}, {ID: "b", Kind: KindStart}, {ID: "done", Kind: KindTerminal}},
			edges:  []Edge{{From: "a", To: "done"}, {From: "b", To: "done"}},
			reason: "multiple start nodes",
		},
		{
			name:   "No Terminal",
			nodes:  []Node{{ID: "start", Kind: KindStart}, {ID: "t", Kind: KindTransform, Transform: func(*RunState) error { return nil }}},
			edges:  []Edge{{From: "start", To: "t"}, {From: "t", To: "t"}},
			reason: "no terminal node",
		},
		{
			name:   "Duplicate Id",
			nodes:  []Node{{ID: "start", Kind: KindStart}, {ID: "start", Kind: KindTerminal}},
			reason: "duplicate node id",
		},
		{
			name:   "Unknown Target",
			nodes:  []Node{{ID: "start", Kind: KindStart}, {ID: "done", Kind: KindTerminal}},
			edges:  []Edge{{From: "start", To: "nowhere"}},
			reason: "targets unknown node",
		},
		{
			name:   "Edge Leaving Terminal",
			nodes:  []Node{{ID: "start", Kind: KindStart}, {ID: "done", Kind: KindTerminal}},
			edges:  []Edge{{From: "start", To: "done"}, {From: "done", To: "done"}},
			reason: "has an outgoing edge",
		},
		{
			name:   "Dead End",
			nodes:  []Node{{ID: "start", Kind: KindStart}, {ID: "ask", Kind: KindLLMCall}, {ID: "done", Kind: KindTerminal}},
			edges:  []Edge{{From: "start", To: "done"}},
			reason: `node "ask" has no outgoing edge`,
		},
		{
			name:   "Transform Without Function",
			nodes:  []Node{{ID: "start", Kind: KindStart}, {ID: "t", Kind: KindTransform}, {ID: "done", Kind: KindTerminal}},
			reason: "transform node without a function",
		},
		{
			name:   "Subgraph Without Graph",
			nodes:  []Node{{ID: "start", Kind: KindStart}, {ID: "sub", Kind: KindSubGraph}, {ID: "done", Kind: KindTerminal}},
			reason: "subgraph node without a graph",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph("bad", tt.nodes, tt.edges)
			require.Error(t, err)
			var invalid *InvalidGraphError
			require.ErrorAs(t, err, &invalid)
			assert.Contains(t, invalid.Reason, tt.reason)
		})
	}
}

func TestGraph_Next_FollowsGuards(t *testing.T) {
	g := agentGraph(t)
	state := NewRunState("run-1", "agent", "ask")

	next, err := g.Next(state)
	require.NoError(t, err)
	assert.Equal(t, "done", next.ID)

	state.PendingToolCalls = []ToolCall{{ID: "c1", Name: "lookup"}}
	next, err = g.Next(state)
	require.NoError(t, err)
	assert.Equal(t, "lookup", next.ID)
}

func TestGraph_Next_PriorityThenDeclarationOrder(t *testing.T) {
	always := func(*RunState) bool { return true }
	g, err := NewGraph("ties",
		[]Node{
			{ID: "start", Kind: KindStart},
			{ID: "a", Kind: KindTerminal},
			{ID: "b", Kind: KindTerminal},
			{ID: "c", Kind: KindTerminal},
		},
		[]Edge{
			{From: "start", To: "a", Guard: always, Priority: 5},
			{From: "start", To: "b", Guard: always, Priority: 1},
			{From: "start", To: "c", Guard: always, Priority: 1},
		},
	)
	require.NoError(t, err)

	next, err := g.Next(NewRunState("r", "ties", "start"))
	require.NoError(t, err)
	assert.Equal(t, "b", next.ID, "lowest priority wins, declaration order breaks ties")

	outgoing := g.Outgoing("start")
	require.Len(t, outgoing, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{outgoing[0].To, outgoing[1].To, outgoing[2].To})
}

func TestGraph_Next_Stuck(t *testing.T) {
	never := func(*RunState) bool { return false }
	g, err := NewGraph("stuck",
		[]Node{{ID: "start", Kind: KindStart}, {ID: "done", Kind: KindTerminal}},
		[]Edge{{From: "start", To: "done", Guard: never}},
	)
	require.NoError(t, err)

	_, err = g.Next(NewRunState("r", "stuck", "start"))
	var stuck *StuckStateError
	require.ErrorAs(t, err, &stuck)
	assert.Equal(t, "start", stuck.NodeID)
}
