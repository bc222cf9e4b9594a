package dsl_test

import (
	"errors"
	"testing"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agentBuilder() *dsl.Builder {
	b := dsl.New("agent")

	b.Add("start").Go("ask")

	b.Add("ask").
		LLM(domain.LLMConfig{Model: "gpt-test", AllTools: true}).
		Branch(dsl.HasToolCalls(), "lookup").
		Branch(dsl.NoToolCalls(), "done")

	b.Add("lookup").CallTools().Go("ask")

	b.Add("done").Terminal()
	return b
}

func TestBuilder_AgentLoop(t *testing.T) {
	g, err := agentBuilder().Build()
	require.NoError(t, err)

	assert.Equal(t, "agent", g.Name())
	assert.Equal(t, "start", g.Start().ID)

	ask, ok := g.Node("ask")
	require.True(t, ok)
	assert.Equal(t, domain.KindLLMCall, ask.Kind)
	assert.Equal(t, "gpt-test", ask.LLM.Model)

	state := domain.NewRunState("r", "agent", "ask")
	next, err := g.Next(state)
	require.NoError(t, err)
	assert.Equal(t, "done", next.ID)

	state.PendingToolCalls = []domain.ToolCall{{ID: "1", Name: "lookup"}}
	next, err = g.Next(state)
	require.NoError(t, err)
	assert.Equal(t, "lookup", next.ID)

	labels := []string{}
	for _, e := range g.Outgoing("ask") {
		labels = append(labels, e.Label)
	}
	assert.Equal(t, []string{"has_tool_calls", "no_tool_calls"}, labels)
}

func TestBuilder_AddReturnsExistingNode(t *testing.T) {
	b := dsl.New("g")
	b.Add("start").Go("done")
	b.Add("done").Terminal()
	b.Add("done").Describe("the end")

	g, err := b.Build()
	require.NoError(t, err)
	done, _ := g.Node("done")
	assert.Equal(t, domain.KindTerminal, done.Kind)
	assert.Equal(t, "the end", done.Description)
	assert.Len(t, g.Nodes(), 2)
}

func TestBuilder_PriorityOverridesDeclarationOrder(t *testing.T) {
	b := dsl.New("g")
	b.Add("start").
		Go("a").
		BranchAt(-1, dsl.ScratchSet("shortcut"), "b")
	b.Add("a").Terminal()
	b.Add("b").Terminal()
	g := b.MustBuild()

	state := domain.NewRunState("r", "g", "start")
	next, err := g.Next(state)
	require.NoError(t, err)
	assert.Equal(t, "a", next.ID)

	state.Set("shortcut", true)
	next, err = g.Next(state)
	require.NoError(t, err)
	assert.Equal(t, "b", next.ID)
}

func TestBuilder_CustomEntry(t *testing.T) {
	b := dsl.New("g").Entry("begin")
	b.Add("begin").Go("end")
	b.Add("end").Terminal(func(s *domain.RunState) any { return "fixed" })

	g, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "begin", g.Start().ID)
	end, _ := g.Node("end")
	require.NotNil(t, end.Terminal)
	assert.Equal(t, "fixed", end.Terminal.Output(nil))
}

func TestBuilder_Errors(t *testing.T) {
	t.Run("node without kind", func(t *testing.T) {
		b := dsl.New("g")
		b.Add("start").Go("orphan")
		b.Add("orphan").Go("done")
		b.Add("done").Terminal()

		_, err := b.Build()
		var ige *domain.InvalidGraphError
		require.True(t, errors.As(err, &ige))
		assert.Contains(t, ige.Reason, "orphan")
	})

	t.Run("unknown target", func(t *testing.T) {
		b := dsl.New("g")
		b.Add("start").Go("missing")
		b.Add("done").Terminal()

		_, err := b.Build()
		assert.Error(t, err)
	})

	t.Run("must build panics", func(t *testing.T) {
		assert.Panics(t, func() { dsl.New("empty").MustBuild() })
	})
}

func TestBuilder_TransformAndSubGraph(t *testing.T) {
	inner := dsl.New("inner")
	inner.Add("start").Go("mark")
	inner.Add("mark").Transform(func(s *domain.RunState) error {
		s.Set("marked", true)
		return nil
	}).Go("done")
	inner.Add("done").Terminal()
	innerGraph := inner.MustBuild()

	outer := dsl.New("outer")
	outer.Add("start").Go("nested")
	outer.Add("nested").SubGraph(domain.SubGraphConfig{
		Graph:      innerGraph,
		Isolation:  domain.IsolationForkAndMerge,
		OutputKeys: []string{"marked"},
	}).Go("done")
	outer.Add("done").Terminal()

	g, err := outer.Build()
	require.NoError(t, err)
	nested, _ := g.Node("nested")
	assert.Equal(t, domain.KindSubGraph, nested.Kind)
	assert.Same(t, innerGraph, nested.SubGraph.Graph)
}
