package dsl

import "github.com/aretw0/lattice/pkg/domain"

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.Node
	edges   []domain.Edge
	builder *Builder
}

// Start marks the node as the start node.
func (n *NodeBuilder) Start() *NodeBuilder {
	n.node.Kind = domain.KindStart
	return n
}

// Describe sets a human readable description.
func (n *NodeBuilder) Describe(text string) *NodeBuilder {
	n.node.Description = text
	return n
}

// LLM makes the node a model call.
func (n *NodeBuilder) LLM(cfg domain.LLMConfig) *NodeBuilder {
	n.node.Kind = domain.KindLLMCall
	n.node.LLM = &cfg
	return n
}

// CallTools makes the node execute the tool calls of the last model turn.
// An optional config overrides the engine timeout and concurrency.
func (n *NodeBuilder) CallTools(cfg ...domain.ToolConfig) *NodeBuilder {
	n.node.Kind = domain.KindToolCall
	if len(cfg) > 0 {
		c := cfg[0]
		n.node.Tool = &c
	}
	return n
}

// Transform makes the node apply fn to the run state.
func (n *NodeBuilder) Transform(fn domain.TransformFunc) *NodeBuilder {
	n.node.Kind = domain.KindTransform
	n.node.Transform = fn
	return n
}

// SubGraph makes the node run a nested graph.
func (n *NodeBuilder) SubGraph(cfg domain.SubGraphConfig) *NodeBuilder {
	n.node.Kind = domain.KindSubGraph
	n.node.SubGraph = &cfg
	return n
}

// Terminal marks the node as a terminal node. The run output is the last assistant
// message unless an output function is given.
func (n *NodeBuilder) Terminal(output ...func(*domain.RunState) any) *NodeBuilder {
	n.node.Kind = domain.KindTerminal
	if len(output) > 0 && output[0] != nil {
		n.node.Terminal = &domain.TerminalConfig{Output: output[0]}
	}
	return n
}

// Go adds an unconditional transition to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	return n.BranchAt(0, Always(), target)
}

// Branch adds a conditional transition to the target node. Branches are evaluated in
// declaration order.
func (n *NodeBuilder) Branch(cond Condition, target string) *NodeBuilder {
	return n.BranchAt(0, cond, target)
}

// BranchAt adds a conditional transition with an explicit priority: lower values are
// evaluated first.
func (n *NodeBuilder) BranchAt(priority int, cond Condition, target string) *NodeBuilder {
	n.edges = append(n.edges, domain.Edge{
		From:     n.node.ID,
		To:       target,
		Guard:    cond.Guard,
		Priority: priority,
		Label:    cond.Label,
	})
	return n
}

// Build returns the underlying domain.Node.
func (n *NodeBuilder) Build() domain.Node {
	return n.node
}
