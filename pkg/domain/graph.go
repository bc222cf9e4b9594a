package domain

import (
	"fmt"
	"sort"
	"time"
)

// NodeKind is the behavior tag of a node.
type NodeKind string

const (
	KindStart     NodeKind = "start"
	KindLLMCall   NodeKind = "llm_call"
	KindToolCall  NodeKind = "tool_call"
	KindTransform NodeKind = "transform"
	KindSubGraph  NodeKind = "subgraph"
	KindTerminal  NodeKind = "terminal"
)

// Guard is a pure, deterministic predicate over the run state.
// A nil Guard always holds.
type Guard func(state *RunState) bool

// TransformFunc mutates the run state without performing I/O.
type TransformFunc func(state *RunState) error

// IsolationMode declares how a sub-graph sees the parent state.
type IsolationMode string

const (
	// IsolationShared runs the nested graph directly on the parent state.
	IsolationShared IsolationMode = "shared"
	// IsolationForkAndMerge runs the nested graph on a deep copy and merges back
	// only the declared output keys.
	IsolationForkAndMerge IsolationMode = "fork_and_merge"
)

// LLMConfig configures an LLMCall node.
type LLMConfig struct {
	// Model overrides the engine default model id.
	Model string
	// SystemPrompt is prepended to every request of this node. It is not stored in history.
	SystemPrompt string
	Params       Params
	// Tools lists the registered tools advertised to the model. AllTools advertises every tool.
	Tools    []string
	AllTools bool
	// Stream consumes the executor stream when the executor supports it.
	Stream bool
	// Timeout bounds each model call attempt. Zero uses the engine default.
	Timeout time.Duration
}

// ToolConfig configures a ToolCall node.
type ToolConfig struct {
	// Timeout bounds each tool invocation. Zero uses the engine default.
	Timeout time.Duration
	// MaxConcurrency bounds parallel calls of one turn. Zero uses the engine default.
	MaxConcurrency int
}

// SubGraphConfig configures a SubGraph node.
type SubGraphConfig struct {
	Graph     *Graph
	Isolation IsolationMode
	// OutputKeys are the scratch keys copied back to the parent in ForkAndMerge mode.
	OutputKeys []string
	// ResultKey, when set, stores the nested terminal output in the parent scratch.
	ResultKey string
}

// TerminalConfig configures a Terminal node.
type TerminalConfig struct {
	// Output computes the run payload. Nil yields the last assistant message text.
	Output func(state *RunState) any
}

// Node represents a point in the strategy graph.
type Node struct {
	ID          string
	Kind        NodeKind
	Description string

	LLM       *LLMConfig
	Tool      *ToolConfig
	Transform TransformFunc
	SubGraph  *SubGraphConfig
	Terminal  *TerminalConfig
}

// Edge is a guarded transition between two nodes.
type Edge struct {
	From string
	To   string
	// Guard selects the edge; nil always holds.
	Guard Guard
	// Priority breaks ties among satisfied edges: lowest value wins.
	Priority int
	// Label is a human readable description of the guard (used for rendering).
	Label string
}

// Graph is an immutable strategy definition. It is safe for concurrent use.
type Graph struct {
	name    string
	startID string
	nodes   map[string]*Node
	order   []string
	edges   map[string][]Edge // outgoing edges sorted by priority, then declaration order
	decl    []Edge
}

// NewGraph validates the structure and builds a Graph.
// It checks: unique node ids, exactly one start node, at least one terminal node,
// edges between known nodes, no edges leaving a terminal node, an outgoing edge for
// every non-terminal node, and the per-kind configuration.
func NewGraph(name string, nodes []Node, edges []Edge) (*Graph, error) {
	g := &Graph{
		name:  name,
		nodes: make(map[string]*Node, len(nodes)),
		edges: make(map[string][]Edge),
	}

	terminals := 0
	for i := range nodes {
		n := nodes[i]
		if n.ID == "" {
			return nil, &InvalidGraphError{Graph: name, Reason: fmt.Sprintf("node #%d has an empty id", i)}
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, &InvalidGraphError{Graph: name, Reason: fmt.Sprintf("duplicate node id %q", n.ID)}
		}
		if err := validateNode(name, &n); err != nil {
			return nil, err
		}
		switch n.Kind {
		case KindStart:
			if g.startID != "" {
				return nil, &InvalidGraphError{Graph: name, Reason: fmt.Sprintf("multiple start nodes (%q, %q)", g.startID, n.ID)}
			}
			g.startID = n.ID
		case KindTerminal:
			terminals++
		}
		g.nodes[n.ID] = &n
		g.order = append(g.order, n.ID)
	}

	if g.startID == "" {
		return nil, &InvalidGraphError{Graph: name, Reason: "no start node"}
	}
	if terminals == 0 {
		return nil, &InvalidGraphError{Graph: name, Reason: "no terminal node"}
	}

	for _, e := range edges {
		from, ok := g.nodes[e.From]
		if !ok {
			return nil, &InvalidGraphError{Graph: name, Reason: fmt.Sprintf("edge from unknown node %q", e.From)}
		}
		to, ok := g.nodes[e.To]
		if !ok {
			return nil, &InvalidGraphError{Graph: name, Reason: fmt.Sprintf("edge %s -> %s targets unknown node", e.From, e.To)}
		}
		if from.Kind == KindTerminal {
			return nil, &InvalidGraphError{Graph: name, Reason: fmt.Sprintf("terminal node %q has an outgoing edge", e.From)}
		}
		if to.Kind == KindStart {
			return nil, &InvalidGraphError{Graph: name, Reason: fmt.Sprintf("edge %s -> %s re-enters the start node", e.From, e.To)}
		}
		g.edges[e.From] = append(g.edges[e.From], e)
		g.decl = append(g.decl, e)
	}

	for _, id := range g.order {
		if g.nodes[id].Kind != KindTerminal && len(g.edges[id]) == 0 {
			return nil, &InvalidGraphError{Graph: name, Reason: fmt.Sprintf("node %q has no outgoing edge", id)}
		}
	}

	for from := range g.edges {
		sort.SliceStable(g.edges[from], func(i, j int) bool {
			return g.edges[from][i].Priority < g.edges[from][j].Priority
		})
	}

	return g, nil
}

func validateNode(graph string, n *Node) error {
	invalid := func(format string, args ...any) error {
		return &InvalidGraphError{Graph: graph, Reason: fmt.Sprintf("node %q: ", n.ID) + fmt.Sprintf(format, args...)}
	}
	switch n.Kind {
	case KindStart, KindTerminal, KindToolCall:
	case KindLLMCall:
		if n.LLM == nil {
			n.LLM = &LLMConfig{}
		}
	case KindTransform:
		if n.Transform == nil {
			return invalid("transform node without a function")
		}
	case KindSubGraph:
		if n.SubGraph == nil || n.SubGraph.Graph == nil {
			return invalid("subgraph node without a graph")
		}
		switch n.SubGraph.Isolation {
		case "":
			n.SubGraph.Isolation = IsolationShared
		case IsolationShared, IsolationForkAndMerge:
		default:
			return invalid("unknown isolation mode %q", n.SubGraph.Isolation)
		}
	default:
		return invalid("unknown kind %q", n.Kind)
	}
	return nil
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Start returns the start node.
func (g *Graph) Start() *Node { return g.nodes[g.startID] }

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns the nodes in declaration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns all edges in declaration order.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.decl...)
}

// Outgoing returns the outgoing edges of a node in evaluation order.
func (g *Graph) Outgoing(id string) []Edge {
	return append([]Edge(nil), g.edges[id]...)
}

// Next selects the node reached from state.CurrentNodeID: the first satisfied edge in
// priority order (lowest value first, then declaration order). It returns a
// *StuckStateError when no guard holds.
func (g *Graph) Next(state *RunState) (*Node, error) {
	current := state.CurrentNodeID
	if _, ok := g.nodes[current]; !ok {
		return nil, &StuckStateError{Graph: g.name, NodeID: current, Reason: "unknown node"}
	}
	for _, e := range g.edges[current] {
		if e.Guard == nil || e.Guard(state) {
			return g.nodes[e.To], nil
		}
	}
	return nil, &StuckStateError{Graph: g.name, NodeID: current, Reason: "no edge guard satisfied"}
}
