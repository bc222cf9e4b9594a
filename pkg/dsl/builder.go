package dsl

import (
	"fmt"

	"github.com/aretw0/lattice/pkg/domain"
)

// DefaultEntry is the id of the node treated as the start node when no node is
// explicitly marked with Start.
const DefaultEntry = "start"

// Builder manages the graph construction.
type Builder struct {
	name  string
	order []string
	nodes map[string]*NodeBuilder
	entry string
}

// New creates a new graph builder.
func New(name string) *Builder {
	return &Builder{
		name:  name,
		nodes: make(map[string]*NodeBuilder),
		entry: DefaultEntry,
	}
}

// Entry changes the id of the implicit start node.
func (b *Builder) Entry(id string) *Builder {
	b.entry = id
	return b
}

// Add creates a new node in the graph.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:    domain.Node{ID: id},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Build validates and compiles the graph.
func (b *Builder) Build() (*domain.Graph, error) {
	nodes := make([]domain.Node, 0, len(b.order))
	var edges []domain.Edge
	for _, id := range b.order {
		nb := b.nodes[id]
		node := nb.node
		if node.Kind == "" {
			if id != b.entry {
				return nil, &domain.InvalidGraphError{Graph: b.name, Reason: fmt.Sprintf("node %q has no kind", id)}
			}
			node.Kind = domain.KindStart
		}
		nodes = append(nodes, node)
		edges = append(edges, nb.edges...)
	}
	return domain.NewGraph(b.name, nodes, edges)
}

// MustBuild is like Build but panics on error. Intended for package-level graphs.
func (b *Builder) MustBuild() *domain.Graph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}
