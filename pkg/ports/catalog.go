package ports

import "github.com/aretw0/lattice/pkg/domain"

// GraphCatalog resolves strategy graphs by name. Serving adapters (HTTP, MCP) and the
// YAML loader (sub-graph references) look graphs up through it.
type GraphCatalog interface {
	// Graph returns the named graph or an error wrapping domain.ErrGraphNotFound.
	Graph(name string) (*domain.Graph, error)
	// Graphs returns the known graph names in a deterministic order.
	Graphs() []string
}
