package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/lattice/pkg/domain"
)

// Catalog implements ports.GraphCatalog using an in-memory map.
type Catalog struct {
	mu     sync.RWMutex
	graphs map[string]*domain.Graph
}

// NewCatalog creates a catalog holding the given graphs.
func NewCatalog(graphs ...*domain.Graph) (*Catalog, error) {
	c := &Catalog{graphs: make(map[string]*domain.Graph)}
	for _, g := range graphs {
		if err := c.Add(g); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add registers a graph under its name. Names must be unique.
func (c *Catalog) Add(g *domain.Graph) error {
	if g == nil || g.Name() == "" {
		return fmt.Errorf("graph must have a name")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.graphs[g.Name()]; exists {
		return fmt.Errorf("graph %q already registered", g.Name())
	}
	c.graphs[g.Name()] = g
	return nil
}

// Graph retrieves a graph by name.
func (c *Catalog) Graph(name string) (*domain.Graph, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.graphs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, name)
	}
	return g, nil
}

// Graphs returns all graph names, sorted.
func (c *Catalog) Graphs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.graphs))
	for k := range c.graphs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
