package dsl

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/lattice/pkg/adapters/memory"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Loader compiles YAML graph definitions into domain graphs.
type Loader struct {
	library  *Library
	catalog  ports.GraphCatalog
	validate *validator.Validate
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLibrary sets the transform library. Defaults to NewLibrary().
func WithLibrary(lib *Library) LoaderOption {
	return func(l *Loader) {
		l.library = lib
	}
}

// WithCatalog sets the catalog used to resolve sub-graph references that are not
// part of the loaded files.
func WithCatalog(c ports.GraphCatalog) LoaderOption {
	return func(l *Loader) {
		l.catalog = c
	}
}

// NewLoader creates a loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		library:  NewLibrary(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Parse decodes and validates a YAML definition without compiling it.
func (l *Loader) Parse(data []byte) (*GraphDefinition, error) {
	var raw map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse graph definition: %w", err)
	}

	var def GraphDefinition
	md, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &def,
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return nil, err
	}
	if err := md.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode graph definition: %w", err)
	}

	if err := l.validate.Struct(&def); err != nil {
		return nil, &domain.InvalidGraphError{Graph: def.Name, Reason: err.Error()}
	}
	return &def, nil
}

// Load parses and compiles a single definition.
// Sub-graph references are resolved through the catalog.
func (l *Loader) Load(data []byte) (*domain.Graph, error) {
	def, err := l.Parse(data)
	if err != nil {
		return nil, err
	}
	return l.Compile(def)
}

// LoadFile reads and compiles a single YAML file.
func (l *Loader) LoadFile(path string) (*domain.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph %s: %w", path, err)
	}
	g, err := l.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Compile turns a definition into a graph, resolving sub-graphs through the catalog.
func (l *Loader) Compile(def *GraphDefinition) (*domain.Graph, error) {
	return l.compile(def, l.fromCatalog)
}

// LoadDir compiles every .yaml and .yml file of dir into a catalog. Sub-graph
// references are resolved among the loaded files first, then through the catalog.
func (l *Loader) LoadDir(dir string) (*memory.Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph directory: %w", err)
	}

	defs := make(map[string]*GraphDefinition)
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read graph %s: %w", path, err)
		}
		def, err := l.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if _, dup := defs[def.Name]; dup {
			return nil, fmt.Errorf("%s: duplicate graph name %q", path, def.Name)
		}
		defs[def.Name] = def
	}

	built := make(map[string]*domain.Graph, len(defs))
	visiting := make(map[string]bool)

	var resolve func(name string) (*domain.Graph, error)
	resolve = func(name string) (*domain.Graph, error) {
		if g, ok := built[name]; ok {
			return g, nil
		}
		def, ok := defs[name]
		if !ok {
			return l.fromCatalog(name)
		}
		if visiting[name] {
			return nil, &domain.InvalidGraphError{Graph: name, Reason: "sub-graph cycle"}
		}
		visiting[name] = true
		defer delete(visiting, name)

		g, err := l.compile(def, resolve)
		if err != nil {
			return nil, err
		}
		built[name] = g
		return g, nil
	}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	catalog, _ := memory.NewCatalog()
	for _, name := range names {
		g, err := resolve(name)
		if err != nil {
			return nil, err
		}
		if err := catalog.Add(g); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

func (l *Loader) fromCatalog(name string) (*domain.Graph, error) {
	if l.catalog == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, name)
	}
	return l.catalog.Graph(name)
}

func (l *Loader) compile(def *GraphDefinition, resolve func(string) (*domain.Graph, error)) (*domain.Graph, error) {
	nodes := make([]domain.Node, 0, len(def.Nodes))
	for _, nd := range def.Nodes {
		node, err := l.compileNode(def.Name, nd, resolve)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	edges := make([]domain.Edge, 0, len(def.Edges))
	for _, ed := range def.Edges {
		cond, err := ParseCondition(ed.When)
		if err != nil {
			return nil, &domain.InvalidGraphError{Graph: def.Name, Reason: fmt.Sprintf("edge %s->%s: %v", ed.From, ed.To, err)}
		}
		label := ed.Label
		if label == "" {
			label = cond.Label
		}
		edges = append(edges, domain.Edge{
			From:     ed.From,
			To:       ed.To,
			Guard:    cond.Guard,
			Priority: ed.Priority,
			Label:    label,
		})
	}
	return domain.NewGraph(def.Name, nodes, edges)
}

func (l *Loader) compileNode(graph string, nd NodeDefinition, resolve func(string) (*domain.Graph, error)) (domain.Node, error) {
	node := domain.Node{
		ID:          nd.ID,
		Kind:        domain.NodeKind(nd.Kind),
		Description: nd.Description,
	}
	invalid := func(format string, args ...any) error {
		return &domain.InvalidGraphError{Graph: graph, Reason: fmt.Sprintf("node %q: ", nd.ID) + fmt.Sprintf(format, args...)}
	}

	switch node.Kind {
	case domain.KindLLMCall:
		cfg := domain.LLMConfig{}
		if d := nd.LLM; d != nil {
			cfg = domain.LLMConfig{
				Model:        d.Model,
				SystemPrompt: d.SystemPrompt,
				Params:       d.Params,
				Tools:        d.Tools,
				AllTools:     d.AllTools,
				Stream:       d.Stream,
				Timeout:      d.Timeout,
			}
		}
		node.LLM = &cfg
	case domain.KindToolCall:
		if d := nd.Tool; d != nil {
			node.Tool = &domain.ToolConfig{Timeout: d.Timeout, MaxConcurrency: d.MaxConcurrency}
		}
	case domain.KindTransform:
		if nd.Transform == "" {
			return node, invalid("transform name is required")
		}
		fn, err := l.library.Build(nd.Transform, nd.Args)
		if err != nil {
			return node, invalid("%v", err)
		}
		node.Transform = fn
	case domain.KindSubGraph:
		if nd.SubGraph == nil {
			return node, invalid("subgraph block is required")
		}
		nested, err := resolve(nd.SubGraph.Graph)
		if err != nil {
			var ige *domain.InvalidGraphError
			if errors.As(err, &ige) {
				return node, err
			}
			return node, fmt.Errorf("node %q: %w", nd.ID, err)
		}
		isolation := domain.IsolationMode(nd.SubGraph.Isolation)
		if isolation == "" {
			isolation = domain.IsolationShared
		}
		node.SubGraph = &domain.SubGraphConfig{
			Graph:      nested,
			Isolation:  isolation,
			OutputKeys: nd.SubGraph.OutputKeys,
			ResultKey:  nd.SubGraph.ResultKey,
		}
	case domain.KindTerminal:
		output, err := terminalOutput(nd.Output)
		if err != nil {
			return node, invalid("%v", err)
		}
		if output != nil {
			node.Terminal = &domain.TerminalConfig{Output: output}
		}
	}
	return node, nil
}

func terminalOutput(expr string) (func(*domain.RunState) any, error) {
	switch expr {
	case "", "last_message":
		return nil, nil
	case "messages":
		return func(s *domain.RunState) any { return s.Clone().Messages }, nil
	case "scratch":
		return func(s *domain.RunState) any { return domain.CloneMap(s.Scratch) }, nil
	}
	if key, ok := strings.CutPrefix(expr, "scratch:"); ok && key != "" {
		return func(s *domain.RunState) any {
			v, _ := s.Get(key)
			return v
		}, nil
	}
	return nil, fmt.Errorf("unknown output %q", expr)
}
