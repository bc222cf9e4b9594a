package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/schema"
)

type entry struct {
	tool   Tool
	input  *schema.Schema
	output *schema.Schema
}

// Registry manages the available tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*entry
	order []string
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*entry),
	}
}

// Register adds a tool to the registry.
// It returns a *domain.ConflictError if the name is taken and an error if one of the
// declared schemas does not compile.
func (r *Registry) Register(tool Tool) error {
	spec := tool.Spec()
	if spec.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	input, err := schema.Compile(spec.InputSchema)
	if err != nil {
		return fmt.Errorf("tool %q: input schema: %w", spec.Name, err)
	}
	output, err := schema.Compile(spec.OutputSchema)
	if err != nil {
		return fmt.Errorf("tool %q: output schema: %w", spec.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[spec.Name]; exists {
		return &domain.ConflictError{Name: spec.Name}
	}
	r.tools[spec.Name] = &entry{tool: tool, input: input, output: output}
	r.order = append(r.order, spec.Name)
	return nil
}

// MustRegister registers tools and panics on the first error.
func (r *Registry) MustRegister(tools ...Tool) *Registry {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Resolve looks up a tool by name. It returns an error wrapping domain.ErrToolNotFound.
func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrToolNotFound, name)
	}
	return e.tool, nil
}

// Execute validates the arguments of call and invokes the tool.
// It never returns an error and never panics: failures are reported in the result.
// Timeouts are the caller's responsibility.
func (r *Registry) Execute(ctx context.Context, call domain.ToolCall) (result domain.ToolResult) {
	r.mu.RLock()
	e, ok := r.tools[call.Name]
	r.mu.RUnlock()

	if !ok {
		return domain.FailedResult(call, domain.ToolFailureNotFound, "tool %q is not registered", call.Name)
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}

	if err := e.input.Validate(args); err != nil {
		return domain.FailedResult(call, domain.ToolFailureInvalidArguments, "%v", err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = domain.FailedResult(call, domain.ToolFailureExecution, "tool panicked: %v", rec)
		}
	}()

	output, err := e.tool.Invoke(ctx, domain.CloneMap(args))
	if err != nil {
		var argErr *ArgumentError
		switch {
		case errors.As(err, &argErr):
			return domain.FailedResult(call, domain.ToolFailureInvalidArguments, "%v", err)
		case errors.Is(err, context.DeadlineExceeded):
			return domain.FailedResult(call, domain.ToolFailureTimeout, "%v", err)
		default:
			return domain.FailedResult(call, domain.ToolFailureExecution, "%v", err)
		}
	}

	if err := e.output.Validate(output); err != nil {
		return domain.FailedResult(call, domain.ToolFailureExecution, "output rejected: %v", err)
	}

	return domain.ToolResult{
		ID:     call.ID,
		Name:   call.Name,
		Output: output,
	}
}

// Specs returns the specs of the named tools in the given order, or of every tool in
// registration order when no name is given. Unknown names are skipped.
func (r *Registry) Specs(names ...string) []domain.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(names) == 0 {
		names = r.order
	}
	specs := make([]domain.ToolSpec, 0, len(names))
	for _, name := range names {
		if e, ok := r.tools[name]; ok {
			specs = append(specs, e.tool.Spec())
		}
	}
	return specs
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
