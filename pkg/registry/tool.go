package registry

import (
	"context"
	"fmt"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Tool is a callable unit exposed to models.
type Tool interface {
	// Spec describes the tool: name, description, input and output schemas.
	Spec() domain.ToolSpec
	// Invoke runs the tool with already validated arguments.
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// ToolFunction defines the signature for a tool implementation.
// It receives a context and a map of arguments, and returns a result or error.
type ToolFunction func(ctx context.Context, args map[string]any) (any, error)

// FuncTool adapts a ToolFunction into a Tool.
type FuncTool struct {
	spec domain.ToolSpec
	fn   ToolFunction
}

// FuncOption configures a FuncTool.
type FuncOption func(*FuncTool)

// WithOutputSchema declares the schema the tool output must satisfy.
func WithOutputSchema(s map[string]any) FuncOption {
	return func(t *FuncTool) {
		t.spec.OutputSchema = s
	}
}

// NewFuncTool creates a tool from a function. input may be nil (no validation).
func NewFuncTool(name, description string, input map[string]any, fn ToolFunction, opts ...FuncOption) *FuncTool {
	t := &FuncTool{
		spec: domain.ToolSpec{
			Name:        name,
			Description: description,
			InputSchema: input,
		},
		fn: fn,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Spec implements Tool.
func (t *FuncTool) Spec() domain.ToolSpec { return t.spec }

// Invoke implements Tool.
func (t *FuncTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return t.fn(ctx, args)
}

// ArgumentError reports arguments that could not be bound to a tool's input type.
// The registry turns it into an invalid_arguments failure.
type ArgumentError struct {
	Tool string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// TypedTool binds the validated argument map to a Go struct before calling the body.
type TypedTool[T any] struct {
	spec domain.ToolSpec
	fn   func(ctx context.Context, args T) (any, error)
}

// NewTypedTool creates a tool whose arguments are decoded into T using the `json`
// struct tags. Decoding is strict: unknown keys are rejected.
func NewTypedTool[T any](name, description string, input map[string]any, fn func(ctx context.Context, args T) (any, error)) *TypedTool[T] {
	return &TypedTool[T]{
		spec: domain.ToolSpec{
			Name:        name,
			Description: description,
			InputSchema: input,
		},
		fn: fn,
	}
}

// Spec implements Tool.
func (t *TypedTool[T]) Spec() domain.ToolSpec { return t.spec }

// Invoke implements Tool.
func (t *TypedTool[T]) Invoke(ctx context.Context, args map[string]any) (any, error) {
	var bound T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &bound,
		TagName:          "json",
		ErrorUnused:      true,
		WeaklyTypedInput: false,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return nil, &ArgumentError{Tool: t.spec.Name, Err: err}
	}
	return t.fn(ctx, bound)
}
