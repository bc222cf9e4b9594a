package lattice

import (
	"context"
	"fmt"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/schema"
)

// GraphTool is a tool whose body runs another graph through an engine: an agent used
// as a tool by another agent. The nested run gets its own run id and checkpoints.
type GraphTool struct {
	name        string
	description string
	graph       *domain.Graph
	engine      *Engine
}

// NewGraphTool wraps graph as a tool named name. The tool takes a single string
// argument "input" and returns the nested run output.
func NewGraphTool(name, description string, graph *domain.Graph, engine *Engine) *GraphTool {
	return &GraphTool{name: name, description: description, graph: graph, engine: engine}
}

// Spec implements registry.Tool.
func (t *GraphTool) Spec() domain.ToolSpec {
	return domain.ToolSpec{
		Name:        t.name,
		Description: t.description,
		InputSchema: schema.Object(map[string]*schema.Field{
			"input": schema.String("Task handed to the " + t.graph.Name() + " agent"),
		}, "input"),
	}
}

// Invoke implements registry.Tool. A failed nested run is reported as a tool failure.
func (t *GraphTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	out := t.engine.Run(ctx, t.graph, args["input"])
	if !out.Succeeded() {
		return nil, fmt.Errorf("agent %q: %w", t.graph.Name(), out.Err)
	}
	return out.Output, nil
}
