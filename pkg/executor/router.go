package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
)

// Router dispatches requests to per-provider executors based on the model id prefix:
// "openai/gpt-4o-mini" goes to the "openai" executor with model "gpt-4o-mini".
// Model ids without a prefix go to the fallback executor, if any.
type Router struct {
	executors map[string]ports.ModelExecutor
	fallback  ports.ModelExecutor
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{executors: make(map[string]ports.ModelExecutor)}
}

// Route registers the executor serving a provider prefix.
func (r *Router) Route(provider string, exec ports.ModelExecutor) *Router {
	r.executors[provider] = exec
	return r
}

// Fallback sets the executor for model ids whose provider is not routed.
func (r *Router) Fallback(exec ports.ModelExecutor) *Router {
	r.fallback = exec
	return r
}

// Providers returns the routed provider names, sorted.
func (r *Router) Providers() []string {
	out := make([]string, 0, len(r.executors))
	for p := range r.executors {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (r *Router) resolve(req *domain.ModelRequest) (ports.ModelExecutor, *domain.ModelRequest, error) {
	provider, model, found := strings.Cut(req.Model, "/")
	if found {
		if exec, ok := r.executors[provider]; ok {
			routed := *req
			routed.Model = model
			return exec, &routed, nil
		}
	}
	if r.fallback != nil {
		return r.fallback, req, nil
	}
	return nil, nil, Permanent(fmt.Errorf("no executor for model %q", req.Model))
}

// Execute implements ports.ModelExecutor.
func (r *Router) Execute(ctx context.Context, req *domain.ModelRequest) (*domain.ModelResponse, error) {
	exec, routed, err := r.resolve(req)
	if err != nil {
		return nil, err
	}
	return exec.Execute(ctx, routed)
}

// Stream implements ports.StreamingExecutor. Executors without streaming support are
// wrapped into a single-chunk stream.
func (r *Router) Stream(ctx context.Context, req *domain.ModelRequest) (ports.ChunkStream, error) {
	exec, routed, err := r.resolve(req)
	if err != nil {
		return nil, err
	}
	return StreamOf(ctx, exec, routed)
}
