package executor

import (
	"context"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
	"golang.org/x/time/rate"
)

// RateLimited throttles an executor with a token bucket shared by every run.
type RateLimited struct {
	next    ports.ModelExecutor
	limiter *rate.Limiter
}

// NewRateLimited allows rps requests per second with the given burst.
func NewRateLimited(next ports.ModelExecutor, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Execute waits for a token and forwards the request. Waiting is a suspension point:
// a done ctx aborts it with a transient error.
func (r *RateLimited) Execute(ctx context.Context, req *domain.ModelRequest) (*domain.ModelResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, Transient(err)
	}
	return r.next.Execute(ctx, req)
}

// Stream implements ports.StreamingExecutor.
func (r *RateLimited) Stream(ctx context.Context, req *domain.ModelRequest) (ports.ChunkStream, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, Transient(err)
	}
	return StreamOf(ctx, r.next, req)
}
