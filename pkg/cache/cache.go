package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/lattice/internal/logging"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
	"golang.org/x/sync/singleflight"
)

// ComputeFunc produces the response for a cache miss.
type ComputeFunc func(ctx context.Context) (*domain.ModelResponse, error)

// Cache is a single-flight, read-through cache in front of a ResponseStore.
// It is safe for concurrent use.
type Cache struct {
	store  ports.ResponseStore
	group  singleflight.Group
	logger *slog.Logger
}

// Option configures the Cache.
type Option func(*Cache)

// WithLogger configures a logger for store failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a cache backed by store.
func New(store ports.ResponseStore, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type flight struct {
	resp     *domain.ModelResponse
	computed bool
}

// GetOrCompute returns the response stored for fingerprint, computing it on a miss.
// fromCache is false only for the caller whose compute function actually ran; callers
// served from the store or from another caller's in-flight computation get true.
//
// A waiter whose ctx is done stops waiting and returns ctx.Err(); the in-flight
// computation continues for the others. A computation that ends because its owner's
// context was cancelled or timed out is not shared as a failure: waiters whose own
// ctx is still live join a new flight instead.
func (c *Cache) GetOrCompute(ctx context.Context, fingerprint string, compute ComputeFunc) (*domain.ModelResponse, bool, error) {
	for {
		resp, fromCache, rejoin, err := c.join(ctx, fingerprint, compute)
		if !rejoin {
			return resp, fromCache, err
		}
		c.logger.Debug("shared computation ended with its owner's context, rejoining", "fingerprint", fingerprint, "err", err)
	}
}

// join runs or waits for one flight. rejoin reports that the flight belonged to
// another caller whose context ended while ctx is still live.
func (c *Cache) join(ctx context.Context, fingerprint string, compute ComputeFunc) (resp *domain.ModelResponse, fromCache, rejoin bool, err error) {
	if cached, ok := c.lookup(ctx, fingerprint); ok {
		return cached, true, false, nil
	}

	var (
		mu        sync.Mutex
		ran       bool
		abandoned bool
	)
	ch := c.group.DoChan(fingerprint, func() (any, error) {
		// A computation that finished between our lookup and joining the group has
		// already been stored.
		if cached, ok := c.lookup(ctx, fingerprint); ok {
			return flight{resp: cached}, nil
		}

		mu.Lock()
		if abandoned {
			mu.Unlock()
			return nil, ctx.Err()
		}
		ran = true
		mu.Unlock()

		out, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, fmt.Errorf("compute returned no response")
		}
		stored := out.Clone()
		if err := c.store.Put(ctx, fingerprint, stored); err != nil {
			c.logger.Warn("failed to store cached response", "fingerprint", fingerprint, "err", err)
		}
		return flight{resp: stored, computed: true}, nil
	})

	select {
	case <-ctx.Done():
		mu.Lock()
		abandoned = true
		started := ran
		mu.Unlock()
		if started {
			// Our own compute shares ctx and is unwinding: wait so that nothing it
			// does outlives this call.
			<-ch
		}
		return nil, false, false, ctx.Err()
	case res := <-ch:
		mu.Lock()
		own := ran
		mu.Unlock()
		if res.Err != nil {
			if !own && ctx.Err() == nil && contextEnded(res.Err) {
				return nil, false, true, res.Err
			}
			return nil, false, false, res.Err
		}
		f := res.Val.(flight)
		return f.resp.Clone(), !(f.computed && own), false, nil
	}
}

func contextEnded(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Cache) lookup(ctx context.Context, fingerprint string) (*domain.ModelResponse, bool) {
	cached, ok, err := c.store.Get(ctx, fingerprint)
	if err != nil {
		c.logger.Warn("cache lookup failed, computing", "fingerprint", fingerprint, "err", err)
		return nil, false
	}
	if !ok || cached == nil {
		return nil, false
	}
	return cached.Clone(), true
}
