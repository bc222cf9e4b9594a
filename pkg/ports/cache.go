package ports

import (
	"context"

	"github.com/aretw0/lattice/pkg/domain"
)

// ResponseStore is the backing store of the prompt/response cache.
// Entries are immutable: Put on an existing fingerprint keeps the first value.
// Eviction (size or time bound) is up to the implementation.
type ResponseStore interface {
	// Get returns the stored response and true, or false on a miss.
	Get(ctx context.Context, fingerprint string) (*domain.ModelResponse, bool, error)

	// Put stores the response for the fingerprint.
	Put(ctx context.Context, fingerprint string, resp *domain.ModelResponse) error
}
