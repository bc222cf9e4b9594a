package ports

import (
	"context"

	"github.com/aretw0/lattice/pkg/domain"
)

// CheckpointStore persists run states. This enables durable runs that can be
// stopped and resumed ("Stop & Resume"). The token is opaque to the engine.
type CheckpointStore interface {
	// Save persists the state under the given token, replacing any previous one.
	Save(ctx context.Context, token string, state *domain.RunState) error

	// Load retrieves the state for a token.
	// Returns domain.ErrCheckpointNotFound if the token does not exist.
	Load(ctx context.Context, token string) (*domain.RunState, error)

	// Delete removes the checkpoint. Deleting a missing token is not an error.
	Delete(ctx context.Context, token string) error

	// List returns the tokens currently stored.
	List(ctx context.Context) ([]string, error)
}
