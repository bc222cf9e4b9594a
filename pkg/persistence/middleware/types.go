// Package middleware decorates checkpoint stores: encryption at rest and masking of
// sensitive scratch values.
package middleware

import "github.com/aretw0/lattice/pkg/ports"

// Middleware allows wrapping a CheckpointStore to add behavior.
type Middleware func(ports.CheckpointStore) ports.CheckpointStore

// Chain wraps store with mws. The first middleware is the outermost: it sees the state
// first on Save and last on Load.
func Chain(store ports.CheckpointStore, mws ...Middleware) ports.CheckpointStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
