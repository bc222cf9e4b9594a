package ports

import (
	"context"

	"github.com/aretw0/lattice/pkg/domain"
)

// ModelExecutor is the capability boundary to a model provider.
// Implementations classify failures with executor.Transient / executor.Permanent
// so the engine can decide whether to retry.
type ModelExecutor interface {
	Execute(ctx context.Context, req *domain.ModelRequest) (*domain.ModelResponse, error)
}

// StreamingExecutor is implemented by executors able to stream response chunks.
type StreamingExecutor interface {
	ModelExecutor
	Stream(ctx context.Context, req *domain.ModelRequest) (ChunkStream, error)
}

// ChunkStream iterates over the chunks of a streamed response.
//
//	for stream.Next() {
//		chunk := stream.Current()
//	}
//	if err := stream.Err(); err != nil { ... }
type ChunkStream interface {
	Next() bool
	Current() domain.Chunk
	Err() error
	Close() error
}

// ExecutorFunc adapts a function to ModelExecutor.
type ExecutorFunc func(ctx context.Context, req *domain.ModelRequest) (*domain.ModelResponse, error)

// Execute calls f(ctx, req).
func (f ExecutorFunc) Execute(ctx context.Context, req *domain.ModelRequest) (*domain.ModelResponse, error) {
	return f(ctx, req)
}
