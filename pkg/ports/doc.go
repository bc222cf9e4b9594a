/*
Package ports defines the driven ports (interfaces) of the lattice engine.

These interfaces decouple the execution core from external implementations, allowing
the engine to work with any model provider, storage backend or telemetry sink.

# Key Interfaces

  - ModelExecutor / StreamingExecutor: submit a model request, get a response or a stream of chunks.
  - CheckpointStore: persists run states under an opaque token.
  - ResponseStore: backing store of the prompt/response cache.
  - DistributedLocker: coordinates concurrent resumes of the same checkpoint across replicas.
  - Observer handlers: optional per-event capabilities of Feature Pipeline subscribers.
*/
package ports
