/*
Package domain contains the core data model of the lattice engine.

It defines the fundamental entities of an agent run, such as the strategy Graph
(Nodes and guarded Edges), the per-run RunState, the conversation Messages, tool calls
and results, model requests and responses, and the lifecycle events emitted while a run
progresses. This package is kept pure and free of I/O, following Hexagonal Architecture
principles: executors, stores and observers live behind the interfaces in pkg/ports.

# Key Entities

  - Graph: immutable set of Nodes and Edges with exactly one start node.
  - Edge: guarded transition; among satisfied edges the lowest Priority wins, then
    declaration order.
  - RunState: mutable state owned by one run (history, scratch store, current node, step).
  - Outcome: the single result of a run (succeeded, failed or cancelled).
  - Event: immutable lifecycle notification delivered to observers.
*/
package domain
