package domain

import (
	"errors"
	"fmt"
)

// ErrCancelled is wrapped by the error of a cancelled run.
var ErrCancelled = errors.New("run cancelled")

// ErrToolNotFound is returned when a tool name is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrCheckpointNotFound is returned when a checkpoint token cannot be found in the store.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// StuckStateError is returned when no outgoing edge guard is satisfied.
type StuckStateError struct {
	Graph  string
	NodeID string
	Reason string
}

func (e *StuckStateError) Error() string {
	return fmt.Sprintf("stuck at node %q in graph %q: %s", e.NodeID, e.Graph, e.Reason)
}

// StepLimitError is returned when a run would exceed its step ceiling.
type StepLimitError struct {
	Limit  int
	NodeID string // node that would have been entered
}

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("step limit of %d exceeded before entering node %q", e.Limit, e.NodeID)
}

// ModelCallError is returned when a model call fails for good.
// Transient is true when retries were exhausted on a transient fault.
type ModelCallError struct {
	NodeID    string
	Model     string
	Attempts  int
	Transient bool
	Err       error
}

func (e *ModelCallError) Error() string {
	class := "permanent"
	if e.Transient {
		class = "transient"
	}
	return fmt.Sprintf("model call %q at node %q failed (%s, %d attempt(s)): %v", e.Model, e.NodeID, class, e.Attempts, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }

// ConflictError is returned when a tool name is registered twice.
type ConflictError struct {
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// InvalidGraphError is returned when a graph definition is structurally invalid.
type InvalidGraphError struct {
	Graph  string
	Reason string
}

func (e *InvalidGraphError) Error() string {
	return fmt.Sprintf("invalid graph %q: %s", e.Graph, e.Reason)
}

// NodeError wraps a failure raised by node code (transform, sub-graph wiring).
type NodeError struct {
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q failed: %v", e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// PanicError carries a recovered panic value.
type PanicError struct {
	Where string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Where, e.Value)
}

// ObserverError describes a failing observer. It is logged, never surfaced to callers of Run.
type ObserverError struct {
	Observer string
	Event    EventType
	Err      error
}

func (e *ObserverError) Error() string {
	return fmt.Sprintf("observer %s failed on %s: %v", e.Observer, e.Event, e.Err)
}

func (e *ObserverError) Unwrap() error { return e.Err }

// ErrGraphNotFound is returned when a graph name is not known to a catalog.
var ErrGraphNotFound = errors.New("graph not found")
