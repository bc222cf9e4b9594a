package domain

import "time"

// EventType defines the category of the event.
type EventType string

const (
	EventRunStarted         EventType = "run_started"
	EventNodeEntered        EventType = "node_entered"
	EventModelCallStarted   EventType = "model_call_started"
	EventModelCallCompleted EventType = "model_call_completed"
	EventToolCallStarted    EventType = "tool_call_started"
	EventToolCallCompleted  EventType = "tool_call_completed"
	EventRunCompleted       EventType = "run_completed"
	EventRunFailed          EventType = "run_failed"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Graph     string    `json:"graph"`
	Step      int       `json:"step"`
}

// Base returns the common fields.
func (b EventBase) Base() EventBase { return b }

// Event is a lifecycle notification. Events are immutable once published:
// every state they carry is a private snapshot.
type Event interface {
	Base() EventBase
}

// RunStarted is emitted once before the first step.
type RunStarted struct {
	EventBase
	Input   any       `json:"input,omitempty"`
	Resumed bool      `json:"resumed"`
	State   *RunState `json:"state"`
}

// NodeEntered is emitted when the engine transitions into a node, before executing it.
// State is the snapshot taken before the step: it reflects every completed step.
type NodeEntered struct {
	EventBase
	NodeID string    `json:"node_id"`
	Kind   NodeKind  `json:"kind"`
	// Nested is set for nodes of a sub-graph entered through a SubGraph node.
	Nested bool      `json:"nested,omitempty"`
	State  *RunState `json:"state"`
}

// ModelCallStarted is emitted before the executor is invoked. It is not emitted when
// the response is served from the cache.
type ModelCallStarted struct {
	EventBase
	NodeID      string        `json:"node_id"`
	Attempt     int           `json:"attempt"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Request     *ModelRequest `json:"request"`
}

// ModelCallCompleted is emitted after each model call attempt.
type ModelCallCompleted struct {
	EventBase
	NodeID    string         `json:"node_id"`
	Attempt   int            `json:"attempt"`
	Model     string         `json:"model"`
	Response  *ModelResponse `json:"response,omitempty"`
	FromCache bool           `json:"from_cache"`
	Err       error          `json:"-"`
	Duration  time.Duration  `json:"duration"`
}

// ToolCallStarted is emitted before each tool invocation.
type ToolCallStarted struct {
	EventBase
	NodeID string   `json:"node_id"`
	Call   ToolCall `json:"call"`
}

// ToolCallCompleted is emitted after each tool invocation, in request order.
type ToolCallCompleted struct {
	EventBase
	NodeID   string        `json:"node_id"`
	Result   ToolResult    `json:"result"`
	Duration time.Duration `json:"duration"`
}

// RunCompleted is emitted when a terminal node produced the output.
type RunCompleted struct {
	EventBase
	Output any       `json:"output,omitempty"`
	State  *RunState `json:"state"`
}

// RunFailed is emitted when the run ends without reaching a terminal node,
// including cancellation.
type RunFailed struct {
	EventBase
	Status Status    `json:"status"`
	Err    error     `json:"-"`
	State  *RunState `json:"state"`
}
