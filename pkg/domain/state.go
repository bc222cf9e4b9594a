package domain

// ScratchInput is the scratch key holding the run input.
const ScratchInput = "input"

// RunState is the mutable state of one run. It is owned by the single goroutine
// driving that run; everything handed to other components is a Clone.
type RunState struct {
	RunID         string `json:"run_id"`
	GraphName     string `json:"graph"`
	CurrentNodeID string `json:"current_node_id"`
	// Step counts executed nodes. It only grows.
	Step int `json:"step"`

	// Messages is the conversation history, append-only during a run.
	Messages []Message `json:"messages"`

	// Scratch is the key-value store for node-local data.
	Scratch map[string]any `json:"scratch"`

	// PendingToolCalls are the tool calls requested by the last model response.
	PendingToolCalls []ToolCall `json:"pending_tool_calls,omitempty"`
}

// NewRunState creates a clean state positioned at the start node.
func NewRunState(runID, graphName, startNodeID string) *RunState {
	return &RunState{
		RunID:         runID,
		GraphName:     graphName,
		CurrentNodeID: startNodeID,
		Messages:      []Message{},
		Scratch:       make(map[string]any),
	}
}

// Clone returns a deep copy of the state.
func (s *RunState) Clone() *RunState {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = cloneMessages(s.Messages)
	out.Scratch = CloneMap(s.Scratch)
	if out.Scratch == nil {
		out.Scratch = make(map[string]any)
	}
	if s.PendingToolCalls != nil {
		out.PendingToolCalls = make([]ToolCall, len(s.PendingToolCalls))
		for i, c := range s.PendingToolCalls {
			out.PendingToolCalls[i] = c.Clone()
		}
	}
	return &out
}

// Append adds messages to the history.
func (s *RunState) Append(msgs ...Message) {
	s.Messages = append(s.Messages, msgs...)
}

// Get reads a scratch value.
func (s *RunState) Get(key string) (any, bool) {
	v, ok := s.Scratch[key]
	return v, ok
}

// Set writes a scratch value.
func (s *RunState) Set(key string, value any) {
	if s.Scratch == nil {
		s.Scratch = make(map[string]any)
	}
	s.Scratch[key] = value
}

// LastMessage returns the most recent message, if any.
func (s *RunState) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LastAssistantText returns the content of the most recent assistant message.
func (s *RunState) LastAssistantText() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}

// HasPendingToolCalls reports whether the last model turn requested tools.
func (s *RunState) HasPendingToolCalls() bool {
	return len(s.PendingToolCalls) > 0
}

// CloneMap deep-copies a map of JSON-like values.
func CloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case []Message:
		return cloneMessages(val)
	case []ToolCall:
		out := make([]ToolCall, len(val))
		for i, c := range val {
			out[i] = c.Clone()
		}
		return out
	default:
		return v
	}
}
