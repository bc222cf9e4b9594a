package domain

import "fmt"

// ToolCall represents a request to invoke a tool.
// The ID correlates the request with its ToolResult and is unique within a run.
type ToolCall struct {
	ID   string         `json:"id" yaml:"id" mapstructure:"id"`
	Name string         `json:"name" yaml:"name" mapstructure:"name"`
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
}

// Clone returns a deep copy of the call.
func (c ToolCall) Clone() ToolCall {
	out := c
	if c.Args != nil {
		out.Args = CloneMap(c.Args)
	}
	return out
}

// ToolFailureKind classifies why a tool call did not produce a result.
type ToolFailureKind string

const (
	ToolFailureInvalidArguments ToolFailureKind = "invalid_arguments"
	ToolFailureExecution        ToolFailureKind = "execution_failed"
	ToolFailureNotFound         ToolFailureKind = "not_found"
	ToolFailureTimeout          ToolFailureKind = "timeout"
)

// ToolFailure describes a failed tool call.
type ToolFailure struct {
	Kind    ToolFailureKind `json:"kind"`
	Message string          `json:"message"`
}

// ToolResult is the outcome of a tool call: either Output or Failure is set.
type ToolResult struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Output  any          `json:"output,omitempty"`
	Failure *ToolFailure `json:"failure,omitempty"`
}

// Failed reports whether the call failed.
func (r ToolResult) Failed() bool {
	return r.Failure != nil
}

// Text renders the result as the content of a tool message.
func (r ToolResult) Text() string {
	if r.Failure != nil {
		return fmt.Sprintf("error (%s): %s", r.Failure.Kind, r.Failure.Message)
	}
	return stringify(r.Output)
}

// FailedResult builds a failure result for the given call.
func FailedResult(call ToolCall, kind ToolFailureKind, format string, args ...any) ToolResult {
	return ToolResult{
		ID:   call.ID,
		Name: call.Name,
		Failure: &ToolFailure{
			Kind:    kind,
			Message: fmt.Sprintf(format, args...),
		},
	}
}

// ToolSpec is the description of a tool advertised to models.
type ToolSpec struct {
	Name         string         `json:"name" yaml:"name"`
	Description  string         `json:"description,omitempty" yaml:"description,omitempty"`
	InputSchema  map[string]any `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	OutputSchema map[string]any `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
}
