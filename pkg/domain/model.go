package domain

// Params holds the sampling parameters of a model request.
// Zero values mean "provider default".
type Params struct {
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" mapstructure:"temperature"`
	TopP        *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty" mapstructure:"top_p"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`
	Stop        []string `json:"stop,omitempty" yaml:"stop,omitempty" mapstructure:"stop"`
}

// ModelRequest is what an LLMCall node submits to a model executor.
type ModelRequest struct {
	Model    string     `json:"model"`
	Messages []Message  `json:"messages"`
	Params   Params     `json:"params"`
	Tools    []ToolSpec `json:"tools,omitempty"`
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// ModelResponse is the complete answer of a model call.
type ModelResponse struct {
	Content      string     `json:"content,omitempty"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        Usage      `json:"usage"`
}

// HasToolCalls reports whether the model asked for tool invocations.
func (r *ModelResponse) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// Clone returns a deep copy of the response.
func (r *ModelResponse) Clone() *ModelResponse {
	if r == nil {
		return nil
	}
	out := *r
	if r.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(r.ToolCalls))
		for i, c := range r.ToolCalls {
			out.ToolCalls[i] = c.Clone()
		}
	}
	return &out
}

// Chunk is one increment of a streamed model response.
// ToolCalls carry partial calls: Index identifies the call being assembled and
// Args fragments arrive as raw JSON text in ArgsDelta.
type Chunk struct {
	Content      string          `json:"content,omitempty"`
	ToolCalls    []ToolCallDelta `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Usage        *Usage          `json:"usage,omitempty"`
}

// ToolCallDelta is a fragment of a streamed tool call.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	ArgsDelta string `json:"args_delta,omitempty"`
}
