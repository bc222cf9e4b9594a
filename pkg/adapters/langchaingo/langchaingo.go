// Package langchaingo adapts any langchaingo llms.Model (Ollama, Mistral, Bedrock,
// Vertex and the rest of its provider list) to the model executor boundary.
//
//	llm, err := ollama.New(ollama.WithModel("llama3.1"))
//	exec := langchaingo.New(llm, langchaingo.WithName("ollama"))
package langchaingo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/executor"
	"github.com/aretw0/lattice/pkg/ports"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Executor wraps an llms.Model.
type Executor struct {
	model llms.Model
	name  string
}

var _ ports.ModelExecutor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithName sets the provider name used in error messages.
func WithName(name string) Option {
	return func(e *Executor) {
		e.name = name
	}
}

// New wraps model.
func New(model llms.Model, opts ...Option) *Executor {
	e := &Executor{model: model, name: "langchaingo"}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewOllama creates an executor backed by an Ollama server. An empty serverURL uses
// the client default (OLLAMA_HOST or localhost).
func NewOllama(serverURL, model string) (*Executor, error) {
	var opts []ollama.Option
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	if model != "" {
		opts = append(opts, ollama.WithModel(model))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return New(llm, WithName("ollama")), nil
}

// Execute implements ports.ModelExecutor. Errors from the wrapped model are
// classified with executor.IsTransient since langchaingo does not expose status codes.
func (e *Executor) Execute(ctx context.Context, req *domain.ModelRequest) (*domain.ModelResponse, error) {
	messages, err := buildMessages(req.Messages)
	if err != nil {
		return nil, executor.Permanent(fmt.Errorf("%s: %w", e.name, err))
	}

	resp, err := e.model.GenerateContent(ctx, messages, callOptions(req)...)
	if err != nil {
		wrapped := fmt.Errorf("%s: %w", e.name, err)
		if executor.IsTransient(err) {
			return nil, executor.Transient(wrapped)
		}
		return nil, executor.Permanent(wrapped)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, executor.Permanent(fmt.Errorf("%s: no choices returned", e.name))
	}

	choice := resp.Choices[0]
	out := &domain.ModelResponse{
		Content:      choice.Content,
		FinishReason: choice.StopReason,
		Usage: domain.Usage{
			InputTokens:  intFrom(choice.GenerationInfo, "PromptTokens", "InputTokens", "input_tokens"),
			OutputTokens: intFrom(choice.GenerationInfo, "CompletionTokens", "OutputTokens", "output_tokens"),
		},
	}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		args, err := executor.DecodeArgs(tc.FunctionCall.Arguments)
		if err != nil {
			return nil, executor.Permanent(fmt.Errorf("%s: tool call %q: %w", e.name, tc.FunctionCall.Name, err))
		}
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{ID: tc.ID, Name: tc.FunctionCall.Name, Args: args})
	}
	return out, nil
}

func callOptions(req *domain.ModelRequest) []llms.CallOption {
	var opts []llms.CallOption
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	p := req.Params
	if p.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*p.Temperature))
	}
	if p.TopP != nil {
		opts = append(opts, llms.WithTopP(*p.TopP))
	}
	if p.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(p.MaxTokens))
	}
	if len(p.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(p.Stop))
	}
	if len(req.Tools) > 0 {
		tools := make([]llms.Tool, len(req.Tools))
		for i, spec := range req.Tools {
			tools[i] = llms.Tool{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:        spec.Name,
					Description: spec.Description,
					Parameters:  spec.InputSchema,
				},
			}
		}
		opts = append(opts, llms.WithTools(tools))
	}
	return opts
}

func buildMessages(msgs []domain.Message) ([]llms.MessageContent, error) {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case domain.RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case domain.RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       m.Name,
					Content:    m.Content,
				}},
			})
		case domain.RoleAssistant:
			msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if m.Content != "" {
				msg.Parts = append(msg.Parts, llms.TextContent{Text: m.Content})
			}
			for _, call := range m.ToolCalls {
				args, err := json.Marshal(call.Args)
				if err != nil {
					return nil, fmt.Errorf("encode arguments of %q: %w", call.Name, err)
				}
				msg.Parts = append(msg.Parts, llms.ToolCall{
					ID:   call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, msg)
		default:
			return nil, fmt.Errorf("unsupported role %q", m.Role)
		}
	}
	return out, nil
}

// intFrom reads the first numeric value found under keys. Providers report usage
// under different names.
func intFrom(info map[string]any, keys ...string) int {
	for _, key := range keys {
		switch n := info[key].(type) {
		case int:
			return n
		case int32:
			return int(n)
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}
