// Package anthropic implements a model executor over the Anthropic Messages API.
//
// System messages are lifted into the request's system prompt and consecutive tool
// messages are folded into a single user turn of tool_result blocks, which is the shape
// the Messages API expects.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/executor"
	"github.com/aretw0/lattice/pkg/ports"
)

const (
	// DefaultModel is used when a request names no model.
	DefaultModel = "claude-3-5-haiku-latest"
	// DefaultMaxTokens is sent when a request sets no limit; the API requires one.
	DefaultMaxTokens = 1024
)

// Executor adapts the Anthropic client to ports.ModelExecutor.
type Executor struct {
	client       *anthropic.Client
	defaultModel string
	maxTokens    int64
}

var _ ports.ModelExecutor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*settings)

type settings struct {
	requestOpts  []option.RequestOption
	client       *anthropic.Client
	defaultModel string
	maxTokens    int64
}

// WithAPIKey sets the API key. Without it the SDK reads ANTHROPIC_API_KEY.
func WithAPIKey(key string) Option {
	return func(s *settings) {
		if key != "" {
			s.requestOpts = append(s.requestOpts, option.WithAPIKey(key))
		}
	}
}

// WithBaseURL points the client at another endpoint.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		if url != "" {
			s.requestOpts = append(s.requestOpts, option.WithBaseURL(url))
		}
	}
}

// WithHTTPClient sets the HTTP client used by the SDK.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		s.requestOpts = append(s.requestOpts, option.WithHTTPClient(c))
	}
}

// WithClient uses an already configured SDK client.
func WithClient(c *anthropic.Client) Option {
	return func(s *settings) {
		s.client = c
	}
}

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(model string) Option {
	return func(s *settings) {
		s.defaultModel = model
	}
}

// WithMaxTokens sets the token limit sent when a request has none.
func WithMaxTokens(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxTokens = int64(n)
		}
	}
}

// New creates an executor.
func New(opts ...Option) *Executor {
	s := &settings{defaultModel: DefaultModel, maxTokens: DefaultMaxTokens}
	for _, opt := range opts {
		opt(s)
	}
	client := s.client
	if client == nil {
		reqOpts := append([]option.RequestOption{option.WithMaxRetries(0)}, s.requestOpts...)
		c := anthropic.NewClient(reqOpts...)
		client = &c
	}
	return &Executor{client: client, defaultModel: s.defaultModel, maxTokens: s.maxTokens}
}

// Execute implements ports.ModelExecutor.
func (e *Executor) Execute(ctx context.Context, req *domain.ModelRequest) (*domain.ModelResponse, error) {
	params, err := e.buildParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	out := &domain.ModelResponse{
		FinishReason: string(resp.StopReason),
		Usage: domain.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content += block.AsText().Text
		case "tool_use":
			use := block.AsToolUse()
			args, err := executor.DecodeArgs(string(use.Input))
			if err != nil {
				return nil, executor.Permanent(fmt.Errorf("anthropic: tool call %q: %w", use.Name, err))
			}
			out.ToolCalls = append(out.ToolCalls, domain.ToolCall{ID: use.ID, Name: use.Name, Args: args})
		}
	}
	return out, nil
}

func (e *Executor) buildParams(req *domain.ModelRequest) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = e.defaultModel
	}
	maxTokens := e.maxTokens
	if req.Params.MaxTokens > 0 {
		maxTokens = int64(req.Params.MaxTokens)
	}

	system, messages, err := buildMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(model),
		Messages:      messages,
		MaxTokens:     maxTokens,
		System:        system,
		StopSequences: req.Params.Stop,
	}
	if p := req.Params; p.Temperature != nil {
		params.Temperature = anthropic.Float(*p.Temperature)
	}
	if p := req.Params; p.TopP != nil {
		params.TopP = anthropic.Float(*p.TopP)
	}
	for _, spec := range req.Tools {
		params.Tools = append(params.Tools, buildTool(spec))
	}
	return params, nil
}

func buildMessages(msgs []domain.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var (
		system  []anthropic.TextBlockParam
		out     []anthropic.MessageParam
		results []anthropic.ContentBlockParamUnion
	)
	flushResults := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, m := range msgs {
		if m.Role != domain.RoleTool {
			flushResults()
		}
		switch m.Role {
		case domain.RoleSystem:
			if m.Content != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case domain.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case domain.RoleTool:
			results = append(results, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		case domain.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				input := call.Args
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			return nil, nil, executor.Permanent(fmt.Errorf("anthropic: unsupported role %q", m.Role))
		}
	}
	flushResults()
	return system, out, nil
}

func buildTool(spec domain.ToolSpec) anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
	if props, ok := spec.InputSchema["properties"]; ok {
		schema.Properties = props
	}
	switch req := spec.InputSchema["required"].(type) {
	case []string:
		schema.Required = req
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	tool := anthropic.ToolUnionParamOfTool(schema, spec.Name)
	if spec.Description != "" && tool.OfTool != nil {
		tool.OfTool.Description = anthropic.String(spec.Description)
	}
	return tool
}

// classify maps SDK errors onto the executor fault classes.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return executor.ClassifyStatus(apiErr.StatusCode, fmt.Errorf("anthropic: %w", err))
	}
	if executor.IsTransient(err) {
		return executor.Transient(fmt.Errorf("anthropic: %w", err))
	}
	return executor.Permanent(fmt.Errorf("anthropic: %w", err))
}
