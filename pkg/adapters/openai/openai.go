// Package openai implements a model executor over the OpenAI Chat Completions API,
// including tool calling and streaming.
//
//	exec := openai.New(openai.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	engine, err := lattice.New(lattice.WithExecutor(exec))
//
// The SDK's own retries are disabled: the engine owns the retry policy and relies on
// the transient/permanent classification applied to every error returned here.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/executor"
	"github.com/aretw0/lattice/pkg/ports"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when a request names no model.
const DefaultModel = openai.ChatModelGPT4oMini

// Executor adapts the OpenAI client to ports.StreamingExecutor.
type Executor struct {
	client       *openai.Client
	defaultModel string
}

var _ ports.StreamingExecutor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*settings)

type settings struct {
	requestOpts  []option.RequestOption
	client       *openai.Client
	defaultModel string
}

// WithAPIKey sets the API key. Without it the SDK reads OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(s *settings) {
		if key != "" {
			s.requestOpts = append(s.requestOpts, option.WithAPIKey(key))
		}
	}
}

// WithBaseURL points the client at a compatible endpoint (proxies, local servers).
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

// WithClient uses an already configured SDK client. Other client options are ignored.
func WithClient(c *openai.Client) Option {
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

// New creates an executor.
func New(opts ...Option) *Executor {
	s := &settings{defaultModel: DefaultModel}
	for _, opt := range opts {
		opt(s)
	}
	client := s.client
	if client == nil {
		reqOpts := append([]option.RequestOption{option.WithMaxRetries(0)}, s.requestOpts...)
		c := openai.NewClient(reqOpts...)
		client = &c
	}
	return &Executor{client: client, defaultModel: s.defaultModel}
}

// Execute implements ports.ModelExecutor.
func (e *Executor) Execute(ctx context.Context, req *domain.ModelRequest) (*domain.ModelResponse, error) {
	params, err := e.buildParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, executor.Permanent(errors.New("openai: no choices returned"))
	}

	choice := resp.Choices[0]
	out := &domain.ModelResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: domain.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		args, err := executor.DecodeArgs(tc.Function.Arguments)
		if err != nil {
			return nil, executor.Permanent(fmt.Errorf("openai: tool call %q: %w", tc.Function.Name, err))
		}
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	return out, nil
}

// Stream implements ports.StreamingExecutor.
func (e *Executor) Stream(ctx context.Context, req *domain.ModelRequest) (ports.ChunkStream, error) {
	params, err := e.buildParams(req)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	return &chunkStream{stream: e.client.Chat.Completions.NewStreaming(ctx, params)}, nil
}

func (e *Executor) buildParams(req *domain.ModelRequest) (openai.ChatCompletionNewParams, error) {
	model := req.Model
	if model == "" {
		model = e.defaultModel
	}
	messages, err := buildMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if p := req.Params; p.Temperature != nil {
		params.Temperature = openai.Float(*p.Temperature)
	}
	if p := req.Params; p.TopP != nil {
		params.TopP = openai.Float(*p.TopP)
	}
	if req.Params.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.Params.MaxTokens))
	}
	for _, spec := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  openai.FunctionParameters(spec.InputSchema),
			},
		})
	}
	return params, nil
}

func buildMessages(msgs []domain.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case domain.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case domain.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case domain.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			assistant := &openai.ChatCompletionAssistantMessageParam{Role: "assistant"}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			for _, call := range m.ToolCalls {
				args, err := json.Marshal(call.Args)
				if err != nil {
					return nil, executor.Permanent(fmt.Errorf("openai: encode arguments of %q: %w", call.Name, err))
				}
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   call.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		default:
			return nil, executor.Permanent(fmt.Errorf("openai: unsupported role %q", m.Role))
		}
	}
	return out, nil
}

// classify maps SDK errors onto the executor fault classes.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return executor.ClassifyStatus(apiErr.StatusCode, fmt.Errorf("openai: %w", err))
	}
	if executor.IsTransient(err) {
		return executor.Transient(fmt.Errorf("openai: %w", err))
	}
	return executor.Permanent(fmt.Errorf("openai: %w", err))
}
