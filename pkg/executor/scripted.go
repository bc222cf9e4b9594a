package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/lattice/pkg/domain"
)

// ErrScriptExhausted is returned when a Scripted executor has no step left.
var ErrScriptExhausted = errors.New("script exhausted")

// Step is one scripted executor reply: a response or an error.
type Step struct {
	Response *domain.ModelResponse
	Err      error
}

// Reply scripts a plain text answer.
func Reply(content string) Step {
	return Step{Response: &domain.ModelResponse{Content: content, FinishReason: "stop"}}
}

// CallTools scripts an answer asking for tool invocations.
func CallTools(calls ...domain.ToolCall) Step {
	return Step{Response: &domain.ModelResponse{ToolCalls: calls, FinishReason: "tool_calls"}}
}

// Fail scripts an error.
func Fail(err error) Step {
	return Step{Err: err}
}

// Scripted is a deterministic executor replaying steps in order. It records every
// request it receives, which makes it the executor of choice for tests and replays.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	next     int
	requests []*domain.ModelRequest
	onCall   func(ctx context.Context, req *domain.ModelRequest)
}

// NewScripted creates an executor replaying steps.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// OnCall installs a hook run on every call before the step is consumed. Tests use it to
// block or cancel mid-call.
func (s *Scripted) OnCall(fn func(ctx context.Context, req *domain.ModelRequest)) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCall = fn
	return s
}

// Execute implements ports.ModelExecutor.
func (s *Scripted) Execute(ctx context.Context, req *domain.ModelRequest) (*domain.ModelResponse, error) {
	s.mu.Lock()
	hook := s.onCall
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if hook != nil {
		hook(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.steps) {
		return nil, Permanent(fmt.Errorf("%w after %d call(s)", ErrScriptExhausted, s.next))
	}
	step := s.steps[s.next]
	s.next++
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Response.Clone(), nil
}

// Calls returns how many times Execute was invoked.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns the received requests in call order.
func (s *Scripted) Requests() []*domain.ModelRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.ModelRequest(nil), s.requests...)
}

// Remaining returns how many steps have not been consumed.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps) - s.next
}
