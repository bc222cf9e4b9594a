package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/lattice/pkg/cache"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/executor"
	"github.com/aretw0/lattice/pkg/ports"
	"github.com/cenkalti/backoff/v4"
)

var errNoExecutor = errors.New("no model executor configured")

func (r *run) callModel(ctx context.Context, g *domain.Graph, node *domain.Node, state *domain.RunState) error {
	cfg := node.LLM
	if cfg == nil {
		cfg = &domain.LLMConfig{}
	}
	req := r.engine.buildRequest(cfg, state)

	fingerprint, err := cache.Fingerprint(req)
	if err != nil {
		return &domain.NodeError{NodeID: node.ID, Err: err}
	}

	resp, err := r.invokeModel(ctx, g, node, cfg, state, req, fingerprint)
	if err != nil {
		return err
	}

	calls := make([]domain.ToolCall, len(resp.ToolCalls))
	for i, c := range resp.ToolCalls {
		call := c.Clone()
		if call.ID == "" {
			call.ID = fmt.Sprintf("call-%d-%d", state.Step, i)
		}
		if call.Args == nil {
			call.Args = map[string]any{}
		}
		calls[i] = call
	}
	state.Append(domain.AssistantMessage(resp.Content, calls...))

	state.PendingToolCalls = nil
	for _, c := range calls {
		state.PendingToolCalls = append(state.PendingToolCalls, c.Clone())
	}
	return nil
}

func (e *Engine) buildRequest(cfg *domain.LLMConfig, state *domain.RunState) *domain.ModelRequest {
	model := cfg.Model
	if model == "" {
		model = e.defaultModel
	}

	messages := make([]domain.Message, 0, len(state.Messages)+1)
	if cfg.SystemPrompt != "" {
		messages = append(messages, domain.SystemMessage(cfg.SystemPrompt))
	}
	for _, m := range state.Messages {
		messages = append(messages, m.Clone())
	}

	req := &domain.ModelRequest{
		Model:    model,
		Messages: messages,
		Params:   cfg.Params,
	}
	if e.registry != nil {
		switch {
		case cfg.AllTools:
			req.Tools = e.registry.Specs()
		case len(cfg.Tools) > 0:
			req.Tools = e.registry.Specs(cfg.Tools...)
		}
	}
	return req
}

// invokeModel runs the attempts of one LLMCall step. Each attempt goes through the
// cache and emits ModelCallCompleted; only transient failures are retried.
func (r *run) invokeModel(ctx context.Context, g *domain.Graph, node *domain.Node, cfg *domain.LLMConfig, state *domain.RunState, req *domain.ModelRequest, fingerprint string) (*domain.ModelResponse, error) {
	e := r.engine
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = e.modelTimeout
	}

	attempts := 0
	operation := func() (*domain.ModelResponse, error) {
		attempts++
		attempt := attempts
		started := e.now()

		resp, fromCache, err := r.fetch(ctx, g, node, cfg, state, req, fingerprint, attempt, timeout)

		completed := &domain.ModelCallCompleted{
			EventBase: r.base(g, state, domain.EventModelCallCompleted),
			NodeID:    node.ID,
			Attempt:   attempt,
			Model:     req.Model,
			Response:  resp.Clone(),
			FromCache: fromCache,
			Err:       err,
			Duration:  e.now().Sub(started),
		}
		r.emit(ctx, completed)

		if err != nil {
			if ctx.Err() != nil || !executor.IsTransient(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return resp, nil
	}

	notify := func(err error, wait time.Duration) {
		e.logger.WarnContext(ctx, "retrying model call",
			"run_id", r.runID, "node", node.ID, "model", req.Model, "attempt", attempts, "wait", wait, "err", err)
	}

	resp, err := backoff.RetryNotifyWithData(operation, e.retry.backOff(ctx), notify)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, cancelled(ctxErr)
		}
		return nil, &domain.ModelCallError{
			NodeID:    node.ID,
			Model:     req.Model,
			Attempts:  attempts,
			Transient: executor.IsTransient(err),
			Err:       err,
		}
	}
	return resp, nil
}

// fetch performs one attempt. ModelCallStarted is emitted only when the executor is
// actually invoked, never on a cache hit.
func (r *run) fetch(ctx context.Context, g *domain.Graph, node *domain.Node, cfg *domain.LLMConfig, state *domain.RunState, req *domain.ModelRequest, fingerprint string, attempt int, timeout time.Duration) (*domain.ModelResponse, bool, error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	compute := func(cctx context.Context) (*domain.ModelResponse, error) {
		r.emit(ctx, &domain.ModelCallStarted{
			EventBase:   r.base(g, state, domain.EventModelCallStarted),
			NodeID:      node.ID,
			Attempt:     attempt,
			Fingerprint: fingerprint,
			Request:     cloneRequest(req),
		})
		return r.engine.callExecutor(cctx, r.runID, node.ID, cfg.Stream, req)
	}

	if r.engine.cache == nil {
		resp, err := compute(attemptCtx)
		return resp, false, err
	}
	return r.engine.cache.GetOrCompute(attemptCtx, fingerprint, compute)
}

// callExecutor invokes the executor, consuming its stream when asked to. Panics are
// converted to permanent errors: the call may run on a cache goroutine.
func (e *Engine) callExecutor(ctx context.Context, runID, nodeID string, stream bool, req *domain.ModelRequest) (resp *domain.ModelResponse, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			resp, err = nil, executor.Permanent(&domain.PanicError{Where: "model executor", Value: rec})
		}
	}()

	if e.executor == nil {
		return nil, executor.Permanent(errNoExecutor)
	}

	if s, ok := e.executor.(ports.StreamingExecutor); ok && stream {
		chunks, err := s.Stream(ctx, cloneRequest(req))
		if err != nil {
			return nil, err
		}
		return executor.Collect(chunks, func(c domain.Chunk) {
			if e.onChunk != nil {
				e.onChunk(ctx, runID, nodeID, c)
			}
		})
	}

	resp, err = e.executor.Execute(ctx, cloneRequest(req))
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, executor.Permanent(errors.New("executor returned no response"))
	}
	return resp, nil
}

func cloneRequest(req *domain.ModelRequest) *domain.ModelRequest {
	out := *req
	out.Messages = make([]domain.Message, len(req.Messages))
	for i, m := range req.Messages {
		out.Messages[i] = m.Clone()
	}
	out.Tools = append([]domain.ToolSpec(nil), req.Tools...)
	out.Params.Stop = append([]string(nil), req.Params.Stop...)
	return &out
}
