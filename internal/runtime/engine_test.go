package runtime_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/lattice/internal/runtime"
	"github.com/aretw0/lattice/pkg/adapters/memory"
	"github.com/aretw0/lattice/pkg/cache"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/executor"
	"github.com/aretw0/lattice/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_ModelToolAlternation(t *testing.T) {
	g := agentGraph(t)
	exec := executor.NewScripted(
		executor.CallTools(lookupCall()),
		executor.Reply("42 is the answer"),
	)
	rec := observability.NewRecorder()
	eng := newEngine(rec, runtime.WithExecutor(exec), runtime.WithRegistry(lookupRegistry(t)))

	out := eng.Run(context.Background(), g, newState(g), "what is the answer?", false)

	require.True(t, out.Succeeded(), out.FailureMessage())
	assert.Equal(t, "42 is the answer", out.Output)
	assert.Equal(t, 4, out.State.Step)
	assert.Equal(t, "done", out.State.CurrentNodeID)

	var calls []domain.EventType
	for _, typ := range rec.Types() {
		if typ == domain.EventModelCallCompleted || typ == domain.EventToolCallCompleted {
			calls = append(calls, typ)
		}
	}
	assert.Equal(t, []domain.EventType{
		domain.EventModelCallCompleted,
		domain.EventToolCallCompleted,
		domain.EventModelCallCompleted,
	}, calls)
	assert.Equal(t, domain.EventRunStarted, rec.Types()[0])
	assert.Equal(t, domain.EventRunCompleted, rec.Types()[len(rec.Types())-1])

	// History: user, assistant (tool call), tool result, assistant.
	require.Len(t, out.State.Messages, 4)
	assert.Equal(t, domain.RoleTool, out.State.Messages[2].Role)
	assert.Equal(t, "c1", out.State.Messages[2].ToolCallID)
	assert.JSONEq(t, `{"result":42}`, out.State.Messages[2].Content)

	// The second request carries the tool result and the advertised tool.
	reqs := exec.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Messages, 3)
	require.Len(t, reqs[1].Tools, 1)
	assert.Equal(t, "lookup", reqs[1].Tools[0].Name)
}

func TestEngine_EventsOrderedByStep(t *testing.T) {
	g := agentGraph(t)
	exec := executor.NewScripted(executor.CallTools(lookupCall()), executor.Reply("ok"))
	rec := observability.NewRecorder()
	eng := newEngine(rec, runtime.WithExecutor(exec), runtime.WithRegistry(lookupRegistry(t)))

	out := eng.Run(context.Background(), g, newState(g), "q", false)
	require.True(t, out.Succeeded())

	last := 0
	for _, e := range rec.Events() {
		assert.GreaterOrEqual(t, e.Base().Step, last)
		assert.Equal(t, "run-1", e.Base().RunID)
		last = e.Base().Step
	}

	entered := observability.Of[*domain.NodeEntered](rec)
	ids := make([]string, len(entered))
	for i, e := range entered {
		ids[i] = e.NodeID
		assert.Equal(t, i+1, e.Step)
		assert.Equal(t, i, e.State.Step, "snapshot is taken before the step")
	}
	assert.Equal(t, []string{"ask", "lookup", "ask", "done"}, ids)
}

func TestEngine_StepLimit(t *testing.T) {
	g := agentGraph(t)
	exec := executor.NewScripted(executor.CallTools(lookupCall()), executor.Reply("never"))
	rec := observability.NewRecorder()
	eng := newEngine(rec, runtime.WithExecutor(exec), runtime.WithRegistry(lookupRegistry(t)), runtime.WithMaxSteps(2))

	out := eng.Run(context.Background(), g, newState(g), "q", false)

	assert.Equal(t, domain.StatusFailed, out.Status)
	var limit *domain.StepLimitError
	require.ErrorAs(t, out.Err, &limit)
	assert.Equal(t, 2, limit.Limit)
	assert.Equal(t, "ask", limit.NodeID)

	assert.Equal(t, 1, exec.Calls(), "the second LLM call is never reached")
	assert.Equal(t, 2, out.State.Step)
	assert.Equal(t, "lookup", out.State.CurrentNodeID)
	assert.Equal(t, 1, rec.Count(domain.EventModelCallCompleted))
	assert.Equal(t, 1, rec.Count(domain.EventToolCallCompleted))
	assert.Equal(t, 1, rec.Count(domain.EventRunFailed))
}

func TestEngine_CacheHitSkipsExecutor(t *testing.T) {
	g, err := domain.NewGraph("once",
		[]domain.Node{
			{ID: "start", Kind: domain.KindStart},
			{ID: "ask", Kind: domain.KindLLMCall, LLM: &domain.LLMConfig{Model: "m"}},
			{ID: "done", Kind: domain.KindTerminal},
		},
		[]domain.Edge{{From: "start", To: "ask"}, {From: "ask", To: "done"}},
	)
	require.NoError(t, err)

	exec := executor.NewScripted(executor.Reply("cached answer"))
	rec := observability.NewRecorder()
	eng := newEngine(rec, runtime.WithExecutor(exec), runtime.WithCache(cache.New(memory.NewResponseStore())))

	first := eng.Run(context.Background(), g, newState(g), "hello", false)
	require.True(t, first.Succeeded(), first.FailureMessage())
	assert.Equal(t, 1, rec.Count(domain.EventModelCallStarted))
	assert.False(t, observability.Of[*domain.ModelCallCompleted](rec)[0].FromCache)

	rec.Reset()
	second := eng.Run(context.Background(), g, domain.NewRunState("run-2", "once", "start"), "hello", false)
	require.True(t, second.Succeeded(), second.FailureMessage())
	assert.Equal(t, "cached answer", second.Output)

	assert.Equal(t, 1, exec.Calls(), "executor is never invoked on a hit")
	assert.Zero(t, rec.Count(domain.EventModelCallStarted))
	completed := observability.Of[*domain.ModelCallCompleted](rec)
	require.Len(t, completed, 1)
	assert.True(t, completed[0].FromCache)
	assert.Equal(t, "cached answer", completed[0].Response.Content)
}

func TestEngine_CacheHitFromPrimedStore(t *testing.T) {
	g, err := domain.NewGraph("primed",
		[]domain.Node{
			{ID: "start", Kind: domain.KindStart},
			{ID: "ask", Kind: domain.KindLLMCall, LLM: &domain.LLMConfig{Model: "m"}},
			{ID: "done", Kind: domain.KindTerminal},
		},
		[]domain.Edge{{From: "start", To: "ask"}, {From: "ask", To: "done"}},
	)
	require.NoError(t, err)

	store := memory.NewResponseStore()
	fp, err := cache.Fingerprint(&domain.ModelRequest{Model: "m", Messages: []domain.Message{domain.UserMessage("hello")}})
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), fp, &domain.ModelResponse{Content: "from store"}))

	exec := executor.NewScripted()
	rec := observability.NewRecorder()
	eng := newEngine(rec, runtime.WithExecutor(exec), runtime.WithCache(cache.New(store)))

	out := eng.Run(context.Background(), g, newState(g), "hello", false)
	require.True(t, out.Succeeded(), out.FailureMessage())
	assert.Equal(t, "from store", out.Output)
	assert.Zero(t, exec.Calls())
	assert.Zero(t, rec.Count(domain.EventModelCallStarted))
	assert.True(t, observability.Of[*domain.ModelCallCompleted](rec)[0].FromCache)
}

func TestEngine_CancelBetweenSteps(t *testing.T) {
	g := agentGraph(t)
	exec := executor.NewScripted(executor.CallTools(lookupCall()), executor.Reply("never"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hooks := observability.Hooks{
		OnToolCallCompleted: func(context.Context, *domain.ToolCallCompleted) { cancel() },
	}
	rec := observability.NewRecorder()
	eng := runtime.NewEngine(
		runtime.WithPipeline(observability.NewPipeline([]any{hooks, rec})),
		runtime.WithExecutor(exec),
		runtime.WithRegistry(lookupRegistry(t)),
	)

	out := eng.Run(ctx, g, newState(g), "q", false)

	assert.Equal(t, domain.StatusCancelled, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrCancelled)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, 2, out.State.Step, "state reflects exactly the completed steps")
	assert.Len(t, out.State.Messages, 3)
	assert.Equal(t, 1, exec.Calls())

	failed := observability.Of[*domain.RunFailed](rec)
	require.Len(t, failed, 1)
	assert.Equal(t, domain.StatusCancelled, failed[0].Status)
}

func TestEngine_CancelDuringModelCall(t *testing.T) {
	g := agentGraph(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec := executor.NewScripted(executor.Reply("never")).OnCall(func(context.Context, *domain.ModelRequest) {
		cancel()
	})
	eng := newEngine(observability.NewRecorder(), runtime.WithExecutor(exec))

	out := eng.Run(ctx, g, newState(g), "q", false)

	assert.Equal(t, domain.StatusCancelled, out.Status)
	assert.Zero(t, out.State.Step)
	assert.Equal(t, 1, exec.Calls(), "cancellation is not retried")
}

func TestEngine_CancelledRunDoesNotFailSharedCall(t *testing.T) {
	g, err := domain.NewGraph("shared",
		[]domain.Node{
			{ID: "start", Kind: domain.KindStart},
			{ID: "ask", Kind: domain.KindLLMCall, LLM: &domain.LLMConfig{Model: "m"}},
			{ID: "done", Kind: domain.KindTerminal},
		},
		[]domain.Edge{{From: "start", To: "ask"}, {From: "ask", To: "done"}},
	)
	require.NoError(t, err)

	var calls atomic.Int32
	started := make(chan struct{})
	exec := executor.NewScripted(executor.Reply("answer")).OnCall(func(ctx context.Context, _ *domain.ModelRequest) {
		if calls.Add(1) == 1 {
			close(started)
			<-ctx.Done()
		}
	})
	eng := newEngine(observability.NewRecorder(),
		runtime.WithExecutor(exec),
		runtime.WithCache(cache.New(memory.NewResponseStore())),
		runtime.WithRetry(runtime.NoRetry()),
	)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	outA := make(chan domain.Outcome, 1)
	go func() {
		outA <- eng.Run(ctxA, g, domain.NewRunState("run-a", "shared", "start"), "hello", false)
	}()
	<-started

	outB := make(chan domain.Outcome, 1)
	go func() {
		outB <- eng.Run(context.Background(), g, domain.NewRunState("run-b", "shared", "start"), "hello", false)
	}()
	time.Sleep(50 * time.Millisecond)
	cancelA()

	a := <-outA
	assert.Equal(t, domain.StatusCancelled, a.Status)

	b := <-outB
	require.True(t, b.Succeeded(), b.FailureMessage())
	assert.Equal(t, "answer", b.Output)
	assert.Equal(t, 2, exec.Calls())
}

func TestEngine_ReplayFromCheckpointIsDeterministic(t *testing.T) {
	g := agentGraph(t)

	script := func() *executor.Scripted {
		return executor.NewScripted(
			executor.CallTools(domain.ToolCall{Name: "lookup", Args: map[string]any{"query": "x"}}),
			executor.Reply("42 is the answer"),
		)
	}

	// Record the checkpoint taken when entering the tool node.
	var checkpoint *domain.RunState
	hooks := observability.Hooks{
		OnNodeEntered: func(_ context.Context, e *domain.NodeEntered) {
			if e.NodeID == "lookup" {
				checkpoint = e.State.Clone()
			}
		},
	}
	eng := runtime.NewEngine(
		runtime.WithPipeline(observability.NewPipeline([]any{hooks})),
		runtime.WithExecutor(script()),
		runtime.WithRegistry(lookupRegistry(t)),
	)
	full := eng.Run(context.Background(), g, newState(g), "q", false)
	require.True(t, full.Succeeded())
	require.NotNil(t, checkpoint)

	replay := func() domain.Outcome {
		exec := executor.NewScripted(executor.Reply("42 is the answer"))
		e := runtime.NewEngine(runtime.WithExecutor(exec), runtime.WithRegistry(lookupRegistry(t)))
		return e.Run(context.Background(), g, checkpoint.Clone(), nil, true)
	}
	a, b := replay(), replay()

	require.True(t, a.Succeeded(), a.FailureMessage())
	assert.Equal(t, a, b)
	assert.Equal(t, full.Output, a.Output)
	assert.Equal(t, full.State, a.State)
	assert.Equal(t, "call-1-0", a.State.Messages[1].ToolCalls[0].ID, "missing ids are assigned from the step")
}

func TestEngine_RetriesTransientFailures(t *testing.T) {
	g := agentGraph(t)
	exec := executor.NewScripted(
		executor.Fail(executor.Transient(errors.New("503"))),
		executor.Reply("recovered"),
	)
	rec := observability.NewRecorder()
	eng := newEngine(rec, runtime.WithExecutor(exec))

	out := eng.Run(context.Background(), g, newState(g), "q", false)

	require.True(t, out.Succeeded(), out.FailureMessage())
	assert.Equal(t, "recovered", out.Output)
	completed := observability.Of[*domain.ModelCallCompleted](rec)
	require.Len(t, completed, 2)
	assert.Equal(t, 1, completed[0].Attempt)
	assert.Error(t, completed[0].Err)
	assert.Equal(t, 2, completed[1].Attempt)
	assert.NoError(t, completed[1].Err)
}

func TestEngine_PermanentFailureAbortsImmediately(t *testing.T) {
	g := agentGraph(t)
	auth := errors.New("401 unauthorized")
	exec := executor.NewScripted(executor.Fail(executor.Permanent(auth)), executor.Reply("never"))
	eng := newEngine(observability.NewRecorder(), runtime.WithExecutor(exec))

	out := eng.Run(context.Background(), g, newState(g), "q", false)

	assert.Equal(t, domain.StatusFailed, out.Status)
	var mce *domain.ModelCallError
	require.ErrorAs(t, out.Err, &mce)
	assert.False(t, mce.Transient)
	assert.Equal(t, 1, mce.Attempts)
	assert.Equal(t, "ask", mce.NodeID)
	assert.ErrorIs(t, out.Err, auth)
	assert.Equal(t, 1, exec.Calls())
	assert.Zero(t, out.State.Step)
}

func TestEngine_TransientFailureExhaustsRetries(t *testing.T) {
	g := agentGraph(t)
	exec := executor.NewScripted(
		executor.Fail(executor.Transient(errors.New("timeout"))),
		executor.Fail(executor.Transient(errors.New("timeout"))),
		executor.Reply("never"),
	)
	eng := newEngine(observability.NewRecorder(), runtime.WithExecutor(exec),
		runtime.WithRetry(runtime.RetryPolicy{Attempts: 2, Initial: 1e6, Max: 1e6}))

	out := eng.Run(context.Background(), g, newState(g), "q", false)

	var mce *domain.ModelCallError
	require.ErrorAs(t, out.Err, &mce)
	assert.True(t, mce.Transient)
	assert.Equal(t, 2, mce.Attempts)
	assert.Equal(t, 2, exec.Calls())
}

func TestEngine_NoExecutor(t *testing.T) {
	g := agentGraph(t)
	out := runtime.NewEngine().Run(context.Background(), g, newState(g), "q", false)
	var mce *domain.ModelCallError
	require.ErrorAs(t, out.Err, &mce)
	assert.False(t, mce.Transient)
}

type brokenObserver struct{}

func (brokenObserver) OnNodeEntered(context.Context, *domain.NodeEntered) error {
	return errors.New("observer down")
}

func (brokenObserver) OnModelCallCompleted(context.Context, *domain.ModelCallCompleted) error {
	panic("observer bug")
}

func TestEngine_ObserverFailuresAreIsolated(t *testing.T) {
	g := agentGraph(t)
	exec := executor.NewScripted(executor.Reply("fine"))
	rec := observability.NewRecorder()
	pipeline := observability.NewPipeline([]any{brokenObserver{}, rec})
	eng := runtime.NewEngine(runtime.WithPipeline(pipeline), runtime.WithExecutor(exec))

	out := eng.Run(context.Background(), g, newState(g), "q", false)

	require.True(t, out.Succeeded(), out.FailureMessage())
	assert.Equal(t, "fine", out.Output)
	assert.Equal(t, 2, rec.Count(domain.EventNodeEntered), "later observers still receive every event")
	assert.EqualValues(t, 3, pipeline.Failures())
}

func TestEngine_StuckState(t *testing.T) {
	never := func(*domain.RunState) bool { return false }
	g, err := domain.NewGraph("stuck",
		[]domain.Node{
			{ID: "start", Kind: domain.KindStart},
			{ID: "noop", Kind: domain.KindTransform, Transform: func(*domain.RunState) error { return nil }},
			{ID: "done", Kind: domain.KindTerminal},
		},
		[]domain.Edge{{From: "start", To: "noop"}, {From: "noop", To: "done", Guard: never}},
	)
	require.NoError(t, err)

	out := runtime.NewEngine().Run(context.Background(), g, newState(g), nil, false)

	var stuck *domain.StuckStateError
	require.ErrorAs(t, out.Err, &stuck)
	assert.Equal(t, "noop", stuck.NodeID)
	assert.Equal(t, 1, out.State.Step)
}

func TestEngine_TransformErrorsAndPanics(t *testing.T) {
	boom := errors.New("boom")
	build := func(fn domain.TransformFunc) *domain.Graph {
		g, err := domain.NewGraph("t",
			[]domain.Node{
				{ID: "start", Kind: domain.KindStart},
				{ID: "x", Kind: domain.KindTransform, Transform: fn},
				{ID: "done", Kind: domain.KindTerminal},
			},
			[]domain.Edge{{From: "start", To: "x"}, {From: "x", To: "done"}},
		)
		require.NoError(t, err)
		return g
	}

	g := build(func(s *domain.RunState) error {
		s.Set("partial", true)
		return boom
	})
	out := runtime.NewEngine().Run(context.Background(), g, newState(g), nil, false)
	var nodeErr *domain.NodeError
	require.ErrorAs(t, out.Err, &nodeErr)
	assert.Equal(t, "x", nodeErr.NodeID)
	assert.ErrorIs(t, out.Err, boom)
	_, partial := out.State.Get("partial")
	assert.False(t, partial, "a failed step leaves no trace in the state")

	g = build(func(*domain.RunState) error { panic("bad transform") })
	out = runtime.NewEngine().Run(context.Background(), g, newState(g), nil, false)
	var panicErr *domain.PanicError
	require.ErrorAs(t, out.Err, &panicErr)
	assert.Equal(t, "bad transform", panicErr.Value)
}

func TestEngine_InputHandling(t *testing.T) {
	g, err := domain.NewGraph("echo",
		[]domain.Node{
			{ID: "start", Kind: domain.KindStart},
			{ID: "done", Kind: domain.KindTerminal, Terminal: &domain.TerminalConfig{
				Output: func(s *domain.RunState) any {
					v, _ := s.Get(domain.ScratchInput)
					return v
				},
			}},
		},
		[]domain.Edge{{From: "start", To: "done"}},
	)
	require.NoError(t, err)

	input := map[string]any{"city": "Lisbon"}
	out := runtime.NewEngine().Run(context.Background(), g, newState(g), input, false)
	require.True(t, out.Succeeded())
	assert.Equal(t, input, out.Output)
	require.Len(t, out.State.Messages, 1)
	assert.JSONEq(t, `{"city":"Lisbon"}`, out.State.Messages[0].Content)
	assert.Equal(t, 1, out.State.Step, "the terminal node consumes a step")
}
