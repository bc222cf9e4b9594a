package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/lattice/internal/runtime"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/executor"
	"github.com/aretw0/lattice/pkg/observability"
	"github.com/aretw0/lattice/pkg/ports"
	"github.com/aretw0/lattice/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_ToolFailuresBecomeResults(t *testing.T) {
	g := agentGraph(t)
	reg := lookupRegistry(t)
	require.NoError(t, reg.Register(registry.NewFuncTool("explode", "always fails", nil,
		func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("disk on fire")
		})))

	exec := executor.NewScripted(
		executor.CallTools(
			domain.ToolCall{ID: "a", Name: "explode"},
			domain.ToolCall{ID: "b", Name: "lookup", Args: map[string]any{"query": 7}},
			domain.ToolCall{ID: "c", Name: "missing"},
			lookupCall(),
		),
		executor.Reply("handled"),
	)
	rec := observability.NewRecorder()
	eng := newEngine(rec, runtime.WithExecutor(exec), runtime.WithRegistry(reg))

	out := eng.Run(context.Background(), g, newState(g), "q", false)

	require.True(t, out.Succeeded(), out.FailureMessage())
	completed := observability.Of[*domain.ToolCallCompleted](rec)
	require.Len(t, completed, 4)

	kinds := make([]domain.ToolFailureKind, len(completed))
	for i, c := range completed {
		if c.Result.Failed() {
			kinds[i] = c.Result.Failure.Kind
		}
	}
	assert.Equal(t, []domain.ToolFailureKind{
		domain.ToolFailureExecution,
		domain.ToolFailureInvalidArguments,
		domain.ToolFailureNotFound,
		"",
	}, kinds, "results keep the request order")

	// The model sees every result, failures included.
	second := exec.Requests()[1]
	tools := second.Messages[2:]
	require.Len(t, tools, 4)
	assert.Contains(t, tools[0].Content, "disk on fire")
	assert.Equal(t, "a", tools[0].ToolCallID)
	assert.Contains(t, tools[2].Content, "not_found")
	assert.Empty(t, out.State.PendingToolCalls)
}

func TestEngine_ToolTimeout(t *testing.T) {
	g := agentGraph(t)
	reg := registry.NewRegistry()
	release := make(chan struct{})
	defer close(release)
	reg.MustRegister(
		registry.NewFuncTool("slow", "ignores its context", nil, func(context.Context, map[string]any) (any, error) {
			<-release
			return "late", nil
		}),
		registry.NewFuncTool("fast", "returns at once", nil, func(context.Context, map[string]any) (any, error) {
			return "quick", nil
		}),
	)

	exec := executor.NewScripted(
		executor.CallTools(domain.ToolCall{ID: "s", Name: "slow"}, domain.ToolCall{ID: "f", Name: "fast"}),
		executor.Reply("moved on"),
	)
	rec := observability.NewRecorder()
	eng := newEngine(rec, runtime.WithExecutor(exec), runtime.WithRegistry(reg), runtime.WithToolTimeout(20*time.Millisecond))

	out := eng.Run(context.Background(), g, newState(g), "q", false)

	require.True(t, out.Succeeded(), out.FailureMessage())
	completed := observability.Of[*domain.ToolCallCompleted](rec)
	require.Len(t, completed, 2)
	require.True(t, completed[0].Result.Failed())
	assert.Equal(t, domain.ToolFailureTimeout, completed[0].Result.Failure.Kind)
	assert.False(t, completed[1].Result.Failed())
	assert.Equal(t, "quick", completed[1].Result.Output)
}

func TestEngine_ToolCallsRunConcurrently(t *testing.T) {
	g := agentGraph(t)

	var started sync.WaitGroup
	started.Add(2)
	barrier := func(name string) registry.Tool {
		return registry.NewFuncTool(name, "waits for its sibling", nil, func(ctx context.Context, _ map[string]any) (any, error) {
			started.Done()
			done := make(chan struct{})
			go func() {
				started.Wait()
				close(done)
			}()
			select {
			case <-done:
				return name, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})
	}
	reg := registry.NewRegistry().MustRegister(barrier("left"), barrier("right"))

	exec := executor.NewScripted(
		executor.CallTools(domain.ToolCall{ID: "l", Name: "left"}, domain.ToolCall{ID: "r", Name: "right"}),
		executor.Reply("joined"),
	)
	rec := observability.NewRecorder()
	eng := newEngine(rec, runtime.WithExecutor(exec), runtime.WithRegistry(reg), runtime.WithToolTimeout(2*time.Second))

	out := eng.Run(context.Background(), g, newState(g), "q", false)

	require.True(t, out.Succeeded(), out.FailureMessage())
	completed := observability.Of[*domain.ToolCallCompleted](rec)
	require.Len(t, completed, 2)
	assert.Equal(t, "left", completed[0].Result.Output)
	assert.Equal(t, "right", completed[1].Result.Output)
}

func TestEngine_CancelDuringToolsDiscardsResults(t *testing.T) {
	g := agentGraph(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finished := make(chan struct{})
	reg := registry.NewRegistry().MustRegister(
		registry.NewFuncTool("work", "cancels the run mid-call", nil, func(callCtx context.Context, _ map[string]any) (any, error) {
			cancel()
			defer close(finished)
			// The call itself is not cancelled: it is allowed to finish.
			assert.NoError(t, callCtx.Err())
			return "done", nil
		}),
	)
	exec := executor.NewScripted(executor.CallTools(domain.ToolCall{ID: "w", Name: "work"}), executor.Reply("never"))
	rec := observability.NewRecorder()
	eng := newEngine(rec, runtime.WithExecutor(exec), runtime.WithRegistry(reg))

	out := eng.Run(ctx, g, newState(g), "q", false)

	<-finished
	assert.Equal(t, domain.StatusCancelled, out.Status)
	assert.Equal(t, 1, out.State.Step, "the tool step is not committed")
	assert.Len(t, out.State.Messages, 2)
	assert.Equal(t, 1, rec.Count(domain.EventToolCallStarted))
	assert.Zero(t, rec.Count(domain.EventToolCallCompleted))
}

func TestEngine_CancelSkipsUnstartedToolCalls(t *testing.T) {
	g := agentGraph(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var invoked []string
	reg := registry.NewRegistry().MustRegister(
		registry.NewFuncTool("work", "cancels the run on its first call", nil, func(_ context.Context, args map[string]any) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			invoked = append(invoked, "work")
			cancel()
			return "done", nil
		}),
	)
	exec := executor.NewScripted(executor.CallTools(
		domain.ToolCall{ID: "w1", Name: "work"},
		domain.ToolCall{ID: "w2", Name: "work"},
	), executor.Reply("never"))
	rec := observability.NewRecorder()
	eng := newEngine(rec, runtime.WithExecutor(exec), runtime.WithRegistry(reg), runtime.WithToolConcurrency(1))

	out := eng.Run(ctx, g, newState(g), "q", false)

	assert.Equal(t, domain.StatusCancelled, out.Status)
	assert.Len(t, invoked, 1, "the second call never starts")
	started := observability.Of[*domain.ToolCallStarted](rec)
	require.Len(t, started, 1)
	assert.Equal(t, "w1", started[0].Call.ID)
	assert.Zero(t, rec.Count(domain.EventToolCallCompleted))
}

func TestEngine_StreamingNode(t *testing.T) {
	g, err := domain.NewGraph("stream",
		[]domain.Node{
			{ID: "start", Kind: domain.KindStart},
			{ID: "ask", Kind: domain.KindLLMCall, LLM: &domain.LLMConfig{Model: "m", Stream: true}},
			{ID: "done", Kind: domain.KindTerminal},
		},
		[]domain.Edge{{From: "start", To: "ask"}, {From: "ask", To: "done"}},
	)
	require.NoError(t, err)

	exec := streamingStub{chunks: []domain.Chunk{{Content: "Hel"}, {Content: "lo"}, {FinishReason: "stop"}}}
	var mu sync.Mutex
	var got []string
	eng := newEngine(observability.NewRecorder(),
		runtime.WithExecutor(exec),
		runtime.WithChunkHandler(func(_ context.Context, runID, nodeID string, c domain.Chunk) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, "run-1", runID)
			assert.Equal(t, "ask", nodeID)
			got = append(got, c.Content)
		}),
	)

	out := eng.Run(context.Background(), g, newState(g), "hi", false)

	require.True(t, out.Succeeded(), out.FailureMessage())
	assert.Equal(t, "Hello", out.Output)
	assert.Equal(t, []string{"Hel", "lo", ""}, got)
}

type streamingStub struct {
	chunks []domain.Chunk
}

func (s streamingStub) Execute(context.Context, *domain.ModelRequest) (*domain.ModelResponse, error) {
	return nil, errors.New("streaming only")
}

func (s streamingStub) Stream(context.Context, *domain.ModelRequest) (ports.ChunkStream, error) {
	return executor.NewSliceStream(s.chunks, nil), nil
}
