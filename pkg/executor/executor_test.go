package executor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/executor"
	"github.com/aretw0/lattice/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScripted_ReplaysInOrder(t *testing.T) {
	boom := errors.New("boom")
	exec := executor.NewScripted(
		executor.Reply("one"),
		executor.Fail(boom),
		executor.CallTools(domain.ToolCall{ID: "c1", Name: "add"}),
	)
	ctx := context.Background()
	req := &domain.ModelRequest{Model: "m"}

	resp, err := exec.Execute(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "one", resp.Content)

	_, err = exec.Execute(ctx, req)
	assert.ErrorIs(t, err, boom)

	resp, err = exec.Execute(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.HasToolCalls())

	_, err = exec.Execute(ctx, req)
	assert.ErrorIs(t, err, executor.ErrScriptExhausted)
	assert.False(t, executor.IsTransient(err))

	assert.Equal(t, 4, exec.Calls())
	assert.Equal(t, 0, exec.Remaining())
}

func TestScripted_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := executor.NewScripted(executor.Reply("never")).OnCall(func(context.Context, *domain.ModelRequest) {
		cancel()
	})
	_, err := exec.Execute(ctx, &domain.ModelRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, exec.Remaining())
}

func TestRouter(t *testing.T) {
	var seen string
	openai := ports.ExecutorFunc(func(_ context.Context, req *domain.ModelRequest) (*domain.ModelResponse, error) {
		seen = req.Model
		return &domain.ModelResponse{Content: "openai"}, nil
	})
	fallback := executor.NewScripted(executor.Reply("fallback"))

	r := executor.NewRouter().Route("openai", openai).Fallback(fallback)
	assert.Equal(t, []string{"openai"}, r.Providers())

	resp, err := r.Execute(context.Background(), &domain.ModelRequest{Model: "openai/gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Content)
	assert.Equal(t, "gpt-4o-mini", seen)

	resp, err = r.Execute(context.Background(), &domain.ModelRequest{Model: "local"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Content)
	assert.Equal(t, "local", fallback.Requests()[0].Model)

	_, err = executor.NewRouter().Execute(context.Background(), &domain.ModelRequest{Model: "x/y"})
	assert.Error(t, err)
	assert.False(t, executor.IsTransient(err))
}

func TestCollect_AssemblesChunks(t *testing.T) {
	stream := executor.NewSliceStream([]domain.Chunk{
		{Content: "Hel"},
		{Content: "lo", ToolCalls: []domain.ToolCallDelta{{Index: 0, ID: "c1", Name: "add", ArgsDelta: `{"a":`}}},
		{ToolCalls: []domain.ToolCallDelta{{Index: 0, ArgsDelta: `1}`}}},
		{FinishReason: "tool_calls", Usage: &domain.Usage{InputTokens: 3, OutputTokens: 4}},
	}, nil)

	var got []string
	resp, err := executor.Collect(stream, func(c domain.Chunk) { got = append(got, c.Content) })
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, []string{"Hel", "lo", "", ""}, got)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "c1", resp.ToolCalls[0].ID)
	assert.Equal(t, map[string]any{"a": float64(1)}, resp.ToolCalls[0].Args)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 4, resp.Usage.OutputTokens)
}

func TestCollect_PropagatesStreamError(t *testing.T) {
	boom := errors.New("reset")
	_, err := executor.Collect(executor.NewSliceStream([]domain.Chunk{{Content: "x"}}, boom), nil)
	assert.ErrorIs(t, err, boom)
}

func TestStreamOf_WrapsPlainExecutor(t *testing.T) {
	exec := executor.NewScripted(executor.CallTools(domain.ToolCall{ID: "c1", Name: "echo", Args: map[string]any{"text": "hi"}}))
	stream, err := executor.StreamOf(context.Background(), exec, &domain.ModelRequest{})
	require.NoError(t, err)
	resp, err := executor.Collect(stream, nil)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "hi", resp.ToolCalls[0].Args["text"])
}

func TestRateLimited(t *testing.T) {
	exec := executor.NewRateLimited(executor.NewScripted(executor.Reply("a"), executor.Reply("b")), 0.001, 1)

	_, err := exec.Execute(context.Background(), &domain.ModelRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = exec.Execute(ctx, &domain.ModelRequest{})
	require.Error(t, err)
	assert.True(t, executor.IsTransient(err))
}
