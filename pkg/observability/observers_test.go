package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/lattice/internal/logging"
	"github.com/aretw0/lattice/pkg/adapters/memory"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	obs := observability.NewLogObserver(logging.NewWithWriter(&buf, slog.LevelDebug, true))
	p := observability.NewPipeline([]any{obs})
	ctx := context.Background()

	s0 := domain.NewRunState("run-1", "g", "start")
	s1 := s0.Clone()
	s1.Step = 1
	s1.Append(domain.UserMessage("hi"))

	p.Publish(ctx, &domain.RunStarted{EventBase: base(domain.EventRunStarted), State: s0})
	p.Publish(ctx, &domain.NodeEntered{EventBase: base(domain.EventNodeEntered), NodeID: "chat", Kind: domain.KindLLMCall, State: s1})
	p.Publish(ctx, &domain.ToolCallCompleted{
		EventBase: base(domain.EventToolCallCompleted),
		Result:    domain.FailedResult(domain.ToolCall{ID: "c1", Name: "add"}, domain.ToolFailureTimeout, "too slow"),
	})
	p.Publish(ctx, &domain.RunFailed{EventBase: base(domain.EventRunFailed), Status: domain.StatusFailed, Err: errors.New("broken")})

	out := buf.String()
	assert.Contains(t, out, `"msg":"run started"`)
	assert.Contains(t, out, `"msg":"node entered"`)
	assert.Contains(t, out, `"msg":"state changed"`)
	assert.Contains(t, out, `"msg":"tool call failed"`)
	assert.Contains(t, out, `"kind":"timeout"`)
	assert.Contains(t, out, `"err":"broken"`)
	assert.Zero(t, p.Failures())
}

func TestMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := observability.NewMetricsObserver(reg)
	require.NoError(t, err)
	p := observability.NewPipeline([]any{obs})
	ctx := context.Background()

	p.Publish(ctx, &domain.NodeEntered{EventBase: base(domain.EventNodeEntered), NodeID: "chat", Kind: domain.KindLLMCall})
	p.Publish(ctx, &domain.ModelCallCompleted{
		EventBase: base(domain.EventModelCallCompleted), Model: "m",
		Response: &domain.ModelResponse{Usage: domain.Usage{InputTokens: 10, OutputTokens: 5}},
		Duration: 20 * time.Millisecond,
	})
	p.Publish(ctx, &domain.ModelCallCompleted{EventBase: base(domain.EventModelCallCompleted), Model: "m", FromCache: true, Response: &domain.ModelResponse{}})
	p.Publish(ctx, &domain.ToolCallCompleted{EventBase: base(domain.EventToolCallCompleted), Result: domain.ToolResult{ID: "c1", Name: "add", Output: 3}})
	p.Publish(ctx, &domain.RunCompleted{EventBase: base(domain.EventRunCompleted)})

	expected := `
# HELP lattice_model_calls_total Model call attempts by model and result (ok, error, cached).
# TYPE lattice_model_calls_total counter
lattice_model_calls_total{model="m",result="cached"} 1
lattice_model_calls_total{model="m",result="ok"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(reg, strings.NewReader(expected), "lattice_model_calls_total"))

	expected = `
# HELP lattice_runs_total Finished runs by graph and status.
# TYPE lattice_runs_total counter
lattice_runs_total{graph="g",status="succeeded"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(reg, strings.NewReader(expected), "lattice_runs_total"))

	expected = `
# HELP lattice_model_tokens_total Tokens reported by providers, by model and direction.
# TYPE lattice_model_tokens_total counter
lattice_model_tokens_total{direction="input",model="m"} 10
lattice_model_tokens_total{direction="output",model="m"} 5
`
	assert.NoError(t, testutil.CollectAndCompare(reg, strings.NewReader(expected), "lattice_model_tokens_total"))

	_, err = observability.NewMetricsObserver(reg)
	assert.Error(t, err, "collectors are already registered")
}

func TestTracingObserver(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	obs := observability.NewTracingObserver(tp)
	p := observability.NewPipeline([]any{obs})
	ctx := context.Background()

	call := domain.ToolCall{ID: "c1", Name: "add"}
	p.Publish(ctx, &domain.RunStarted{EventBase: base(domain.EventRunStarted)})
	p.Publish(ctx, &domain.NodeEntered{EventBase: base(domain.EventNodeEntered), NodeID: "chat", Kind: domain.KindLLMCall})
	p.Publish(ctx, &domain.ModelCallStarted{EventBase: base(domain.EventModelCallStarted), NodeID: "chat", Attempt: 1, Request: &domain.ModelRequest{Model: "m"}})
	p.Publish(ctx, &domain.ModelCallCompleted{EventBase: base(domain.EventModelCallCompleted), NodeID: "chat", Attempt: 1, Model: "m", Response: &domain.ModelResponse{}})
	p.Publish(ctx, &domain.NodeEntered{EventBase: base(domain.EventNodeEntered), NodeID: "tools", Kind: domain.KindToolCall})
	p.Publish(ctx, &domain.ToolCallStarted{EventBase: base(domain.EventToolCallStarted), NodeID: "tools", Call: call})
	p.Publish(ctx, &domain.ToolCallCompleted{EventBase: base(domain.EventToolCallCompleted), NodeID: "tools",
		Result: domain.FailedResult(call, domain.ToolFailureExecution, "bad")})
	p.Publish(ctx, &domain.RunFailed{EventBase: base(domain.EventRunFailed), Status: domain.StatusFailed, Err: errors.New("boom")})

	spans := rec.Ended()
	names := make([]string, len(spans))
	byName := map[string]sdktrace.ReadOnlySpan{}
	for i, s := range spans {
		names[i] = s.Name()
		byName[s.Name()] = s
	}
	assert.ElementsMatch(t, []string{
		"lattice.ModelCall",
		"lattice.Node chat",
		"lattice.ToolCall add",
		"lattice.Node tools",
		"lattice.Run",
	}, names)

	run := byName["lattice.Run"]
	assert.Equal(t, codes.Error, run.Status().Code)
	assert.Equal(t, run.SpanContext().TraceID(), byName["lattice.ToolCall add"].SpanContext().TraceID())
	assert.Equal(t, byName["lattice.Node tools"].SpanContext().SpanID(), byName["lattice.ToolCall add"].Parent().SpanID())
	assert.Equal(t, codes.Error, byName["lattice.ToolCall add"].Status().Code)
	assert.Zero(t, p.Failures())
}

func TestCheckpointObserver(t *testing.T) {
	store := memory.NewStore()
	p := observability.NewPipeline([]any{observability.NewCheckpointObserver(store)})

	ctx, cancel := context.WithCancel(context.Background())
	s := domain.NewRunState("run-1", "g", "start")
	s.Step = 3
	p.Publish(ctx, &domain.NodeEntered{EventBase: base(domain.EventNodeEntered), State: s})

	cancel()
	s2 := s.Clone()
	s2.Step = 4
	p.Publish(ctx, &domain.RunFailed{EventBase: base(domain.EventRunFailed), Status: domain.StatusCancelled, State: s2})

	loaded, err := store.Load(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Step)
	assert.Zero(t, p.Failures())
}

func TestCheckpointObserver_SkipsNestedNodes(t *testing.T) {
	store := memory.NewStore()
	p := observability.NewPipeline([]any{observability.NewCheckpointObserver(store)})
	ctx := context.Background()

	s := domain.NewRunState("run-1", "g", "child")
	p.Publish(ctx, &domain.NodeEntered{EventBase: base(domain.EventNodeEntered), NodeID: "child", State: s})

	inner := s.Clone()
	inner.CurrentNodeID = "ask"
	p.Publish(ctx, &domain.NodeEntered{EventBase: base(domain.EventNodeEntered), NodeID: "ask", Nested: true, State: inner})

	loaded, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "child", loaded.CurrentNodeID)
}
