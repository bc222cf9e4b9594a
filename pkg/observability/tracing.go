package observability

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/lattice/pkg/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/aretw0/lattice"

// TracingObserver turns the event stream into OpenTelemetry spans: one span per run,
// with child spans per node, model call attempt and tool invocation.
type TracingObserver struct {
	tracer trace.Tracer

	mu    sync.Mutex
	runs  map[string]runSpans
	spans map[string]trace.Span
}

type runSpans struct {
	ctx  context.Context
	run  trace.Span
	node trace.Span
	nctx context.Context
}

// NewTracingObserver creates a tracing observer. A nil provider uses the global one.
func NewTracingObserver(tp trace.TracerProvider) *TracingObserver {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingObserver{
		tracer: tp.Tracer(tracerName),
		runs:   make(map[string]runSpans),
		spans:  make(map[string]trace.Span),
	}
}

func (t *TracingObserver) Name() string { return "tracing" }

func (t *TracingObserver) OnRunStarted(ctx context.Context, e *domain.RunStarted) error {
	rctx, span := t.tracer.Start(ctx, "lattice.Run",
		trace.WithTimestamp(e.Timestamp),
		trace.WithAttributes(
			attribute.String("lattice.run_id", e.RunID),
			attribute.String("lattice.graph", e.Graph),
			attribute.Bool("lattice.resumed", e.Resumed),
		))

	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[e.RunID] = runSpans{ctx: rctx, run: span}
	return nil
}

func (t *TracingObserver) OnNodeEntered(_ context.Context, e *domain.NodeEntered) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rs, ok := t.runs[e.RunID]
	if !ok {
		return nil
	}
	if rs.node != nil {
		rs.node.End(trace.WithTimestamp(e.Timestamp))
	}
	rs.nctx, rs.node = t.tracer.Start(rs.ctx, "lattice.Node "+e.NodeID,
		trace.WithTimestamp(e.Timestamp),
		trace.WithAttributes(
			attribute.String("lattice.node_id", e.NodeID),
			attribute.String("lattice.node_kind", string(e.Kind)),
			attribute.Int("lattice.step", e.Step),
		))
	t.runs[e.RunID] = rs
	return nil
}

func (t *TracingObserver) OnModelCallStarted(_ context.Context, e *domain.ModelCallStarted) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	parent := t.parentCtx(e.RunID)
	_, span := t.tracer.Start(parent, "lattice.ModelCall",
		trace.WithTimestamp(e.Timestamp),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("lattice.node_id", e.NodeID),
			attribute.Int("lattice.attempt", e.Attempt),
			attribute.String("lattice.model", e.Request.Model),
			attribute.String("lattice.fingerprint", e.Fingerprint),
		))
	t.spans[modelKey(e.RunID, e.NodeID, e.Step, e.Attempt)] = span
	return nil
}

func (t *TracingObserver) OnModelCallCompleted(_ context.Context, e *domain.ModelCallCompleted) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := modelKey(e.RunID, e.NodeID, e.Step, e.Attempt)
	span, ok := t.spans[key]
	if ok {
		delete(t.spans, key)
	} else {
		// Cache hits have no started event.
		_, span = t.tracer.Start(t.parentCtx(e.RunID), "lattice.ModelCall",
			trace.WithTimestamp(e.Timestamp),
			trace.WithAttributes(
				attribute.String("lattice.node_id", e.NodeID),
				attribute.Int("lattice.attempt", e.Attempt),
			))
	}
	span.SetAttributes(
		attribute.String("lattice.model", e.Model),
		attribute.Bool("lattice.from_cache", e.FromCache),
	)
	if e.Response != nil {
		span.SetAttributes(
			attribute.Int("lattice.tokens.input", e.Response.Usage.InputTokens),
			attribute.Int("lattice.tokens.output", e.Response.Usage.OutputTokens),
			attribute.Int("lattice.tool_calls", len(e.Response.ToolCalls)),
		)
	}
	if e.Err != nil {
		span.RecordError(e.Err)
		span.SetStatus(codes.Error, e.Err.Error())
	}
	span.End(trace.WithTimestamp(e.Timestamp))
	return nil
}

func (t *TracingObserver) OnToolCallStarted(_ context.Context, e *domain.ToolCallStarted) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, span := t.tracer.Start(t.parentCtx(e.RunID), "lattice.ToolCall "+e.Call.Name,
		trace.WithTimestamp(e.Timestamp),
		trace.WithAttributes(
			attribute.String("lattice.node_id", e.NodeID),
			attribute.String("lattice.tool", e.Call.Name),
			attribute.String("lattice.call_id", e.Call.ID),
		))
	t.spans[toolKey(e.RunID, e.Step, e.Call.ID)] = span
	return nil
}

func (t *TracingObserver) OnToolCallCompleted(_ context.Context, e *domain.ToolCallCompleted) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := toolKey(e.RunID, e.Step, e.Result.ID)
	span, ok := t.spans[key]
	if !ok {
		return nil
	}
	delete(t.spans, key)
	if e.Result.Failed() {
		span.SetAttributes(attribute.String("lattice.failure_kind", string(e.Result.Failure.Kind)))
		span.SetStatus(codes.Error, e.Result.Failure.Message)
	}
	span.End(trace.WithTimestamp(e.Timestamp))
	return nil
}

func (t *TracingObserver) OnRunCompleted(_ context.Context, e *domain.RunCompleted) error {
	t.finish(e.RunID, e.EventBase, nil)
	return nil
}

func (t *TracingObserver) OnRunFailed(_ context.Context, e *domain.RunFailed) error {
	t.finish(e.RunID, e.EventBase, e.Err)
	return nil
}

func (t *TracingObserver) finish(runID string, base domain.EventBase, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rs, ok := t.runs[runID]
	if !ok {
		return
	}
	delete(t.runs, runID)
	if rs.node != nil {
		rs.node.End(trace.WithTimestamp(base.Timestamp))
	}
	rs.run.SetAttributes(attribute.Int("lattice.steps", base.Step))
	if err != nil {
		rs.run.RecordError(err)
		rs.run.SetStatus(codes.Error, err.Error())
	} else {
		rs.run.SetStatus(codes.Ok, "")
	}
	rs.run.End(trace.WithTimestamp(base.Timestamp))
}

// parentCtx must be called with t.mu held.
func (t *TracingObserver) parentCtx(runID string) context.Context {
	rs, ok := t.runs[runID]
	switch {
	case !ok:
		return context.Background()
	case rs.nctx != nil:
		return rs.nctx
	default:
		return rs.ctx
	}
}

func modelKey(runID, nodeID string, step, attempt int) string {
	return fmt.Sprintf("model/%s/%d/%s/%d", runID, step, nodeID, attempt)
}

func toolKey(runID string, step int, callID string) string {
	return fmt.Sprintf("tool/%s/%d/%s", runID, step, callID)
}
