package observability

import (
	"context"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsObserver exports run, model and tool counters to Prometheus.
type MetricsObserver struct {
	runs          *prometheus.CounterVec
	nodeVisits    *prometheus.CounterVec
	modelCalls    *prometheus.CounterVec
	modelDuration *prometheus.HistogramVec
	tokens        *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
}

// NewMetricsObserver creates the collectors and registers them on reg.
func NewMetricsObserver(reg prometheus.Registerer) (*MetricsObserver, error) {
	m := &MetricsObserver{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_runs_total",
			Help: "Finished runs by graph and status.",
		}, []string{"graph", "status"}),
		nodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_node_visits_total",
			Help: "Node entries by graph, node and kind.",
		}, []string{"graph", "node_id", "kind"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_model_calls_total",
			Help: "Model call attempts by model and result (ok, error, cached).",
		}, []string{"model", "result"}),
		modelDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lattice_model_call_duration_seconds",
			Help:    "Duration of model call attempts served by an executor.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_model_tokens_total",
			Help: "Tokens reported by providers, by model and direction.",
		}, []string{"model", "direction"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_tool_calls_total",
			Help: "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lattice_tool_duration_seconds",
			Help:    "Duration of tool invocations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
	}

	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *MetricsObserver) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.runs, m.nodeVisits, m.modelCalls, m.modelDuration, m.tokens, m.toolCalls, m.toolDuration}
}

func (m *MetricsObserver) Name() string { return "metrics" }

func (m *MetricsObserver) OnNodeEntered(_ context.Context, e *domain.NodeEntered) error {
	m.nodeVisits.WithLabelValues(e.Graph, e.NodeID, string(e.Kind)).Inc()
	return nil
}

func (m *MetricsObserver) OnModelCallCompleted(_ context.Context, e *domain.ModelCallCompleted) error {
	switch {
	case e.Err != nil:
		m.modelCalls.WithLabelValues(e.Model, "error").Inc()
		return nil
	case e.FromCache:
		m.modelCalls.WithLabelValues(e.Model, "cached").Inc()
		return nil
	}
	m.modelCalls.WithLabelValues(e.Model, "ok").Inc()
	m.modelDuration.WithLabelValues(e.Model).Observe(e.Duration.Seconds())
	if e.Response != nil {
		m.tokens.WithLabelValues(e.Model, "input").Add(float64(e.Response.Usage.InputTokens))
		m.tokens.WithLabelValues(e.Model, "output").Add(float64(e.Response.Usage.OutputTokens))
	}
	return nil
}

func (m *MetricsObserver) OnToolCallCompleted(_ context.Context, e *domain.ToolCallCompleted) error {
	outcome := "ok"
	if e.Result.Failed() {
		outcome = string(e.Result.Failure.Kind)
	}
	m.toolCalls.WithLabelValues(e.Result.Name, outcome).Inc()
	m.toolDuration.WithLabelValues(e.Result.Name).Observe(e.Duration.Seconds())
	return nil
}

func (m *MetricsObserver) OnRunCompleted(_ context.Context, e *domain.RunCompleted) error {
	m.runs.WithLabelValues(e.Graph, string(domain.StatusSucceeded)).Inc()
	return nil
}

func (m *MetricsObserver) OnRunFailed(_ context.Context, e *domain.RunFailed) error {
	m.runs.WithLabelValues(e.Graph, string(e.Status)).Inc()
	return nil
}
