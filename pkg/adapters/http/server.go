// Package http exposes an engine and a graph catalog over a small JSON API.
//
//	GET    /health
//	GET    /info
//	GET    /graphs
//	GET    /graphs/{name}
//	GET    /graphs/{name}/mermaid[?run=<token>]
//	POST   /graphs/{name}/runs          {"input": ..., "run_id": "..."}
//	GET    /runs
//	GET    /runs/{token}
//	DELETE /runs/{token}
//	POST   /runs/{token}/resume         {"graph": "...", "input": ...}
//	GET    /runs/{token}/events         (server-sent state diffs)
//	GET    /metrics                     (when a Prometheus gatherer is configured)
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aretw0/lattice"
	"github.com/aretw0/lattice/internal/logging"
	"github.com/aretw0/lattice/internal/presentation/graph"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// Engine is the part of lattice.Engine served over HTTP.
type Engine interface {
	Run(ctx context.Context, g *domain.Graph, input any, opts ...lattice.RunOption) domain.Outcome
	Resume(ctx context.Context, g *domain.Graph, token string, input any) domain.Outcome
	Inspect(ctx context.Context, token string) (*domain.RunState, error)
	Checkpoints(ctx context.Context) ([]string, error)
	DeleteCheckpoint(ctx context.Context, token string) error
	Subscribe(observer any)
}

var _ Engine = (*lattice.Engine)(nil)

// Server serves the API routes.
type Server struct {
	Engine  Engine
	Catalog ports.GraphCatalog
	Streams *StreamManager

	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics serves the gatherer's metrics on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewHandler creates the HTTP handler. The stream manager is subscribed to the
// engine so /runs/{token}/events receives the diffs of live runs.
func NewHandler(engine Engine, catalog ports.GraphCatalog, opts ...Option) http.Handler {
	s := &Server{
		Engine:  engine,
		Catalog: catalog,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)
	engine.Subscribe(s.Streams)

	r := chi.NewRouter()
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)

	r.Route("/graphs", func(r chi.Router) {
		r.Get("/", s.ListGraphs)
		r.Get("/{name}", s.GetGraph)
		r.Get("/{name}/mermaid", s.GetMermaid)
		r.Post("/{name}/runs", s.StartRun)
	})

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.ListRuns)
		r.Get("/{token}", s.GetRun)
		r.Delete("/{token}", s.DeleteRun)
		r.Post("/{token}/resume", s.ResumeRun)
		r.Get("/{token}/events", s.SubscribeEvents)
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "lattice-http",
		"version": lattice.Version,
	})
}

// ListGraphs handles GET /graphs.
func (s *Server) ListGraphs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"graphs": s.Catalog.Graphs()})
}

// GetGraph handles GET /graphs/{name}.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookupGraph(w, chi.URLParam(r, "name"))
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, describeGraph(g))
}

// GetMermaid handles GET /graphs/{name}/mermaid. With ?run=<token> the saved position
// of that run is highlighted.
func (s *Server) GetMermaid(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookupGraph(w, chi.URLParam(r, "name"))
	if !ok {
		return
	}

	var overlay *graph.Overlay
	if token := r.URL.Query().Get("run"); token != "" {
		state, err := s.Engine.Inspect(r.Context(), token)
		if err != nil {
			s.writeError(w, statusOf(err), err)
			return
		}
		overlay = &graph.Overlay{CurrentNode: state.CurrentNodeID}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(graph.GenerateMermaid(g, overlay))); err != nil {
		s.logger.Error("mermaid response write failed", "err", err)
	}
}

// StartRun handles POST /graphs/{name}/runs.
func (s *Server) StartRun(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookupGraph(w, chi.URLParam(r, "name"))
	if !ok {
		return
	}
	var body RunRequest
	if !s.decode(w, r, &body) {
		return
	}

	var opts []lattice.RunOption
	if body.RunID != "" {
		opts = append(opts, lattice.WithRunID(body.RunID))
	}
	out := s.Engine.Run(r.Context(), g, body.Input, opts...)
	s.logger.Info("run finished", "run_id", out.RunID, "graph", g.Name(), "status", out.Status)
	s.writeOutcome(w, out)
}

// ListRuns handles GET /runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.Engine.Checkpoints(r.Context())
	if err != nil {
		s.writeError(w, statusOf(err), err)
		return
	}
	if tokens == nil {
		tokens = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"runs": tokens})
}

// GetRun handles GET /runs/{token}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	state, err := s.Engine.Inspect(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeError(w, statusOf(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

// DeleteRun handles DELETE /runs/{token}.
func (s *Server) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.DeleteCheckpoint(r.Context(), chi.URLParam(r, "token")); err != nil {
		s.writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResumeRun handles POST /runs/{token}/resume. The graph defaults to the one recorded
// in the checkpoint.
func (s *Server) ResumeRun(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	var body ResumeRequest
	if !s.decode(w, r, &body) {
		return
	}

	name := body.Graph
	if name == "" {
		state, err := s.Engine.Inspect(r.Context(), token)
		if err != nil {
			s.writeError(w, statusOf(err), err)
			return
		}
		name = state.GraphName
	}
	g, ok := s.lookupGraph(w, name)
	if !ok {
		return
	}

	out := s.Engine.Resume(r.Context(), g, token, body.Input)
	if out.State == nil && out.Err != nil {
		s.writeError(w, statusOf(out.Err), out.Err)
		return
	}
	s.logger.Info("run resumed", "run_id", token, "graph", g.Name(), "status", out.Status)
	s.writeOutcome(w, out)
}

func (s *Server) lookupGraph(w http.ResponseWriter, name string) (*domain.Graph, bool) {
	g, err := s.Catalog.Graph(name)
	if err != nil {
		s.writeError(w, statusOf(err), err)
		return nil, false
	}
	return g, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return false
	}
	return true
}

func (s *Server) writeOutcome(w http.ResponseWriter, out domain.Outcome) {
	s.writeJSON(w, http.StatusOK, newOutcomeResponse(out))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// statusOf maps engine errors to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrGraphNotFound), errors.Is(err, domain.ErrCheckpointNotFound):
		return http.StatusNotFound
	case errors.Is(err, lattice.ErrNoCheckpointStore):
		return http.StatusNotImplemented
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
