// Package mcp exposes the tool registry and the graph catalog as a Model Context
// Protocol server. Every registered tool becomes an MCP tool with its JSON Schema;
// graphs are run through the run_graph and resume_run tools and described as
// resources (lattice://graphs and lattice://graphs/{name}).
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/lattice"
	"github.com/aretw0/lattice/internal/logging"
	"github.com/aretw0/lattice/internal/presentation/graph"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
	"github.com/aretw0/lattice/pkg/registry"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Engine is the part of lattice.Engine the MCP server drives.
type Engine interface {
	Run(ctx context.Context, g *domain.Graph, input any, opts ...lattice.RunOption) domain.Outcome
	Resume(ctx context.Context, g *domain.Graph, token string, input any) domain.Outcome
	Inspect(ctx context.Context, token string) (*domain.RunState, error)
}

var _ Engine = (*lattice.Engine)(nil)

// RunResult is the structured output of run_graph and resume_run.
type RunResult struct {
	RunID  string        `json:"run_id" jsonschema_description:"Run id, usable as resume token"`
	Status domain.Status `json:"status" jsonschema_description:"succeeded, failed or cancelled"`
	Output any           `json:"output,omitempty" jsonschema_description:"Terminal output of a successful run"`
	Error  string        `json:"error,omitempty" jsonschema_description:"Failure message"`
}

// RunArgs are the arguments of run_graph.
type RunArgs struct {
	Graph string `json:"graph"`
	Input string `json:"input"`
	RunID string `json:"run_id,omitempty"`
}

// ResumeArgs are the arguments of resume_run.
type ResumeArgs struct {
	Token string `json:"token"`
	Input string `json:"input,omitempty"`
	Graph string `json:"graph,omitempty"`
}

// Server wraps an engine and exposes it as an MCP server.
type Server struct {
	engine    Engine
	catalog   ports.GraphCatalog
	registry  *registry.Registry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithRegistry publishes the tools of r.
func WithRegistry(r *registry.Registry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP server.
func NewServer(engine Engine, catalog ports.GraphCatalog, opts ...Option) (*Server, error) {
	s := &Server{
		engine:    engine,
		catalog:   catalog,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("lattice-mcp", lattice.Version),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.registerTools(); err != nil {
		return nil, err
	}
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://localhost" + addr
	if !strings.HasPrefix(addr, ":") {
		baseURL = "http://" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening (sse)", "addr", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() error {
	graphProps := []mcp.PropertyOption{mcp.Required(), mcp.Description("Graph name")}
	if names := s.catalog.Graphs(); len(names) > 0 {
		graphProps = append(graphProps, mcp.Enum(names...))
	}
	s.mcpServer.AddTool(mcp.NewTool("run_graph",
		mcp.WithDescription("Run a strategy graph from its start node with a user input."),
		mcp.WithString("graph", graphProps...),
		mcp.WithString("input", mcp.Required(), mcp.Description("User input")),
		mcp.WithString("run_id", mcp.Description("Run id to use instead of a generated one")),
		mcp.WithOutputSchema[RunResult](),
	), mcp.NewStructuredToolHandler(s.handleRun))

	s.mcpServer.AddTool(mcp.NewTool("resume_run",
		mcp.WithDescription("Continue a checkpointed run, optionally with a new user input."),
		mcp.WithString("token", mcp.Required(), mcp.Description("Run id of the checkpoint")),
		mcp.WithString("input", mcp.Description("New user input")),
		mcp.WithString("graph", mcp.Description("Graph name; defaults to the checkpoint's graph")),
		mcp.WithOutputSchema[RunResult](),
	), mcp.NewStructuredToolHandler(s.handleResume))

	s.mcpServer.AddTool(mcp.NewTool("list_graphs",
		mcp.WithDescription("List the names of the available graphs."),
	), s.handleListGraphs)

	if s.registry == nil {
		return nil
	}
	for _, spec := range s.registry.Specs() {
		schema := spec.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		raw, err := json.Marshal(schema)
		if err != nil {
			return fmt.Errorf("tool %q: encode input schema: %w", spec.Name, err)
		}
		s.mcpServer.AddTool(mcp.NewToolWithRawSchema(spec.Name, spec.Description, raw), s.toolHandler(spec.Name))
	}
	return nil
}

func (s *Server) handleRun(ctx context.Context, _ mcp.CallToolRequest, args RunArgs) (RunResult, error) {
	g, err := s.catalog.Graph(args.Graph)
	if err != nil {
		return RunResult{}, err
	}
	var opts []lattice.RunOption
	if args.RunID != "" {
		opts = append(opts, lattice.WithRunID(args.RunID))
	}
	out := s.engine.Run(ctx, g, args.Input, opts...)
	s.logger.Info("mcp run finished", "run_id", out.RunID, "graph", g.Name(), "status", out.Status)
	return newRunResult(out), nil
}

func (s *Server) handleResume(ctx context.Context, _ mcp.CallToolRequest, args ResumeArgs) (RunResult, error) {
	if args.Token == "" {
		return RunResult{}, errors.New("token is required")
	}
	name := args.Graph
	if name == "" {
		state, err := s.engine.Inspect(ctx, args.Token)
		if err != nil {
			return RunResult{}, err
		}
		name = state.GraphName
	}
	g, err := s.catalog.Graph(name)
	if err != nil {
		return RunResult{}, err
	}

	var input any
	if args.Input != "" {
		input = args.Input
	}
	out := s.engine.Resume(ctx, g, args.Token, input)
	s.logger.Info("mcp run resumed", "run_id", args.Token, "graph", g.Name(), "status", out.Status)
	return newRunResult(out), nil
}

func (s *Server) handleListGraphs(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(s.catalog.Graphs())
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolHandler runs a registry tool. Tool failures are reported as MCP tool errors so
// the client model can see and react to them.
func (s *Server) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call := domain.ToolCall{ID: uuid.NewString(), Name: name, Args: request.GetArguments()}
		result := s.registry.Execute(ctx, call)
		if result.Failed() {
			s.logger.Warn("mcp tool call failed", "tool", name, "kind", result.Failure.Kind, "err", result.Failure.Message)
			return mcp.NewToolResultError(result.Text()), nil
		}
		return mcp.NewToolResultText(result.Text()), nil
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("lattice://graphs", "Available graphs",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(s.catalog.Graphs())
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: "lattice://graphs", MIMEType: "application/json", Text: string(data)},
		}, nil
	})

	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate("lattice://graphs/{name}", "Graph diagram",
		mcp.WithTemplateDescription("Mermaid flowchart of a graph"),
		mcp.WithTemplateMIMEType("text/vnd.mermaid"),
	), s.readGraph)
}

func (s *Server) readGraph(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	name := strings.TrimPrefix(uri, "lattice://graphs/")
	g, err := s.catalog.Graph(name)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "text/vnd.mermaid", Text: graph.GenerateMermaid(g, nil)},
	}, nil
}

func newRunResult(out domain.Outcome) RunResult {
	return RunResult{
		RunID:  out.RunID,
		Status: out.Status,
		Output: out.Output,
		Error:  out.FailureMessage(),
	}
}
