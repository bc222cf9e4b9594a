package http

import (
	"github.com/aretw0/lattice/pkg/domain"
)

// RunRequest is the body of POST /graphs/{name}/runs.
type RunRequest struct {
	Input any    `json:"input,omitempty"`
	RunID string `json:"run_id,omitempty"`
}

// ResumeRequest is the body of POST /runs/{token}/resume.
type ResumeRequest struct {
	Graph string `json:"graph,omitempty"`
	Input any    `json:"input,omitempty"`
}

// OutcomeResponse is the JSON rendering of a run outcome.
type OutcomeResponse struct {
	RunID  string           `json:"run_id"`
	Status domain.Status    `json:"status"`
	Output any              `json:"output,omitempty"`
	Error  string           `json:"error,omitempty"`
	State  *domain.RunState `json:"state,omitempty"`
}

func newOutcomeResponse(out domain.Outcome) OutcomeResponse {
	return OutcomeResponse{
		RunID:  out.RunID,
		Status: out.Status,
		Output: out.Output,
		Error:  out.FailureMessage(),
		State:  out.State,
	}
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// GraphDescription is the JSON rendering of a graph's structure.
type GraphDescription struct {
	Name  string            `json:"name"`
	Start string            `json:"start"`
	Nodes []NodeDescription `json:"nodes"`
	Edges []EdgeDescription `json:"edges"`
}

type NodeDescription struct {
	ID          string          `json:"id"`
	Kind        domain.NodeKind `json:"kind"`
	Description string          `json:"description,omitempty"`
}

type EdgeDescription struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Label    string `json:"label,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

func describeGraph(g *domain.Graph) GraphDescription {
	d := GraphDescription{Name: g.Name(), Start: g.Start().ID}
	for _, n := range g.Nodes() {
		d.Nodes = append(d.Nodes, NodeDescription{ID: n.ID, Kind: n.Kind, Description: n.Description})
	}
	for _, e := range g.Edges() {
		d.Edges = append(d.Edges, EdgeDescription{From: e.From, To: e.To, Label: e.Label, Priority: e.Priority})
	}
	return d
}
