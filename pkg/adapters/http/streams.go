package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/lattice/internal/logging"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// StreamEvent is one server-sent message of /runs/{token}/events.
type StreamEvent struct {
	Type   domain.EventType  `json:"type"`
	NodeID string            `json:"node_id,omitempty"`
	Status domain.Status     `json:"status,omitempty"`
	Diff   *domain.StateDiff `json:"diff,omitempty"`
}

// StreamManager fans run updates out to SSE subscribers. It is a pipeline observer:
// every node entry of a watched run is turned into a state diff against the previous
// entry of that run.
type StreamManager struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[string]map[chan string]struct{} // run id -> channels
	last        map[string]*domain.RunState
}

// NewStreamManager creates an empty manager. A nil logger discards logs.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		logger:      logger,
		subscribers: make(map[string]map[chan string]struct{}),
		last:        make(map[string]*domain.RunState),
	}
}

func (sm *StreamManager) Name() string { return "http-streams" }

// Subscribe registers a channel for runID. The returned func unsubscribes and closes it.
func (sm *StreamManager) Subscribe(runID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 16)
	if _, ok := sm.subscribers[runID]; !ok {
		sm.subscribers[runID] = make(map[chan string]struct{})
	}
	sm.subscribers[runID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		subs, ok := sm.subscribers[runID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(sm.subscribers, runID)
			delete(sm.last, runID)
		}
	}
}

// Broadcast sends msg to every subscriber of runID. Slow subscribers lose messages.
func (sm *StreamManager) Broadcast(runID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[runID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("sse client buffer full, dropping message", "run_id", runID)
		}
	}
}

func (sm *StreamManager) watched(runID string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[runID]) > 0
}

func (sm *StreamManager) OnNodeEntered(_ context.Context, e *domain.NodeEntered) error {
	if !sm.watched(e.RunID) {
		return nil
	}
	sm.mu.Lock()
	prev := sm.last[e.RunID]
	sm.last[e.RunID] = e.State
	sm.mu.Unlock()

	return sm.send(e.RunID, StreamEvent{
		Type:   domain.EventNodeEntered,
		NodeID: e.NodeID,
		Diff:   domain.Diff(prev, e.State),
	})
}

func (sm *StreamManager) OnRunCompleted(_ context.Context, e *domain.RunCompleted) error {
	return sm.finish(e.RunID, domain.EventRunCompleted, domain.StatusSucceeded, e.State)
}

func (sm *StreamManager) OnRunFailed(_ context.Context, e *domain.RunFailed) error {
	return sm.finish(e.RunID, domain.EventRunFailed, e.Status, e.State)
}

func (sm *StreamManager) finish(runID string, typ domain.EventType, status domain.Status, state *domain.RunState) error {
	if !sm.watched(runID) {
		return nil
	}
	sm.mu.Lock()
	prev := sm.last[runID]
	delete(sm.last, runID)
	sm.mu.Unlock()

	return sm.send(runID, StreamEvent{Type: typ, Status: status, Diff: domain.Diff(prev, state)})
}

func (sm *StreamManager) send(runID string, ev StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode stream event: %w", err)
	}
	sm.Broadcast(runID, string(data))
	return nil
}

// SubscribeEvents handles GET /runs/{token}/events (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming not supported"))
		return
	}
	runID := chi.URLParam(r, "token")

	ch, cancel := s.Streams.Subscribe(runID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Debug("sse client connected", "run_id", runID)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("sse client disconnected", "run_id", runID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
