package observability

import (
	"context"
	"sync"

	"github.com/aretw0/lattice/pkg/domain"
)

// Recorder captures every event it receives, in delivery order.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Name() string { return "recorder" }

// HandleEvent implements ports.EventHandler.
func (r *Recorder) HandleEvent(_ context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the captured events.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Types returns the captured event types, in order.
func (r *Recorder) Types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Base().Type
	}
	return out
}

// Count returns how many events of type t were captured.
func (r *Recorder) Count(t domain.EventType) int {
	n := 0
	for _, typ := range r.Types() {
		if typ == t {
			n++
		}
	}
	return n
}

// Reset drops every captured event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Of returns the captured events of type T.
func Of[T domain.Event](r *Recorder) []T {
	var out []T
	for _, e := range r.Events() {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
