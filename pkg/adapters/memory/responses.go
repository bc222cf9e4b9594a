package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/aretw0/lattice/pkg/domain"
)

// ResponseStore implements ports.ResponseStore as a bounded LRU with optional TTL.
// Safe for concurrent use.
type ResponseStore struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time

	ll    *list.List
	items map[string]*list.Element
}

type responseEntry struct {
	key     string
	resp    *domain.ModelResponse
	expires time.Time
}

// ResponseOption configures the ResponseStore.
type ResponseOption func(*ResponseStore)

// WithCapacity bounds the number of entries (default 1024). Zero or less means unbounded.
func WithCapacity(n int) ResponseOption {
	return func(s *ResponseStore) {
		s.capacity = n
	}
}

// WithTTL expires entries after ttl. Zero keeps entries until evicted by size.
func WithTTL(ttl time.Duration) ResponseOption {
	return func(s *ResponseStore) {
		s.ttl = ttl
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) ResponseOption {
	return func(s *ResponseStore) {
		s.now = now
	}
}

// NewResponseStore creates an empty store.
func NewResponseStore(opts ...ResponseOption) *ResponseStore {
	s := &ResponseStore{
		capacity: 1024,
		now:      time.Now,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the entry and refreshes its recency.
func (s *ResponseStore) Get(ctx context.Context, fingerprint string) (*domain.ModelResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[fingerprint]
	if !ok {
		return nil, false, nil
	}
	entry := el.Value.(*responseEntry)
	if s.expired(entry) {
		s.remove(el)
		return nil, false, nil
	}
	s.ll.MoveToFront(el)
	return entry.resp.Clone(), true, nil
}

// Put stores a copy of resp. An existing live entry is kept unchanged.
func (s *ResponseStore) Put(ctx context.Context, fingerprint string, resp *domain.ModelResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[fingerprint]; ok {
		if !s.expired(el.Value.(*responseEntry)) {
			return nil
		}
		s.remove(el)
	}

	entry := &responseEntry{key: fingerprint, resp: resp.Clone()}
	if s.ttl > 0 {
		entry.expires = s.now().Add(s.ttl)
	}
	s.items[fingerprint] = s.ll.PushFront(entry)

	for s.capacity > 0 && s.ll.Len() > s.capacity {
		s.remove(s.ll.Back())
	}
	return nil
}

// Len returns the number of entries, including expired ones not yet collected.
func (s *ResponseStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

func (s *ResponseStore) expired(e *responseEntry) bool {
	return !e.expires.IsZero() && !s.now().Before(e.expires)
}

func (s *ResponseStore) remove(el *list.Element) {
	s.ll.Remove(el)
	delete(s.items, el.Value.(*responseEntry).key)
}
