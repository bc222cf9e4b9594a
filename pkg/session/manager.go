package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/lattice/internal/logging"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager guards checkpoint access with per-token locks.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.CheckpointStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager over store.
func NewManager(store ports.CheckpointStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu, and call release(token) after unlocking.
func (m *Manager) acquire(token string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[token]
	if !exists {
		entry = &lockEntry{}
		m.locks[token] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[token]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, token)
	}
}

// Load retrieves a checkpoint.
func (m *Manager) Load(ctx context.Context, token string) (*domain.RunState, error) {
	var state *domain.RunState
	err := m.WithLock(ctx, token, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, token)
		return err
	})
	return state, err
}

// Save persists a checkpoint.
func (m *Manager) Save(ctx context.Context, token string, state *domain.RunState) error {
	return m.WithLock(ctx, token, func(ctx context.Context) error {
		return m.store.Save(ctx, token, state)
	})
}

// Delete removes a checkpoint.
func (m *Manager) Delete(ctx context.Context, token string) error {
	return m.WithLock(ctx, token, func(ctx context.Context) error {
		return m.store.Delete(ctx, token)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying checkpoint store.
func (m *Manager) Store() ports.CheckpointStore {
	return m.store
}

// WithLock executes fn while holding the lock for token. Calls for the same token
// never overlap within the process, nor across replicas sharing the locker.
func (m *Manager) WithLock(ctx context.Context, token string, fn func(context.Context) error) error {
	entry := m.acquire(token)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(token)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, token, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// The run may have been cancelled; the lock must still be released.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"token", token,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
