package ports_test

import (
	"context"
	"sync"
	"testing"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
)

// MockStore is an in-memory implementation of CheckpointStore and ResponseStore
// used to exercise the contract suites themselves.
type MockStore struct {
	mu          sync.Mutex
	checkpoints map[string]*domain.RunState
	responses   map[string]*domain.ModelResponse
}

func NewMockStore() *MockStore {
	return &MockStore{
		checkpoints: make(map[string]*domain.RunState),
		responses:   make(map[string]*domain.ModelResponse),
	}
}

func (m *MockStore) Save(ctx context.Context, token string, state *domain.RunState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[token] = state.Clone()
	return nil
}

func (m *MockStore) Load(ctx context.Context, token string) (*domain.RunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.checkpoints[token]
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}
	return state.Clone(), nil
}

func (m *MockStore) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, token)
	return nil
}

func (m *MockStore) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := make([]string, 0, len(m.checkpoints))
	for k := range m.checkpoints {
		tokens = append(tokens, k)
	}
	return tokens, nil
}

func (m *MockStore) Get(ctx context.Context, fp string) (*domain.ModelResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp, ok := m.responses[fp]
	return resp.Clone(), ok, nil
}

func (m *MockStore) Put(ctx context.Context, fp string, resp *domain.ModelResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.responses[fp]; !exists {
		m.responses[fp] = resp.Clone()
	}
	return nil
}

func TestMockStore_CheckpointContract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, NewMockStore())
}

func TestMockStore_ResponseContract(t *testing.T) {
	ports.RunResponseStoreContract(t, NewMockStore())
}
