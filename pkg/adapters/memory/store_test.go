package memory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/lattice/pkg/adapters/memory"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunCheckpointStoreContract(t, store)
}

func TestResponseStore_Contract(t *testing.T) {
	ports.RunResponseStoreContract(t, memory.NewResponseStore())
}

func TestResponseStore_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	s := memory.NewResponseStore(memory.WithCapacity(2))

	require.NoError(t, s.Put(ctx, "a", &domain.ModelResponse{Content: "a"}))
	require.NoError(t, s.Put(ctx, "b", &domain.ModelResponse{Content: "b"}))

	_, ok, _ := s.Get(ctx, "a") // a is now most recent
	require.True(t, ok)

	require.NoError(t, s.Put(ctx, "c", &domain.ModelResponse{Content: "c"}))
	assert.Equal(t, 2, s.Len())

	_, ok, _ = s.Get(ctx, "b")
	assert.False(t, ok, "b was least recently used")
	_, ok, _ = s.Get(ctx, "a")
	assert.True(t, ok)
	_, ok, _ = s.Get(ctx, "c")
	assert.True(t, ok)
}

func TestResponseStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := memory.NewResponseStore(
		memory.WithTTL(time.Minute),
		memory.WithClock(func() time.Time { return now }),
	)

	require.NoError(t, s.Put(ctx, "fp", &domain.ModelResponse{Content: "v1"}))
	_, ok, _ := s.Get(ctx, "fp")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = s.Get(ctx, "fp")
	assert.False(t, ok, "expired entries are misses")

	require.NoError(t, s.Put(ctx, "fp", &domain.ModelResponse{Content: "v2"}))
	got, ok, _ := s.Get(ctx, "fp")
	require.True(t, ok)
	assert.Equal(t, "v2", got.Content, "an expired slot can be written again")
}

func TestCatalog(t *testing.T) {
	build := func(name string) *domain.Graph {
		g, err := domain.NewGraph(name,
			[]domain.Node{{ID: "start", Kind: domain.KindStart}, {ID: "done", Kind: domain.KindTerminal}},
			[]domain.Edge{{From: "start", To: "done"}},
		)
		require.NoError(t, err)
		return g
	}

	c, err := memory.NewCatalog(build("b"), build("a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, c.Graphs())

	g, err := c.Graph("a")
	require.NoError(t, err)
	assert.Equal(t, "a", g.Name())

	_, err = c.Graph("zzz")
	assert.ErrorIs(t, err, domain.ErrGraphNotFound)

	assert.Error(t, c.Add(build("a")), fmt.Sprintf("duplicate %q", "a"))
}
