package ports

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckpointStoreContract runs a suite of tests to verify that a CheckpointStore
// implementation adheres to the defined interface contract.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()
	token := "contract-test-run-" + time.Now().Format("20060102150405.000000000")

	newState := func(id string) *domain.RunState {
		s := domain.NewRunState(id, "contract", "ask")
		s.Step = 2
		s.Append(domain.UserMessage("what is the answer?"),
			domain.AssistantMessage("", domain.ToolCall{ID: "call-1-0", Name: "lookup", Args: map[string]any{"q": "answer"}}))
		s.PendingToolCalls = []domain.ToolCall{{ID: "call-1-0", Name: "lookup", Args: map[string]any{"q": "answer"}}}
		s.Set("foo", "bar")
		s.Set("count", 42)
		return s
	}

	t.Run("Save and Load", func(t *testing.T) {
		state := newState(token)

		err := store.Save(ctx, token, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, token)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.RunID, loaded.RunID)
		assert.Equal(t, state.CurrentNodeID, loaded.CurrentNodeID)
		assert.Equal(t, state.Step, loaded.Step)
		assert.Equal(t, state.Messages, loaded.Messages)
		assert.Equal(t, "bar", loaded.Scratch["foo"])
		// JSON persistence may turn ints into float64; only presence is part of the contract.
		assert.NotNil(t, loaded.Scratch["count"])
		require.Len(t, loaded.PendingToolCalls, 1)
		assert.Equal(t, "lookup", loaded.PendingToolCalls[0].Name)
	})

	t.Run("Loaded State Is Isolated", func(t *testing.T) {
		state := newState(token)
		require.NoError(t, store.Save(ctx, token, state))

		state.Set("foo", "mutated after save")

		loaded, err := store.Load(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "bar", loaded.Scratch["foo"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+token)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, token, newState(token)))

		err := store.Delete(ctx, token)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, token)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound, "Load after Delete should return ErrCheckpointNotFound")

		assert.NoError(t, store.Delete(ctx, token), "deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := token + "-1"
		id2 := token + "-2"
		require.NoError(t, store.Save(ctx, id1, newState(id1)))
		require.NoError(t, store.Save(ctx, id2, newState(id2)))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		tokens, err := store.List(ctx)
		require.NoError(t, err)
		sort.Strings(tokens)
		assert.Contains(t, tokens, id1)
		assert.Contains(t, tokens, id2)
	})
}

// RunResponseStoreContract verifies a ResponseStore implementation.
func RunResponseStoreContract(t *testing.T, store ResponseStore) {
	ctx := context.Background()
	fp := "contract-fp-" + time.Now().Format("20060102150405.000000000")

	t.Run("Miss", func(t *testing.T) {
		resp, ok, err := store.Get(ctx, "missing-"+fp)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, resp)
	})

	t.Run("Put and Get", func(t *testing.T) {
		resp := &domain.ModelResponse{
			Content:      "42 is the answer",
			FinishReason: "stop",
			ToolCalls:    []domain.ToolCall{{ID: "c1", Name: "lookup", Args: map[string]any{"q": "x"}}},
			Usage:        domain.Usage{InputTokens: 3, OutputTokens: 5},
		}
		require.NoError(t, store.Put(ctx, fp, resp))

		got, ok, err := store.Get(ctx, fp)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, resp.Content, got.Content)
		assert.Equal(t, resp.FinishReason, got.FinishReason)
		assert.Equal(t, resp.Usage, got.Usage)
		require.Len(t, got.ToolCalls, 1)
		assert.Equal(t, "lookup", got.ToolCalls[0].Name)
	})

	t.Run("Entries Are Immutable", func(t *testing.T) {
		key := fp + "-immutable"
		require.NoError(t, store.Put(ctx, key, &domain.ModelResponse{Content: "first"}))
		require.NoError(t, store.Put(ctx, key, &domain.ModelResponse{Content: "second"}))

		got, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "first", got.Content)

		got.Content = "mutated by reader"
		again, _, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "first", again.Content)
	})
}
