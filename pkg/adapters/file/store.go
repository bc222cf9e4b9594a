// Package file provides a checkpoint store keeping one JSON file per run.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/lattice/pkg/domain"
)

// DefaultDir is used when no directory is given.
var DefaultDir = filepath.Join(".lattice", "checkpoints")

// Store implements ports.CheckpointStore using the local filesystem.
type Store struct {
	BasePath string
}

// NewStore creates a Store rooted at basePath (DefaultDir when empty).
func NewStore(basePath string) *Store {
	if basePath == "" {
		basePath = DefaultDir
	}
	return &Store{BasePath: basePath}
}

func (f *Store) path(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("checkpoint token cannot be empty")
	}
	if strings.ContainsAny(token, `/\`) || token == "." || token == ".." {
		return "", fmt.Errorf("invalid checkpoint token %q", token)
	}
	return filepath.Join(f.BasePath, token+".json"), nil
}

// Save writes the state to a temporary file and renames it into place, so readers
// never observe a partial checkpoint.
func (f *Store) Save(ctx context.Context, token string, state *domain.RunState) error {
	path, err := f.path(token)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(f.BasePath, "."+token+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to commit checkpoint file: %w", err)
	}
	return nil
}

// Load reads the state of token.
func (f *Store) Load(ctx context.Context, token string) (*domain.RunState, error) {
	path, err := f.path(token)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var state domain.RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	if state.Scratch == nil {
		state.Scratch = make(map[string]any)
	}
	return &state, nil
}

// Delete removes the checkpoint file.
func (f *Store) Delete(ctx context.Context, token string) error {
	path, err := f.path(token)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint file: %w", err)
	}
	return nil
}

// List returns the stored tokens in lexical order.
func (f *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	tokens := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		tokens = append(tokens, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(tokens)
	return tokens, nil
}
