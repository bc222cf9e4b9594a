package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/lattice/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// ResponseStore implements ports.ResponseStore using Redis. Entries are written with
// SET NX so the first response stored under a fingerprint is kept.
type ResponseStore struct {
	client backend.UniversalClient
	prefix string
	ttl    time.Duration
}

// ResponseOption configures a ResponseStore.
type ResponseOption func(*ResponseStore)

// WithResponseTTL sets the expiration of cached responses. Zero keeps them forever.
func WithResponseTTL(ttl time.Duration) ResponseOption {
	return func(s *ResponseStore) {
		s.ttl = ttl
	}
}

// WithResponsePrefix sets the key prefix of cached responses.
func WithResponsePrefix(prefix string) ResponseOption {
	return func(s *ResponseStore) {
		s.prefix = prefix
	}
}

// NewResponseStore creates a response store from an existing client.
func NewResponseStore(client backend.UniversalClient, opts ...ResponseOption) *ResponseStore {
	s := &ResponseStore{
		client: client,
		prefix: "lattice:response:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the response stored for fingerprint.
func (s *ResponseStore) Get(ctx context.Context, fingerprint string) (*domain.ModelResponse, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+fingerprint).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get response from redis: %w", err)
	}
	var resp domain.ModelResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, true, nil
}

// Put stores resp unless the fingerprint is already present.
func (s *ResponseStore) Put(ctx context.Context, fingerprint string, resp *domain.ModelResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	if err := s.client.SetNX(ctx, s.prefix+fingerprint, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store response in redis: %w", err)
	}
	return nil
}
