package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/aretw0/lattice"
	"github.com/aretw0/lattice/pkg/adapters/file"
	"github.com/aretw0/lattice/pkg/adapters/redis"
	"github.com/aretw0/lattice/pkg/config"
	"github.com/aretw0/lattice/pkg/persistence/middleware"
	backend "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func redisKeys(prefix, kind string) string {
	if prefix == "" {
		return kind + ":"
	}
	return prefix + ":" + kind + ":"
}

func newRedisResponses(client backend.UniversalClient, prefix string, ttl time.Duration) *redis.ResponseStore {
	return redis.NewResponseStore(client,
		redis.WithResponsePrefix(redisKeys(prefix, "response")),
		redis.WithResponseTTL(ttl),
	)
}

// newRedisCheckpoints shares one client between the store and the locker. Locks live
// under <prefix>:lock:<run id>.
func newRedisCheckpoints(client backend.UniversalClient, prefix string) (*redis.Store, *redis.Locker) {
	store := redis.NewFromClient(client, redis.WithPrefix(redisKeys(prefix, "checkpoint")))
	lockPrefix := ""
	if prefix != "" {
		lockPrefix = prefix + ":"
	}
	return store, redis.NewLocker(client, lockPrefix)
}

func newFileStore(dir string) *file.Store {
	return file.NewStore(dir)
}

// newTracerProvider exports spans to w and installs the provider globally.
func newTracerProvider(_ context.Context, w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}
	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", "lattice"),
		attribute.String("service.version", lattice.Version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// checkpointMiddleware masks before it encrypts, so masked values never reach the
// ciphertext.
func checkpointMiddleware(cfg config.CheckpointConfig) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.Mask) > 0 {
		mw, err := middleware.NewPIIMiddleware(cfg.Mask)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	if cfg.EncryptionKey == "" {
		return mws, nil
	}

	active, err := decodeKey(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("checkpoint encryption key: %w", err)
	}
	enc := middleware.EncryptionConfig{ActiveKey: active}
	for i, k := range cfg.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, fmt.Errorf("checkpoint fallback key #%d: %w", i, err)
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	mw, err := middleware.NewEncryptionMiddleware(enc)
	if err != nil {
		return nil, err
	}
	return append(mws, mw), nil
}

func decodeKey(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
