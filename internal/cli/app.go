// Package cli turns a config.Config into a ready engine and serves the commands of
// cmd/lattice.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/lattice"
	"github.com/aretw0/lattice/internal/logging"
	"github.com/aretw0/lattice/pkg/adapters/memory"
	"github.com/aretw0/lattice/pkg/adapters/process"
	"github.com/aretw0/lattice/pkg/cache"
	"github.com/aretw0/lattice/pkg/config"
	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/dsl"
	"github.com/aretw0/lattice/pkg/executor"
	"github.com/aretw0/lattice/pkg/observability"
	"github.com/aretw0/lattice/pkg/persistence/middleware"
	"github.com/aretw0/lattice/pkg/ports"
	"github.com/aretw0/lattice/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
)

// App bundles the engine with the resources built for it.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Engine   *lattice.Engine
	Registry *registry.Registry
	Catalog  *memory.Catalog
	Loader   *dsl.Loader
	// Metrics is set when metrics are enabled.
	Metrics *prometheus.Registry

	redis    backend.UniversalClient
	closers  []func(context.Context) error
	executor ports.ModelExecutor
	extra    []any
}

// AppOption customises NewApp.
type AppOption func(*App)

// WithLogger replaces the logger built from the configured level.
func WithLogger(logger *slog.Logger) AppOption {
	return func(a *App) {
		a.Logger = logger
	}
}

// WithExecutor replaces the executor built from the model section.
func WithExecutor(exec ports.ModelExecutor) AppOption {
	return func(a *App) {
		a.executor = exec
	}
}

// WithObservers adds observers next to the configured ones.
func WithObservers(observers ...any) AppOption {
	return func(a *App) {
		a.extra = append(a.extra, observers...)
	}
}

// WithRedisClient uses client for every redis backend instead of dialing Redis.Addr.
func WithRedisClient(client backend.UniversalClient) AppOption {
	return func(a *App) {
		a.redis = client
	}
}

// NewApp wires the configured backends into an engine. Close releases them.
func NewApp(ctx context.Context, cfg *config.Config, opts ...AppOption) (*App, error) {
	app := &App{Config: cfg}
	for _, opt := range opts {
		opt(app)
	}
	if err := app.init(ctx); err != nil {
		_ = app.Close(context.Background())
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context) (err error) {
	cfg := a.Config

	if a.Logger == nil {
		level, err := logging.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		a.Logger = logging.New(level)
	}

	if a.Registry, err = buildRegistry(cfg); err != nil {
		return err
	}
	if a.executor == nil {
		a.executor, err = BuildExecutor(cfg.Model)
		switch {
		case errors.Is(err, ErrNoProvider):
			a.Logger.Warn("no model provider configured, llm nodes will fail")
			a.executor = executor.NewRouter()
		case err != nil:
			return err
		}
	}

	engineOpts := []lattice.Option{
		lattice.WithLogger(a.Logger),
		lattice.WithRegistry(a.Registry),
		lattice.WithExecutor(a.executor),
		lattice.WithMaxSteps(cfg.Engine.MaxSteps),
		lattice.WithModelTimeout(cfg.Engine.ModelTimeout),
		lattice.WithToolTimeout(cfg.Engine.ToolTimeout),
		lattice.WithToolConcurrency(cfg.Engine.ToolConcurrency),
		lattice.WithRetry(cfg.Engine.Retry.Attempts, cfg.Engine.Retry.Initial, cfg.Engine.Retry.Max),
	}
	if cfg.Model.Default != "" {
		engineOpts = append(engineOpts, lattice.WithDefaultModel(cfg.Model.Default))
	}

	cacheOpt, err := a.buildCache()
	if err != nil {
		return err
	}
	engineOpts = append(engineOpts, cacheOpt...)

	storeOpts, err := a.buildCheckpoints()
	if err != nil {
		return err
	}
	engineOpts = append(engineOpts, storeOpts...)

	observers, err := a.buildObservers(ctx)
	if err != nil {
		return err
	}
	engineOpts = append(engineOpts, lattice.WithObservers(observers...))

	if a.Engine, err = lattice.New(engineOpts...); err != nil {
		return fmt.Errorf("error initializing engine: %w", err)
	}

	a.Loader = dsl.NewLoader()
	if cfg.Graphs != "" {
		if a.Catalog, err = a.Loader.LoadDir(cfg.Graphs); err != nil {
			return err
		}
	} else if a.Catalog, err = memory.NewCatalog(); err != nil {
		return err
	}
	a.Loader = dsl.NewLoader(dsl.WithCatalog(a.Catalog))

	a.Logger.Debug("engine ready",
		"graphs", len(a.Catalog.Graphs()),
		"tools", a.Registry.Len(),
		"cache", cfg.Cache.Backend,
		"checkpoint", cfg.Checkpoint.Backend,
	)
	return nil
}

// Graph resolves ref as a YAML file path when such a file exists, otherwise as the
// name of a graph of the catalog.
func (a *App) Graph(ref string) (*domain.Graph, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return a.Loader.LoadFile(ref)
	}
	return a.Catalog.Graph(ref)
}

// Close releases the backends in reverse creation order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	reg := registry.NewRegistry()
	if cfg.Tools == "" {
		return reg, nil
	}
	tools, err := process.LoadTools(cfg.Tools)
	if err != nil {
		return nil, err
	}
	if err := process.Register(reg, tools, process.WithBaseDir(filepath.Dir(cfg.Tools))); err != nil {
		return nil, err
	}
	return reg, nil
}

func (a *App) buildObservers(ctx context.Context) ([]any, error) {
	observers := []any{observability.NewLogObserver(a.Logger)}

	if a.Config.Observation.Metrics {
		a.Metrics = prometheus.NewRegistry()
		a.Metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err := observability.NewMetricsObserver(a.Metrics)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		observers = append(observers, metrics)
	}

	if a.Config.Observation.Tracing {
		tp, err := newTracerProvider(ctx, os.Stderr)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, tp.Shutdown)
		observers = append(observers, observability.NewTracingObserver(tp))
	}

	return append(observers, a.extra...), nil
}

// buildCache returns the engine option of the configured cache backend, if any.
func (a *App) buildCache() ([]lattice.Option, error) {
	cfg := a.Config.Cache
	var store ports.ResponseStore
	switch cfg.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendMemory:
		store = memory.NewResponseStore(memory.WithCapacity(cfg.Capacity), memory.WithTTL(cfg.TTL))
	case config.BackendRedis:
		client, err := a.redisClient()
		if err != nil {
			return nil, err
		}
		store = newRedisResponses(client, a.Config.Redis.Prefix, cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	return []lattice.Option{lattice.WithCache(cache.New(store, cache.WithLogger(a.Logger)))}, nil
}

// buildCheckpoints returns the engine options of the configured checkpoint backend,
// wrapped with masking and encryption when configured.
func (a *App) buildCheckpoints() ([]lattice.Option, error) {
	cfg := a.Config.Checkpoint
	var (
		store ports.CheckpointStore
		opts  []lattice.Option
	)
	switch cfg.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendMemory:
		store = memory.NewStore()
	case config.BackendFile:
		store = newFileStore(cfg.Dir)
	case config.BackendRedis:
		client, err := a.redisClient()
		if err != nil {
			return nil, err
		}
		redisStore, locker := newRedisCheckpoints(client, a.Config.Redis.Prefix)
		store = redisStore
		opts = append(opts, lattice.WithLocker(locker))
		if cfg.LockTTL > 0 {
			opts = append(opts, lattice.WithLockTTL(cfg.LockTTL))
		}
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}

	mws, err := checkpointMiddleware(cfg)
	if err != nil {
		return nil, err
	}
	store = middleware.Chain(store, mws...)
	return append(opts, lattice.WithCheckpointStore(store)), nil
}

// redisClient returns the shared client, dialing and pinging Redis on first use.
func (a *App) redisClient() (backend.UniversalClient, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	cfg := a.Config.Redis
	client := backend.NewClient(&backend.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	a.redis = client
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	return client, nil
}
