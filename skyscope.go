package skyscope

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/skyscope/internal/config"
	"github.com/aretw0/skyscope/internal/logging"
	"github.com/aretw0/skyscope/pkg/adapters/file"
	"github.com/aretw0/skyscope/pkg/adapters/memory"
	"github.com/aretw0/skyscope/pkg/adapters/redis"
	"github.com/aretw0/skyscope/pkg/adapters/skyframe"
	"github.com/aretw0/skyscope/pkg/debounce"
	"github.com/aretw0/skyscope/pkg/explorer"
	"github.com/aretw0/skyscope/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/aretw0/skyscope"

// Version is the release of this build.
//
//go:embed VERSION
var Version string

// App bundles the components built from a configuration.
type App struct {
	Config  config.Config
	Backend *skyframe.Client
	Store   ports.ViewStore
	Views   *explorer.Manager
	Logger  *slog.Logger

	closers []func() error
}

type options struct {
	logger   *slog.Logger
	registry prometheus.Registerer
	clock    debounce.Clock
	tracing  trace.TracerProvider
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegistry registers the scheduler metrics in reg.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithClock replaces the scheduler clock.
func WithClock(c debounce.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithTracerProvider traces scheduler invocations and backend requests with
// tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracing = tp
	}
}

// New connects the backend client, opens the configured view store and
// creates the view manager.
func New(cfg config.Config, opts ...Option) (*App, error) {
	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	clientOpts := []skyframe.Option{
		skyframe.WithTimeout(cfg.Backend.Timeout),
		skyframe.WithLogger(o.logger),
	}
	schedOpts := []debounce.Option{debounce.WithActionTimeout(cfg.Scheduling.ActionTimeout)}
	if o.tracing != nil {
		tracer := o.tracing.Tracer(tracerName)
		clientOpts = append(clientOpts, skyframe.WithTracer(tracer))
		schedOpts = append(schedOpts, debounce.WithTracer(tracer))
	}

	backend, err := skyframe.New(cfg.Backend.URL, clientOpts...)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Backend: backend,
		Logger:  o.logger,
	}

	managerOpts := []explorer.Option{
		explorer.WithLogger(o.logger),
		explorer.WithDelays(cfg.Scheduling.SearchDelay, cfg.Scheduling.RenderDelay),
		explorer.WithLanguage(cfg.UI.Language()),
	}

	switch cfg.Store.Kind {
	case config.StoreMemory:
		app.Store = memory.NewStore()
	case config.StoreFile:
		app.Store = file.New(cfg.Store.Dir)
	case config.StoreRedis:
		var storeOpts []redis.Option
		if cfg.Redis.Prefix != "" {
			storeOpts = append(storeOpts, redis.WithPrefix(cfg.Redis.Prefix))
		}
		if cfg.Redis.TTL > 0 {
			storeOpts = append(storeOpts, redis.WithTTL(cfg.Redis.TTL))
		}
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, storeOpts...)
		app.Store = store
		app.closers = append(app.closers, store.Close)
		managerOpts = append(managerOpts,
			explorer.WithLocker(redis.NewLocker(store.Client(), cfg.Redis.Prefix)),
			explorer.WithLockTTL(cfg.Redis.LockTTL),
		)
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}

	if o.registry != nil {
		schedOpts = append(schedOpts, debounce.WithMetrics(debounce.NewMetrics(o.registry)))
	}
	if o.clock != nil {
		schedOpts = append(schedOpts, debounce.WithClock(o.clock))
	}
	managerOpts = append(managerOpts, explorer.WithSchedulerOptions(schedOpts...))

	app.Views = explorer.NewManager(backend, app.Store, managerOpts...)
	return app, nil
}

// Close stops the scheduler, waits for running actions and releases the
// store.
func (a *App) Close(ctx context.Context) error {
	errs := []error{a.Views.Shutdown(ctx)}
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
