package debounce

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/skyscope/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/aretw0/skyscope/pkg/debounce"

type config struct {
	clock   Clock
	logger  *slog.Logger
	timeout time.Duration
	metrics *Metrics
	tracer  trace.Tracer
	label   func(id any) string
	onError func(action string, err error)
}

func defaultConfig() config {
	return config{
		clock:  systemClock{},
		logger: logging.NewNop(),
		tracer: otel.Tracer(tracerName),
		label:  func(id any) string { return fmt.Sprint(id) },
	}
}

// Option configures a Scheduler.
type Option func(*config)

// WithClock replaces the timer source.
func WithClock(c Clock) Option {
	return func(cfg *config) {
		cfg.clock = c
	}
}

// WithLogger sets the logger used for scheduling diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithActionTimeout bounds each invocation with a context deadline.
// Zero (the default) means no timeout: an action that never returns keeps its
// identity blocked.
func WithActionTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = d
	}
}

// WithMetrics records scheduling activity in m.
func WithMetrics(m *Metrics) Option {
	return func(cfg *config) {
		cfg.metrics = m
	}
}

// WithTracer sets the tracer used to wrap each invocation in a span.
func WithTracer(t trace.Tracer) Option {
	return func(cfg *config) {
		cfg.tracer = t
	}
}

// WithLabeler maps an action identity to the label used in logs, metrics and
// spans. Use it to keep metric cardinality bounded when identities are dynamic.
func WithLabeler(fn func(id any) string) Option {
	return func(cfg *config) {
		cfg.label = fn
	}
}

// WithErrorHandler observes failed invocations. The handler cannot change
// scheduling: the queue drains regardless.
func WithErrorHandler(fn func(action string, err error)) Option {
	return func(cfg *config) {
		cfg.onError = fn
	}
}
