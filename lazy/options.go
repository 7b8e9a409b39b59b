package lazy

import (
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
)

type options struct {
	name    string
	logger  slog.Logger
	metrics *Metrics
	clock   quartz.Clock
	tracer  trace.Tracer
}

func defaultOptions() options {
	return options{
		logger: slog.Make(),
		clock:  quartz.NewReal(),
		tracer: noop.NewTracerProvider().Tracer(""),
	}
}

// Option configures a Cell.
type Option func(*options)

// WithName labels the cell in logs, metrics, spans and errors.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger. Cells log nothing by default.
func WithLogger(logger slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics records the cell's activity in m. The same Metrics may be
// shared by many cells; WithName tells them apart.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock sets the clock used to measure lock wait and hold times.
func WithClock(clock quartz.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithTracer sets the tracer used for the slow path of Negotiate.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}
