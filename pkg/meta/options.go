package meta

import (
	"context"
	"time"
)

// Logger is the structured logging surface used by Store. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsRecorder receives one observation per Store operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer opens a span per Store operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is closed with the operation outcome.
type TraceSpan interface {
	End(err error)
}

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
}

func applyOptions(opts []Option) storeConfig {
	cfg := storeConfig{
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithLogger attaches a logger. A nil logger disables logging.
func WithLogger(logger Logger) Option {
	return func(cfg *storeConfig) {
		if logger == nil {
			cfg.logger = noopLogger{}
			return
		}
		cfg.logger = logger
	}
}

// WithMetricsRecorder attaches a metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(cfg *storeConfig) {
		if recorder == nil {
			cfg.metrics = noopMetrics{}
			return
		}
		cfg.metrics = recorder
	}
}

// WithTracer attaches a tracer.
func WithTracer(tracer Tracer) Option {
	return func(cfg *storeConfig) {
		if tracer == nil {
			cfg.tracer = noopTracer{}
			return
		}
		cfg.tracer = tracer
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}
