// Package tracing records effect synchronization sessions as OpenTelemetry
// spans. One span covers one session, from setup to teardown.
package tracing

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/resync/pkg/deps"
	"github.com/vango-dev/resync/pkg/effect"
)

// Default tracer name.
const defaultTracerName = "resync"

// Config configures the tracing observer.
type Config struct {
	// TracerName is the name of the tracer (default: "resync").
	TracerName string

	// Provider is the tracer provider. Default: the global provider.
	Provider trace.TracerProvider

	// Parent is the context new session spans are started under.
	// Default: context.Background().
	Parent context.Context

	// IncludeInputs adds the rendered input list as a span attribute.
	// Inputs may be large; disabled by default.
	IncludeInputs bool
}

// Option configures the tracing observer.
type Option func(*Config)

// WithTracerName sets the tracer name.
func WithTracerName(name string) Option {
	return func(c *Config) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) {
		c.Provider = tp
	}
}

// WithParent sets the parent context for session spans.
func WithParent(ctx context.Context) Option {
	return func(c *Config) {
		c.Parent = ctx
	}
}

// WithIncludeInputs enables the resync.inputs attribute.
func WithIncludeInputs(include bool) Option {
	return func(c *Config) {
		c.IncludeInputs = include
	}
}

// Observer implements effect.Observer with one span per session.
type Observer struct {
	config Config
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[uuid.UUID]trace.Span
}

// New creates a tracing observer.
//
// The tracer uses the global OpenTelemetry tracer provider unless
// WithTracerProvider is given. Configure it before creating effects:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
func New(opts ...Option) *Observer {
	config := Config{
		TracerName: defaultTracerName,
		Parent:     context.Background(),
	}
	for _, opt := range opts {
		opt(&config)
	}

	var tracer trace.Tracer
	if config.Provider != nil {
		tracer = config.Provider.Tracer(config.TracerName)
	} else {
		tracer = otel.Tracer(config.TracerName)
	}

	return &Observer{
		config: config,
		tracer: tracer,
		spans:  make(map[uuid.UUID]trace.Span),
	}
}

// SessionStarted implements effect.Observer.
func (o *Observer) SessionStarted(s *effect.Session, inputs deps.List) {
	attrs := []attribute.KeyValue{
		attribute.String("resync.effect", s.Effect),
		attribute.String("resync.session.id", s.ID.String()),
		attribute.Int("resync.session.seq", s.Seq),
		attribute.String("resync.inputs.shape", inputs.Shape().String()),
		attribute.Int("resync.inputs.len", inputs.Len()),
	}
	if o.config.IncludeInputs {
		attrs = append(attrs, attribute.String("resync.inputs", inputs.String()))
	}

	_, span := o.tracer.Start(o.config.Parent, "resync.session "+s.Effect,
		trace.WithTimestamp(s.Started),
		trace.WithAttributes(attrs...),
	)

	o.mu.Lock()
	o.spans[s.ID] = span
	o.mu.Unlock()
}

// SessionEnded implements effect.Observer.
func (o *Observer) SessionEnded(s *effect.Session, reason effect.EndReason) {
	o.mu.Lock()
	span, ok := o.spans[s.ID]
	delete(o.spans, s.ID)
	o.mu.Unlock()
	if !ok {
		return
	}

	span.SetAttributes(attribute.String("resync.end_reason", reason.String()))
	if reason == effect.EndAborted {
		span.SetStatus(codes.Error, "setup panicked")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Skipped implements effect.Observer.
func (o *Observer) Skipped(s *effect.Session, inputs deps.List) {
	if s == nil {
		return
	}
	o.mu.Lock()
	span, ok := o.spans[s.ID]
	o.mu.Unlock()
	if !ok {
		return
	}
	span.AddEvent("resync.skip", trace.WithAttributes(
		attribute.Int("resync.inputs.len", inputs.Len()),
	))
}

// Open returns the number of sessions with an unfinished span.
func (o *Observer) Open() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.spans)
}
