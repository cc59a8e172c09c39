// Package metrics exports effect lifecycle metrics to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/resync/pkg/deps"
	"github.com/vango-dev/resync/pkg/effect"
)

// Config configures the Prometheus observer.
type Config struct {
	// Namespace is the metrics namespace (default: "resync").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for session duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the Prometheus observer.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "resync",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Observer records effect lifecycle metrics. It implements effect.Observer.
//
// Metrics collected:
//   - resync_setups_total{effect}: sessions started
//   - resync_teardowns_total{effect,reason}: sessions ended
//   - resync_skips_total{effect}: passes that kept the session
//   - resync_active_sessions: sessions currently running
//   - resync_session_duration_seconds{effect}: session lifetimes
//
// Effect names become label values; hosts that generate unbounded names
// should name their effects.
type Observer struct {
	setups    *prometheus.CounterVec
	teardowns *prometheus.CounterVec
	skips     *prometheus.CounterVec
	active    prometheus.Gauge
	duration  *prometheus.HistogramVec

	now func() time.Time
}

// New registers the metrics and returns an Observer. Registering twice on the
// same registry panics, as promauto does; use Default for a shared instance.
func New(opts ...Option) *Observer {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Observer{
		setups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "setups_total",
			Help:        "Total number of effect synchronization sessions started",
			ConstLabels: config.ConstLabels,
		}, []string{"effect"}),

		teardowns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "teardowns_total",
			Help:        "Total number of effect synchronization sessions ended",
			ConstLabels: config.ConstLabels,
		}, []string{"effect", "reason"}),

		skips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "skips_total",
			Help:        "Total number of passes whose inputs left the session running",
			ConstLabels: config.ConstLabels,
		}, []string{"effect"}),

		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of synchronization sessions currently running",
			ConstLabels: config.ConstLabels,
		}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "session_duration_seconds",
			Help:        "Lifetime of synchronization sessions in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"effect"}),

		now: time.Now,
	}
}

var (
	defaultObserver     *Observer
	defaultObserverOnce sync.Once
)

// Default returns an Observer registered once on prometheus.DefaultRegisterer.
func Default() *Observer {
	defaultObserverOnce.Do(func() {
		defaultObserver = New()
	})
	return defaultObserver
}

// SessionStarted implements effect.Observer.
func (o *Observer) SessionStarted(s *effect.Session, _ deps.List) {
	o.setups.WithLabelValues(s.Effect).Inc()
	o.active.Inc()
}

// SessionEnded implements effect.Observer.
func (o *Observer) SessionEnded(s *effect.Session, reason effect.EndReason) {
	o.teardowns.WithLabelValues(s.Effect, reason.String()).Inc()
	o.active.Dec()
	o.duration.WithLabelValues(s.Effect).Observe(o.now().Sub(s.Started).Seconds())
}

// Skipped implements effect.Observer.
func (o *Observer) Skipped(s *effect.Session, _ deps.List) {
	name := "unknown"
	if s != nil {
		name = s.Effect
	}
	o.skips.WithLabelValues(name).Inc()
}
