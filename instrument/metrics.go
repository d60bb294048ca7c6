package instrument

import (
	"time"

	"github.com/delaneyj/cdom/cdom"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus observer.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "cdom").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for evaluation duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

type MetricsOption func(*MetricsConfig)

func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the registry the collectors are registered with. Tests
// pass a fresh prometheus.NewRegistry() so repeated construction does not
// collide on the default registerer.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "cdom",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics is a cdom.Observer that records evaluator and scheduler activity
// as Prometheus collectors.
type Metrics struct {
	evaluations   *prometheus.CounterVec
	evalErrors    *prometheus.CounterVec
	evalDuration  *prometheus.HistogramVec
	suspensions   prometheus.Counter
	helperLoads   *prometheus.CounterVec
	loadDuration  prometheus.Histogram
	notifications prometheus.Counter
	notified      prometheus.Counter
	batches       prometheus.Counter
	batchSize     prometheus.Histogram
}

var _ cdom.Observer = (*Metrics)(nil)

// NewMetrics registers the collectors and returns the observer.
//
// Metrics collected:
//   - cdom_evaluations_total: evaluations by kind (expression, structural)
//   - cdom_evaluation_errors_total: evaluations that produced an error marker
//   - cdom_evaluation_duration_seconds: evaluation latency by kind
//   - cdom_suspensions_total: evaluations that hit a helper still loading
//   - cdom_helper_loads_total: loader outcomes by status
//   - cdom_helper_load_duration_seconds: loader latency
//   - cdom_notifications_total: cell writes that notified subscribers
//   - cdom_notified_subscribers_total: subscribers re-run by cell writes
//   - cdom_batches_total: external-change batch passes
//   - cdom_batch_subscribers: structural subscribers re-run per batch
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "evaluations_total",
			Help:        "Total number of evaluations by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		evalErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "evaluation_errors_total",
			Help:        "Total number of evaluations that failed",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		evalDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "evaluation_duration_seconds",
			Help:        "Evaluation duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"kind"}),

		suspensions: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "suspensions_total",
			Help:        "Total number of evaluations suspended on a loading helper",
			ConstLabels: config.ConstLabels,
		}),

		helperLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "helper_loads_total",
			Help:        "Total number of helper loads by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),

		loadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "helper_load_duration_seconds",
			Help:        "Helper load duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		notifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "notifications_total",
			Help:        "Total number of cell writes that notified subscribers",
			ConstLabels: config.ConstLabels,
		}),

		notified: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "notified_subscribers_total",
			Help:        "Total number of subscribers re-run by cell writes",
			ConstLabels: config.ConstLabels,
		}),

		batches: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "batches_total",
			Help:        "Total number of external-change batch passes",
			ConstLabels: config.ConstLabels,
		}),

		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "batch_subscribers",
			Help:        "Structural subscribers re-run per batch pass",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{0, 1, 5, 10, 50, 100, 500},
		}),
	}
}

func (m *Metrics) Evaluated(kind cdom.EvalKind, d time.Duration, failed bool) {
	k := string(kind)
	m.evaluations.WithLabelValues(k).Inc()
	m.evalDuration.WithLabelValues(k).Observe(d.Seconds())
	if failed {
		m.evalErrors.WithLabelValues(k).Inc()
	}
}

func (m *Metrics) Suspended(name string) {
	m.suspensions.Inc()
}

func (m *Metrics) HelperLoaded(name string, status cdom.HelperStatus, d time.Duration) {
	m.helperLoads.WithLabelValues(status.String()).Inc()
	m.loadDuration.Observe(d.Seconds())
}

func (m *Metrics) Notified(name string, subscribers int) {
	m.notifications.Inc()
	m.notified.Add(float64(subscribers))
}

func (m *Metrics) Batched(subscribers int) {
	m.batches.Inc()
	m.batchSize.Observe(float64(subscribers))
}
