package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"shardwork/internal/errors"
)

const namespace = "shardwork"

// Collector collects and exposes metrics on a private registry
type Collector struct {
	registry        *prometheus.Registry
	itemsTotal      *prometheus.CounterVec
	progressTotal   *prometheus.CounterVec
	filesTotal      prometheus.Counter
	retriesTotal    *prometheus.CounterVec
	inflightWorkers prometheus.Gauge
	duration        prometheus.Histogram
}

// New creates a new metrics collector
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		itemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_total",
				Help:      "Total number of work items by outcome",
			},
			[]string{"status"},
		),
		progressTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "progress_total",
				Help:      "Unit-declared progress counters",
			},
			[]string{"counter"},
		),
		filesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_total",
				Help:      "Source files fully processed",
			},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Retried attempts by failure kind",
			},
			[]string{"kind"},
		),
		inflightWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "inflight_workers",
				Help:      "Number of workers currently processing",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "item_duration_seconds",
				Help:      "Time taken to process one work item, retries included",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
			},
		),
	}

	c.registry.MustRegister(
		c.itemsTotal,
		c.progressTotal,
		c.filesTotal,
		c.retriesTotal,
		c.inflightWorkers,
		c.duration,
	)

	return c
}

// Registry returns the registry holding this collector's metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// IncSuccess increments the successful item counter
func (c *Collector) IncSuccess() {
	c.itemsTotal.WithLabelValues("success").Inc()
}

// IncFailed increments the failed item counter
func (c *Collector) IncFailed() {
	c.itemsTotal.WithLabelValues("failed").Inc()
}

// AddSkipped counts items skipped because their completion marker exists
func (c *Collector) AddSkipped(n int) {
	c.itemsTotal.WithLabelValues("skipped").Add(float64(n))
}

// AddFiltered counts items dropped by include/exclude/regex filters
func (c *Collector) AddFiltered(n int) {
	c.itemsTotal.WithLabelValues("filtered").Add(float64(n))
}

// IncRetry counts one retry caused by a failure of the given kind
func (c *Collector) IncRetry(kind string) {
	c.retriesTotal.WithLabelValues(kind).Inc()
}

// IncInflight marks a worker busy
func (c *Collector) IncInflight() {
	c.inflightWorkers.Inc()
}

// DecInflight marks a worker idle
func (c *Collector) DecInflight() {
	c.inflightWorkers.Dec()
}

// ObserveDuration observes item processing duration
func (c *Collector) ObserveDuration(duration time.Duration) {
	c.duration.Observe(duration.Seconds())
}

// ObserveProgress adds n to a unit counter
func (c *Collector) ObserveProgress(key string, n int64) {
	c.progressTotal.WithLabelValues(key).Add(float64(n))
}

// ObserveFiles adds n fully processed source files
func (c *Collector) ObserveFiles(n int64) {
	c.filesTotal.Add(float64(n))
}

// Handler serves this collector's registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr until ctx is cancelled
func (c *Collector) StartServer(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Starting metrics server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "metrics server")
	}
	return nil
}
