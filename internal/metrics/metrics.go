package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Collector owns the tracking backend's Prometheus metrics on a private
// registry. It implements the metric interfaces the cache, service and hub
// accept, so wiring is just passing the collector in.
type Collector struct {
	reg *prometheus.Registry

	ReportsIngested prometheus.Counter
	ReportsRejected *prometheus.CounterVec

	Broadcasts  prometheus.Counter
	Subscribers prometheus.Gauge

	GeometryHits   prometheus.Counter
	GeometryMisses prometheus.Counter

	IngestDuration prometheus.Histogram
}

// NewCollector creates a new Collector with all metrics registered.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ReportsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracking_reports_ingested_total",
			Help: "Total location reports accepted.",
		}),
		ReportsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracking_reports_rejected_total",
			Help: "Total location reports rejected.",
		}, []string{"reason"}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracking_broadcasts_total",
			Help: "Total vehicle update broadcasts emitted.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracking_subscribers",
			Help: "Subscribers currently connected to the push channel.",
		}),
		GeometryHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracking_geometry_cache_hits_total",
			Help: "Geometry cache hits.",
		}),
		GeometryMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracking_geometry_cache_misses_total",
			Help: "Geometry cache misses requiring a durable-store load.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracking_ingest_duration_seconds",
			Help:    "Duration of location report ingestion.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
	}

	reg.MustRegister(
		c.ReportsIngested, c.ReportsRejected,
		c.Broadcasts, c.Subscribers,
		c.GeometryHits, c.GeometryMisses,
		c.IngestDuration,
	)

	return c
}

// ReportIngested implements services.TrackingMetrics
func (c *Collector) ReportIngested() { c.ReportsIngested.Inc() }

// ReportRejected implements services.TrackingMetrics
func (c *Collector) ReportRejected(reason string) { c.ReportsRejected.WithLabelValues(reason).Inc() }

// IngestObserve implements services.TrackingMetrics
func (c *Collector) IngestObserve(d time.Duration) { c.IngestDuration.Observe(d.Seconds()) }

// BroadcastEmitted implements broadcast.HubMetrics
func (c *Collector) BroadcastEmitted() { c.Broadcasts.Inc() }

// SubscriberCount implements broadcast.HubMetrics
func (c *Collector) SubscriberCount(n int) { c.Subscribers.Set(float64(n)) }

// GeometryCacheHit implements cache.GeometryMetrics
func (c *Collector) GeometryCacheHit() { c.GeometryHits.Inc() }

// GeometryCacheMiss implements cache.GeometryMetrics
func (c *Collector) GeometryCacheMiss() { c.GeometryMisses.Inc() }

// Handler returns the /metrics handler for the private registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *logrus.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Metrics server error")
		}
	}()
	logger.Infof("Metrics listening on %s", addr)
	return srv
}
