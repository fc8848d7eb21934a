package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

const subsystem = "pdf"

// PrometheusMetrics holds the collectors exported by the PDF service
type PrometheusMetrics struct {
	pipelinesTotal   *prometheus.CounterVec
	pipelineDuration prometheus.Histogram
	inflight         prometheus.Gauge

	attemptsTotal   *prometheus.CounterVec
	attemptDuration prometheus.Histogram
	documentBytes   prometheus.Histogram

	lockConflicts prometheus.Counter
	lockErrors    *prometheus.CounterVec

	enrichWarnings prometheus.Counter
	dumpsTotal     *prometheus.CounterVec

	httpRequests *prometheus.CounterVec

	httpHandler fasthttp.RequestHandler
}

// NewPrometheusMetrics registers on the default registry
func NewPrometheusMetrics(namespace string, logger *zap.Logger) *PrometheusMetrics {
	return NewPrometheusMetricsWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewPrometheusMetricsWithRegistry registers on registerer; tests pass prometheus.NewRegistry()
func NewPrometheusMetricsWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *PrometheusMetrics {
	pm := &PrometheusMetrics{}

	pm.pipelinesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "pipelines_total",
		Help:      "Render pipelines by outcome (success or failure kind)",
	}, []string{"outcome"})

	pm.pipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "pipeline_duration_seconds",
		Help:      "End-to-end pipeline duration",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120, 180},
	})

	pm.inflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "pipelines_in_flight",
		Help:      "Pipelines currently holding a lock",
	})

	pm.attemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "render_attempts_total",
		Help:      "Browser render attempts by result",
	}, []string{"result"})

	pm.attemptDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "render_attempt_duration_seconds",
		Help:      "Duration of a single browser render attempt including launch and teardown",
		Buckets:   []float64{0.5, 1, 2, 3, 5, 10, 20, 30, 60},
	})

	pm.documentBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "document_bytes",
		Help:      "Size of produced PDF documents",
		Buckets:   prometheus.ExponentialBuckets(16*1024, 2, 10),
	})

	pm.lockConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "lock_conflicts_total",
		Help:      "Requests rejected because an identical request held the lock",
	})

	pm.lockErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "lock_errors_total",
		Help:      "Lock store failures by operation",
	}, []string{"operation"})

	pm.enrichWarnings = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "enrichment_warnings_total",
		Help:      "Sections passed through without a generated image",
	})

	pm.dumpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "failure_dumps_total",
		Help:      "Markup dumps written for failed renders",
	}, []string{"result"})

	pm.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by endpoint and status",
	}, []string{"endpoint", "status"})

	registerer.MustRegister(
		pm.pipelinesTotal,
		pm.pipelineDuration,
		pm.inflight,
		pm.attemptsTotal,
		pm.attemptDuration,
		pm.documentBytes,
		pm.lockConflicts,
		pm.lockErrors,
		pm.enrichWarnings,
		pm.dumpsTotal,
		pm.httpRequests,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Debug("PDF service Prometheus metrics initialized", zap.String("namespace", namespace))
	return pm
}
