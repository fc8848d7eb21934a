package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Outcome label for successful pipelines; failures use the error kind
const OutcomeSuccess = "success"

// MetricsCollector is the recording facade used by the pipeline and HTTP layer.
// A nil *MetricsCollector is valid and records nothing.
type MetricsCollector struct {
	prometheus *PrometheusMetrics
}

func NewMetricsCollector(namespace string, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{prometheus: NewPrometheusMetrics(namespace, logger)}
}

func NewMetricsCollectorWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{prometheus: NewPrometheusMetricsWithRegistry(namespace, registerer, logger)}
}

// RecordPipeline records the terminal outcome and duration of one pipeline run
func (mc *MetricsCollector) RecordPipeline(outcome string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.prometheus.pipelinesTotal.WithLabelValues(outcome).Inc()
	mc.prometheus.pipelineDuration.Observe(duration.Seconds())
}

func (mc *MetricsCollector) PipelineStarted() {
	if mc == nil {
		return
	}
	mc.prometheus.inflight.Inc()
}

func (mc *MetricsCollector) PipelineFinished() {
	if mc == nil {
		return
	}
	mc.prometheus.inflight.Dec()
}

// ObserveAttempt satisfies retry.Observer
func (mc *MetricsCollector) ObserveAttempt(success bool, duration time.Duration) {
	if mc == nil {
		return
	}
	result := "failure"
	if success {
		result = OutcomeSuccess
	}
	mc.prometheus.attemptsTotal.WithLabelValues(result).Inc()
	mc.prometheus.attemptDuration.Observe(duration.Seconds())
}

func (mc *MetricsCollector) RecordDocumentSize(bytes int) {
	if mc == nil {
		return
	}
	mc.prometheus.documentBytes.Observe(float64(bytes))
}

func (mc *MetricsCollector) RecordLockConflict() {
	if mc == nil {
		return
	}
	mc.prometheus.lockConflicts.Inc()
}

// RecordLockError counts store failures; operation is "acquire" or "release"
func (mc *MetricsCollector) RecordLockError(operation string) {
	if mc == nil {
		return
	}
	mc.prometheus.lockErrors.WithLabelValues(operation).Inc()
}

func (mc *MetricsCollector) RecordEnrichmentWarnings(n int) {
	if mc == nil || n <= 0 {
		return
	}
	mc.prometheus.enrichWarnings.Add(float64(n))
}

func (mc *MetricsCollector) RecordDump(ok bool) {
	if mc == nil {
		return
	}
	result := "error"
	if ok {
		result = OutcomeSuccess
	}
	mc.prometheus.dumpsTotal.WithLabelValues(result).Inc()
}

func (mc *MetricsCollector) RecordHTTPRequest(endpoint string, status int) {
	if mc == nil {
		return
	}
	mc.prometheus.httpRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// ServeHTTP serves Prometheus metrics via HTTP
func (mc *MetricsCollector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	mc.prometheus.httpHandler(ctx)
}
