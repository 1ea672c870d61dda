package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, ingestion and the conversion pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	ingestTotal     *prometheus.CounterVec
	ingestBytes     prometheus.Histogram
	stageDuration   *prometheus.HistogramVec
	stageTotal      *prometheus.CounterVec
	enqueueFailures prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	ingestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "document_ingestions_total",
		Help: "Uploads by outcome (success, duplicate, rejected)",
	}, []string{"result"})

	ingestBytes := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "document_ingestion_bytes",
		Help:    "Size of accepted originals",
		Buckets: prometheus.ExponentialBuckets(16*1024, 4, 8),
	})

	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "document_conversion_stage_seconds",
		Help:    "Duration of conversion pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage", "status"})

	stageTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "document_conversion_stage_total",
		Help: "Completed conversion stages by resulting status",
	}, []string{"stage", "status"})

	enqueueFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "document_enqueue_failures_total",
		Help: "Documents persisted but not handed to the conversion queue",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, ingestTotal, ingestBytes, stageDuration, stageTotal, enqueueFailures, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		ingestTotal:     ingestTotal,
		ingestBytes:     ingestBytes,
		stageDuration:   stageDuration,
		stageTotal:      stageTotal,
		enqueueFailures: enqueueFailures,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordIngestion counts an upload outcome; size is only observed for stored originals.
func (m *MetricsService) RecordIngestion(result string, size int64) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(result).Inc()
	if result == "success" && size > 0 {
		m.ingestBytes.Observe(float64(size))
	}
}

// ObserveConversionStage records how long a stage ran and the status it left behind.
func (m *MetricsService) ObserveConversionStage(stage, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
	m.stageTotal.WithLabelValues(stage, status).Inc()
}

// RecordEnqueueFailure counts documents left pending because the queue rejected them.
func (m *MetricsService) RecordEnqueueFailure() {
	if m == nil {
		return
	}
	m.enqueueFailures.Inc()
}
