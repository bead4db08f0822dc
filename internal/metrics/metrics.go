// Package metrics provides Prometheus metrics export for the chat service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports chat service metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	chatRequests   *prometheus.CounterVec
	chatLatency    *prometheus.HistogramVec
	streamChunks   *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
	activeStreams  prometheus.Gauge
	imageRequests  *prometheus.CounterVec
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default exporter configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}
}

// NewExporter creates a new Prometheus metrics exporter.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.chatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnichat",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of chat completion requests",
		},
		[]string{"provider", "model", "status"},
	)

	e.chatLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "omnichat",
			Subsystem: "chat",
			Name:      "latency_seconds",
			Help:      "Chat completion latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"provider", "model"},
	)

	e.streamChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnichat",
			Subsystem: "chat",
			Name:      "stream_chunks_total",
			Help:      "Total number of streamed content chunks",
		},
		[]string{"provider"},
	)

	e.providerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnichat",
			Subsystem: "chat",
			Name:      "provider_errors_total",
			Help:      "Total number of provider call failures",
		},
		[]string{"provider", "kind"},
	)

	e.activeStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "omnichat",
			Subsystem: "chat",
			Name:      "active_streams",
			Help:      "Number of streaming responses in flight",
		},
	)

	e.imageRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnichat",
			Subsystem: "image",
			Name:      "requests_total",
			Help:      "Total number of image generation requests",
		},
		[]string{"status"},
	)

	registry.MustRegister(
		e.chatRequests,
		e.chatLatency,
		e.streamChunks,
		e.providerErrors,
		e.activeStreams,
		e.imageRequests,
	)

	return e
}

// RecordChatRequest records a completed chat request.
func (e *Exporter) RecordChatRequest(provider, model string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.chatRequests.WithLabelValues(provider, model, status).Inc()
	e.chatLatency.WithLabelValues(provider, model).Observe(latency.Seconds())
}

// RecordStreamChunk records one streamed content chunk.
func (e *Exporter) RecordStreamChunk(provider string) {
	e.streamChunks.WithLabelValues(provider).Inc()
}

// RecordProviderError records a provider call failure.
func (e *Exporter) RecordProviderError(provider, kind string) {
	e.providerErrors.WithLabelValues(provider, kind).Inc()
}

// StreamStarted increments the active stream gauge.
func (e *Exporter) StreamStarted() {
	e.activeStreams.Inc()
}

// StreamFinished decrements the active stream gauge.
func (e *Exporter) StreamFinished() {
	e.activeStreams.Dec()
}

// RecordImageRequest records an image generation request.
func (e *Exporter) RecordImageRequest(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.imageRequests.WithLabelValues(status).Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
