package httpserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the Prometheus collectors of the delivery layer, kept on a
// private registry.
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	bytesSent *prometheus.CounterVec
	cacheHits prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tgfilestream_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tgfilestream_http_request_duration_seconds",
			Help:    "Time to first byte plus transfer, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		bytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tgfilestream_bytes_sent_total",
			Help: "Payload bytes written to clients by delivery mode.",
		}, []string{"mode"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tgfilestream_not_modified_total",
			Help: "Requests answered with 304 from a matching ETag.",
		}),
	}

	m.registry.MustRegister(
		m.requests, m.duration, m.bytesSent, m.cacheHits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
