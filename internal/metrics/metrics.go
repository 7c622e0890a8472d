// Package metrics exposes Prometheus instrumentation for the server.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the application metrics
type Metrics struct {
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	RateLimitRejected *prometheus.CounterVec

	MediaGCRemoved   prometheus.Counter
	MediaGCSweeps    prometheus.Counter
	MediaQuotaDenied prometheus.Counter
}

// New creates and registers all metrics with the given registerer.
// nil registerer означает глобальный реестр prometheus.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardkeeper_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boardkeeper_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		RateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boardkeeper_rate_limit_rejected_total",
			Help: "Total number of requests rejected by the rate limiter",
		}, []string{"scope"}),

		MediaGCRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boardkeeper_media_gc_removed_total",
			Help: "Total number of media blobs removed by the garbage collector",
		}),

		MediaGCSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boardkeeper_media_gc_sweeps_total",
			Help: "Total number of per-user garbage collection sweeps",
		}),

		MediaQuotaDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boardkeeper_media_quota_denied_total",
			Help: "Total number of uploads denied by the media quota",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.HTTPRequestTotal,
		m.HTTPRequestDuration,
		m.RateLimitRejected,
		m.MediaGCRemoved,
		m.MediaGCSweeps,
		m.MediaQuotaDenied,
	} {
		registerOrGet(reg, c)
	}

	return m
}

// registerOrGet регистрирует коллектор, молча пропуская повторную
// регистрацию (случается в тестах с общим реестром)
func registerOrGet(reg prometheus.Registerer, c prometheus.Collector) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
	}
}
