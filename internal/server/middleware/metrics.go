package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/iudanet/boardkeeper/internal/metrics"
)

// MetricsMiddleware собирает счетчик и гистограмму длительности HTTP
// запросов. В качестве метки path используется шаблон маршрута, а не
// сырой URL, иначе кардинальность меток растет с каждым file id.
func MetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			path := r.Pattern
			if path == "" {
				path = "unmatched"
			}
			status := strconv.Itoa(wrapped.statusCode)

			m.HTTPRequestTotal.WithLabelValues(r.Method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, path, status).
				Observe(time.Since(start).Seconds())
		})
	}
}
