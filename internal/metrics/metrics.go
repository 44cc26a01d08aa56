// Package metrics регистрирует метрики Prometheus рассылки, откликов помощников и HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helper_dispatch_total",
			Help: "Notification send attempts by final status",
		},
		[]string{"status"},
	)

	dispatchSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helper_dispatch_skips_total",
			Help: "Candidates skipped before sending, by reason",
		},
		[]string{"reason"},
	)

	registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helper_registrations_total",
			Help: "New helper registrations by contact access",
		},
		[]string{"contact_access"},
	)

	notifierDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helper_notifier_duration_seconds",
			Help:    "Latency of outbound channel calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// DispatchResult учитывает итог отправки: sent или failed.
func DispatchResult(status string) {
	dispatchTotal.WithLabelValues(status).Inc()
}

// DispatchSkipped учитывает пропуск кандидата.
func DispatchSkipped(reason string) {
	dispatchSkips.WithLabelValues(reason).Inc()
}

// HelperRegistered учитывает новую регистрацию помощника.
func HelperRegistered(contactAccess bool) {
	registrations.WithLabelValues(strconv.FormatBool(contactAccess)).Inc()
}

// ObserveNotifier записывает длительность вызова внешнего канала.
func ObserveNotifier(d time.Duration) {
	notifierDuration.Observe(d.Seconds())
}

// HTTPMiddleware считает запросы по шаблону маршрута chi.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
