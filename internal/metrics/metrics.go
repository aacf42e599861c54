// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cvpress"

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "browser_sessions_active",
		Help:      "Browser processes currently owned by an automation session.",
	})
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "browser_sessions_total",
		Help:      "Automation sessions by kind and outcome (ok or an error code).",
	}, []string{"kind", "outcome"})
	SessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "browser_session_duration_seconds",
		Help:      "Wall time from session open to teardown.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 90, 120},
	}, []string{"kind"})
	TeardownFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "browser_teardown_failures_total",
		Help:      "Browser shutdowns that did not complete within the teardown budget.",
	})
	CallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_callbacks_total",
		Help:      "Payment provider callbacks received, split by first delivery or redelivery.",
	}, []string{"delivery"})
	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_requests_total",
		Help:      "Outbound payment requests by provider and outcome.",
	}, []string{"provider", "outcome"})
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_rate_limited_total",
		Help:      "Requests rejected by the per-client rate limiter.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
