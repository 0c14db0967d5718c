package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for BookingsTotal.
const (
	OutcomeCreated    = "created"
	OutcomeConflict   = "conflict"
	OutcomeValidation = "validation_error"
	OutcomeNotFound   = "not_found"
	OutcomeError      = "error"
)

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	BookingsTotal    *prometheus.CounterVec
	TransitionsTotal *prometheus.CounterVec
	LockAcquireTotal *prometheus.CounterVec
}

func NewCollector(serviceName string) *Collector {
	return &Collector{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		BookingsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "booking",
			Name:      "create_total",
			Help:      "Booking creation attempts by outcome.",
		}, []string{"outcome"}),

		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions by target status and outcome.",
		}, []string{"to", "outcome"}),

		LockAcquireTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "lock",
			Name:      "acquire_total",
			Help:      "Lock acquisition attempts by role and outcome.",
		}, []string{"role", "outcome"}),
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
