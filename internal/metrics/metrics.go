// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coffeehouse"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path", "status"},
	)

	cartOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_operations_total",
			Help:      "Cart mutations by operation and result",
		},
		[]string{"operation", "status"},
	)

	checkouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by outcome",
		},
		[]string{"outcome"},
	)

	authAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Sign-in, registration and sign-out attempts by outcome",
		},
		[]string{"operation", "outcome"},
	)

	activeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_device_clients",
			Help:      "Device clients held in memory",
		},
	)
)

// Checkout outcomes.
const (
	CheckoutSuccess         = "success"
	CheckoutEmpty           = "empty_cart"
	CheckoutUnauthenticated = "unauthenticated"
	CheckoutError           = "error"
)

// ObserveHTTP records one served request.
func ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, path, code).Inc()
	httpRequestDuration.WithLabelValues(method, path, code).Observe(elapsed.Seconds())
}

func RecordCartOperation(operation string, err error) {
	cartOperations.WithLabelValues(operation, result(err)).Inc()
}

func RecordCheckout(outcome string) {
	checkouts.WithLabelValues(outcome).Inc()
}

// RecordAuth counts an auth attempt; outcome is "success", "rejected" or "error".
func RecordAuth(operation, outcome string) {
	authAttempts.WithLabelValues(operation, outcome).Inc()
}

func SetActiveClients(n int) {
	activeClients.Set(float64(n))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
