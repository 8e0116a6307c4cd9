// README: Prometheus metrics for booking outcomes, reversals, ratings and HTTP traffic.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "yatra"

var (
	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "bookings_total", Help: "Booking attempts by outcome (ok or failure reason)"},
		[]string{"outcome"},
	)
	BookingTxSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "booking_tx_seconds",
		Help:      "Wall time of the booking transaction including lock wait",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})
	CancellationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cancellations_total", Help: "Request and trip reversals by kind and outcome"},
		[]string{"kind", "outcome"},
	)
	RatingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ratings_total", Help: "Rating submissions by outcome"},
		[]string{"outcome"},
	)
	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "events_dropped_total", Help: "Domain events dropped because the publish queue was full or closed"},
	)
	SearchCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "search_cache_total", Help: "Trip search cache lookups by result"},
		[]string{"result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Outcome turns an operation result into a low-cardinality label: "ok",
// the domain reason, "transient" or "error".
func Outcome(reason string, transient bool, err error) string {
	switch {
	case err == nil:
		return "ok"
	case reason != "":
		return reason
	case transient:
		return "transient"
	default:
		return "error"
	}
}
