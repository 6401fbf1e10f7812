package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry metrics
	SubscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_subscriptions_active",
			Help: "Number of live subscriptions in the registry",
		},
	)

	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_registrations_total",
			Help: "Total number of register requests by result",
		},
		[]string{"result"},
	)

	UnregistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_unregistrations_total",
			Help: "Total number of subscriptions removed by cause",
		},
		[]string{"cause"},
	)

	// Delivery metrics
	DeliveryPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_delivery_passes_total",
			Help: "Total number of deliver requests by result",
		},
		[]string{"result"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_deliveries_total",
			Help: "Total number of per-subscription sends by result",
		},
		[]string{"result"},
	)

	DeliveryPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_delivery_pass_duration_seconds",
			Help:    "Time taken to match and deliver one ticket to every subscription",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Request channel metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_requests_total",
			Help: "Total number of requests handled by the broker loop by operation",
		},
		[]string{"op"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_request_duration_seconds",
			Help:    "Time the broker loop spent handling one request by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// Watcher metrics
	WatchersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_watchers_active",
			Help: "Number of running directory watchers",
		},
	)

	WatchEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_watch_events_total",
			Help: "Total number of filesystem events seen by watchers by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(SubscriptionsActive)
	prometheus.MustRegister(RegistrationsTotal)
	prometheus.MustRegister(UnregistrationsTotal)
	prometheus.MustRegister(DeliveryPassesTotal)
	prometheus.MustRegister(DeliveriesTotal)
	prometheus.MustRegister(DeliveryPassDuration)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(WatchersActive)
	prometheus.MustRegister(WatchEventsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
