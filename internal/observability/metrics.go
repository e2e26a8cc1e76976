package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreated    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "rides_created_total", Help: "Total ride requests accepted into pending state"})
	RidesAccepted   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "rides_accepted_total", Help: "Total rides bound to a driver"})
	AcceptConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "accept_conflicts_total", Help: "Accept attempts that lost the first-acceptance race"})
	RidesCompleted  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "rides_completed_total", Help: "Total rides completed"})
	RidesCancelled  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "rides_cancelled_total", Help: "Total rides cancelled"})
	RidesPublished  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "rides_published_total", Help: "Pending rides fanned out to driver feeds"})
	RidesRetracted  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "rides_retracted_total", Help: "Retract broadcasts sent to driver feeds"})

	LoyaltyPointsCredited = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "loyalty_points_credited_total", Help: "Loyalty points credited on ride completion"})

	DriversOnline = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_hailing", Name: "drivers_online", Help: "Drivers currently marked online"})
	FeedSessions  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_hailing", Name: "feed_sessions", Help: "Open WebSocket feed sessions"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_hailing", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_hailing",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
