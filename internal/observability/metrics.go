package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreated   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "velo", Name: "rides_created_total", Help: "Total ride requests created"})
	RidesCompleted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "velo", Name: "rides_completed_total", Help: "Total rides completed"})
	RidesCancelled = promauto.NewCounter(prometheus.CounterOpts{Namespace: "velo", Name: "rides_cancelled_total", Help: "Total rides cancelled by riders"})
	RidesExpired   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "velo", Name: "rides_expired_total", Help: "Total rides expired with no acceptance"})

	OffersBroadcast = promauto.NewCounter(prometheus.CounterOpts{Namespace: "velo", Name: "offers_broadcast_total", Help: "Total offers surfaced to drivers"})
	AcceptWins      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "velo", Name: "accept_wins_total", Help: "Accept attempts that won the arbitration"})
	AcceptConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "velo", Name: "accept_conflicts_total", Help: "Accept attempts that lost the arbitration"})

	OTPVerified = promauto.NewCounter(prometheus.CounterOpts{Namespace: "velo", Name: "otp_verified_total", Help: "Successful OTP verifications"})
	OTPRejected = promauto.NewCounter(prometheus.CounterOpts{Namespace: "velo", Name: "otp_rejected_total", Help: "Rejected OTP verification attempts"})

	DriversRegistered = promauto.NewCounter(prometheus.CounterOpts{Namespace: "velo", Name: "drivers_registered_total", Help: "Total driver registrations"})
	DriversOnline     = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "velo", Name: "drivers_online", Help: "Drivers currently flagged available"})

	SubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "velo", Name: "school_subscriptions_active", Help: "Active school-pool subscriptions"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "velo", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "velo",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
