package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesProcessed The total number of processed messages (counter)
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processed_total",
			Help:      "The total number of processed messages",
		},
		[]string{"topic", "handler"},
	)

	// MessagesProcessingFailed total number of message processing failures (counter)
	MessagesProcessingFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processing_failed_total",
			Help:      "The total number of message processing failures",
		},
		[]string{"topic", "handler"},
	)

	// MessagesProcessingDuration The total time spent processing messages (summary with quantiles 0.5, 0.9, and 0.99)
	MessagesProcessingDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "messages",
			Name:       "processing_duration_seconds",
			Help:       "The total time spent processing messages",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"topic", "handler"},
	)

	BookingsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bookings",
			Name:      "created_total",
			Help:      "The total number of created bookings",
		},
	)

	BookingsConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bookings",
			Name:      "confirmed_total",
			Help:      "The total number of bookings confirmed by a payment",
		},
	)

	// BookingsCancelled is labelled with the cancellation reason (payment_timeout, manual).
	BookingsCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookings",
			Name:      "cancelled_total",
			Help:      "The total number of cancelled bookings",
		},
		[]string{"reason"},
	)

	SeatClaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seat",
			Name:      "claims_total",
			Help:      "The total number of seat claim attempts",
		},
		[]string{"result"},
	)

	PaymentNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "notifications_total",
			Help:      "The total number of received payment notifications",
		},
		[]string{"result"},
	)

	CancellationFallbackTimers = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cancellation",
			Name:      "fallback_timers_total",
			Help:      "The total number of in-process timers armed because the job queue was unavailable",
		},
	)
)
