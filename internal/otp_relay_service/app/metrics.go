package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollPassesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otp_relay",
			Name:      "poll_passes_total",
			Help:      "Total number of poll passes by outcome.",
		},
		[]string{"outcome"}, // no_match, pending, success, expired, stale, error, skipped
	)

	pollPassDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "otp_relay",
			Name:      "poll_pass_duration_seconds",
			Help:      "Duration of a poll pass across all dates, filters and pages.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	inboxErrorsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "otp_relay",
			Name:      "inbox_errors_total",
			Help:      "Inbox queries that failed and were skipped within a pass.",
		},
	)

	transitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otp_relay",
			Name:      "allocation_transitions_total",
			Help:      "Committed terminal transitions by status and reason.",
		},
		[]string{"status", "reason"},
	)

	allocationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otp_relay",
			Name:      "allocations_total",
			Help:      "Allocation requests by outcome.",
		},
		[]string{"outcome"}, // created, rejected, provider_error, invalid_range, store_error
	)

	notificationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otp_relay",
			Name:      "notifications_total",
			Help:      "Outbound notifications by target and outcome.",
		},
		[]string{"target", "kind", "outcome"},
	)

	eventsPublishedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otp_relay",
			Name:      "events_published_total",
			Help:      "Lifecycle events published by outcome.",
		},
		[]string{"outcome"},
	)

	activePollersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "otp_relay",
			Name:      "active_pollers",
			Help:      "Number of running poll activities.",
		},
	)
)
