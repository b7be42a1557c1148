package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total number of notifications created",
		},
		[]string{"type", "priority"},
	)

	NotificationsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_deduplicated_total",
			Help: "Total number of creation requests suppressed by dedup",
		},
	)

	NotificationsDeferred = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_deferred_total",
			Help: "Total number of notifications deferred by quiet hours",
		},
	)

	DispatchCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatch_total",
			Help: "Total number of dispatch attempts by aggregate outcome",
		},
		[]string{"status"},
	)

	ChannelSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channel_send_total",
			Help: "Total number of per-channel send attempts",
		},
		[]string{"channel", "status"},
	)

	ChannelSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "channel_send_duration_seconds",
			Help: "Duration of per-channel provider calls in seconds",
		},
		[]string{"channel"},
	)

	RetriesScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_retries_scheduled_total",
			Help: "Total number of retry attempts scheduled",
		},
	)

	ScheduledFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduled_notifications_fired_total",
			Help: "Total number of deferred notifications handed to dispatch",
		},
	)

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Number of notifications waiting in the dispatch queue",
		},
	)
)
