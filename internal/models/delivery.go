package models

import "time"

// DeliveryStatus is the outcome of one channel attempt.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// DeliveryLog is one append-only row per (notification, channel) attempt.
// Retries append new rows; at most one sent row exists per pair.
type DeliveryLog struct {
	ID               int64          `json:"id"`
	NotificationID   string         `json:"notificationId"`
	Channel          Channel        `json:"channel"`
	Status           DeliveryStatus `json:"status"`
	SentAt           time.Time      `json:"sentAt"`
	ExternalID       string         `json:"externalId,omitempty"`
	Error            string         `json:"error,omitempty"`
	Cost             float64        `json:"cost"`
	ProcessingTimeMs int64          `json:"processingTimeMs"`
}

// ScheduleStatus is the state of a deferred send.
type ScheduleStatus string

const (
	ScheduleScheduled ScheduleStatus = "scheduled"
	ScheduleFired     ScheduleStatus = "fired"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// ScheduledNotification defers an already-persisted pending notification to
// a future time: the end of a quiet-hours window or a caller-specified
// moment. The payload is the pending notification row itself.
type ScheduledNotification struct {
	ID             string         `json:"id"`
	NotificationID string         `json:"notificationId"`
	RecipientID    string         `json:"recipientId"`
	ScheduledTime  time.Time      `json:"scheduledTime"`
	Status         ScheduleStatus `json:"status"`
	RetryCount     int            `json:"retryCount"`
	CreatedAt      time.Time      `json:"createdAt"`
}
