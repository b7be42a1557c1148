package models

import (
	"strings"
	"time"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelChat  Channel = "chat"
	ChannelPush  Channel = "push"
)

// AllChannels returns every known channel.
func AllChannels() []Channel {
	return []Channel{ChannelInApp, ChannelEmail, ChannelSMS, ChannelChat, ChannelPush}
}

// ParseChannel normalizes a channel name. Input is case-insensitive and
// accepts both "in_app" and "inapp".
func ParseChannel(s string) (Channel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in_app", "inapp", "in-app":
		return ChannelInApp, true
	case "email":
		return ChannelEmail, true
	case "sms":
		return ChannelSMS, true
	case "chat":
		return ChannelChat, true
	case "push":
		return ChannelPush, true
	}
	return "", false
}

// Priority of a notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority normalizes a priority string, defaulting to medium.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "urgent":
		return PriorityUrgent
	default:
		return PriorityMedium
	}
}

// Status is the aggregate notification state.
//
// pending -> sending -> sent | failed; cancelled is terminal and reachable
// from pending and failed. Transitions are monotonic.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further dispatch will happen from s.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusCancelled
}

// Notification types (closed enum).
const (
	TypeHealthAlert        = "health_alert"
	TypeAppointmentRemind  = "appointment_reminder"
	TypeMedicationReminder = "medication_reminder"
	TypeReportReady        = "report_ready"
	TypeAccountSecurity    = "account_security"
	TypeSystemAnnouncement = "system_announcement"
)

// ValidTypes is the closed set of notification types.
var ValidTypes = map[string]bool{
	TypeHealthAlert:        true,
	TypeAppointmentRemind:  true,
	TypeMedicationReminder: true,
	TypeReportReady:        true,
	TypeAccountSecurity:    true,
	TypeSystemAnnouncement: true,
}

// Notification is one logical send request and its aggregate outcome.
type Notification struct {
	ID          string                 `json:"id"`
	RecipientID string                 `json:"recipientId"`
	Type        string                 `json:"type"`
	Title       string                 `json:"title"`
	Content     string                 `json:"content"`
	// Templated is true when title and content came from a stored template
	// rather than the caller. Channel-specific template overrides at
	// dispatch time apply only to templated notifications; explicit caller
	// wording is never replaced.
	Templated bool `json:"templated,omitempty"`
	Priority    Priority               `json:"priority"`
	Status      Status                 `json:"status"`
	Channels    []Channel              `json:"channels"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	ActionURL   string                 `json:"actionUrl,omitempty"`
	ActionText  string                 `json:"actionText,omitempty"`
	DedupKey    string                 `json:"dedupKey,omitempty"`
	BatchID     string                 `json:"batchId,omitempty"`
	RetryCount  int                    `json:"retryCount"`
	MaxRetries  int                    `json:"maxRetries"`
	NextRetryAt *time.Time             `json:"nextRetryAt,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	SentAt      *time.Time             `json:"sentAt,omitempty"`
	ReadAt      *time.Time             `json:"readAt,omitempty"`
}

// HasChannel reports whether ch is in the resolved channel set.
func (n *Notification) HasChannel(ch Channel) bool {
	for _, c := range n.Channels {
		if c == ch {
			return true
		}
	}
	return false
}
