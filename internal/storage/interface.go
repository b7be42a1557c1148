// Package storage defines the persistence contracts consumed by the
// notification service. Implementations live in subpackages.
package storage

import (
	"context"
	"time"

	"notifyhub/internal/models"
)

// NotificationStore persists notification rows and their state machine.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	Get(ctx context.Context, id string) (*models.Notification, error)

	// FindDuplicate returns a notification for the same recipient and type
	// carrying a matching dedup key or batch id, created at or after since
	// and not failed or cancelled. Returns nil when no duplicate exists.
	FindDuplicate(ctx context.Context, recipientID, notificationType, dedupKey, batchID string, since time.Time) (*models.Notification, error)

	// TransitionStatus moves a notification from one status to another and
	// reports whether the transition happened. Used to keep the state
	// machine monotonic under concurrent sweeps.
	TransitionStatus(ctx context.Context, id string, from, to models.Status) (bool, error)

	// FinishDispatch records the aggregate outcome of one dispatch cycle.
	FinishDispatch(ctx context.Context, id string, status models.Status, sentAt *time.Time) error

	// ScheduleRetry bumps retryCount and persists the next attempt time.
	ScheduleRetry(ctx context.Context, id string, retryCount int, nextRetryAt time.Time) error

	// DueRetries returns failed notifications whose next retry is due and
	// which still have attempts left.
	DueRetries(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error)

	// StaleSending returns notifications stuck in sending since before the
	// cutoff, for the reconciliation sweep.
	StaleSending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Notification, error)

	// StalePending returns old pending notifications with no live schedule
	// row claiming them, so the sweep can put them back on the dispatch
	// queue after a restart dropped them.
	StalePending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Notification, error)

	List(ctx context.Context, recipientID string, f models.ListFilter) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)

	// MarkRead sets readAt once; re-marking is a no-op. Returns false when
	// the row does not exist or belongs to another recipient.
	MarkRead(ctx context.Context, id, recipientID string, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
	BatchMarkRead(ctx context.Context, ids []string, recipientID string, at time.Time) (int64, error)

	// Delete removes a row owned by the recipient. Returns false when the
	// row does not exist or belongs to another recipient.
	Delete(ctx context.Context, id, recipientID string) (bool, error)
	BatchDelete(ctx context.Context, ids []string, recipientID string) (int64, error)

	// Cancel moves a pending or failed notification to cancelled.
	Cancel(ctx context.Context, id, recipientID string) (bool, error)
}

// PreferenceStore reads and writes recipient delivery settings.
type PreferenceStore interface {
	// Get returns nil without error when the recipient has no stored
	// preference record.
	Get(ctx context.Context, recipientID string) (*models.Preference, error)
	Upsert(ctx context.Context, p *models.Preference) error
}

// TemplateStore resolves stored templates.
type TemplateStore interface {
	// Find returns the best template for (type, channel, locale), trying
	// the most specific combination first. Returns nil when the type has
	// no template at all.
	Find(ctx context.Context, notificationType, channel, locale string) (*models.Template, error)
	Upsert(ctx context.Context, t *models.Template) error
	RecordUsage(ctx context.Context, id string) error
}

// DeliveryLogStore appends per-channel attempt outcomes.
type DeliveryLogStore interface {
	Append(ctx context.Context, l *models.DeliveryLog) error
	ListByNotification(ctx context.Context, notificationID string) ([]*models.DeliveryLog, error)

	// SuccessfulChannels returns the channels that already have a sent row
	// for the notification; retries must skip these.
	SuccessfulChannels(ctx context.Context, notificationID string) ([]models.Channel, error)
}

// ScheduleStore persists deferred sends.
type ScheduleStore interface {
	Create(ctx context.Context, s *models.ScheduledNotification) error
	Due(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledNotification, error)

	// MarkFired moves scheduled -> fired and reports whether this caller
	// won the transition.
	MarkFired(ctx context.Context, id string) (bool, error)
	CancelByNotification(ctx context.Context, notificationID string) error
}

// Searcher indexes notification text for the list API's free-text search.
// Implementations are best-effort; indexing failures never fail a create.
type Searcher interface {
	Index(ctx context.Context, n *models.Notification) error
	Search(ctx context.Context, recipientID, query string, limit int) ([]string, error)
	Delete(ctx context.Context, notificationID string) error
}
