package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"notifyhub/internal/models"

	"github.com/lib/pq"
)

// NotificationStore is the PostgreSQL implementation of
// storage.NotificationStore.
type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

const notificationColumns = `id, recipient_id, type, title, content, templated, priority, status,
	channels, metadata, action_url, action_text, dedup_key, batch_id,
	retry_count, max_retries, next_retry_at, created_at, sent_at, read_at`

func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) error {
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	channels := make([]string, len(n.Channels))
	for i, ch := range n.Channels {
		channels[i] = string(ch)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, type, title, content, templated, priority, status,
			channels, metadata, action_url, action_text, dedup_key, batch_id,
			retry_count, max_retries, next_retry_at, created_at, sent_at, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		n.ID, n.RecipientID, n.Type, n.Title, n.Content, n.Templated, n.Priority, n.Status,
		pq.Array(channels), metadata, n.ActionURL, n.ActionText,
		nullString(n.DedupKey), nullString(n.BatchID),
		n.RetryCount, n.MaxRetries, n.NextRetryAt, n.CreatedAt, n.SentAt, n.ReadAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *NotificationStore) Get(ctx context.Context, id string) (*models.Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

func (s *NotificationStore) FindDuplicate(ctx context.Context, recipientID, notificationType, dedupKey, batchID string, since time.Time) (*models.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE recipient_id = $1 AND type = $2
		  AND ((dedup_key IS NOT NULL AND dedup_key = $3) OR (batch_id IS NOT NULL AND batch_id = $4))
		  AND created_at >= $5
		  AND status NOT IN ('failed', 'cancelled')
		ORDER BY created_at DESC
		LIMIT 1`,
		recipientID, notificationType, dedupKey, batchID, since)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

func (s *NotificationStore) TransitionStatus(ctx context.Context, id string, from, to models.Status) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = $1 WHERE id = $2 AND status = $3`,
		to, id, from)
	if err != nil {
		return false, fmt.Errorf("transition status: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

func (s *NotificationStore) FinishDispatch(ctx context.Context, id string, status models.Status, sentAt *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = $1, sent_at = COALESCE($2, sent_at) WHERE id = $3`,
		status, sentAt, id)
	if err != nil {
		return fmt.Errorf("finish dispatch: %w", err)
	}
	return nil
}

func (s *NotificationStore) ScheduleRetry(ctx context.Context, id string, retryCount int, nextRetryAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET retry_count = $1, next_retry_at = $2 WHERE id = $3`,
		retryCount, nextRetryAt, id)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

func (s *NotificationStore) DueRetries(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE status = 'failed' AND retry_count < max_retries
		  AND next_retry_at IS NOT NULL AND next_retry_at <= $1
		ORDER BY next_retry_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due retries: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (s *NotificationStore) StaleSending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE status = 'sending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale sending: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// StalePending returns old pending rows with no live schedule row claiming
// them. These are notifications whose queue slot was lost, typically across a
// restart, and they need to be re-enqueued.
func (s *NotificationStore) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE status = 'pending' AND created_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM scheduled_notifications s
			WHERE s.notification_id = notifications.id AND s.status = 'scheduled')
		ORDER BY created_at
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale pending: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (s *NotificationStore) List(ctx context.Context, recipientID string, f models.ListFilter) ([]*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1`
	args := []interface{}{recipientID}

	if f.Type != "" {
		args = append(args, f.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	if !f.IncludeRead {
		query += " AND read_at IS NULL"
	}
	if len(f.IDs) > 0 {
		args = append(args, pq.Array(f.IDs))
		query += fmt.Sprintf(" AND id = ANY($%d)", len(args))
	} else if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		query += fmt.Sprintf(" AND (title ILIKE $%d OR content ILIKE $%d)", len(args), len(args))
	}

	query += " ORDER BY created_at DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (s *NotificationStore) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read_at IS NULL`,
		recipientID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return count, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, id, recipientID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, $1)
		WHERE id = $2 AND recipient_id = $3`,
		at, id, recipientID)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = $1
		WHERE recipient_id = $2 AND read_at IS NULL`,
		at, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.RowsAffected()
}

func (s *NotificationStore) BatchMarkRead(ctx context.Context, ids []string, recipientID string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, $1)
		WHERE id = ANY($2) AND recipient_id = $3`,
		at, pq.Array(ids), recipientID)
	if err != nil {
		return 0, fmt.Errorf("batch mark read: %w", err)
	}
	return res.RowsAffected()
}

func (s *NotificationStore) Delete(ctx context.Context, id, recipientID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`,
		id, recipientID)
	if err != nil {
		return false, fmt.Errorf("delete notification: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

func (s *NotificationStore) BatchDelete(ctx context.Context, ids []string, recipientID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = ANY($1) AND recipient_id = $2`,
		pq.Array(ids), recipientID)
	if err != nil {
		return 0, fmt.Errorf("batch delete: %w", err)
	}
	return res.RowsAffected()
}

func (s *NotificationStore) Cancel(ctx context.Context, id, recipientID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET status = 'cancelled'
		WHERE id = $1 AND recipient_id = $2 AND status IN ('pending', 'failed')`,
		id, recipientID)
	if err != nil {
		return false, fmt.Errorf("cancel notification: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var (
		n        models.Notification
		channels pq.StringArray
		metadata []byte
		dedupKey sql.NullString
		batchID  sql.NullString
	)
	err := row.Scan(
		&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Content, &n.Templated, &n.Priority, &n.Status,
		&channels, &metadata, &n.ActionURL, &n.ActionText, &dedupKey, &batchID,
		&n.RetryCount, &n.MaxRetries, &n.NextRetryAt, &n.CreatedAt, &n.SentAt, &n.ReadAt,
	)
	if err != nil {
		return nil, err
	}
	n.DedupKey = dedupKey.String
	n.BatchID = batchID.String
	n.Channels = make([]models.Channel, len(channels))
	for i, ch := range channels {
		n.Channels[i] = models.Channel(ch)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &n, nil
}

func scanNotifications(rows *sql.Rows) ([]*models.Notification, error) {
	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
