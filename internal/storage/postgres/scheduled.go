package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"notifyhub/internal/models"
)

// ScheduleStore is the PostgreSQL implementation of storage.ScheduleStore.
// Rows survive restarts; the sweep loop polls Due and claims each row with a
// MarkFired compare-and-set so concurrent sweeps never double-fire.
type ScheduleStore struct {
	db *sql.DB
}

func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

func (s *ScheduleStore) Create(ctx context.Context, sn *models.ScheduledNotification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_notifications (id, notification_id, recipient_id,
			scheduled_time, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sn.ID, sn.NotificationID, sn.RecipientID,
		sn.ScheduledTime, sn.Status, sn.RetryCount, sn.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func (s *ScheduleStore) Due(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledNotification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, notification_id, recipient_id, scheduled_time, status, retry_count, created_at
		FROM scheduled_notifications
		WHERE status = 'scheduled' AND scheduled_time <= $1
		ORDER BY scheduled_time
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due schedules: %w", err)
	}
	defer rows.Close()

	var out []*models.ScheduledNotification
	for rows.Next() {
		var sn models.ScheduledNotification
		if err := rows.Scan(&sn.ID, &sn.NotificationID, &sn.RecipientID,
			&sn.ScheduledTime, &sn.Status, &sn.RetryCount, &sn.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &sn)
	}
	return out, rows.Err()
}

func (s *ScheduleStore) MarkFired(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_notifications SET status = 'fired'
		WHERE id = $1 AND status = 'scheduled'`, id)
	if err != nil {
		return false, fmt.Errorf("mark schedule fired: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

func (s *ScheduleStore) CancelByNotification(ctx context.Context, notificationID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_notifications SET status = 'cancelled'
		WHERE notification_id = $1 AND status = 'scheduled'`, notificationID)
	if err != nil {
		return fmt.Errorf("cancel schedule: %w", err)
	}
	return nil
}
