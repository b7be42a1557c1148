package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"notifyhub/internal/models"
)

// DeliveryLogStore is the PostgreSQL implementation of
// storage.DeliveryLogStore. Rows are append-only; a unique partial index on
// (notification_id, channel) WHERE status = 'sent' backs the single-success
// invariant.
type DeliveryLogStore struct {
	db *sql.DB
}

func NewDeliveryLogStore(db *sql.DB) *DeliveryLogStore {
	return &DeliveryLogStore{db: db}
}

func (s *DeliveryLogStore) Append(ctx context.Context, l *models.DeliveryLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_logs (notification_id, channel, status, sent_at,
			external_id, error, cost, processing_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.NotificationID, l.Channel, l.Status, l.SentAt,
		l.ExternalID, l.Error, l.Cost, l.ProcessingTimeMs)
	if err != nil {
		return fmt.Errorf("append delivery log: %w", err)
	}
	return nil
}

func (s *DeliveryLogStore) ListByNotification(ctx context.Context, notificationID string) ([]*models.DeliveryLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, notification_id, channel, status, sent_at,
			external_id, error, cost, processing_time_ms
		FROM delivery_logs
		WHERE notification_id = $1
		ORDER BY sent_at`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("list delivery logs: %w", err)
	}
	defer rows.Close()

	var out []*models.DeliveryLog
	for rows.Next() {
		var l models.DeliveryLog
		if err := rows.Scan(&l.ID, &l.NotificationID, &l.Channel, &l.Status, &l.SentAt,
			&l.ExternalID, &l.Error, &l.Cost, &l.ProcessingTimeMs); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (s *DeliveryLogStore) SuccessfulChannels(ctx context.Context, notificationID string) ([]models.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT channel FROM delivery_logs
		WHERE notification_id = $1 AND status = 'sent'`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("query successful channels: %w", err)
	}
	defer rows.Close()

	var out []models.Channel
	for rows.Next() {
		var ch string
		if err := rows.Scan(&ch); err != nil {
			return nil, err
		}
		out = append(out, models.Channel(ch))
	}
	return out, rows.Err()
}
