package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"notifyhub/internal/models"
)

// PreferenceStore is the PostgreSQL implementation of
// storage.PreferenceStore. The per-type maps and caps are stored as JSONB.
type PreferenceStore struct {
	db *sql.DB
}

func NewPreferenceStore(db *sql.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

func (s *PreferenceStore) Get(ctx context.Context, recipientID string) (*models.Preference, error) {
	var (
		p            models.Preference
		quietStart   sql.NullInt64
		quietEnd     sql.NullInt64
		typeEnabled  []byte
		typeChannels []byte
		channelCaps  []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT recipient_id, enabled, quiet_hours_start, quiet_hours_end,
			type_enabled, type_channels, locale,
			email, phone, chat_id, push_token,
			channel_daily_caps, global_daily_cap
		FROM notification_preferences WHERE recipient_id = $1`,
		recipientID).Scan(
		&p.RecipientID, &p.Enabled, &quietStart, &quietEnd,
		&typeEnabled, &typeChannels, &p.Locale,
		&p.Email, &p.Phone, &p.ChatID, &p.PushToken,
		&channelCaps, &p.GlobalDailyCap,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preference: %w", err)
	}

	if quietStart.Valid {
		v := int(quietStart.Int64)
		p.QuietHoursStart = &v
	}
	if quietEnd.Valid {
		v := int(quietEnd.Int64)
		p.QuietHoursEnd = &v
	}
	if len(typeEnabled) > 0 {
		if err := json.Unmarshal(typeEnabled, &p.TypeEnabled); err != nil {
			return nil, fmt.Errorf("unmarshal type_enabled: %w", err)
		}
	}
	if len(typeChannels) > 0 {
		if err := json.Unmarshal(typeChannels, &p.TypeChannels); err != nil {
			return nil, fmt.Errorf("unmarshal type_channels: %w", err)
		}
	}
	if len(channelCaps) > 0 {
		if err := json.Unmarshal(channelCaps, &p.ChannelDailyCaps); err != nil {
			return nil, fmt.Errorf("unmarshal channel_daily_caps: %w", err)
		}
	}
	return &p, nil
}

func (s *PreferenceStore) Upsert(ctx context.Context, p *models.Preference) error {
	typeEnabled, err := json.Marshal(p.TypeEnabled)
	if err != nil {
		return fmt.Errorf("marshal type_enabled: %w", err)
	}
	typeChannels, err := json.Marshal(p.TypeChannels)
	if err != nil {
		return fmt.Errorf("marshal type_channels: %w", err)
	}
	channelCaps, err := json.Marshal(p.ChannelDailyCaps)
	if err != nil {
		return fmt.Errorf("marshal channel_daily_caps: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_preferences (recipient_id, enabled,
			quiet_hours_start, quiet_hours_end, type_enabled, type_channels,
			locale, email, phone, chat_id, push_token,
			channel_daily_caps, global_daily_cap)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (recipient_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			type_enabled = EXCLUDED.type_enabled,
			type_channels = EXCLUDED.type_channels,
			locale = EXCLUDED.locale,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			chat_id = EXCLUDED.chat_id,
			push_token = EXCLUDED.push_token,
			channel_daily_caps = EXCLUDED.channel_daily_caps,
			global_daily_cap = EXCLUDED.global_daily_cap`,
		p.RecipientID, p.Enabled, p.QuietHoursStart, p.QuietHoursEnd,
		typeEnabled, typeChannels, p.Locale,
		p.Email, p.Phone, p.ChatID, p.PushToken,
		channelCaps, p.GlobalDailyCap,
	)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}
