package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"notifyhub/internal/models"
)

// TemplateStore is the PostgreSQL implementation of storage.TemplateStore.
type TemplateStore struct {
	db *sql.DB
}

func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// Find picks the most specific template for the tuple. Specificity order:
// exact channel+locale, channel only, locale only, type default.
func (s *TemplateStore) Find(ctx context.Context, notificationType, channel, locale string) (*models.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, channel, locale, title, content, usage_count, last_used_at, updated_at
		FROM notification_templates
		WHERE type = $1
		  AND (channel = $2 OR channel = '')
		  AND (locale = $3 OR locale = '')
		ORDER BY (channel = $2) DESC, (locale = $3) DESC
		LIMIT 1`,
		notificationType, channel, locale)

	var t models.Template
	err := row.Scan(&t.ID, &t.Type, &t.Channel, &t.Locale, &t.Title, &t.Content,
		&t.UsageCount, &t.LastUsedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find template: %w", err)
	}
	return &t, nil
}

func (s *TemplateStore) Upsert(ctx context.Context, t *models.Template) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_templates (id, type, channel, locale, title, content, usage_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, NOW())
		ON CONFLICT (type, channel, locale) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			updated_at = NOW()`,
		t.ID, t.Type, t.Channel, t.Locale, t.Title, t.Content)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}

func (s *TemplateStore) RecordUsage(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notification_templates
		SET usage_count = usage_count + 1, last_used_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("record template usage: %w", err)
	}
	return nil
}
