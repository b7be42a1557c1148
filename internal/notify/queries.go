package notify

import (
	"context"
	"time"

	stderrors "notifyhub/internal/common/errors"
	"notifyhub/internal/models"
)

// List returns the recipient's notifications honoring the filter. When a
// free-text query is set and a search index is available, the index
// pre-selects matching ids; without an index the store falls back to a
// substring match over title and content.
func (s *Service) List(ctx context.Context, recipientID string, f models.ListFilter) ([]*models.Notification, error) {
	if f.Search != "" && s.searcher != nil {
		limit := f.Limit
		if limit <= 0 {
			limit = 50
		}
		ids, err := s.searcher.Search(ctx, recipientID, f.Search, limit+f.Offset)
		if err != nil {
			s.logger.Warn("search index query failed, using store fallback", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			if len(ids) == 0 {
				return []*models.Notification{}, nil
			}
			f.IDs = ids
			f.Search = ""
		}
	}

	out, err := s.notifications.List(ctx, recipientID, f)
	if err != nil {
		return nil, stderrors.NewQueryExecutionError(err)
	}
	return out, nil
}

// Get returns one notification, hiding rows owned by other recipients
// behind the same not-found error as missing rows.
func (s *Service) Get(ctx context.Context, id, recipientID string) (*models.Notification, error) {
	n, err := s.notifications.Get(ctx, id)
	if err != nil {
		return nil, stderrors.NewQueryExecutionError(err)
	}
	if n == nil || n.RecipientID != recipientID {
		return nil, stderrors.NewNotFoundOrForbiddenError(id)
	}
	return n, nil
}

// DeliveryHistory returns the append-only per-channel attempt log for one
// owned notification.
func (s *Service) DeliveryHistory(ctx context.Context, id, recipientID string) ([]*models.DeliveryLog, error) {
	if _, err := s.Get(ctx, id, recipientID); err != nil {
		return nil, err
	}
	logs, err := s.deliveries.ListByNotification(ctx, id)
	if err != nil {
		return nil, stderrors.NewQueryExecutionError(err)
	}
	return logs, nil
}

func (s *Service) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	count, err := s.notifications.UnreadCount(ctx, recipientID)
	if err != nil {
		return 0, stderrors.NewQueryExecutionError(err)
	}
	return count, nil
}

// MarkRead sets readAt once; marking an already-read notification again is
// a no-op, not an error.
func (s *Service) MarkRead(ctx context.Context, id, recipientID string) error {
	ok, err := s.notifications.MarkRead(ctx, id, recipientID, time.Now().UTC())
	if err != nil {
		return stderrors.NewQueryExecutionError(err)
	}
	if !ok {
		return stderrors.NewNotFoundOrForbiddenError(id)
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	updated, err := s.notifications.MarkAllRead(ctx, recipientID, time.Now().UTC())
	if err != nil {
		return 0, stderrors.NewQueryExecutionError(err)
	}
	return updated, nil
}

func (s *Service) BatchMarkRead(ctx context.Context, ids []string, recipientID string) (int64, error) {
	updated, err := s.notifications.BatchMarkRead(ctx, ids, recipientID, time.Now().UTC())
	if err != nil {
		return 0, stderrors.NewQueryExecutionError(err)
	}
	return updated, nil
}

// Delete removes one owned notification, its pending schedule and its
// search document. Deleting a missing row or another recipient's row fails
// with the same error.
func (s *Service) Delete(ctx context.Context, id, recipientID string) error {
	ok, err := s.notifications.Delete(ctx, id, recipientID)
	if err != nil {
		return stderrors.NewQueryExecutionError(err)
	}
	if !ok {
		return stderrors.NewNotFoundOrForbiddenError(id)
	}
	if err := s.schedules.CancelByNotification(ctx, id); err != nil {
		s.logger.Warn("schedule cancel after delete failed", map[string]interface{}{
			"notificationId": id,
			"error":          err.Error(),
		})
	}
	if s.searcher != nil {
		if err := s.searcher.Delete(ctx, id); err != nil {
			s.logger.Warn("search document delete failed", map[string]interface{}{
				"notificationId": id,
				"error":          err.Error(),
			})
		}
	}
	return nil
}

func (s *Service) BatchDelete(ctx context.Context, ids []string, recipientID string) (int64, error) {
	deleted, err := s.notifications.BatchDelete(ctx, ids, recipientID)
	if err != nil {
		return 0, stderrors.NewQueryExecutionError(err)
	}
	for _, id := range ids {
		if err := s.schedules.CancelByNotification(ctx, id); err != nil {
			s.logger.Warn("schedule cancel after delete failed", map[string]interface{}{
				"notificationId": id,
				"error":          err.Error(),
			})
		}
		if s.searcher != nil {
			if err := s.searcher.Delete(ctx, id); err != nil {
				s.logger.Warn("search document delete failed", map[string]interface{}{
					"notificationId": id,
					"error":          err.Error(),
				})
			}
		}
	}
	return deleted, nil
}

// Cancel moves a pending or failed notification to CANCELLED and drops its
// pending schedules. In-flight timers check status before firing, so a
// cancelled notification is never dispatched or retried afterwards.
func (s *Service) Cancel(ctx context.Context, id, recipientID string) error {
	ok, err := s.notifications.Cancel(ctx, id, recipientID)
	if err != nil {
		return stderrors.NewQueryExecutionError(err)
	}
	if !ok {
		return stderrors.NewNotFoundOrForbiddenError(id)
	}
	if err := s.schedules.CancelByNotification(ctx, id); err != nil {
		s.logger.Warn("schedule cancel failed", map[string]interface{}{
			"notificationId": id,
			"error":          err.Error(),
		})
	}
	return nil
}

// GetPreference returns the recipient's stored preference, or the default
// when none exists.
func (s *Service) GetPreference(ctx context.Context, recipientID string) (*models.Preference, error) {
	pref, err := s.preferences.Get(ctx, recipientID)
	if err != nil {
		return nil, stderrors.NewQueryExecutionError(err)
	}
	if pref == nil {
		return models.DefaultPreference(recipientID), nil
	}
	return pref, nil
}

func (s *Service) UpsertPreference(ctx context.Context, p *models.Preference) error {
	if err := s.preferences.Upsert(ctx, p); err != nil {
		return stderrors.NewDatabaseInsertError(err)
	}
	return nil
}

// UpsertTemplate stores a template and invalidates the render cache so the
// new wording takes effect immediately.
func (s *Service) UpsertTemplate(ctx context.Context, t *models.Template) error {
	if err := s.templates.Upsert(ctx, t); err != nil {
		return stderrors.NewDatabaseInsertError(err)
	}
	s.renderer.Invalidate()
	return nil
}
