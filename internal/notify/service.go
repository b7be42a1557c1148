package notify

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"notifyhub/internal/channels"
	"notifyhub/internal/common/config"
	stderrors "notifyhub/internal/common/errors"
	"notifyhub/internal/common/logger"
	"notifyhub/internal/common/metrics"
	"notifyhub/internal/common/observability"
	"notifyhub/internal/common/validation"
	"notifyhub/internal/models"
	"notifyhub/internal/storage"

	"github.com/google/uuid"
)

const lockStripes = 64

// Service is the notification pipeline: creation with dedup, preference
// resolution, template rendering and quiet-hours deferral on the write
// side; list, unread-count, read and delete operations on the read side.
// Built once at startup and passed by reference; there is no shared global
// instance.
type Service struct {
	cfg           config.NotificationConfig
	notifications storage.NotificationStore
	preferences   storage.PreferenceStore
	templates     storage.TemplateStore
	deliveries    storage.DeliveryLogStore
	schedules     storage.ScheduleStore
	searcher      storage.Searcher // nil when search indexing is disabled

	resolver   *Resolver
	renderer   *Renderer
	deduper    *Deduper
	dispatcher *Dispatcher

	queue  chan string
	logger logger.Logger
	obs    *observability.Observability

	// Serializes dispatch per notification id.
	locks [lockStripes]sync.Mutex
}

// Stores groups the persistence dependencies of the service.
type Stores struct {
	Notifications storage.NotificationStore
	Preferences   storage.PreferenceStore
	Templates     storage.TemplateStore
	Deliveries    storage.DeliveryLogStore
	Schedules     storage.ScheduleStore
	Searcher      storage.Searcher
}

func NewService(cfg config.NotificationConfig, stores Stores, resolver *Resolver, renderer *Renderer, deduper *Deduper, dispatcher *Dispatcher, obs *observability.Observability, log logger.Logger) *Service {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Service{
		cfg:           cfg,
		notifications: stores.Notifications,
		preferences:   stores.Preferences,
		templates:     stores.Templates,
		deliveries:    stores.Deliveries,
		schedules:     stores.Schedules,
		searcher:      stores.Searcher,
		resolver:      resolver,
		renderer:      renderer,
		deduper:       deduper,
		dispatcher:    dispatcher,
		queue:         make(chan string, queueSize),
		logger:        log,
		obs:           obs,
	}
}

// Create runs the synchronous half of the pipeline: dedup, channel
// resolution, rendering and persistence as PENDING. Dispatch happens
// asynchronously; the response carries only the id and status. Quiet hours
// and explicit schedule times divert the notification to the durable
// schedule path instead of the dispatch queue.
func (s *Service) Create(ctx context.Context, req *models.CreateNotificationRequest) (*models.CreateNotificationResponse, error) {
	if !models.ValidTypes[req.Type] {
		return nil, stderrors.NewInvalidRequestError("unknown notification type: " + req.Type)
	}
	if err := validation.ValidateMetadata(req.Type, req.Metadata); err != nil {
		return nil, stderrors.NewMetadataValidationError(req.Type, err.Error())
	}

	existing, err := s.deduper.FindExisting(ctx, req.RecipientID, req.Type, req.DedupKey, req.BatchID)
	if err != nil {
		return nil, stderrors.NewQueryExecutionError(err)
	}
	if existing != nil {
		metrics.NotificationsDeduplicated.Inc()
		return &models.CreateNotificationResponse{ID: existing.ID, Status: existing.Status}, nil
	}

	priority := models.ParsePriority(req.Priority)
	resolved, pref, claim, err := s.resolver.Resolve(ctx, req.RecipientID, req.Type, req.Channels, priority)
	if err != nil {
		return nil, err
	}

	locale := req.Locale
	if locale == "" {
		locale = pref.Locale
	}
	data := mergeData(req.Metadata, req.TemplateData)
	rendered, err := s.renderer.Render(ctx, req.Type, "", locale, req.Title, req.Content, data)
	if err != nil {
		claim.Release(ctx)
		return nil, err
	}

	now := time.Now().UTC()
	n := &models.Notification{
		ID:          uuid.New().String(),
		RecipientID: req.RecipientID,
		Type:        req.Type,
		Title:       rendered.Title,
		Content:     rendered.Content,
		Templated:   rendered.Templated,
		Priority:    priority,
		Status:      models.StatusPending,
		Channels:    resolved,
		Metadata:    req.Metadata,
		ActionURL:   req.ActionURL,
		ActionText:  req.ActionText,
		DedupKey:    req.DedupKey,
		BatchID:     req.BatchID,
		MaxRetries:  s.cfg.MaxRetries,
		CreatedAt:   now,
	}

	winnerID, reserved := s.deduper.Reserve(ctx, req.RecipientID, req.Type, req.DedupKey, n.ID)
	if !reserved {
		claim.Release(ctx)
		winner, err := s.notifications.Get(ctx, winnerID)
		if err == nil && winner != nil {
			metrics.NotificationsDeduplicated.Inc()
			return &models.CreateNotificationResponse{ID: winner.ID, Status: winner.Status}, nil
		}
		// The winner row is not visible yet; return its id as-is, the
		// caller treats an existing id as success.
		metrics.NotificationsDeduplicated.Inc()
		return &models.CreateNotificationResponse{ID: winnerID, Status: models.StatusPending}, nil
	}

	if err := s.notifications.Create(ctx, n); err != nil {
		claim.Release(ctx)
		s.deduper.Release(ctx, req.RecipientID, req.Type, req.DedupKey)
		return nil, stderrors.NewDatabaseInsertError(err)
	}
	metrics.NotificationsCreated.WithLabelValues(n.Type, string(n.Priority)).Inc()

	if s.searcher != nil {
		if err := s.searcher.Index(ctx, n); err != nil {
			s.logger.Warn("search indexing failed", map[string]interface{}{
				"notificationId": n.ID,
				"error":          err.Error(),
			})
		}
	}

	switch {
	case req.ScheduledAt != nil && req.ScheduledAt.After(now):
		if err := s.scheduleFor(ctx, n, *req.ScheduledAt); err != nil {
			return nil, err
		}
	case inQuietHours(pref, now) && priority != models.PriorityUrgent:
		metrics.NotificationsDeferred.Inc()
		if err := s.scheduleFor(ctx, n, quietHoursEnd(pref, now)); err != nil {
			return nil, err
		}
	default:
		s.Enqueue(ctx, n.ID)
	}

	return &models.CreateNotificationResponse{ID: n.ID, Status: n.Status}, nil
}

func (s *Service) scheduleFor(ctx context.Context, n *models.Notification, at time.Time) error {
	err := s.schedules.Create(ctx, &models.ScheduledNotification{
		ID:             uuid.New().String(),
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		ScheduledTime:  at.UTC(),
		Status:         models.ScheduleScheduled,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return stderrors.NewDatabaseInsertError(err)
	}
	s.logger.Info("notification deferred", map[string]interface{}{
		"notificationId": n.ID,
		"scheduledTime":  at.UTC(),
	})
	return nil
}

// Enqueue hands a notification id to the dispatch workers. When the queue
// is full the id is parked as an immediately-due schedule row so it is not
// lost; the schedule sweep re-drives it.
func (s *Service) Enqueue(ctx context.Context, id string) {
	select {
	case s.queue <- id:
		metrics.DispatchQueueDepth.Set(float64(len(s.queue)))
	default:
		s.logger.Warn("dispatch queue full, parking notification", map[string]interface{}{
			"notificationId": id,
		})
		n, err := s.notifications.Get(ctx, id)
		if err != nil || n == nil {
			return
		}
		if err := s.scheduleFor(ctx, n, time.Now().UTC()); err != nil {
			s.logger.Error("parking notification failed", map[string]interface{}{
				"notificationId": id,
				"error":          err.Error(),
			})
		}
	}
}

// DispatchOne drives one full dispatch cycle for the notification:
// transition to SENDING, concurrent fan-out, delivery logging, aggregate
// status update and retry scheduling. Mutations for one id are serialized
// with a striped lock; terminal and cancelled rows are left untouched.
func (s *Service) DispatchOne(ctx context.Context, id string) {
	lock := &s.locks[stripeFor(id)]
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()

	n, err := s.notifications.Get(ctx, id)
	if err != nil {
		s.logger.Error("dispatch load failed", map[string]interface{}{
			"notificationId": id,
			"error":          err.Error(),
		})
		return
	}
	if n == nil || n.Status.IsTerminal() {
		return
	}

	from := n.Status
	if from != models.StatusPending && from != models.StatusFailed {
		return
	}
	won, err := s.notifications.TransitionStatus(ctx, id, from, models.StatusSending)
	if err != nil || !won {
		return
	}

	pref, err := s.preferences.Get(ctx, n.RecipientID)
	if err != nil {
		s.logger.Error("dispatch preference load failed", map[string]interface{}{
			"notificationId": id,
			"error":          err.Error(),
		})
		return
	}
	if pref == nil {
		pref = models.DefaultPreference(n.RecipientID)
	}

	// Channels that already have a sent log row are never re-sent.
	skip := make(map[models.Channel]bool)
	succeeded, err := s.deliveries.SuccessfulChannels(ctx, id)
	if err != nil {
		s.logger.Warn("successful channel lookup failed", map[string]interface{}{
			"notificationId": id,
			"error":          err.Error(),
		})
	}
	for _, ch := range succeeded {
		skip[ch] = true
	}

	messages := s.buildMessages(ctx, n, pref)
	failed := s.dispatcher.Dispatch(ctx, n, pref, messages, skip)

	now := time.Now().UTC()
	if len(failed) == 0 {
		if err := s.notifications.FinishDispatch(ctx, id, models.StatusSent, &now); err != nil {
			s.logger.Error("aggregate status update failed", map[string]interface{}{
				"notificationId": id,
				"error":          err.Error(),
			})
			return
		}
		metrics.DispatchCompleted.WithLabelValues("sent").Inc()
		s.recordDispatch(ctx, start, "sent")
		return
	}

	if err := s.notifications.FinishDispatch(ctx, id, models.StatusFailed, nil); err != nil {
		s.logger.Error("aggregate status update failed", map[string]interface{}{
			"notificationId": id,
			"error":          err.Error(),
		})
		return
	}
	metrics.DispatchCompleted.WithLabelValues("failed").Inc()
	s.recordDispatch(ctx, start, "failed")

	if n.RetryCount >= n.MaxRetries {
		s.logger.Warn("notification failed permanently", map[string]interface{}{
			"notificationId": id,
			"retryCount":     n.RetryCount,
			"failedChannels": failed,
		})
		return
	}

	delay := retryBackoff(
		time.Duration(s.cfg.RetryBaseDelay)*time.Millisecond,
		time.Duration(s.cfg.RetryMaxDelay)*time.Millisecond,
		n.RetryCount,
	)
	nextRetryAt := now.Add(delay)
	if err := s.notifications.ScheduleRetry(ctx, id, n.RetryCount+1, nextRetryAt); err != nil {
		s.logger.Error("retry scheduling failed", map[string]interface{}{
			"notificationId": id,
			"error":          err.Error(),
		})
		return
	}
	metrics.RetriesScheduled.Inc()
	s.logger.Info("retry scheduled", map[string]interface{}{
		"notificationId": id,
		"retryCount":     n.RetryCount + 1,
		"nextRetryAt":    nextRetryAt,
		"failedChannels": failed,
	})
}

func (s *Service) buildMessages(ctx context.Context, n *models.Notification, pref *models.Preference) map[models.Channel]channels.Message {
	base := channels.Message{
		Title:      n.Title,
		Content:    n.Content,
		Priority:   n.Priority,
		ActionURL:  n.ActionURL,
		ActionText: n.ActionText,
		Metadata:   n.Metadata,
	}

	messages := make(map[models.Channel]channels.Message, len(n.Channels))
	for _, ch := range n.Channels {
		msg := base
		// Channel-specific template wording only applies when the stored
		// title and content came from a template themselves. Explicit caller
		// wording always reaches every channel unchanged.
		if n.Templated {
			if override, ok := s.renderer.ChannelOverride(ctx, n.Type, ch, pref.Locale, n.Metadata); ok {
				msg.Title = override.Title
				msg.Content = override.Content
			}
		}
		messages[ch] = msg
	}
	return messages
}

func (s *Service) recordDispatch(ctx context.Context, start time.Time, status string) {
	if s.obs == nil {
		return
	}
	s.obs.RecordDispatch(ctx, status)
	s.obs.RecordDispatchDuration(ctx, time.Since(start), status)
}

func stripeFor(id string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return h.Sum32() % lockStripes
}

func mergeData(metadata, templateData map[string]interface{}) map[string]interface{} {
	if len(templateData) == 0 {
		return metadata
	}
	merged := make(map[string]interface{}, len(metadata)+len(templateData))
	for k, v := range metadata {
		merged[k] = v
	}
	for k, v := range templateData {
		merged[k] = v
	}
	return merged
}
