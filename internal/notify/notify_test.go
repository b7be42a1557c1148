package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"notifyhub/internal/channels"
	"notifyhub/internal/common/config"
	"notifyhub/internal/common/logger"
	"notifyhub/internal/models"
	"notifyhub/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// In-memory store implementations backing the pipeline tests.

type memNotificationStore struct {
	mu   sync.Mutex
	rows map[string]*models.Notification

	// schedules answers the live-schedule check in StalePending.
	schedules *memScheduleStore

	// getErr, when set, makes Get fail. Lets tests exercise load-failure
	// paths.
	getErr error
}

func newMemNotificationStore() *memNotificationStore {
	return &memNotificationStore{rows: make(map[string]*models.Notification)}
}

func (s *memNotificationStore) Create(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *n
	s.rows[n.ID] = &clone
	return nil
}

func (s *memNotificationStore) Get(_ context.Context, id string) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	n, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	clone := *n
	return &clone, nil
}

func (s *memNotificationStore) FindDuplicate(_ context.Context, recipientID, notificationType, dedupKey, batchID string, since time.Time) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.rows {
		if n.RecipientID != recipientID || n.Type != notificationType {
			continue
		}
		if n.Status == models.StatusFailed || n.Status == models.StatusCancelled {
			continue
		}
		if n.CreatedAt.Before(since) {
			continue
		}
		if (dedupKey != "" && n.DedupKey == dedupKey) || (batchID != "" && n.BatchID == batchID) {
			clone := *n
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *memNotificationStore) TransitionStatus(_ context.Context, id string, from, to models.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok || n.Status != from {
		return false, nil
	}
	n.Status = to
	return true, nil
}

func (s *memNotificationStore) FinishDispatch(_ context.Context, id string, status models.Status, sentAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.rows[id]; ok {
		n.Status = status
		if sentAt != nil {
			n.SentAt = sentAt
		}
	}
	return nil
}

func (s *memNotificationStore) ScheduleRetry(_ context.Context, id string, retryCount int, nextRetryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.rows[id]; ok {
		n.RetryCount = retryCount
		n.NextRetryAt = &nextRetryAt
	}
	return nil
}

func (s *memNotificationStore) DueRetries(_ context.Context, now time.Time, limit int) ([]*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Notification
	for _, n := range s.rows {
		if n.Status == models.StatusFailed && n.RetryCount < n.MaxRetries &&
			n.NextRetryAt != nil && !n.NextRetryAt.After(now) {
			clone := *n
			out = append(out, &clone)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memNotificationStore) StaleSending(_ context.Context, cutoff time.Time, limit int) ([]*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Notification
	for _, n := range s.rows {
		if n.Status == models.StatusSending && n.CreatedAt.Before(cutoff) {
			clone := *n
			out = append(out, &clone)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memNotificationStore) StalePending(_ context.Context, cutoff time.Time, limit int) ([]*models.Notification, error) {
	s.mu.Lock()
	var candidates []*models.Notification
	for _, n := range s.rows {
		if n.Status == models.StatusPending && n.CreatedAt.Before(cutoff) {
			clone := *n
			candidates = append(candidates, &clone)
		}
	}
	s.mu.Unlock()

	var out []*models.Notification
	for _, n := range candidates {
		if s.schedules != nil && s.schedules.hasScheduled(n.ID) {
			continue
		}
		out = append(out, n)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memNotificationStore) List(_ context.Context, recipientID string, f models.ListFilter) ([]*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Notification
	for _, n := range s.rows {
		if n.RecipientID != recipientID {
			continue
		}
		if f.Type != "" && n.Type != f.Type {
			continue
		}
		if f.Status != "" && n.Status != f.Status {
			continue
		}
		if !f.IncludeRead && n.ReadAt != nil {
			continue
		}
		if len(f.IDs) > 0 && !containsID(f.IDs, n.ID) {
			continue
		}
		clone := *n
		out = append(out, &clone)
	}
	return out, nil
}

func (s *memNotificationStore) UnreadCount(_ context.Context, recipientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.rows {
		if n.RecipientID == recipientID && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (s *memNotificationStore) MarkRead(_ context.Context, id, recipientID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok || n.RecipientID != recipientID {
		return false, nil
	}
	if n.ReadAt == nil {
		n.ReadAt = &at
	}
	return true, nil
}

func (s *memNotificationStore) MarkAllRead(_ context.Context, recipientID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for _, n := range s.rows {
		if n.RecipientID == recipientID && n.ReadAt == nil {
			n.ReadAt = &at
			updated++
		}
	}
	return updated, nil
}

func (s *memNotificationStore) BatchMarkRead(_ context.Context, ids []string, recipientID string, at time.Time) (int64, error) {
	var updated int64
	for _, id := range ids {
		ok, _ := s.MarkRead(context.Background(), id, recipientID, at)
		if ok {
			updated++
		}
	}
	return updated, nil
}

func (s *memNotificationStore) Delete(_ context.Context, id, recipientID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok || n.RecipientID != recipientID {
		return false, nil
	}
	delete(s.rows, id)
	return true, nil
}

func (s *memNotificationStore) BatchDelete(_ context.Context, ids []string, recipientID string) (int64, error) {
	var deleted int64
	for _, id := range ids {
		ok, _ := s.Delete(context.Background(), id, recipientID)
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

func (s *memNotificationStore) Cancel(_ context.Context, id, recipientID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok || n.RecipientID != recipientID {
		return false, nil
	}
	if n.Status != models.StatusPending && n.Status != models.StatusFailed {
		return false, nil
	}
	n.Status = models.StatusCancelled
	return true, nil
}

func (s *memNotificationStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type memPreferenceStore struct {
	mu   sync.Mutex
	rows map[string]*models.Preference
}

func newMemPreferenceStore() *memPreferenceStore {
	return &memPreferenceStore{rows: make(map[string]*models.Preference)}
}

func (s *memPreferenceStore) Get(_ context.Context, recipientID string) (*models.Preference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[recipientID]
	if !ok {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

func (s *memPreferenceStore) Upsert(_ context.Context, p *models.Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *p
	s.rows[p.RecipientID] = &clone
	return nil
}

type memTemplateStore struct {
	mu        sync.Mutex
	templates []*models.Template
	usage     map[string]int
}

func newMemTemplateStore() *memTemplateStore {
	return &memTemplateStore{usage: make(map[string]int)}
}

func (s *memTemplateStore) Find(_ context.Context, notificationType, channel, locale string) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.Template
	bestScore := -1
	for _, t := range s.templates {
		if t.Type != notificationType {
			continue
		}
		if t.Channel != "" && t.Channel != channel {
			continue
		}
		if t.Locale != "" && t.Locale != locale {
			continue
		}
		score := 0
		if t.Channel == channel && channel != "" {
			score += 2
		}
		if t.Locale == locale && locale != "" {
			score++
		}
		if score > bestScore {
			best = t
			bestScore = score
		}
	}
	if best == nil {
		return nil, nil
	}
	clone := *best
	return &clone, nil
}

func (s *memTemplateStore) Upsert(_ context.Context, t *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.templates {
		if existing.Type == t.Type && existing.Channel == t.Channel && existing.Locale == t.Locale {
			clone := *t
			s.templates[i] = &clone
			return nil
		}
	}
	clone := *t
	s.templates = append(s.templates, &clone)
	return nil
}

func (s *memTemplateStore) RecordUsage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[id]++
	return nil
}

type memDeliveryLogStore struct {
	mu   sync.Mutex
	rows []*models.DeliveryLog
}

func newMemDeliveryLogStore() *memDeliveryLogStore {
	return &memDeliveryLogStore{}
}

func (s *memDeliveryLogStore) Append(_ context.Context, l *models.DeliveryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *l
	s.rows = append(s.rows, &clone)
	return nil
}

func (s *memDeliveryLogStore) ListByNotification(_ context.Context, notificationID string) ([]*models.DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.DeliveryLog
	for _, l := range s.rows {
		if l.NotificationID == notificationID {
			clone := *l
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *memDeliveryLogStore) SuccessfulChannels(_ context.Context, notificationID string) ([]models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[models.Channel]bool)
	var out []models.Channel
	for _, l := range s.rows {
		if l.NotificationID == notificationID && l.Status == models.DeliverySent && !seen[l.Channel] {
			seen[l.Channel] = true
			out = append(out, l.Channel)
		}
	}
	return out, nil
}

type memScheduleStore struct {
	mu   sync.Mutex
	rows map[string]*models.ScheduledNotification
}

func newMemScheduleStore() *memScheduleStore {
	return &memScheduleStore{rows: make(map[string]*models.ScheduledNotification)}
}

func (s *memScheduleStore) Create(_ context.Context, sn *models.ScheduledNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *sn
	s.rows[sn.ID] = &clone
	return nil
}

func (s *memScheduleStore) Due(_ context.Context, now time.Time, limit int) ([]*models.ScheduledNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ScheduledNotification
	for _, sn := range s.rows {
		if sn.Status == models.ScheduleScheduled && !sn.ScheduledTime.After(now) {
			clone := *sn
			out = append(out, &clone)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memScheduleStore) MarkFired(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.rows[id]
	if !ok || sn.Status != models.ScheduleScheduled {
		return false, nil
	}
	sn.Status = models.ScheduleFired
	return true, nil
}

func (s *memScheduleStore) CancelByNotification(_ context.Context, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sn := range s.rows {
		if sn.NotificationID == notificationID && sn.Status == models.ScheduleScheduled {
			sn.Status = models.ScheduleCancelled
		}
	}
	return nil
}

func (s *memScheduleStore) hasScheduled(notificationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sn := range s.rows {
		if sn.NotificationID == notificationID && sn.Status == models.ScheduleScheduled {
			return true
		}
	}
	return false
}

func (s *memScheduleStore) pending() []*models.ScheduledNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ScheduledNotification
	for _, sn := range s.rows {
		if sn.Status == models.ScheduleScheduled {
			clone := *sn
			out = append(out, &clone)
		}
	}
	return out
}

// fakeAdapter fails on demand, per channel.
type fakeAdapter struct {
	channel  models.Channel
	sendFunc func(ctx context.Context, contact string, msg channels.Message) (string, error)

	mu       sync.Mutex
	calls    []string
	messages []channels.Message
}

func (a *fakeAdapter) Channel() models.Channel { return a.channel }

func (a *fakeAdapter) Send(ctx context.Context, contact string, msg channels.Message) (string, error) {
	a.mu.Lock()
	a.calls = append(a.calls, contact)
	a.messages = append(a.messages, msg)
	a.mu.Unlock()
	if a.sendFunc != nil {
		return a.sendFunc(ctx, contact, msg)
	}
	return "ext-" + string(a.channel), nil
}

func (a *fakeAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func (a *fakeAdapter) lastMessage() (channels.Message, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.messages) == 0 {
		return channels.Message{}, false
	}
	return a.messages[len(a.messages)-1], true
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// testEnv wires a full service over in-memory stores, miniredis and fake
// adapters.
type testEnv struct {
	svc           *Service
	notifications *memNotificationStore
	preferences   *memPreferenceStore
	templates     *memTemplateStore
	deliveries    *memDeliveryLogStore
	schedules     *memScheduleStore
	adapters      map[models.Channel]*fakeAdapter
	redis         *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.NewNoOpLogger()

	notifications := newMemNotificationStore()
	preferences := newMemPreferenceStore()
	templates := newMemTemplateStore()
	deliveries := newMemDeliveryLogStore()
	schedules := newMemScheduleStore()
	notifications.schedules = schedules

	adapters := make(map[models.Channel]*fakeAdapter)
	var adapterList []channels.Adapter
	for _, ch := range models.AllChannels() {
		a := &fakeAdapter{channel: ch}
		adapters[ch] = a
		adapterList = append(adapterList, a)
	}

	cfg := config.NotificationConfig{
		DispatchWorkers:  2,
		QueueSize:        64,
		MaxRetries:       3,
		RetryBaseDelay:   1000,
		RetryMaxDelay:    60000,
		DedupWindow:      300000,
		TemplateCacheTTL: 60000,
	}

	caps := NewCapTracker(rdb, log)
	resolver := NewResolver(preferences, caps, log)
	renderer := NewRenderer(templates, time.Duration(cfg.TemplateCacheTTL)*time.Millisecond, log)
	deduper := NewDeduper(rdb, notifications, time.Duration(cfg.DedupWindow)*time.Millisecond, log)
	dispatcher := NewDispatcher(adapterList, deliveries, log)

	svc := NewService(cfg, Stores{
		Notifications: notifications,
		Preferences:   preferences,
		Templates:     templates,
		Deliveries:    deliveries,
		Schedules:     schedules,
	}, resolver, renderer, deduper, dispatcher, nil, log)

	return &testEnv{
		svc:           svc,
		notifications: notifications,
		preferences:   preferences,
		templates:     templates,
		deliveries:    deliveries,
		schedules:     schedules,
		adapters:      adapters,
		redis:         mr,
	}
}

// fullContactPreference returns a preference record with contact data for
// every channel.
func fullContactPreference(recipientID string) *models.Preference {
	return &models.Preference{
		RecipientID: recipientID,
		Enabled:     true,
		Email:       recipientID + "@example.com",
		Phone:       "+15550001111",
		ChatID:      "chat-" + recipientID,
		PushToken:   "arn:aws:sns:eu-west-1:123:endpoint/APNS/app/" + recipientID,
	}
}

var _ storage.NotificationStore = (*memNotificationStore)(nil)
var _ storage.PreferenceStore = (*memPreferenceStore)(nil)
var _ storage.TemplateStore = (*memTemplateStore)(nil)
var _ storage.DeliveryLogStore = (*memDeliveryLogStore)(nil)
var _ storage.ScheduleStore = (*memScheduleStore)(nil)
var _ channels.Adapter = (*fakeAdapter)(nil)
