package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"notifyhub/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newTestWorkers(env *testEnv) *Workers {
	return NewWorkers(env.svc, env.svc.cfg, env.svc.logger)
}

func TestWorkers_DrainDispatchQueue(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, env.preferences.Upsert(context.Background(), fullContactPreference("user-1")))

	w := newTestWorkers(env)
	w.Start(context.Background())
	defer w.Stop()

	res, err := env.svc.Create(context.Background(), createReq("user-1"))
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		n, _ := env.notifications.Get(context.Background(), res.ID)
		return n != nil && n.Status == models.StatusSent
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWorkers_FireDueSchedules(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, env.preferences.Upsert(context.Background(), fullContactPreference("user-1")))

	res, err := env.svc.Create(context.Background(), createReq("user-1"))
	assert.NoError(t, err)
	// Drain the immediate enqueue; this test drives the schedule path.
	<-env.svc.queue

	assert.NoError(t, env.schedules.Create(context.Background(), &models.ScheduledNotification{
		ID:             uuid.New().String(),
		NotificationID: res.ID,
		RecipientID:    "user-1",
		ScheduledTime:  time.Now().UTC().Add(-time.Minute),
		Status:         models.ScheduleScheduled,
		CreatedAt:      time.Now().UTC(),
	}))

	w := newTestWorkers(env)
	w.fireDueSchedules(context.Background())

	assert.Empty(t, env.schedules.pending(), "claimed schedule is fired")
	assert.Len(t, env.svc.queue, 1, "notification handed to dispatch")

	id := <-env.svc.queue
	env.svc.DispatchOne(context.Background(), id)
	n, _ := env.notifications.Get(context.Background(), res.ID)
	assert.Equal(t, models.StatusSent, n.Status)
}

func TestWorkers_CancelledScheduleNotFired(t *testing.T) {
	env := newTestEnv(t)
	pref := fullContactPreference("user-1")
	windowAroundNow(pref)
	assert.NoError(t, env.preferences.Upsert(context.Background(), pref))

	res, err := env.svc.Create(context.Background(), createReq("user-1"))
	assert.NoError(t, err)
	assert.Len(t, env.schedules.pending(), 1)

	assert.NoError(t, env.svc.Cancel(context.Background(), res.ID, "user-1"))
	assert.Empty(t, env.schedules.pending(), "cancel drops the schedule row")

	w := newTestWorkers(env)
	w.fireDueSchedules(context.Background())
	assert.Empty(t, env.svc.queue)
}

func TestWorkers_FiredScheduleSkipsCancelledNotification(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, env.preferences.Upsert(context.Background(), fullContactPreference("user-1")))

	res, err := env.svc.Create(context.Background(), createReq("user-1"))
	assert.NoError(t, err)
	<-env.svc.queue

	// A schedule row survives while the notification itself is cancelled
	// out of band; the sweep consumes the row without dispatching.
	assert.NoError(t, env.schedules.Create(context.Background(), &models.ScheduledNotification{
		ID:             uuid.New().String(),
		NotificationID: res.ID,
		RecipientID:    "user-1",
		ScheduledTime:  time.Now().UTC().Add(-time.Minute),
		Status:         models.ScheduleScheduled,
		CreatedAt:      time.Now().UTC(),
	}))
	_, err = env.notifications.Cancel(context.Background(), res.ID, "user-1")
	assert.NoError(t, err)

	w := newTestWorkers(env)
	w.fireDueSchedules(context.Background())

	assert.Empty(t, env.svc.queue, "cancelled notification never dispatched")
	assert.Empty(t, env.schedules.pending())
}

func TestWorkers_LoadFailureLeavesScheduleRowForNextSweep(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, env.preferences.Upsert(context.Background(), fullContactPreference("user-1")))

	res, err := env.svc.Create(context.Background(), createReq("user-1"))
	assert.NoError(t, err)
	<-env.svc.queue

	assert.NoError(t, env.schedules.Create(context.Background(), &models.ScheduledNotification{
		ID:             uuid.New().String(),
		NotificationID: res.ID,
		RecipientID:    "user-1",
		ScheduledTime:  time.Now().UTC().Add(-time.Minute),
		Status:         models.ScheduleScheduled,
		CreatedAt:      time.Now().UTC(),
	}))

	// The database blips during the sweep. The row must not be consumed, or
	// the notification would be stranded in PENDING forever.
	env.notifications.getErr = errors.New("connection reset")

	w := newTestWorkers(env)
	w.fireDueSchedules(context.Background())
	assert.Len(t, env.schedules.pending(), 1, "unclaimed row survives the failed sweep")
	assert.Empty(t, env.svc.queue)

	// Next sweep succeeds and fires it.
	env.notifications.getErr = nil
	w.fireDueSchedules(context.Background())
	assert.Empty(t, env.schedules.pending())
	assert.Len(t, env.svc.queue, 1)
}

func TestWorkers_DriveDueRetries(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, env.preferences.Upsert(context.Background(), fullContactPreference("user-1")))

	res, err := env.svc.Create(context.Background(), createReq("user-1"))
	assert.NoError(t, err)
	<-env.svc.queue

	past := time.Now().UTC().Add(-time.Minute)
	_, err = env.notifications.TransitionStatus(context.Background(), res.ID, models.StatusPending, models.StatusFailed)
	assert.NoError(t, err)
	assert.NoError(t, env.notifications.ScheduleRetry(context.Background(), res.ID, 1, past))

	w := newTestWorkers(env)
	w.driveDueRetries(context.Background())

	assert.Len(t, env.svc.queue, 1)
}

func TestWorkers_ReconcileStaleSending(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, env.preferences.Upsert(context.Background(), fullContactPreference("user-1")))

	stale := &models.Notification{
		ID:          uuid.New().String(),
		RecipientID: "user-1",
		Type:        models.TypeReportReady,
		Title:       "t",
		Content:     "c",
		Priority:    models.PriorityMedium,
		Status:      models.StatusSending,
		Channels:    []models.Channel{models.ChannelInApp},
		MaxRetries:  3,
		CreatedAt:   time.Now().UTC().Add(-time.Hour),
	}
	assert.NoError(t, env.notifications.Create(context.Background(), stale))

	w := newTestWorkers(env)
	w.reconcileStaleSending(context.Background())

	n, _ := env.notifications.Get(context.Background(), stale.ID)
	assert.Equal(t, models.StatusPending, n.Status)
	assert.Len(t, env.svc.queue, 1, "stale row re-queued for dispatch")
}

func TestWorkers_ReconcileStalePending(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, env.preferences.Upsert(context.Background(), fullContactPreference("user-1")))

	// An old PENDING row with no schedule row: its queue slot died with a
	// previous process.
	stranded := &models.Notification{
		ID:          uuid.New().String(),
		RecipientID: "user-1",
		Type:        models.TypeReportReady,
		Title:       "t",
		Content:     "c",
		Priority:    models.PriorityMedium,
		Status:      models.StatusPending,
		Channels:    []models.Channel{models.ChannelInApp},
		MaxRetries:  3,
		CreatedAt:   time.Now().UTC().Add(-time.Hour),
	}
	assert.NoError(t, env.notifications.Create(context.Background(), stranded))

	// An equally old PENDING row that a live schedule will fire later; the
	// sweep must leave it alone.
	deferred := &models.Notification{
		ID:          uuid.New().String(),
		RecipientID: "user-1",
		Type:        models.TypeReportReady,
		Title:       "t",
		Content:     "c",
		Priority:    models.PriorityMedium,
		Status:      models.StatusPending,
		Channels:    []models.Channel{models.ChannelInApp},
		MaxRetries:  3,
		CreatedAt:   time.Now().UTC().Add(-time.Hour),
	}
	assert.NoError(t, env.notifications.Create(context.Background(), deferred))
	assert.NoError(t, env.schedules.Create(context.Background(), &models.ScheduledNotification{
		ID:             uuid.New().String(),
		NotificationID: deferred.ID,
		RecipientID:    "user-1",
		ScheduledTime:  time.Now().UTC().Add(time.Hour),
		Status:         models.ScheduleScheduled,
		CreatedAt:      time.Now().UTC(),
	}))

	w := newTestWorkers(env)
	w.reconcileStalePending(context.Background())

	assert.Len(t, env.svc.queue, 1)
	assert.Equal(t, stranded.ID, <-env.svc.queue, "only the stranded row is re-queued")
}
