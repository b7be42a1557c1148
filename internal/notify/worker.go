package notify

import (
	"context"
	"sync"
	"time"

	"notifyhub/internal/common/config"
	"notifyhub/internal/common/logger"
	"notifyhub/internal/common/metrics"
	"notifyhub/internal/models"

	"golang.org/x/sync/errgroup"
)

// Workers runs the asynchronous half of the pipeline: a bounded pool
// draining the dispatch queue, plus a periodic sweep that fires due
// schedules, re-drives due retries and reconciles notifications stuck in
// SENDING. All scheduling state lives in the database, so nothing is lost
// across restarts; the sweeps pick up where a dead process left off.
type Workers struct {
	svc    *Service
	cfg    config.NotificationConfig
	logger logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorkers(svc *Service, cfg config.NotificationConfig, log logger.Logger) *Workers {
	return &Workers{svc: svc, cfg: cfg, logger: log}
}

// Start launches the dispatch pool and the sweep loop. Stop blocks until
// every goroutine drains.
func (w *Workers) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	workers := w.cfg.DispatchWorkers
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.dispatchLoop(ctx)
	}

	w.wg.Add(1)
	go w.sweepLoop(ctx)

	w.logger.Info("notification workers started", map[string]interface{}{
		"dispatchWorkers": workers,
		"sweepInterval":   w.sweepInterval().String(),
	})
}

func (w *Workers) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Workers) dispatchLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-w.svc.queue:
			metrics.DispatchQueueDepth.Set(float64(len(w.svc.queue)))
			dispatchCtx := ctx
			if w.cfg.DispatchTimeout > 0 {
				var cancel context.CancelFunc
				dispatchCtx, cancel = context.WithTimeout(ctx, time.Duration(w.cfg.DispatchTimeout)*time.Millisecond)
				w.svc.DispatchOne(dispatchCtx, id)
				cancel()
				continue
			}
			w.svc.DispatchOne(dispatchCtx, id)
		}
	}
}

func (w *Workers) sweepLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.sweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep runs the four background passes concurrently. Each pass logs its
// own failures; a broken pass never stops the others.
func (w *Workers) sweep(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { w.fireDueSchedules(gctx); return nil })
	g.Go(func() error { w.driveDueRetries(gctx); return nil })
	g.Go(func() error { w.reconcileStaleSending(gctx); return nil })
	g.Go(func() error { w.reconcileStalePending(gctx); return nil })
	_ = g.Wait()
}

// fireDueSchedules claims due schedule rows and hands the underlying
// notifications to the dispatch queue. The notification is loaded before the
// MarkFired compare-and-set, so a transient load failure leaves the row for
// the next sweep instead of consuming it. MarkFired keeps the claim safe
// under concurrent sweeps; a double enqueue is harmless because dispatch
// itself is guarded by a status compare-and-set.
func (w *Workers) fireDueSchedules(ctx context.Context) {
	due, err := w.svc.schedules.Due(ctx, time.Now().UTC(), w.batchSize())
	if err != nil {
		w.logger.Error("schedule sweep query failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	sem := make(chan struct{}, w.concurrency())
	var wg sync.WaitGroup
	for _, sn := range due {
		sn := sn
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			n, err := w.svc.notifications.Get(ctx, sn.NotificationID)
			if err != nil {
				w.logger.Error("schedule target load failed", map[string]interface{}{
					"scheduleId": sn.ID,
					"error":      err.Error(),
				})
				return
			}

			won, err := w.svc.schedules.MarkFired(ctx, sn.ID)
			if err != nil {
				w.logger.Error("schedule claim failed", map[string]interface{}{
					"scheduleId": sn.ID,
					"error":      err.Error(),
				})
				return
			}
			if !won {
				return
			}

			if n == nil || n.Status != models.StatusPending {
				// Deleted, cancelled or already driven by another path.
				return
			}
			metrics.ScheduledFired.Inc()
			w.svc.Enqueue(ctx, n.ID)
		}()
	}
	wg.Wait()
}

func (w *Workers) driveDueRetries(ctx context.Context) {
	due, err := w.svc.notifications.DueRetries(ctx, time.Now().UTC(), w.batchSize())
	if err != nil {
		w.logger.Error("retry sweep query failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	for _, n := range due {
		w.svc.Enqueue(ctx, n.ID)
	}
}

// reconcileStaleSending moves notifications stuck in SENDING past the
// cutoff back to PENDING and re-queues them. Covers a process that died
// mid-dispatch.
func (w *Workers) reconcileStaleSending(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.staleAfter())
	stale, err := w.svc.notifications.StaleSending(ctx, cutoff, w.batchSize())
	if err != nil {
		w.logger.Error("stale sending sweep query failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	for _, n := range stale {
		won, err := w.svc.notifications.TransitionStatus(ctx, n.ID, models.StatusSending, models.StatusPending)
		if err != nil || !won {
			continue
		}
		w.logger.Warn("re-driving stale notification", map[string]interface{}{
			"notificationId": n.ID,
			"stuckSince":     n.CreatedAt,
		})
		w.svc.Enqueue(ctx, n.ID)
	}
}

// reconcileStalePending re-queues old PENDING notifications that no live
// schedule row will ever fire. The dispatch queue is in memory, so a restart
// loses queued ids; this sweep is what puts them back. Enqueue may park a
// row as an immediately-due schedule, which removes it from the next sweep's
// candidates.
func (w *Workers) reconcileStalePending(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.staleAfter())
	stranded, err := w.svc.notifications.StalePending(ctx, cutoff, w.batchSize())
	if err != nil {
		w.logger.Error("stale pending sweep query failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	for _, n := range stranded {
		w.logger.Warn("re-queueing stranded notification", map[string]interface{}{
			"notificationId": n.ID,
			"pendingSince":   n.CreatedAt,
		})
		w.svc.Enqueue(ctx, n.ID)
	}
}

func (w *Workers) sweepInterval() time.Duration {
	if w.cfg.SweepInterval <= 0 {
		return 15 * time.Second
	}
	return time.Duration(w.cfg.SweepInterval) * time.Millisecond
}

func (w *Workers) batchSize() int {
	if w.cfg.SweepBatchSize <= 0 {
		return 100
	}
	return w.cfg.SweepBatchSize
}

func (w *Workers) concurrency() int {
	if w.cfg.SweepConcurrency <= 0 {
		return 8
	}
	return w.cfg.SweepConcurrency
}

func (w *Workers) staleAfter() time.Duration {
	if w.cfg.StaleSendingAfter <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(w.cfg.StaleSendingAfter) * time.Millisecond
}
