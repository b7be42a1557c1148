package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"notifyhub/internal/channels"
	"notifyhub/internal/common/logger"
	"notifyhub/internal/common/metrics"
	"notifyhub/internal/models"
	"notifyhub/internal/storage"
)

// Dispatcher fans one notification out to its resolved channels. Channels
// run concurrently and settle independently; one channel failing never
// prevents the others from being attempted or recorded. Every attempt
// appends a delivery log row before the aggregate status is touched.
type Dispatcher struct {
	adapters   map[models.Channel]channels.Adapter
	deliveries storage.DeliveryLogStore
	logger     logger.Logger
}

func NewDispatcher(adapters []channels.Adapter, deliveries storage.DeliveryLogStore, log logger.Logger) *Dispatcher {
	byChannel := make(map[models.Channel]channels.Adapter, len(adapters))
	for _, a := range adapters {
		byChannel[a.Channel()] = a
	}
	return &Dispatcher{adapters: byChannel, deliveries: deliveries, logger: log}
}

// Dispatch sends to every channel in n.Channels except those in skip and
// returns the channels that failed. The wait-for-all barrier collects every
// result; there is no fail-fast path.
func (d *Dispatcher) Dispatch(ctx context.Context, n *models.Notification, pref *models.Preference, messages map[models.Channel]channels.Message, skip map[models.Channel]bool) []models.Channel {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []models.Channel
	)

	for _, ch := range n.Channels {
		if skip[ch] {
			continue
		}
		ch := ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.sendOne(ctx, n, pref, ch, messages[ch]); err != nil {
				mu.Lock()
				failed = append(failed, ch)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return failed
}

func (d *Dispatcher) sendOne(ctx context.Context, n *models.Notification, pref *models.Preference, ch models.Channel, msg channels.Message) error {
	adapter, ok := d.adapters[ch]

	start := time.Now()
	var (
		externalID string
		sendErr    error
	)
	if !ok {
		sendErr = fmt.Errorf("no adapter registered for channel %s", ch)
	} else {
		externalID, sendErr = adapter.Send(ctx, pref.ContactFor(ch), msg)
	}
	elapsed := time.Since(start)

	log := &models.DeliveryLog{
		NotificationID:   n.ID,
		Channel:          ch,
		SentAt:           time.Now().UTC(),
		ExternalID:       externalID,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
	if sendErr != nil {
		log.Status = models.DeliveryFailed
		log.Error = sendErr.Error()
		metrics.ChannelSends.WithLabelValues(string(ch), "failed").Inc()
		d.logger.Error("channel send failed", map[string]interface{}{
			"notificationId": n.ID,
			"channel":        ch,
			"error":          sendErr.Error(),
		})
	} else {
		log.Status = models.DeliverySent
		metrics.ChannelSends.WithLabelValues(string(ch), "sent").Inc()
	}
	metrics.ChannelSendDuration.WithLabelValues(string(ch)).Observe(elapsed.Seconds())

	// The log row is the durable record; the aggregate status update only
	// happens after every row for this cycle is written.
	if err := d.deliveries.Append(ctx, log); err != nil {
		d.logger.Error("delivery log append failed", map[string]interface{}{
			"notificationId": n.ID,
			"channel":        ch,
			"error":          err.Error(),
		})
	}

	return sendErr
}
