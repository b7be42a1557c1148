package notify

import (
	"context"
	"fmt"
	"time"

	"notifyhub/internal/common/logger"
	"notifyhub/internal/models"
	"notifyhub/internal/storage"

	"github.com/redis/go-redis/v9"
)

// Deduper suppresses duplicate creations within a fixed window. A store
// lookup catches duplicates that already persisted; a Redis SETNX
// reservation serializes the read-then-write race between concurrent
// creates for the same key.
type Deduper struct {
	redis  *redis.Client
	store  storage.NotificationStore
	window time.Duration
	logger logger.Logger
}

func NewDeduper(rdb *redis.Client, store storage.NotificationStore, window time.Duration, log logger.Logger) *Deduper {
	return &Deduper{redis: rdb, store: store, window: window, logger: log}
}

// FindExisting returns a live duplicate for the same recipient and type
// created inside the window, or nil. Without a dedup key or batch id every
// request proceeds.
func (d *Deduper) FindExisting(ctx context.Context, recipientID, notificationType, dedupKey, batchID string) (*models.Notification, error) {
	if dedupKey == "" && batchID == "" {
		return nil, nil
	}
	since := time.Now().UTC().Add(-d.window)
	return d.store.FindDuplicate(ctx, recipientID, notificationType, dedupKey, batchID, since)
}

// Reserve claims the (recipient, type, key) tuple for newID. When another
// create already holds the claim, the winner's notification id is returned
// and reserved is false. Redis being unavailable degrades to store-lookup
// dedup only.
func (d *Deduper) Reserve(ctx context.Context, recipientID, notificationType, dedupKey, newID string) (existingID string, reserved bool) {
	if dedupKey == "" {
		return "", true
	}
	key := reservationKey(recipientID, notificationType, dedupKey)

	ok, err := d.redis.SetNX(ctx, key, newID, d.window).Result()
	if err != nil {
		d.logger.Warn("dedup reservation unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		return "", true
	}
	if ok {
		return "", true
	}

	winner, err := d.redis.Get(ctx, key).Result()
	if err != nil {
		// Reservation expired between SETNX and GET; proceed.
		return "", true
	}
	return winner, false
}

// Release drops the reservation so a failed create does not block the key
// for the rest of the window.
func (d *Deduper) Release(ctx context.Context, recipientID, notificationType, dedupKey string) {
	if dedupKey == "" {
		return
	}
	if err := d.redis.Del(ctx, reservationKey(recipientID, notificationType, dedupKey)).Err(); err != nil {
		d.logger.Warn("dedup release failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func reservationKey(recipientID, notificationType, dedupKey string) string {
	return fmt.Sprintf("notify:dedup:%s:%s:%s", recipientID, notificationType, dedupKey)
}
