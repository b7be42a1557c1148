package notify

import (
	"context"
	"fmt"
	"time"

	"notifyhub/internal/common/logger"
	"notifyhub/internal/models"

	"github.com/redis/go-redis/v9"
)

const capKeyTTL = 48 * time.Hour

// CapTracker enforces per-channel and global daily send caps with Redis
// day-bucketed counters. A cap of zero is unlimited; in-app is never capped
// so the fallback channel stays available. Redis being unavailable fails
// open.
type CapTracker struct {
	redis  *redis.Client
	logger logger.Logger
}

func NewCapTracker(rdb *redis.Client, log logger.Logger) *CapTracker {
	return &CapTracker{redis: rdb, logger: log}
}

// CapClaim records the counters one resolution incremented. A creation that
// fails before its notification row is persisted releases the claim so the
// quota is handed back; once the row exists the claim is kept, the send will
// happen eventually.
type CapClaim struct {
	tracker *CapTracker
	keys    []string
}

// NewClaim starts an empty claim for one resolution.
func (c *CapTracker) NewClaim() *CapClaim {
	return &CapClaim{tracker: c}
}

func (c *CapClaim) add(key string) {
	if c != nil {
		c.keys = append(c.keys, key)
	}
}

// Release hands back every counter the claim holds. Best effort: a counter
// that cannot be reached stays consumed until the day key expires.
func (c *CapClaim) Release(ctx context.Context) {
	if c == nil || c.tracker == nil {
		return
	}
	for _, key := range c.keys {
		if err := c.tracker.redis.Decr(ctx, key).Err(); err != nil {
			c.tracker.logger.Warn("cap counter release failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}
	c.keys = nil
}

// ConsumeChannel counts one send on the channel and reports whether the
// recipient is still under the channel's daily cap. A successful consume is
// recorded on the claim.
func (c *CapTracker) ConsumeChannel(ctx context.Context, p *models.Preference, ch models.Channel, now time.Time, claim *CapClaim) bool {
	if ch == models.ChannelInApp {
		return true
	}
	limit := p.ChannelDailyCaps[ch]
	if limit <= 0 {
		return true
	}
	key := fmt.Sprintf("notify:caps:%s:%s:%s", p.RecipientID, ch, now.UTC().Format("2006-01-02"))
	return c.consume(ctx, key, limit, claim)
}

// ConsumeGlobal counts one notification against the recipient's global
// daily cap.
func (c *CapTracker) ConsumeGlobal(ctx context.Context, p *models.Preference, now time.Time, claim *CapClaim) bool {
	if p.GlobalDailyCap <= 0 {
		return true
	}
	key := fmt.Sprintf("notify:caps:%s:global:%s", p.RecipientID, now.UTC().Format("2006-01-02"))
	return c.consume(ctx, key, p.GlobalDailyCap, claim)
}

func (c *CapTracker) consume(ctx context.Context, key string, limit int, claim *CapClaim) bool {
	count, err := c.redis.Incr(ctx, key).Result()
	if err != nil {
		c.logger.Warn("cap counter unavailable", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return true
	}
	if count == 1 {
		if err := c.redis.Expire(ctx, key, capKeyTTL).Err(); err != nil {
			c.logger.Warn("cap counter expire failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}
	if count > int64(limit) {
		// An over-limit increment is undone on the spot so the counter
		// keeps tracking actual consumption.
		if err := c.redis.Decr(ctx, key).Err(); err != nil {
			c.logger.Warn("cap counter rollback failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return false
	}
	claim.add(key)
	return true
}
