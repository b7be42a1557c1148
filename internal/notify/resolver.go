package notify

import (
	"context"
	"time"

	stderrors "notifyhub/internal/common/errors"
	"notifyhub/internal/common/logger"
	"notifyhub/internal/models"
	"notifyhub/internal/storage"
)

// Resolver computes the eligible channel set for one creation request from
// the recipient's stored preferences, contact data and daily caps.
type Resolver struct {
	preferences storage.PreferenceStore
	caps        *CapTracker
	logger      logger.Logger
}

func NewResolver(preferences storage.PreferenceStore, caps *CapTracker, log logger.Logger) *Resolver {
	return &Resolver{preferences: preferences, caps: caps, logger: log}
}

// Resolve returns the deduplicated, ordered channel set to attempt plus the
// preference record the rest of the pipeline needs.
//
// Rules: start from the caller-requested channels, or the per-type default
// list if none requested; always union in-app; drop channels whose contact
// data is absent; a globally or per-type disabled recipient keeps only
// in-app. Urgent priority uses every channel with contact data, ignoring
// the per-type channel preference and the daily caps. The final set is
// never empty because in-app needs no contact data, but an empty set is
// still rejected as a guard.
//
// Cap counters consumed along the way are returned as a claim. The caller
// releases it when creation fails before the notification is persisted so a
// failed request does not burn quota.
func (r *Resolver) Resolve(ctx context.Context, recipientID, notificationType string, requested []string, priority models.Priority) ([]models.Channel, *models.Preference, *CapClaim, error) {
	pref, err := r.preferences.Get(ctx, recipientID)
	if err != nil {
		return nil, nil, nil, stderrors.NewQueryExecutionError(err)
	}
	if pref == nil {
		pref = models.DefaultPreference(recipientID)
	}

	var claim *CapClaim
	if r.caps != nil {
		claim = r.caps.NewClaim()
	}

	var candidates map[models.Channel]bool
	if priority == models.PriorityUrgent {
		candidates = make(map[models.Channel]bool)
		for _, ch := range models.AllChannels() {
			candidates[ch] = true
		}
	} else {
		candidates = r.baseSet(pref, notificationType, requested)
	}
	candidates[models.ChannelInApp] = true

	now := time.Now().UTC()
	if r.caps != nil && priority != models.PriorityUrgent {
		if !r.caps.ConsumeGlobal(ctx, pref, now, claim) {
			r.logger.Info("global daily cap reached, falling back to in-app", map[string]interface{}{
				"recipientId": recipientID,
			})
			candidates = map[models.Channel]bool{models.ChannelInApp: true}
		}
	}

	resolved := make([]models.Channel, 0, len(candidates))
	for _, ch := range models.AllChannels() {
		if !candidates[ch] {
			continue
		}
		if !pref.HasContact(ch) {
			continue
		}
		if r.caps != nil && priority != models.PriorityUrgent && !r.caps.ConsumeChannel(ctx, pref, ch, now, claim) {
			r.logger.Info("channel daily cap reached", map[string]interface{}{
				"recipientId": recipientID,
				"channel":     ch,
			})
			continue
		}
		resolved = append(resolved, ch)
	}

	if len(resolved) == 0 {
		claim.Release(ctx)
		return nil, nil, nil, stderrors.NewNoEligibleChannelError(recipientID, notificationType)
	}
	return resolved, pref, claim, nil
}

func (r *Resolver) baseSet(pref *models.Preference, notificationType string, requested []string) map[models.Channel]bool {
	set := make(map[models.Channel]bool)

	// A disabled recipient or type still gets the in-app fallback, nothing
	// more.
	if !pref.Enabled || !pref.TypeIsEnabled(notificationType) {
		return set
	}

	if len(requested) > 0 {
		for _, raw := range requested {
			if ch, ok := models.ParseChannel(raw); ok {
				set[ch] = true
			}
		}
		return set
	}

	for _, ch := range pref.ChannelsForType(notificationType) {
		set[ch] = true
	}
	return set
}
