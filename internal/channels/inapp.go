package channels

import (
	"context"

	"notifyhub/internal/models"
)

// InAppAdapter marks the notification deliverable through the list API. The
// notification row itself is the inbox entry, so there is no provider call
// and delivery cannot fail.
type InAppAdapter struct{}

func NewInAppAdapter() *InAppAdapter {
	return &InAppAdapter{}
}

func (a *InAppAdapter) Channel() models.Channel {
	return models.ChannelInApp
}

func (a *InAppAdapter) Send(_ context.Context, _ string, _ Message) (string, error) {
	return "", nil
}
