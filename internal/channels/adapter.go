// Package channels holds the per-channel delivery adapters. Each adapter
// turns a rendered notification into one provider call and returns the
// provider's message id. Adapters are stateless; rate limiting and mockable
// provider interfaces live here, retry policy does not.
package channels

import (
	"context"

	"notifyhub/internal/models"
)

// Message is the rendered payload handed to an adapter.
type Message struct {
	Title      string
	Content    string
	Priority   models.Priority
	ActionURL  string
	ActionText string
	Metadata   map[string]interface{}
}

// Adapter delivers a message over one channel. Send returns the provider's
// external message id when available.
type Adapter interface {
	Channel() models.Channel
	Send(ctx context.Context, contact string, msg Message) (string, error)
}
