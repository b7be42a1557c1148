package models

import "time"

// Template is a stored title/content pair for a notification type, with
// optional per-channel and per-locale overrides. Channel and Locale empty
// means the default template for the type.
type Template struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Channel    string     `json:"channel,omitempty"`
	Locale     string     `json:"locale,omitempty"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	UsageCount int64      `json:"usageCount"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
