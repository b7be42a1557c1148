package models

import "time"

// CreateNotificationRequest is the creation payload consumed from the
// caller-facing layer. Dispatch happens asynchronously; the response carries
// only the id and the pending status.
type CreateNotificationRequest struct {
	RecipientID  string                 `json:"recipientId" validate:"required"`
	Type         string                 `json:"type" validate:"required"`
	Title        string                 `json:"title,omitempty"`
	Content      string                 `json:"content,omitempty"`
	Priority     string                 `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	Channels     []string               `json:"channels,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	ActionURL    string                 `json:"actionUrl,omitempty" validate:"omitempty,url"`
	ActionText   string                 `json:"actionText,omitempty"`
	TemplateData map[string]interface{} `json:"templateData,omitempty"`
	Locale       string                 `json:"locale,omitempty"`
	DedupKey     string                 `json:"dedupKey,omitempty"`
	BatchID      string                 `json:"batchId,omitempty"`
	ScheduledAt  *time.Time             `json:"scheduledAt,omitempty"`
}

// CreateNotificationResponse is returned as soon as the row is persisted.
type CreateNotificationResponse struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// ListFilter narrows the notification list query.
type ListFilter struct {
	Type        string
	Status      Status
	From        *time.Time
	To          *time.Time
	Search      string
	IncludeRead bool
	Limit       int
	Offset      int

	// IDs restricts the query to specific notifications; populated
	// internally when a search index pre-selects matches.
	IDs []string
}

// BatchIDsRequest carries ids for batch mark-read and batch delete.
type BatchIDsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}
