package api

import (
	"encoding/json"
	"errors"
	"net/http"

	stderrors "notifyhub/internal/common/errors"
	"notifyhub/internal/models"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ListEnvelope wraps paginated notification list responses.
type ListEnvelope struct {
	Data   []*models.Notification `json:"data"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// CountEnvelope wraps the unread-count response.
type CountEnvelope struct {
	Count int `json:"count"`
}

// UpdatedEnvelope wraps bulk mutation responses.
type UpdatedEnvelope struct {
	Updated int64 `json:"updated"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps pipeline errors to HTTP statuses. Unknown errors are
// internal.
func httpError(w http.ResponseWriter, err error) {
	var se *stderrors.StandardError
	if !errors.As(err, &se) {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusInternalServerError
	switch se.Code {
	case stderrors.ErrCodeInvalidRequest, stderrors.ErrCodeMetadataValidationFailed:
		status = http.StatusBadRequest
	case stderrors.ErrCodeNotFoundOrForbidden:
		status = http.StatusNotFound
	case stderrors.ErrCodeNoEligibleChannel, stderrors.ErrCodeTemplateNotFound:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, MessageEnvelope{Error: se.Message, Code: string(se.Code)})
}
