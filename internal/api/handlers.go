package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"notifyhub/internal/models"
	"notifyhub/internal/notify"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// recipientHeader carries the authenticated recipient id, injected by the
// gateway in front of this service.
const recipientHeader = "X-Recipient-ID"

// NotificationHandler handles the notification endpoints.
type NotificationHandler struct {
	svc      *notify.Service
	validate *validator.Validate
}

func NewNotificationHandler(svc *notify.Service) *NotificationHandler {
	return &NotificationHandler{svc: svc, validate: validator.New()}
}

func recipientID(r *http.Request) string {
	return r.Header.Get(recipientHeader)
}

func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.Create(r.Context(), &req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	rid := recipientID(r)
	if rid == "" {
		writeError(w, http.StatusUnauthorized, "missing recipient identity")
		return
	}

	f := models.ListFilter{
		Type:        r.URL.Query().Get("type"),
		Status:      models.Status(r.URL.Query().Get("status")),
		Search:      r.URL.Query().Get("search"),
		IncludeRead: r.URL.Query().Get("includeRead") == "true",
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			f.Limit = limit
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil {
			f.Offset = offset
		}
	}
	if v := r.URL.Query().Get("from"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = &ts
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = &ts
		}
	}

	notifications, err := h.svc.List(r.Context(), rid, f)
	if err != nil {
		httpError(w, err)
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, ListEnvelope{Data: notifications, Limit: f.Limit, Offset: f.Offset})
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	rid := recipientID(r)
	if rid == "" {
		writeError(w, http.StatusUnauthorized, "missing recipient identity")
		return
	}
	n, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"), rid)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *NotificationHandler) DeliveryHistory(w http.ResponseWriter, r *http.Request) {
	rid := recipientID(r)
	if rid == "" {
		writeError(w, http.StatusUnauthorized, "missing recipient identity")
		return
	}
	logs, err := h.svc.DeliveryHistory(r.Context(), chi.URLParam(r, "id"), rid)
	if err != nil {
		httpError(w, err)
		return
	}
	if logs == nil {
		logs = []*models.DeliveryLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	rid := recipientID(r)
	if rid == "" {
		writeError(w, http.StatusUnauthorized, "missing recipient identity")
		return
	}
	count, err := h.svc.UnreadCount(r.Context(), rid)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountEnvelope{Count: count})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	rid := recipientID(r)
	if rid == "" {
		writeError(w, http.StatusUnauthorized, "missing recipient identity")
		return
	}
	if err := h.svc.MarkRead(r.Context(), chi.URLParam(r, "id"), rid); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "marked read"})
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	rid := recipientID(r)
	if rid == "" {
		writeError(w, http.StatusUnauthorized, "missing recipient identity")
		return
	}
	updated, err := h.svc.MarkAllRead(r.Context(), rid)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdatedEnvelope{Updated: updated})
}

func (h *NotificationHandler) BatchMarkRead(w http.ResponseWriter, r *http.Request) {
	rid := recipientID(r)
	if rid == "" {
		writeError(w, http.StatusUnauthorized, "missing recipient identity")
		return
	}
	var req models.BatchIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.svc.BatchMarkRead(r.Context(), req.IDs, rid)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdatedEnvelope{Updated: updated})
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rid := recipientID(r)
	if rid == "" {
		writeError(w, http.StatusUnauthorized, "missing recipient identity")
		return
	}
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), rid); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "deleted"})
}

func (h *NotificationHandler) BatchDelete(w http.ResponseWriter, r *http.Request) {
	rid := recipientID(r)
	if rid == "" {
		writeError(w, http.StatusUnauthorized, "missing recipient identity")
		return
	}
	var req models.BatchIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deleted, err := h.svc.BatchDelete(r.Context(), req.IDs, rid)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdatedEnvelope{Updated: deleted})
}

func (h *NotificationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	rid := recipientID(r)
	if rid == "" {
		writeError(w, http.StatusUnauthorized, "missing recipient identity")
		return
	}
	if err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"), rid); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "cancelled"})
}

// PreferenceHandler handles recipient preference endpoints.
type PreferenceHandler struct {
	svc *notify.Service
}

func NewPreferenceHandler(svc *notify.Service) *PreferenceHandler {
	return &PreferenceHandler{svc: svc}
}

func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	rid := recipientID(r)
	if rid == "" {
		writeError(w, http.StatusUnauthorized, "missing recipient identity")
		return
	}
	pref, err := h.svc.GetPreference(r.Context(), rid)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

func (h *PreferenceHandler) Put(w http.ResponseWriter, r *http.Request) {
	rid := recipientID(r)
	if rid == "" {
		writeError(w, http.StatusUnauthorized, "missing recipient identity")
		return
	}
	var pref models.Preference
	if err := json.NewDecoder(r.Body).Decode(&pref); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	pref.RecipientID = rid
	if err := h.svc.UpsertPreference(r.Context(), &pref); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

// TemplateHandler handles template administration.
type TemplateHandler struct {
	svc *notify.Service
}

func NewTemplateHandler(svc *notify.Service) *TemplateHandler {
	return &TemplateHandler{svc: svc}
}

func (h *TemplateHandler) Put(w http.ResponseWriter, r *http.Request) {
	var tpl models.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if tpl.Type == "" || tpl.Title == "" || tpl.Content == "" {
		writeError(w, http.StatusBadRequest, "type, title and content are required")
		return
	}
	if !models.ValidTypes[tpl.Type] {
		writeError(w, http.StatusBadRequest, "unknown notification type: "+tpl.Type)
		return
	}
	if tpl.ID == "" {
		tpl.ID = uuid.New().String()
	}
	if err := h.svc.UpsertTemplate(r.Context(), &tpl); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}
