package api

import (
	"net/http"

	"notifyhub/internal/notify"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadyChecker reports whether the service's backing stores are reachable.
type ReadyChecker func() error

// NewRouter builds the application router.
func NewRouter(svc *notify.Service, ready ReadyChecker) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", recipientHeader},
		MaxAge:         300,
	}))

	notifH := NewNotificationHandler(svc)
	prefH := NewPreferenceHandler(svc)
	tplH := NewTemplateHandler(svc)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ok"})
	})
	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil {
			if err := ready(); err != nil {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ready"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/notifications", func(r chi.Router) {
			r.Post("/", notifH.Create)
			r.Get("/", notifH.List)
			r.Get("/unread-count", notifH.UnreadCount)
			r.Post("/read-all", notifH.MarkAllRead)
			r.Post("/batch/read", notifH.BatchMarkRead)
			r.Post("/batch/delete", notifH.BatchDelete)
			r.Get("/{id}", notifH.Get)
			r.Get("/{id}/deliveries", notifH.DeliveryHistory)
			r.Post("/{id}/read", notifH.MarkRead)
			r.Post("/{id}/cancel", notifH.Cancel)
			r.Delete("/{id}", notifH.Delete)
		})

		r.Route("/preferences", func(r chi.Router) {
			r.Get("/", prefH.Get)
			r.Put("/", prefH.Put)
		})

		r.Put("/templates", tplH.Put)
	})

	return r
}
