package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"survey-engine/internal/config"
	"survey-engine/internal/handler"
	"survey-engine/internal/middleware"
	"survey-engine/internal/model"
	"survey-engine/internal/websocket"
)

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(ctx context.Context) error

func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	recordHandler *handler.RecordHandler,
	draftHandler *handler.DraftHandler,
	trashHandler *handler.TrashHandler,
	auditHandler *handler.AuditHandler,
	hub *websocket.Hub,
	health HealthFunc,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.RateLimitRPM/10)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r.Context()); err != nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	editors := []string{model.RoleEditor, model.RoleAdmin}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(authMiddleware.RequireAuth)

		// The event stream is long-lived and hijacks the connection, so it
		// stays outside the request timeout.
		if hub != nil {
			api.Get("/events", hub.ServeWS)
		}

		api.Group(func(api chi.Router) {
			api.Use(middleware.Timeout(cfg.RequestTimeout))
			api.Use(middleware.MaxBodySize(cfg.MaxBodySize))

			api.Get("/records/{id}", recordHandler.Get)
			api.Get("/records/{id}/children", recordHandler.Children)
			api.Get("/trash", trashHandler.List)

			api.Group(func(edit chi.Router) {
				edit.Use(authMiddleware.RequireRoles(editors...))

				edit.Post("/records", recordHandler.Create)
				edit.Patch("/records/{id}", recordHandler.Write)
				edit.Delete("/records/{id}", trashHandler.SoftDelete)
				edit.Put("/records/{id}/position", recordHandler.Reorder)
				edit.Post("/records/{id}/clone", recordHandler.Clone)
				edit.Post("/records/{id}/duplicate-group", recordHandler.DuplicateGroup)
				edit.Post("/records/{id}/overlay/apply", recordHandler.ApplyOverlay)
				edit.Post("/records/{id}/overlay/discard", recordHandler.DiscardOverlay)
				edit.Post("/records/{id}/dependents", recordHandler.AddDependent)

				edit.Post("/surveys/{id}/draft", draftHandler.Open)
				edit.Post("/surveys/{id}/draft/apply", draftHandler.Apply)
				edit.Post("/surveys/{id}/draft/discard", draftHandler.Discard)

				edit.Post("/trash/{id}/restore", trashHandler.Restore)
			})

			api.Route("/admin", func(admin chi.Router) {
				admin.Use(authMiddleware.RequireRoles(model.RoleAdmin))

				admin.Post("/trash/{id}/clear", trashHandler.Clear)
				admin.Get("/trash/stuck", trashHandler.Stuck)
				admin.Post("/trash/{id}/reset", trashHandler.ResetAttempts)
				if auditHandler != nil {
					admin.Get("/audit", auditHandler.List)
				}
			})
		})
	})

	return r
}
