package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"survey-engine/internal/model"
	"survey-engine/internal/service"
)

type TrashHandler struct {
	service *service.TrashService
}

func NewTrashHandler(service *service.TrashService) *TrashHandler {
	return &TrashHandler{service: service}
}

// SoftDelete moves a record to the trash. The body is optional.
func (h *TrashHandler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	var payload model.SoftDeleteRequest
	if err := decodeJSON(r, &payload, true); err != nil {
		writeError(w, err)
		return
	}

	entry, err := h.service.SoftDelete(r.Context(), chi.URLParam(r, "id"), service.SoftDeleteOptions{
		ForceClearing: payload.ForceClearing,
		ParentEntryID: strings.TrimSpace(payload.ParentEntryID),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, entry, nil)
}

func (h *TrashHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := model.TrashFilter{DraftScope: strings.TrimSpace(r.URL.Query().Get("draft_scope"))}
	if raw := r.URL.Query().Get("stage"); raw != "" {
		stage, err := model.ParseTrashStage(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		filter.Stage = stage
	}

	entries, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, entries, &model.Meta{Page: 1, Limit: len(entries), Total: len(entries), TotalPages: 1})
}

func (h *TrashHandler) Restore(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Restore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, view, nil)
}

func (h *TrashHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TrashHandler) Stuck(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Stuck(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, entries, nil)
}

func (h *TrashHandler) ResetAttempts(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ResetAttempts(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
