package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"survey-engine/internal/service"
)

// DraftHandler opens, applies and discards the draft of a survey.
type DraftHandler struct {
	service *service.OverlayService
}

func NewDraftHandler(service *service.OverlayService) *DraftHandler {
	return &DraftHandler{service: service}
}

func (h *DraftHandler) Open(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.OpenDraft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, view, nil)
}

func (h *DraftHandler) Apply(w http.ResponseWriter, r *http.Request) {
	h.close(w, r, h.service.ApplyDraft)
}

func (h *DraftHandler) Discard(w http.ResponseWriter, r *http.Request) {
	h.close(w, r, h.service.DiscardDraft)
}

func (h *DraftHandler) close(w http.ResponseWriter, r *http.Request, run func(context.Context, string) error) {
	id := chi.URLParam(r, "id")
	if err := run(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	view, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, view, nil)
}
