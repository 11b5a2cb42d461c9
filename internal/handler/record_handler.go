package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"survey-engine/internal/model"
	"survey-engine/internal/service"
	"survey-engine/pkg/apierror"
)

type RecordHandler struct {
	service *service.OverlayService
}

func NewRecordHandler(service *service.OverlayService) *RecordHandler {
	return &RecordHandler{service: service}
}

func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload model.CreateRecordRequest
	if err := decodeJSON(r, &payload, false); err != nil {
		writeError(w, err)
		return
	}

	typ, err := model.ParseEntityType(payload.Type)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.service.Create(r.Context(), service.CreateInput{
		TenantID: tenantFromRequest(r),
		Type:     typ,
		ParentID: strings.TrimSpace(payload.ParentID),
		Fields:   withBinaries(payload.Fields, payload.Binaries),
		Position: payload.Position,

		TranslationLocked: payload.TranslationLocked,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, view, nil)
}

func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, view, nil)
}

// Children lists ?type= children of a record in effective order.
func (h *RecordHandler) Children(w http.ResponseWriter, r *http.Request) {
	typ, err := model.ParseEntityType(r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, err)
		return
	}
	includeHidden, _ := strconv.ParseBool(r.URL.Query().Get("include_hidden"))

	views, err := h.service.Children(r.Context(), chi.URLParam(r, "id"), typ, includeHidden)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, views, &model.Meta{Page: 1, Limit: len(views), Total: len(views), TotalPages: 1})
}

func (h *RecordHandler) Write(w http.ResponseWriter, r *http.Request) {
	var payload model.WriteRecordRequest
	if err := decodeJSON(r, &payload, false); err != nil {
		writeError(w, err)
		return
	}

	view, err := h.service.Write(r.Context(), chi.URLParam(r, "id"), withBinaries(payload.Fields, payload.Binaries), service.WriteOptions{
		DraftOpen:       payload.DraftOpen,
		DefaultLanguage: payload.DefaultLanguage,
		Languages:       payload.Languages,

		TranslationLocked: payload.TranslationLocked,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, view, nil)
}

func (h *RecordHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var payload model.ReorderRequest
	if err := decodeJSON(r, &payload, false); err != nil {
		writeError(w, err)
		return
	}
	if payload.Position == nil {
		writeError(w, apierror.New("BAD_REQUEST", "position is required", "", http.StatusBadRequest))
		return
	}

	view, err := h.service.Reorder(r.Context(), chi.URLParam(r, "id"), *payload.Position)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, view, nil)
}

func (h *RecordHandler) Clone(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Clone(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, view, nil)
}

// DuplicateGroup copies a driver together with the sections it groups.
func (h *RecordHandler) DuplicateGroup(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.DuplicateGroup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, view, nil)
}

func (h *RecordHandler) ApplyOverlay(w http.ResponseWriter, r *http.Request) {
	h.overlayCascade(w, r, h.service.ApplyOverlay)
}

func (h *RecordHandler) DiscardOverlay(w http.ResponseWriter, r *http.Request) {
	h.overlayCascade(w, r, h.service.DiscardOverlay)
}

func (h *RecordHandler) overlayCascade(w http.ResponseWriter, r *http.Request, run func(context.Context, string) error) {
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

func (h *RecordHandler) AddDependent(w http.ResponseWriter, r *http.Request) {
	var payload model.AddDependentRequest
	if err := decodeJSON(r, &payload, false); err != nil {
		writeError(w, err)
		return
	}

	dep, err := h.service.AddDependent(r.Context(), model.Dependent{
		Kind:     model.DependentKind(strings.TrimSpace(payload.Kind)),
		OwnerID:  chi.URLParam(r, "id"),
		AssetRef: payload.AssetRef,
		Payload:  payload.Payload,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, dep, nil)
}

func tenantFromRequest(r *http.Request) string {
	actor, _ := service.ActorFrom(r.Context())
	return actor.TenantID
}

// withBinaries folds base64-decoded uploads into the field patch so the
// service can hand them to the asset store.
func withBinaries(fields model.Fields, binaries map[string][]byte) model.Fields {
	if len(binaries) == 0 {
		return fields
	}
	out := fields.Clone()
	if out == nil {
		out = model.Fields{}
	}
	for key, data := range binaries {
		out[key] = data
	}
	return out
}
