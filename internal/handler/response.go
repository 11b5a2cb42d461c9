package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"survey-engine/internal/model"
	"survey-engine/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	} else if errors.Is(err, model.ErrValidation) {
		status = http.StatusBadRequest
		body.Code = "VALIDATION_FAILED"
		body.Message = "Invalid input"
		body.Details = err.Error()
	} else if errors.Is(err, model.ErrUnauthorized) {
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Authentication required"
	} else if errors.Is(err, model.ErrForbidden) {
		status = http.StatusForbidden
		body.Code = "FORBIDDEN"
		body.Message = "Access denied"
	} else if errors.Is(err, model.ErrNotFound) {
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Record not found"
	} else if errors.Is(err, model.ErrTrashNotFound) {
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Trash entry not found"
	} else if errors.Is(err, model.ErrAlreadyTrashed) {
		status = http.StatusConflict
		body.Code = "ALREADY_REMOVED"
		body.Message = "Record is already removed"
	} else if errors.Is(err, model.ErrAlreadyClearing) {
		status = http.StatusConflict
		body.Code = "ALREADY_CLEARING"
		body.Message = "Trash entry is being cleared and can no longer be restored"
	} else if errors.Is(err, model.ErrNotClearable) {
		status = http.StatusConflict
		body.Code = "NOT_CLEARABLE"
		body.Message = "Trash entry is not in the clearing stage"
	} else if errors.Is(err, model.ErrTooManyAttempts) {
		status = http.StatusConflict
		body.Code = "TOO_MANY_ATTEMPTS"
		body.Message = "Trash entry exceeded its clear attempts"
		body.Details = err.Error()
	} else if errors.Is(err, model.ErrConcurrentModification) {
		status = http.StatusConflict
		body.Code = "CONCURRENT_MODIFICATION"
		body.Message = "Record changed concurrently, retry the request"
	} else if errors.Is(err, model.ErrNoAttachmentPoint) {
		status = http.StatusUnprocessableEntity
		body.Code = "NO_ATTACHMENT_POINT"
		body.Message = "No live owner left to restore the record under"
	} else if errors.Is(err, model.ErrLimitExceeded) {
		status = http.StatusTooManyRequests
		body.Code = "LIMIT_EXCEEDED"
		body.Message = "Tenant limit reached"
		body.Details = err.Error()
	} else if errors.Is(err, model.ErrCascadeFailure) {
		body.Code = "CASCADE_FAILURE"
		body.Message = "Operation rolled back"
		body.Details = err.Error()
		slog.Error("cascade failure", "error", err.Error())
	} else {
		// Log unclassified errors so they are visible in container logs.
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

// decodeJSON reads a JSON body. An empty body leaves dst untouched when
// optional is set.
func decodeJSON(r *http.Request, dst any, optional bool) error {
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return apierror.New("BAD_REQUEST", "invalid JSON body", err.Error(), http.StatusBadRequest)
	}
	return nil
}

func parseIntOrDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}
