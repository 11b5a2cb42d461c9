package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survey-engine/internal/model"
	"survey-engine/pkg/apierror"
)

func TestWriteErrorMapping(t *testing.T) {
	t.Parallel()

	cascade := model.NewCascadeError("clear", model.Ref{Type: model.EntityQuestion, ID: "q1"}, errors.New("disk full"))

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "api error", err: apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest), status: 400, code: "BAD_REQUEST"},
		{name: "validation", err: fmt.Errorf("%w: title", model.ErrValidation), status: 400, code: "VALIDATION_FAILED"},
		{name: "not found", err: fmt.Errorf("%w: r1", model.ErrNotFound), status: 404, code: "NOT_FOUND"},
		{name: "trash not found", err: model.ErrTrashNotFound, status: 404, code: "NOT_FOUND"},
		{name: "already trashed", err: model.ErrAlreadyTrashed, status: 409, code: "ALREADY_REMOVED"},
		{name: "already clearing", err: model.ErrAlreadyClearing, status: 409, code: "ALREADY_CLEARING"},
		{name: "not clearable", err: model.ErrNotClearable, status: 409, code: "NOT_CLEARABLE"},
		{name: "too many attempts", err: model.ErrTooManyAttempts, status: 409, code: "TOO_MANY_ATTEMPTS"},
		{name: "concurrent", err: model.ErrConcurrentModification, status: 409, code: "CONCURRENT_MODIFICATION"},
		{name: "no attachment point", err: model.ErrNoAttachmentPoint, status: 422, code: "NO_ATTACHMENT_POINT"},
		{name: "limit", err: model.ErrLimitExceeded, status: 429, code: "LIMIT_EXCEEDED"},
		{name: "cascade", err: cascade, status: 500, code: "CASCADE_FAILURE"},
		{name: "unknown", err: errors.New("boom"), status: 500, code: "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			var body model.APIResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
			assert.Equal(t, tc.code, body.Error.Code)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	var payload model.SoftDeleteRequest
	empty := httptest.NewRequest(http.MethodDelete, "/", strings.NewReader(""))
	require.NoError(t, decodeJSON(empty, &payload, true))
	require.Error(t, decodeJSON(httptest.NewRequest(http.MethodDelete, "/", strings.NewReader("")), &payload, false))

	bad := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	var apiErr *apierror.APIError
	require.ErrorAs(t, decodeJSON(bad, &payload, true), &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)

	good := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"force_clearing":true}`))
	require.NoError(t, decodeJSON(good, &payload, false))
	assert.True(t, payload.ForceClearing)
}

func TestWithBinaries(t *testing.T) {
	t.Parallel()

	fields := model.Fields{"title": "Logo"}
	merged := withBinaries(fields, map[string][]byte{"logo": []byte("png")})
	assert.Equal(t, []byte("png"), merged["logo"])
	assert.Equal(t, "Logo", merged["title"])
	assert.NotContains(t, fields, "logo")

	assert.Equal(t, fields, withBinaries(fields, nil))
}
