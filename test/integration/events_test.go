//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survey-engine/internal/event"
	"survey-engine/internal/model"
)

func TestEventStreamThroughAPI(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, 1000)
	editor := srv.token(t, tenantA, model.RoleEditor)

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?access_token=" + url.QueryEscape(editor)
	conn, resp, err := gorillaws.DefaultDialer.Dial(endpoint, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	// Registration happens on the hub goroutine.
	time.Sleep(100 * time.Millisecond)
	workspace := srv.create(t, editor, model.EntityWorkspace, "", model.Fields{"title": "Acme"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var received struct {
		Type     event.Type `json:"type"`
		TenantID string     `json:"tenant_id"`
		Payload  model.Ref  `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &received))
	assert.Equal(t, event.TypeRecordCreated, received.Type)
	assert.Equal(t, tenantA, received.TenantID)
	assert.Equal(t, workspace.ID, received.Payload.ID)
}

func TestEventStreamRejectsAnonymous(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, 1000)

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	_, resp, err := gorillaws.DefaultDialer.Dial(endpoint, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
