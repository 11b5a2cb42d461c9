//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"survey-engine/internal/config"
	"survey-engine/internal/event"
	"survey-engine/internal/handler"
	"survey-engine/internal/middleware"
	"survey-engine/internal/model"
	"survey-engine/internal/repository"
	"survey-engine/internal/router"
	"survey-engine/internal/service"
	"survey-engine/internal/websocket"
)

const (
	testSecret = "test-secret"
	tenantA    = "tenant-a"
	tenantB    = "tenant-b"
)

type testServer struct {
	*httptest.Server
	store  *repository.MemoryStore
	tokens *service.TokenService
}

func newTestServer(t *testing.T, rpm int) *testServer {
	t.Helper()

	store := repository.NewMemoryStore()
	bus := event.NewBus()
	settings := service.DefaultSettings()
	overlayService := service.NewOverlayService(store, bus, service.Collaborators{}, settings)
	trashService := service.NewTrashService(store, bus, service.Collaborators{}, settings)
	auditService := service.NewAuditService(repository.NewMemoryAuditLog(), bus)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	auditService.Start(ctx)
	hub := websocket.NewHub(bus)
	go hub.Run(ctx)

	tokens, err := service.NewTokenService(testSecret)
	require.NoError(t, err)

	cfg := &config.Config{
		ServerPort:     "8080",
		RequestTimeout: 5 * time.Second,
		MaxBodySize:    1 << 20,
		JWTSecret:      testSecret,
		CORSOrigins:    []string{"*"},
		RateLimitRPM:   rpm,
	}

	server := httptest.NewServer(router.New(
		cfg,
		middleware.NewAuthMiddleware(tokens),
		handler.NewRecordHandler(overlayService),
		handler.NewDraftHandler(overlayService),
		handler.NewTrashHandler(trashService),
		handler.NewAuditHandler(auditService),
		hub,
		nil,
	))
	t.Cleanup(server.Close)

	return &testServer{Server: server, store: store, tokens: tokens}
}

func (s *testServer) token(t *testing.T, tenantID string, role string) string {
	t.Helper()

	token, err := s.tokens.IssueToken(model.AuthClaims{UserID: "user-" + role, TenantID: tenantID, Role: role}, time.Hour)
	require.NoError(t, err)
	return token
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
}

func newAuthRequest(t *testing.T, method string, url string, body any, accessToken string) *http.Request {
	t.Helper()

	payload := []byte{}
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		payload = encoded
	}

	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	require.NoError(t, err)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req
}

// call performs the request and decodes the response envelope. A nil out
// skips decoding the data payload.
func (s *testServer) call(t *testing.T, method string, path string, body any, accessToken string, out any) (int, *model.APIError) {
	t.Helper()

	resp, err := http.DefaultClient.Do(newAuthRequest(t, method, s.URL+path, body, accessToken))
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	if out != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return resp.StatusCode, env.Error
}

func (s *testServer) create(t *testing.T, token string, typ model.EntityType, parentID string, fields model.Fields) model.RecordView {
	t.Helper()

	var view model.RecordView
	status, apiErr := s.call(t, http.MethodPost, "/api/v1/records", model.CreateRecordRequest{
		Type:     string(typ),
		ParentID: parentID,
		Fields:   fields,
	}, token, &view)
	require.Equal(t, http.StatusCreated, status, "%+v", apiErr)
	return view
}

// surveyTree creates workspace > survey > section > item > question.
func (s *testServer) surveyTree(t *testing.T, token string) []model.RecordView {
	t.Helper()

	workspace := s.create(t, token, model.EntityWorkspace, "", model.Fields{"title": "Acme"})
	survey := s.create(t, token, model.EntitySurvey, workspace.ID, model.Fields{"title": "Onboarding"})
	section := s.create(t, token, model.EntitySection, survey.ID, model.Fields{"title": "Intro"})
	item := s.create(t, token, model.EntityItem, section.ID, nil)
	question := s.create(t, token, model.EntityQuestion, item.ID, model.Fields{"text": "How are you?"})
	return []model.RecordView{workspace, survey, section, item, question}
}
