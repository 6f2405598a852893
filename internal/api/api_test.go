package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Belogorec/marsu-bot2/internal/api"
	"github.com/Belogorec/marsu-bot2/internal/api/apierr"
	"github.com/Belogorec/marsu-bot2/internal/api/response"
	"github.com/Belogorec/marsu-bot2/internal/dependencies/mocks"
	"github.com/Belogorec/marsu-bot2/internal/model"
	"github.com/Belogorec/marsu-bot2/internal/services/auth"
	"github.com/Belogorec/marsu-bot2/internal/services/registration"
	"github.com/Belogorec/marsu-bot2/internal/storage/memory"
	"github.com/Belogorec/marsu-bot2/internal/testutil"
)

const (
	operatorToken = "operator-token"
	webhookSecret = "hook-secret"
	validAddress  = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
)

type allMembers struct{}

func (allMembers) IsMember(ctx context.Context, userID int64) bool { return true }

// recordingUpdates records updates delivered through the webhook
type recordingUpdates struct {
	mu      sync.Mutex
	updates []tgbotapi.Update
}

func (r *recordingUpdates) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
}

// testServer creates a test server with all dependencies
type testServer struct {
	handler  http.Handler
	service  *registration.Service
	storage  *memory.Storage
	received *recordingUpdates
}

func newTestServer(t *testing.T, withAdmin, withWebhook bool) *testServer {
	t.Helper()

	logger := testutil.NopLogger()
	clock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	store := memory.New()
	service := registration.New(store, allMembers{}, clock, mocks.NewMockIDGenerator(), registration.Config{}, logger)
	received := &recordingUpdates{}

	cfg := api.RouterConfig{Logger: logger, StorageKind: "memory"}
	if withAdmin {
		hash, err := bcrypt.GenerateFromPassword([]byte(operatorToken), bcrypt.MinCost)
		require.NoError(t, err)
		authService, err := auth.New(clock, auth.Config{TokenHash: string(hash)})
		require.NoError(t, err)
		cfg.AdminService = service
		cfg.Authenticator = authService
	}
	if withWebhook {
		cfg.Updates = received
		cfg.WebhookSecret = webhookSecret
	}

	return &testServer{
		handler:  api.NewRouter(cfg),
		service:  service,
		storage:  store,
		received: received,
	}
}

func (ts *testServer) request(method, path string, body string, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := ts.service.Register(ctx, registration.Requester{ID: "1001", Username: "alice"}, "")
	require.NoError(t, err)
	_, err = ts.service.Register(ctx, registration.Requester{ID: "2002", Username: "bob"}, "ref_1001")
	require.NoError(t, err)
	_, err = ts.service.SubmitAddress(ctx, registration.Requester{ID: "1001"}, validAddress)
	require.NoError(t, err)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) apierr.APIError {
	t.Helper()
	var resp apierr.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, false, false)

	rr := ts.request(http.MethodGet, "/api/v1/health", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp response.Health
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "memory", resp.Storage)
}

func TestAdminRoutesNotMountedWithoutHash(t *testing.T) {
	ts := newTestServer(t, false, false)

	rr := ts.request(http.MethodGet, "/api/v1/summary", "", operatorToken)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, true, false)

	for _, path := range []string{"/api/v1/summary", "/api/v1/participants/1001", "/api/v1/audit"} {
		rr := ts.request(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
		assert.Equal(t, apierr.CodeUnauthorized, decodeError(t, rr).Code)

		rr = ts.request(http.MethodGet, path, "", "wrong")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestSummary(t *testing.T) {
	ts := newTestServer(t, true, false)
	ts.seed(t)

	rr := ts.request(http.MethodGet, "/api/v1/summary", "", operatorToken)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp response.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, response.Summary{Participants: 2, WithAddress: 1, WithoutAddress: 1, Referred: 1}, resp)
}

func TestGetParticipant(t *testing.T) {
	ts := newTestServer(t, true, false)
	ts.seed(t)

	rr := ts.request(http.MethodGet, "/api/v1/participants/1001", "", operatorToken)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp response.Participant
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "1001", resp.ID)
	assert.Equal(t, "alice", resp.DisplayName)
	assert.Equal(t, validAddress, resp.PayoutAddress)
	assert.Equal(t, 1, resp.Referrals)
}

func TestGetParticipantNotFound(t *testing.T) {
	ts := newTestServer(t, true, false)

	rr := ts.request(http.MethodGet, "/api/v1/participants/4242", "", operatorToken)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeParticipantMissing, decodeError(t, rr).Code)
}

func TestAuditLog(t *testing.T) {
	ts := newTestServer(t, true, false)
	ts.seed(t)

	rr := ts.request(http.MethodGet, "/api/v1/audit?limit=2", "", operatorToken)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp response.AuditLog
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 2)
	assert.Equal(t, string(model.AuditWalletSaved), resp.Events[0].Action)
	assert.Equal(t, string(model.AuditRegistered), resp.Events[1].Action)
	assert.Equal(t, "2002", resp.Events[1].ParticipantID)
}

func TestAuditLogRejectsBadLimit(t *testing.T) {
	ts := newTestServer(t, true, false)

	for _, limit := range []string{"0", "-1", "abc", "100000"} {
		rr := ts.request(http.MethodGet, "/api/v1/audit?limit="+limit, "", operatorToken)
		assert.Equal(t, http.StatusBadRequest, rr.Code, limit)
		assert.Equal(t, apierr.CodeInvalidRequest, decodeError(t, rr).Code)
	}
}

func TestWebhookDeliversUpdate(t *testing.T) {
	ts := newTestServer(t, false, true)

	body := `{"update_id":7,"message":{"message_id":1,"date":0,"text":"hi","chat":{"id":1001,"type":"private"},"from":{"id":1001,"is_bot":false,"first_name":"Alice"}}}`
	rr := ts.request(http.MethodPost, api.WebhookPathPrefix+webhookSecret, body, "")
	require.Equal(t, http.StatusOK, rr.Code)

	require.Len(t, ts.received.updates, 1)
	assert.Equal(t, 7, ts.received.updates[0].UpdateID)
	assert.Equal(t, "hi", ts.received.updates[0].Message.Text)
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	ts := newTestServer(t, false, true)

	rr := ts.request(http.MethodPost, api.WebhookPathPrefix+"guess", `{"update_id":1}`, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Empty(t, ts.received.updates)
}

func TestWebhookRejectsBadBody(t *testing.T) {
	ts := newTestServer(t, false, true)

	rr := ts.request(http.MethodPost, api.WebhookPathPrefix+webhookSecret, "{not json", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, ts.received.updates)
}

func TestWebhookNotMountedInPollingMode(t *testing.T) {
	ts := newTestServer(t, false, false)

	rr := ts.request(http.MethodPost, api.WebhookPathPrefix+webhookSecret, `{"update_id":1}`, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWebhookRejectsGet(t *testing.T) {
	ts := newTestServer(t, false, true)

	rr := ts.request(http.MethodGet, api.WebhookPathPrefix+webhookSecret, "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
