package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentlink/internal/config"
	"talentlink/internal/db"
	"talentlink/internal/engine"
	"talentlink/internal/migrate"
)

const (
	clientID     = "client-1"
	contractorID = "freelancer-1"
	outsiderID   = "stranger-1"
	stripeSecret = "whsec_test_secret"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	e := engine.New(conn, config.Default())
	// Tokens are checked against the wall clock, so keep the engine near it.
	clock := time.Now().UTC().Truncate(time.Second)
	e.Now = func() time.Time { return clock }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e.Logger = logger

	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:        "test-secret",
			AllowActorHeader: true,
			DevLogin:         true,
			TokenTTL:         time.Hour,
		},
		Stripe: StripeConfig{Enabled: true, WebhookSecret: stripeSecret, MetadataKey: "workspace_id"},
		Logger: logger,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{URL: srv.URL + "/v0", Engine: e, client: srv.Client()}
}

func as(actor string) map[string]string {
	return map[string]string{"X-Actor-Id": actor}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func (s *testServer) call(t *testing.T, method, path, actor string, body any) (*http.Response, []byte) {
	t.Helper()
	var headers map[string]string
	if actor != "" {
		headers = as(actor)
	}
	return doJSON(t, s.client, method, s.URL+path, body, headers)
}

func (s *testServer) openWorkspace(t *testing.T) WorkspaceResponse {
	t.Helper()
	res, data := s.call(t, http.MethodPost, "/workspaces", clientID, map[string]any{
		"contract_id":     "contract-1",
		"title":           "Landing page",
		"client_id":       clientID,
		"client_name":     "Acme",
		"contractor_id":   contractorID,
		"contractor_name": "Riya",
		"total_amount":    "10000.00",
		"currency":        "INR",
		"status":          "active",
	})
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, res.StatusCode, string(data))
	return decode[OpenWorkspaceResponse](t, data).Workspace
}

func TestOpenWorkspaceIsIdempotent(t *testing.T) {
	srv := newTestServer(t)
	body := map[string]any{
		"contract_id":   "contract-9",
		"client_id":     clientID,
		"contractor_id": contractorID,
		"total_amount":  "500",
		"status":        "active",
	}
	res, data := srv.call(t, http.MethodPost, "/workspaces", clientID, body)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	first := decode[OpenWorkspaceResponse](t, data)
	assert.True(t, first.Created)
	assert.Equal(t, "500.00", first.Workspace.TotalAmount)

	res, data = srv.call(t, http.MethodPost, "/workspaces", contractorID, body)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	second := decode[OpenWorkspaceResponse](t, data)
	assert.False(t, second.Created)
	assert.Equal(t, first.Workspace.ID, second.Workspace.ID)

	res, data = srv.call(t, http.MethodGet, "/workspaces", contractorID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, decode[[]WorkspaceResponse](t, data), 1)
}

func TestTaskFlowUpdatesSummary(t *testing.T) {
	srv := newTestServer(t)
	ws := srv.openWorkspace(t)
	base := "/workspaces/" + ws.ID

	res, data := srv.call(t, http.MethodPost, base+"/tasks", clientID, map[string]any{
		"title":    "Hero section",
		"priority": "high",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	task := decode[TaskResponse](t, data)
	assert.Equal(t, contractorID, task.AssignedTo)
	assert.Equal(t, "todo", task.EffectiveStatus)

	res, data = srv.call(t, http.MethodPost, base+"/tasks/"+task.ID+"/status", clientID, map[string]any{"status": "completed"})
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	res, data = srv.call(t, http.MethodPost, base+"/tasks/"+task.ID+"/status", contractorID, map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	done := decode[TaskResponse](t, data)
	assert.NotNil(t, done.CompletedAt)

	res, data = srv.call(t, http.MethodPost, base+"/tasks/"+task.ID+"/comments", clientID, map[string]any{"text": "Looks great"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = srv.call(t, http.MethodGet, base+"/tasks/"+task.ID, contractorID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, 1, decode[TaskResponse](t, data).CommentsCount)

	res, data = srv.call(t, http.MethodGet, base, clientID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	summary := decode[SummaryResponse](t, data)
	assert.Equal(t, "client", summary.Role)
	assert.Equal(t, 1, summary.Tasks.Total)
	assert.Equal(t, 1, summary.Tasks.Completed)
	assert.Equal(t, 0, summary.Tasks.Pending)
}

func TestOverdueStatusRejected(t *testing.T) {
	srv := newTestServer(t)
	ws := srv.openWorkspace(t)
	res, data := srv.call(t, http.MethodPost, "/workspaces/"+ws.ID+"/tasks", clientID, map[string]any{"title": "Copy"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	task := decode[TaskResponse](t, data)

	res, data = srv.call(t, http.MethodPost, "/workspaces/"+ws.ID+"/tasks/"+task.ID+"/status", contractorID, map[string]any{"status": "overdue"})
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "validation_failed", decode[errorEnvelope](t, data).Error.Code)
}

func TestTaskPagination(t *testing.T) {
	srv := newTestServer(t)
	ws := srv.openWorkspace(t)
	for _, title := range []string{"one", "two", "three"} {
		res, data := srv.call(t, http.MethodPost, "/workspaces/"+ws.ID+"/tasks", clientID, map[string]any{"title": title})
		require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	}
	res, data := srv.call(t, http.MethodGet, "/workspaces/"+ws.ID+"/tasks?limit=2", clientID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	first := decode[paginatedTasks](t, data)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)

	res, data = srv.call(t, http.MethodGet, "/workspaces/"+ws.ID+"/tasks?limit=2&cursor="+first.NextCursor, clientID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	second := decode[paginatedTasks](t, data)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.NextCursor)
	for _, item := range first.Items {
		assert.NotEqual(t, item.ID, second.Items[0].ID)
	}

	res, _ = srv.call(t, http.MethodGet, "/workspaces/"+ws.ID+"/tasks?cursor=garbage", clientID, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestPaymentConfirmationFlow(t *testing.T) {
	srv := newTestServer(t)
	ws := srv.openWorkspace(t)
	base := "/workspaces/" + ws.ID + "/payments"

	res, data := srv.call(t, http.MethodPost, base, clientID, map[string]any{
		"amount":         "2500.50",
		"payment_method": "upi",
		"transaction_id": "UPI-1",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	p := decode[PaymentResponse](t, data)
	assert.Equal(t, "pending", p.Status)
	assert.Equal(t, "2500.50", p.Amount)

	res, data = srv.call(t, http.MethodGet, base+"/stats", clientID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "0.00", decode[PaymentStatsResponse](t, data).Paid)

	res, data = srv.call(t, http.MethodPost, base+"/"+p.ID+"/confirm", clientID, nil)
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	res, data = srv.call(t, http.MethodPost, base+"/"+p.ID+"/confirm", contractorID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.True(t, decode[PaymentResponse](t, data).FreelancerConfirmed)

	res, data = srv.call(t, http.MethodPost, base+"/"+p.ID+"/confirm", contractorID, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "already_confirmed", decode[errorEnvelope](t, data).Error.Code)

	res, data = srv.call(t, http.MethodGet, base+"/stats", contractorID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	stats := decode[PaymentStatsResponse](t, data)
	assert.Equal(t, "2500.50", stats.Paid)
	assert.Equal(t, "7499.50", stats.Remaining)
	assert.Len(t, stats.Timeline, 1)

	res, data = srv.call(t, http.MethodGet, base+"?status=confirmed", clientID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Len(t, decode[paginatedPayments](t, data).Items, 1)
}

func TestPaymentRequestFlow(t *testing.T) {
	srv := newTestServer(t)
	ws := srv.openWorkspace(t)
	base := "/workspaces/" + ws.ID + "/payment-requests"

	res, data := srv.call(t, http.MethodPost, base, clientID, map[string]any{"amount": "1000"})
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	res, data = srv.call(t, http.MethodPost, base, contractorID, map[string]any{"amount": "1000", "message": "Milestone 1"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	first := decode[PaymentRequestResponse](t, data)

	res, data = srv.call(t, http.MethodPost, base+"/"+first.ID+"/approve", clientID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "approved", decode[PaymentRequestResponse](t, data).Status)

	res, data = srv.call(t, http.MethodPost, base+"/"+first.ID+"/reject", clientID, map[string]any{"reason": "late"})
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "not_pending", decode[errorEnvelope](t, data).Error.Code)

	res, data = srv.call(t, http.MethodPost, base, contractorID, map[string]any{"amount": "300"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	second := decode[PaymentRequestResponse](t, data)
	res, data = srv.call(t, http.MethodPost, base+"/"+second.ID+"/reject", clientID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "rejected", decode[PaymentRequestResponse](t, data).Status)

	res, data = srv.call(t, http.MethodGet, base+"?status=pending", clientID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Empty(t, decode[paginatedRequests](t, data).Items)

	// Approval alone never moves money.
	res, data = srv.call(t, http.MethodGet, "/workspaces/"+ws.ID+"/payments/stats", clientID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, 0, decode[PaymentStatsResponse](t, data).PaymentCount)
}

func TestMutualCompletion(t *testing.T) {
	srv := newTestServer(t)
	ws := srv.openWorkspace(t)
	path := "/workspaces/" + ws.ID + "/complete"

	res, data := srv.call(t, http.MethodPost, path, clientID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.False(t, decode[WorkspaceResponse](t, data).IsFullyCompleted)

	res, data = srv.call(t, http.MethodPost, path, clientID, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "already_marked", decode[errorEnvelope](t, data).Error.Code)

	res, data = srv.call(t, http.MethodPost, path, contractorID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	done := decode[WorkspaceResponse](t, data)
	assert.True(t, done.IsFullyCompleted)
	assert.Equal(t, "completed", done.ContractStatus)

	res, data = srv.call(t, http.MethodGet, "/me/notifications?unread=true", clientID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.NotEmpty(t, data)

	res, data = srv.call(t, http.MethodGet, "/workspaces/"+ws.ID+"/events?type=workspace.completed", contractorID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Len(t, decode[[]EventResponse](t, data), 1)
}

func TestErrorPrecedence(t *testing.T) {
	srv := newTestServer(t)
	ws := srv.openWorkspace(t)

	res, data := srv.call(t, http.MethodPost, "/workspaces/"+ws.ID+"/payments", outsiderID, map[string]any{"amount": "-5"})
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "validation_failed", decode[errorEnvelope](t, data).Error.Code)

	res, data = srv.call(t, http.MethodPost, "/workspaces/"+ws.ID+"/payments", outsiderID, map[string]any{"amount": "5"})
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	res, data = srv.call(t, http.MethodGet, "/workspaces/missing", clientID, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
	assert.Equal(t, "not_found", decode[errorEnvelope](t, data).Error.Code)

	res, data = srv.call(t, http.MethodPost, "/workspaces/"+ws.ID+"/payments/missing/confirm", contractorID, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))

	res, _ = srv.call(t, http.MethodGet, "/workspaces", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestDevLoginIssuesUsableToken(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.call(t, http.MethodPost, "/auth/dev/login", "", map[string]any{"actor_id": clientID})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	login := decode[DevLoginResponse](t, data)
	require.NotEmpty(t, login.Token)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/me", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	me := decode[WhoAmIResponse](t, data)
	assert.Equal(t, clientID, me.ActorID)
	assert.Equal(t, "jwt", me.Source)

	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/me", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestAPIKeyLifecycle(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.call(t, http.MethodPost, "/me/api-keys", clientID, map[string]any{"name": "ci"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	key := decode[APIKeyResponse](t, data)
	require.NotEmpty(t, key.Key)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/me", nil, map[string]string{"X-Api-Key": key.Key})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "api_key", decode[WhoAmIResponse](t, data).Source)

	res, data = srv.call(t, http.MethodGet, "/me/api-keys", clientID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	listed := decode[[]APIKeyResponse](t, data)
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].Key)

	res, _ = srv.call(t, http.MethodDelete, "/me/api-keys/"+key.ID, outsiderID, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = srv.call(t, http.MethodDelete, "/me/api-keys/"+key.ID, clientID, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/me", nil, map[string]string{"X-Api-Key": key.Key})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestOptionalBodiesMayBeOmitted(t *testing.T) {
	srv := newTestServer(t)
	ws := srv.openWorkspace(t)
	base := "/workspaces/" + ws.ID + "/payment-requests"

	res, data := srv.call(t, http.MethodPost, base, contractorID, map[string]any{"amount": "250"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	pr := decode[PaymentRequestResponse](t, data)

	res, data = srv.call(t, http.MethodPost, base+"/"+pr.ID+"/reject", clientID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	rejected := decode[PaymentRequestResponse](t, data)
	assert.Equal(t, "rejected", rejected.Status)
	assert.Nil(t, rejected.RejectionReason)

	res, data = srv.call(t, http.MethodPost, "/me/api-keys", contractorID, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	key := decode[APIKeyResponse](t, data)
	assert.NotEmpty(t, key.Key)
	assert.Empty(t, key.Name)
}

func TestOpenAPIDocumentIsPublic(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "confirm-payment")
}
