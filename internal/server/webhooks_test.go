package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentlink/internal/config"
)

type receiver struct {
	mu      sync.Mutex
	events  []webhookEvent
	headers []http.Header
	status  int
}

func (r *receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var evt webhookEvent
	_ = json.NewDecoder(req.Body).Decode(&evt)
	r.events = append(r.events, evt)
	r.headers = append(r.headers, req.Header.Clone())
	if r.status != 0 {
		w.WriteHeader(r.status)
	}
}

func (r *receiver) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func TestWebhookDispatcherDeliversFilteredEvents(t *testing.T) {
	srv := newTestServer(t)
	all := &receiver{}
	payments := &receiver{}
	allSrv := httptest.NewServer(all)
	defer allSrv.Close()
	paySrv := httptest.NewServer(payments)
	defer paySrv.Close()
	disabled := false

	d := NewWebhookDispatcher(srv.Engine, []config.WebhookConfig{
		{URL: allSrv.URL, Secret: "s3cret"},
		{URL: paySrv.URL, Events: []string{"payment.logged"}},
		{URL: allSrv.URL, Enabled: &disabled},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	// The first pass pins each hook's cursor to the current head.
	d.DispatchOnce(ctx)
	ws := srv.openWorkspace(t)
	d.DispatchOnce(ctx)
	assert.Empty(t, payments.types())
	require.Equal(t, []string{"workspace.opened"}, all.types())

	res, data := srv.call(t, http.MethodPost, "/workspaces/"+ws.ID+"/payments", clientID, map[string]any{"amount": "100"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	d.DispatchOnce(ctx)

	assert.Equal(t, []string{"workspace.opened", "payment.logged"}, all.types())
	assert.Equal(t, []string{"payment.logged"}, payments.types())
	assert.Equal(t, ws.ID, payments.events[0].WorkspaceID)
	assert.Equal(t, "s3cret", all.headers[0].Get("X-Talentlink-Secret"))
	assert.Equal(t, "payment.logged", payments.headers[0].Get("X-Talentlink-Event"))
	assert.Empty(t, payments.headers[0].Get("X-Talentlink-Secret"))
}

func TestWebhookDispatcherRetriesFailedDelivery(t *testing.T) {
	srv := newTestServer(t)
	flaky := &receiver{status: http.StatusServiceUnavailable}
	hook := httptest.NewServer(flaky)
	defer hook.Close()

	d := NewWebhookDispatcher(srv.Engine, []config.WebhookConfig{{URL: hook.URL}}, nil)
	ctx := context.Background()
	d.DispatchOnce(ctx)
	srv.openWorkspace(t)

	d.DispatchOnce(ctx)
	require.Len(t, flaky.types(), 1)

	flaky.mu.Lock()
	flaky.status = 0
	flaky.mu.Unlock()
	d.DispatchOnce(ctx)
	assert.Equal(t, []string{"workspace.opened", "workspace.opened"}, flaky.types())

	d.DispatchOnce(ctx)
	assert.Len(t, flaky.types(), 2)
}
