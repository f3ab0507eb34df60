package talentlinksdk_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentlink/internal/config"
	"talentlink/internal/db"
	"talentlink/internal/domain"
	"talentlink/internal/engine"
	"talentlink/internal/migrate"
	"talentlink/internal/server"
	talentlinksdk "talentlink/sdk/go"
)

func TestClientAgainstServer(t *testing.T) {
	conn, err := db.Open(db.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, config.Default())
	ctx := context.Background()

	w, _, err := e.OpenWorkspace(ctx, engine.ContractActivation{
		ContractID:   "contract-1",
		ClientID:     "client-1",
		ContractorID: "freelancer-1",
		TotalAmount:  decimal.NewFromInt(1000),
		Status:       domain.ContractActive,
	}, engine.SystemActor)
	require.NoError(t, err)

	_, clientKey, err := e.CreateAPIKey(ctx, "client-1", "sdk")
	require.NoError(t, err)
	_, contractorKey, err := e.CreateAPIKey(ctx, "freelancer-1", "sdk")
	require.NoError(t, err)

	handler, err := server.New(server.Config{Engine: e, BasePath: "/v0", Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	client := talentlinksdk.New(srv.URL+"/v0", w.ID)
	client.APIKey = clientKey
	contractor := talentlinksdk.New(srv.URL+"/v0", w.ID)
	contractor.APIKey = contractorKey

	task, err := client.CreateTask(ctx, "Wireframes", "high")
	require.NoError(t, err)
	assert.Equal(t, "freelancer-1", task.AssignedTo)
	task, err = contractor.SetTaskStatus(ctx, task.ID, "completed")
	require.NoError(t, err)
	assert.NotNil(t, task.CompletedAt)

	req, err := contractor.RequestPayment(ctx, "400", "first half")
	require.NoError(t, err)
	req, err = client.ApproveRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "approved", req.Status)

	p, err := client.LogPayment(ctx, "400", "bank", "NEFT-77")
	require.NoError(t, err)
	_, err = contractor.ConfirmPayment(ctx, p.ID)
	require.NoError(t, err)
	_, err = contractor.ConfirmPayment(ctx, p.ID)
	var apiErr *talentlinksdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "already_confirmed", apiErr.Code)

	stats, err := client.PaymentStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "400.00", stats.Paid)
	assert.Equal(t, "40.00", stats.Percentage)

	_, err = client.MarkComplete(ctx)
	require.NoError(t, err)
	ws, err := contractor.MarkComplete(ctx)
	require.NoError(t, err)
	assert.True(t, ws.IsFullyCompleted)

	events, err := client.Events(ctx, "payment.confirmed", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
