package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84/webhook"
)

func stripeEvent(t *testing.T, eventType string, intent map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"id":          "evt_test",
		"object":      "event",
		"api_version": "2020-08-27",
		"type":        eventType,
		"data":        map[string]any{"object": intent},
	})
	require.NoError(t, err)
	return data
}

func (s *testServer) postStripe(t *testing.T, payload []byte, signature string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.URL+"/billing/stripe/webhook", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signature)
	res, err := s.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, body
}

func sign(payload []byte) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    stripeSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestStripeIngestRecordsPaymentOnce(t *testing.T) {
	srv := newTestServer(t)
	ws := srv.openWorkspace(t)
	payload := stripeEvent(t, "payment_intent.succeeded", map[string]any{
		"id":          "pi_123",
		"object":      "payment_intent",
		"amount":      250050,
		"currency":    "inr",
		"description": "Milestone 1",
		"metadata":    map[string]string{"workspace_id": ws.ID},
	})

	res, body := srv.postStripe(t, payload, sign(payload))
	require.Equal(t, http.StatusAccepted, res.StatusCode, string(body))
	first := decode[stripeResult](t, body)
	assert.Equal(t, "recorded", first.Status)

	res, body = srv.postStripe(t, payload, sign(payload))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	again := decode[stripeResult](t, body)
	assert.Equal(t, "duplicate", again.Status)
	assert.Equal(t, first.PaymentID, again.PaymentID)

	res, data := srv.call(t, http.MethodGet, "/workspaces/"+ws.ID+"/payments", contractorID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	items := decode[paginatedPayments](t, data).Items
	require.Len(t, items, 1)
	assert.Equal(t, "2500.50", items[0].Amount)
	assert.Equal(t, clientID, items[0].PaidBy)
	assert.Equal(t, "stripe", items[0].PaymentMethod)
	assert.Equal(t, "pending", items[0].Status)
}

func TestStripeIngestRejectsBadSignature(t *testing.T) {
	srv := newTestServer(t)
	payload := stripeEvent(t, "payment_intent.succeeded", map[string]any{"id": "pi_1", "amount": 100})
	res, body := srv.postStripe(t, payload, "t=1,v1=deadbeef")
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "invalid_signature", decode[errorEnvelope](t, body).Error.Code)
}

func TestStripeIngestIgnoresOtherEvents(t *testing.T) {
	srv := newTestServer(t)
	ws := srv.openWorkspace(t)

	payload := stripeEvent(t, "charge.refunded", map[string]any{"id": "ch_1", "object": "charge"})
	res, body := srv.postStripe(t, payload, sign(payload))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	assert.Equal(t, "ignored", decode[stripeResult](t, body).Status)

	payload = stripeEvent(t, "payment_intent.succeeded", map[string]any{
		"id":       "pi_nometa",
		"object":   "payment_intent",
		"amount":   1000,
		"currency": "inr",
	})
	res, body = srv.postStripe(t, payload, sign(payload))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	assert.Equal(t, "ignored", decode[stripeResult](t, body).Status)

	payload = stripeEvent(t, "payment_intent.succeeded", map[string]any{
		"id":       "pi_usd",
		"object":   "payment_intent",
		"amount":   1000,
		"currency": "usd",
		"metadata": map[string]string{"workspace_id": ws.ID},
	})
	res, body = srv.postStripe(t, payload, sign(payload))
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(body))

	payload = stripeEvent(t, "payment_intent.succeeded", map[string]any{
		"id":       "pi_lost",
		"object":   "payment_intent",
		"amount":   1000,
		"currency": "inr",
		"metadata": map[string]string{"workspace_id": "nope"},
	})
	res, body = srv.postStripe(t, payload, sign(payload))
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(body))
}

func TestStripeIngestScalesByCurrencyExponent(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.call(t, http.MethodPost, "/workspaces", clientID, map[string]any{
		"contract_id":   "contract-jp",
		"client_id":     clientID,
		"contractor_id": contractorID,
		"total_amount":  "20000",
		"currency":      "JPY",
		"status":        "active",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	ws := decode[OpenWorkspaceResponse](t, data).Workspace

	payload := stripeEvent(t, "payment_intent.succeeded", map[string]any{
		"id":       "pi_jpy",
		"object":   "payment_intent",
		"amount":   5000,
		"currency": "jpy",
		"metadata": map[string]string{"workspace_id": ws.ID},
	})
	res, body := srv.postStripe(t, payload, sign(payload))
	require.Equal(t, http.StatusAccepted, res.StatusCode, string(body))

	res, data = srv.call(t, http.MethodGet, "/workspaces/"+ws.ID+"/payments", contractorID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	items := decode[paginatedPayments](t, data).Items
	require.Len(t, items, 1)
	assert.Equal(t, "5000.00", items[0].Amount)
}

func TestMinorUnitExponent(t *testing.T) {
	assert.Equal(t, int32(2), minorUnitExponent("inr"))
	assert.Equal(t, int32(2), minorUnitExponent("USD"))
	assert.Equal(t, int32(0), minorUnitExponent("JPY"))
	assert.Equal(t, int32(0), minorUnitExponent("krw"))
	assert.Equal(t, int32(3), minorUnitExponent("kwd"))
}
