package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"talentlink/internal/engine"
	"talentlink/internal/logging"
)

const (
	stripeWebhookPath   = "billing/stripe/webhook"
	maxStripeBodyBytes  = 1 << 16
	stripePaymentMethod = "stripe"
)

// StripeConfig enables signed payment_intent.succeeded ingest.
type StripeConfig struct {
	Enabled       bool
	WebhookSecret string
	// MetadataKey names the PaymentIntent metadata entry holding the workspace id.
	MetadataKey string
}

type stripeResult struct {
	Status    string `json:"status"`
	PaymentID string `json:"payment_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func registerStripe(r chi.Router, basePath string, e engine.Engine, cfg StripeConfig, logger *slog.Logger) {
	if !cfg.Enabled {
		return
	}
	if cfg.MetadataKey == "" {
		cfg.MetadataKey = "workspace_id"
	}
	log := logger.With("component", "stripe")
	r.Post(path.Join(basePath, stripeWebhookPath), func(w http.ResponseWriter, req *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(req.Body, maxStripeBodyBytes))
		if err != nil {
			respondStatusError(w, badRequest("unreadable body", nil))
			return
		}
		event, err := webhook.ConstructEventWithOptions(payload, req.Header.Get("Stripe-Signature"), cfg.WebhookSecret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			log.Warn("signature check failed", logging.ErrorKey, err)
			respondStatusError(w, newAPIError(http.StatusBadRequest, "invalid_signature", "stripe signature verification failed", nil))
			return
		}
		if event.Type != stripe.EventTypePaymentIntentSucceeded {
			writeStripeResult(w, http.StatusOK, stripeResult{Status: "ignored", Reason: string(event.Type)})
			return
		}
		var pi stripe.PaymentIntent
		if event.Data == nil || json.Unmarshal(event.Data.Raw, &pi) != nil {
			respondStatusError(w, badRequest("malformed payment intent", nil))
			return
		}
		wsID := strings.TrimSpace(pi.Metadata[cfg.MetadataKey])
		if wsID == "" {
			writeStripeResult(w, http.StatusOK, stripeResult{Status: "ignored", Reason: "no " + cfg.MetadataKey + " metadata"})
			return
		}
		p, created, err := e.RecordExternalPayment(req.Context(), engine.ExternalPayment{
			WorkspaceID:   wsID,
			Amount:        decimal.New(pi.Amount, -minorUnitExponent(string(pi.Currency))),
			Currency:      string(pi.Currency),
			Method:        stripePaymentMethod,
			TransactionID: pi.ID,
			Description:   pi.Description,
		}, stripePaymentMethod)
		if err != nil {
			var ve *engine.ValidationError
			var nf *engine.NotFoundError
			switch {
			case errors.As(err, &ve):
				respondStatusError(w, newAPIError(http.StatusBadRequest, "validation_failed", ve.Error(), map[string]any{"field": ve.Field}))
			case errors.As(err, &nf):
				respondStatusError(w, newAPIError(http.StatusNotFound, "not_found", nf.Error(), nil))
			default:
				log.Error("record payment failed", "intent", pi.ID, logging.ErrorKey, err)
				respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil))
			}
			return
		}
		status, result := http.StatusAccepted, "recorded"
		if !created {
			status, result = http.StatusOK, "duplicate"
		}
		log.Info("payment intent ingested", "intent", pi.ID, "workspace_id", wsID, "payment_id", p.ID, "created", created)
		writeStripeResult(w, status, stripeResult{Status: result, PaymentID: p.ID})
	})
}

func writeStripeResult(w http.ResponseWriter, status int, res stripeResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}

// Stripe amounts are in the currency's smallest unit. Three-decimal
// currencies are charged in multiples of ten, so the major amount keeps at
// most two decimals.
var (
	zeroDecimalCurrencies = map[string]bool{
		"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
		"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
		"vuv": true, "xaf": true, "xof": true, "xpf": true,
	}
	threeDecimalCurrencies = map[string]bool{
		"bhd": true, "jod": true, "kwd": true, "omr": true, "tnd": true,
	}
)

func minorUnitExponent(currency string) int32 {
	c := strings.ToLower(currency)
	switch {
	case zeroDecimalCurrencies[c]:
		return 0
	case threeDecimalCurrencies[c]:
		return 3
	}
	return 2
}
