package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "INR", cfg.Ledger.Currency)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.Equal(t, 720, cfg.Auth.TokenTTLMinutes)
	assert.Equal(t, "workspace_id", cfg.Billing.Stripe.MetadataKey)
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("ledger:\n  currency: USD\n  payment_methods: [bank, stripe]\n"))
	require.NoError(t, err)
	assert.Equal(t, "USD", cfg.Ledger.Currency)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.True(t, cfg.PaymentMethodAllowed("Stripe"))
	assert.True(t, cfg.PaymentMethodAllowed(""))
	assert.False(t, cfg.PaymentMethodAllowed("cash"))
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"currency":      "ledger:\n  currency: RUPEE\n",
		"base path":     "server:\n  base_path: v0\n",
		"log level":     "log:\n  level: loud\n",
		"webhook":       "webhooks:\n  - url: ftp://example.com\n",
		"stripe":        "billing:\n  stripe:\n    enabled: true\n    metadata_key: ''\n",
		"stripe method": "ledger:\n  payment_methods: [bank, upi]\nbilling:\n  stripe:\n    enabled: true\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestStripeAllowedByMethodList(t *testing.T) {
	cfg, err := FromYAML([]byte("ledger:\n  payment_methods: [bank, Stripe]\nbilling:\n  stripe:\n    enabled: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.PaymentMethodAllowed("stripe"))

	_, err = FromYAML([]byte("ledger:\n  payment_methods: [bank]\n"))
	assert.NoError(t, err)
}

func TestWebhookEnabledDefault(t *testing.T) {
	cfg, err := FromYAML([]byte("webhooks:\n  - url: https://example.com/hook\n  - url: https://example.com/off\n    enabled: false\n"))
	require.NoError(t, err)
	require.Len(t, cfg.Webhooks, 2)
	assert.True(t, cfg.Webhooks[0].IsEnabled())
	assert.False(t, cfg.Webhooks[1].IsEnabled())
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(dir)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(Path(dir), []byte(GenerateDefault()), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "INR", cfg.Ledger.Currency)
}
