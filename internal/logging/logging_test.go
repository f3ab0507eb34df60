package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestTextHandlerFiltersAndSortsAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "text", false).With("workspace_id", "ws-1")
	logger.Debug("hidden")
	logger.Warn("overpaid", "paid_amount", "120", ErrorKey, "boom")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "WARN")
	assert.Contains(t, lines[0], "overpaid boom")
	assert.Equal(t, "    paid_amount=120", lines[1])
	assert.Equal(t, "    workspace_id=ws-1", lines[2])
}

func TestMiddlewareLogsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug", "json", false)
	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v0/workspaces/x/complete", nil))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, float64(http.StatusConflict), rec["status"])
	assert.Equal(t, "/v0/workspaces/x/complete", rec["path"])
}

func TestMiddlewareCarriesRequestAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json", false)
	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddRequestAttr(r.Context(), "actor_id", "client-1")
		w.WriteHeader(http.StatusNoContent)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v0/me", nil))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "client-1", rec["actor_id"])
	assert.Equal(t, "INFO", rec["level"])
}
