package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newthinker/brokerhub/internal/adapter"
	"github.com/newthinker/brokerhub/internal/adapter/mocks"
	"github.com/newthinker/brokerhub/internal/cache"
	"github.com/newthinker/brokerhub/internal/connection"
	"github.com/newthinker/brokerhub/internal/model"
	"github.com/newthinker/brokerhub/internal/portfolio"
	"github.com/newthinker/brokerhub/internal/store"
	"github.com/newthinker/brokerhub/internal/trading"
)

const testAPIKey = "test-api-key"

func newTestServer(t *testing.T) (*Server, *mocks.MockAdapter) {
	t.Helper()
	mock := mocks.New(model.BrokerAlpaca)
	registry := adapter.NewRegistry()
	registry.Register(mock)

	c := cache.NewMemory()
	mgr := connection.NewManager(registry, store.NewMemoryStore(), c, nil, nil, zap.NewNop())
	agg := portfolio.NewAggregator(mgr, registry, c, nil, zap.NewNop(), 0)
	trd := trading.NewService(mgr, registry, nil, zap.NewNop())

	srv := NewServer(Config{Host: "localhost", Port: 0, APIKey: testAPIKey}, Deps{
		Manager:    mgr,
		Aggregator: agg,
		Trading:    trd,
	}, zap.NewNop())
	return srv, mock
}

func do(t *testing.T, h http.Handler, method, path string, userID uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("X-User-ID", userID.String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// data decodes the "data" member of a success envelope into out.
func data(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestAPIKeyRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/connections", nil)
	req.Header.Set("X-User-ID", uuid.NewString())
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req.Header.Set("X-API-Key", "wrong-key")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserIDRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/connections", nil)
	req.Header.Set("X-API-Key", testAPIKey)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "USER_REQUIRED", errCode(t, w))

	req.Header.Set("X-User-ID", "not-a-uuid")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestConnectionLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	userID := uuid.New()

	// Initiate.
	w := do(t, h, http.MethodPost, "/api/v1/connections", userID, map[string]string{
		"broker_id":    "alpaca",
		"redirect_uri": "https://app.example.com/cb",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var initiated struct {
		AuthorizationURL string `json:"authorization_url"`
		State            string `json:"state"`
	}
	data(t, w, &initiated)
	require.NotEmpty(t, initiated.State)
	assert.NotEmpty(t, initiated.AuthorizationURL)

	// Complete the callback.
	w = do(t, h, http.MethodPost, "/api/v1/connections/complete", userID, map[string]any{
		"state":    initiated.State,
		"callback": map[string]string{"code": "auth-code"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var conn model.Connection
	data(t, w, &conn)
	assert.Equal(t, model.ConnectionActive, conn.Status)

	// List connections.
	w = do(t, h, http.MethodGet, "/api/v1/connections", userID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var connList struct {
		Connections []model.Connection `json:"connections"`
		Total       int                `json:"total"`
	}
	data(t, w, &connList)
	require.Equal(t, 1, connList.Total)

	// Enumerated accounts are visible.
	w = do(t, h, http.MethodGet, "/api/v1/accounts?broker_id=alpaca", userID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var acctList struct {
		Accounts []model.BrokerAccount `json:"accounts"`
		Total    int                   `json:"total"`
	}
	data(t, w, &acctList)
	require.Equal(t, 1, acctList.Total)

	// Replayed completion is gone.
	w = do(t, h, http.MethodPost, "/api/v1/connections/complete", userID, map[string]any{
		"state":    initiated.State,
		"callback": map[string]string{"code": "auth-code"},
	})
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "STATE_EXPIRED_OR_MISSING", errCode(t, w))

	// Disconnect.
	w = do(t, h, http.MethodDelete, "/api/v1/connections/"+conn.ID.String(), userID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInitiate_UnknownBroker(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv.Handler(), http.MethodPost, "/api/v1/connections", uuid.New(), map[string]string{
		"broker_id": "robinhood",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "UNSUPPORTED_BROKER", errCode(t, w))
}

func TestPortfolioSummaryOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	userID := uuid.New()

	w := do(t, h, http.MethodPost, "/api/v1/connections", userID, map[string]string{"broker_id": "alpaca"})
	require.Equal(t, http.StatusCreated, w.Code)
	var initiated struct {
		State string `json:"state"`
	}
	data(t, w, &initiated)
	w = do(t, h, http.MethodPost, "/api/v1/connections/complete", userID, map[string]any{
		"state":    initiated.State,
		"callback": map[string]string{"code": "c"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/portfolio/summary", userID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var summary portfolio.Summary
	data(t, w, &summary)
	assert.Equal(t, 1, summary.BrokerCount)
	assert.True(t, summary.TotalValue.IsPositive())
}

func TestQuotes_SymbolsRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/quotes", uuid.New(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_REQUEST", errCode(t, w))
}

func TestGetConnection_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/connections/"+uuid.NewString(), uuid.New(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CONNECTION_NOT_FOUND", errCode(t, w))
}

func TestPlaceOrderOverHTTP_NoConnection(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv.Handler(), http.MethodPost, "/api/v1/orders", uuid.New(), map[string]any{
		"broker_id":  "alpaca",
		"account_id": "acct-1",
		"order": map[string]any{
			"symbol":     "AAPL",
			"side":       "buy",
			"order_type": "market",
			"quantity":   "10",
		},
	})
	// Vendor-style refusal: HTTP 422 with the unsuccessful result in the body.
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	var result model.OrderResult
	data(t, w, &result)
	assert.False(t, result.Success)
	assert.Equal(t, "No active connection for this broker", result.Message)
}
