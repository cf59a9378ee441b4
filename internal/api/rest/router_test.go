package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRouter_HealthReportsFeatureFlags(t *testing.T) {
	router := NewRouter(nil, Config{Flags: FeatureFlags{Trades: true, Positions: false, Stream: true}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out healthWire
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "ok", out.Status)
	assert.True(t, out.FeatureFlags["trades"])
	assert.False(t, out.FeatureFlags["positions"])
	assert.True(t, out.FeatureFlags["stream"])
}

func TestNewRouter_DisabledFeatureReturns501(t *testing.T) {
	router := NewRouter(nil, Config{Flags: FeatureFlags{Trades: false, Positions: false, Stream: false}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v4/trades/export-gpt/"+wrappedSolMint, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestNewRouter_StreamRouteWithoutHandlerReturns501(t *testing.T) {
	router := NewRouter(nil, Config{Flags: FeatureFlags{Stream: true}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v4/wallet/"+wrappedSolMint+"/stream", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestNewRouter_StreamRouteDispatchesInjectedHandler(t *testing.T) {
	called := false
	stream := func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}
	router := NewRouter(nil, Config{Flags: FeatureFlags{Stream: true}}, stream)

	req := httptest.NewRequest(http.MethodGet, "/v4/wallet/"+wrappedSolMint+"/stream", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewRouter_InvalidWalletOnTradesReturns400(t *testing.T) {
	router := NewRouter(nil, Config{Flags: FeatureFlags{Trades: true}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v4/trades/export-gpt/short", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
