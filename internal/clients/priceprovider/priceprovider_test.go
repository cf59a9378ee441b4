package priceprovider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnabled_FalseWithoutAPIKey(t *testing.T) {
	c := New(Config{}, nil)
	assert.False(t, c.Enabled())
}

func TestBatchQuote_ErrorsWhenDisabled(t *testing.T) {
	c := New(Config{}, nil)
	_, err := c.BatchQuote(context.Background(), []struct {
		Mint   string
		Minute int64
	}{{Mint: "mint1", Minute: 100}})
	require.Error(t, err)
}

func TestBatchQuote_EmptyRequestIsNoop(t *testing.T) {
	c := New(Config{APIKey: "key"}, nil)
	out, err := c.BatchQuote(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestBatchQuote_ParsesPartialAvailability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-API-KEY"))
		assert.Contains(t, r.URL.RawQuery, "mints=mint1%2Cmint2")
		w.Write([]byte(`{"quotes":[
			{"mint":"mint1","minute":100,"price_usd":1.5,"available":true},
			{"mint":"mint2","minute":100,"available":false}
		]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key"}, nil)
	out, err := c.BatchQuote(context.Background(), []struct {
		Mint   string
		Minute int64
	}{{Mint: "mint1", Minute: 100}, {Mint: "mint2", Minute: 100}})

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].Available)
	assert.False(t, out[1].Available)
}

func TestBatchQuote_SetsHeliusSourceParamWhenConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "helius", r.URL.Query().Get("source"))
		w.Write([]byte(`{"quotes":[]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key", HeliusOnly: true}, nil)
	_, err := c.BatchQuote(context.Background(), []struct {
		Mint   string
		Minute int64
	}{{Mint: "mint1", Minute: 100}})
	require.NoError(t, err)
}

func TestBatchQuote_ErrorsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key"}, nil)
	_, err := c.BatchQuote(context.Background(), []struct {
		Mint   string
		Minute int64
	}{{Mint: "mint1", Minute: 100}})
	require.Error(t, err)
}
