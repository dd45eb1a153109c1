package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfect8/shopgw/internal/config"
)

func newEchoBackend(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Echo-Path", r.URL.Path)
		w.Header().Set("X-Echo-Forwarded-Host", r.Header.Get("X-Forwarded-Host"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestProxy_RoutesByPrefix(t *testing.T) {
	t.Parallel()

	backend := newEchoBackend(t)

	proxy, err := NewProxy([]config.BackendConfig{
		{Name: "shop", URL: backend.URL, Prefix: "/api/products"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/products/3", nil)
	req.Host = "shop.example.com"
	rec := httptest.NewRecorder()

	proxy.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/api/products/3", rec.Header().Get("X-Echo-Path"))
	assert.Equal(t, "shop.example.com", rec.Header().Get("X-Echo-Forwarded-Host"))
}

func TestProxy_LongestPrefixWins(t *testing.T) {
	t.Parallel()

	api := newEchoBackend(t)
	products := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Backend", "products")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(products.Close)

	proxy, err := NewProxy([]config.BackendConfig{
		{Name: "api", URL: api.URL, Prefix: "/api"},
		{Name: "products", URL: products.URL, Prefix: "/api/products"},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products/3", nil))

	assert.Equal(t, "products", rec.Header().Get("X-Backend"))
}

func TestProxy_UnmatchedPathIs404(t *testing.T) {
	t.Parallel()

	backend := newEchoBackend(t)

	proxy, err := NewProxy([]config.BackendConfig{
		{Name: "shop", URL: backend.URL, Prefix: "/api/products"},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "route not found", body.Error)
}

func TestProxy_UnreachableBackendIs502(t *testing.T) {
	t.Parallel()

	// A server that is already closed gives a connection error.
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backend.Close()

	proxy, err := NewProxy([]config.BackendConfig{
		{Name: "shop", URL: backend.URL, Prefix: "/api/products"},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestProxy_SlowBackendIs504(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(backend.Close)

	proxy, err := NewProxy([]config.BackendConfig{
		{
			Name:    "shop",
			URL:     backend.URL,
			Prefix:  "/api/products",
			Timeout: config.Duration(50 * time.Millisecond),
		},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestProxy_BreakerOpensOnFailures(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(backend.Close)

	proxy, err := NewProxy([]config.BackendConfig{
		{
			Name:   "shop",
			URL:    backend.URL,
			Prefix: "/api/products",
			CircuitBreaker: &config.CircuitBreakerConfig{
				Enabled:   true,
				Threshold: 2,
			},
		},
	})
	require.NoError(t, err)

	// Failures pass through with the backend's status until the
	// breaker trips.
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	}

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "service unavailable", body.Error)
}

func TestNewProxy_Validation(t *testing.T) {
	t.Parallel()

	proxy, err := NewProxy(nil)
	assert.Error(t, err)
	assert.Nil(t, proxy)
}
