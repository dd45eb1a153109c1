package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfect8/shopgw/internal/config"
	"github.com/perfect8/shopgw/internal/routes"
	"github.com/perfect8/shopgw/internal/trust"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.ServiceConfig{
		ServiceName: "shop",
		ServiceKeys: map[string]string{
			"image-service": "image-secret",
		},
		PublicRoutes: []routes.Rule{
			{Pattern: "/api/products", Methods: []string{http.MethodGet}, Public: true},
		},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	server, err := New(cfg,
		WithServerMetrics(NewMetricsWithRegisterer("shop", prometheus.NewRegistry())),
	)
	require.NoError(t, err)
	return server
}

func do(t *testing.T, server *Server, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var body *strings.Reader
	if method == http.MethodPost {
		body = strings.NewReader(`{"id": 9, "name": "Skew Chisel", "price": 35}`)
	} else {
		body = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	server.Engine().ServeHTTP(rec, req)
	return rec
}

func asAlice() map[string]string {
	return map[string]string{
		trust.HeaderAuthUser:  "alice@example.com",
		trust.HeaderUserID:    "42",
		trust.HeaderUserRoles: "ADMIN",
	}
}

func asCustomer() map[string]string {
	return map[string]string{
		trust.HeaderAuthUser:  "bob@example.com",
		trust.HeaderUserID:    "7",
		trust.HeaderUserRoles: "CUSTOMER",
	}
}

func TestServer_PublicEndpoints(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	rec := do(t, server, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, server, http.MethodGet, "/api/products", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var products []product
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&products))
	assert.NotEmpty(t, products)
}

func TestServer_AdminGuard(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	// Anonymous write: 403, the same as any caller lacking the role.
	// 401 is reserved for a presented-but-invalid credential.
	rec := do(t, server, http.MethodPost, "/api/products", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Authenticated without the role: 403, identity is fine.
	rec = do(t, server, http.MethodPost, "/api/products", asCustomer())
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "forbidden", body["error"])

	// Admin: allowed.
	rec = do(t, server, http.MethodPost, "/api/products", asAlice())
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestServer_AuthenticatedEndpoints(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	rec := do(t, server, http.MethodGet, "/api/orders/me", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, server, http.MethodGet, "/api/orders/me", asCustomer())
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, server, http.MethodGet, "/api/me", asAlice())
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "alice@example.com", body["name"])
	assert.Equal(t, string(trust.SourceGatewayHeaders), body["source"])
}

func TestServer_InternalEndpointRequiresServiceKey(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	// End users never hold the SERVICE role, admin or not.
	rec := do(t, server, http.MethodGet, "/internal/inventory", asAlice())
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, server, http.MethodGet, "/internal/inventory", map[string]string{
		trust.HeaderAPIKey:      "image-secret",
		trust.HeaderServiceName: "image-service",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, server, http.MethodGet, "/internal/inventory", map[string]string{
		trust.HeaderAPIKey:      "stolen-guess",
		trust.HeaderServiceName: "image-service",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "invalid service key", body["error"])
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	server, err := New(nil)
	assert.Error(t, err)
	assert.Nil(t, server)

	cfg := &config.ServiceConfig{
		ServiceName: "shop",
		ServiceKeys: map[string]string{"": "key"},
	}
	cfg.ApplyDefaults()

	server, err = New(cfg)
	assert.Error(t, err)
	assert.Nil(t, server)
}
