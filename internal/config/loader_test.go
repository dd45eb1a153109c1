package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfect8/shopgw/internal/routes"
	"github.com/perfect8/shopgw/internal/token"
)

const gatewayYAML = `
server:
  port: 8080
  readTimeout: 5s
token:
  secret: ${GW_TEST_SECRET:-test-secret-test-secret-test-secret!}
  ttl: 24h
backends:
  - name: shop
    url: http://shop:8081
    prefix: /api/products
    timeout: 10s
  - name: blog
    url: http://blog:8082
    prefix: /api/posts
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadGatewayConfig(t *testing.T) {
	cfg, err := LoadGatewayConfig(writeTempConfig(t, gatewayYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout.Duration())
	assert.Equal(t, 24*time.Hour, cfg.Token.TTL.Duration())
	assert.Equal(t, "test-secret-test-secret-test-secret!", cfg.Token.Secret)
	assert.Len(t, cfg.Backends, 2)
	assert.Equal(t, 10*time.Second, cfg.Backends[0].EffectiveTimeout())
	assert.Equal(t, DefaultBackendTimeout, cfg.Backends[1].EffectiveTimeout())

	// No routes configured: the platform default allow-list applies.
	assert.Equal(t, routes.DefaultGatewayRules(), cfg.Routes)
}

func TestLoadGatewayConfig_EnvSubstitution(t *testing.T) {
	t.Setenv("GW_TEST_SECRET", strings.Repeat("e", 40))

	cfg, err := LoadGatewayConfig(writeTempConfig(t, gatewayYAML))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("e", 40), cfg.Token.Secret)
}

func TestLoadGatewayConfig_ShortSecretIsFatal(t *testing.T) {
	t.Setenv("GW_TEST_SECRET", "short")

	cfg, err := LoadGatewayConfig(writeTempConfig(t, gatewayYAML))
	assert.ErrorIs(t, err, token.ErrSecretTooShort)
	assert.Nil(t, cfg)
}

func TestLoadGatewayConfig_Missing(t *testing.T) {
	t.Parallel()

	cfg, err := LoadGatewayConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestGatewayConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := func() *GatewayConfig {
		cfg := &GatewayConfig{
			Token: TokenConfig{Secret: strings.Repeat("s", token.MinSecretLength)},
			Backends: []BackendConfig{
				{Name: "shop", URL: "http://shop:8081", Prefix: "/api/products"},
			},
		}
		cfg.ApplyDefaults()
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		assert.NoError(t, valid().Validate())
	})

	t.Run("no backends", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.Backends = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("duplicate backend name", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.Backends = append(cfg.Backends, cfg.Backends[0])
		assert.Error(t, cfg.Validate())
	})

	t.Run("backend without prefix", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.Backends[0].Prefix = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("backend with bad url", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.Backends[0].URL = "not a url"
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad route rule", func(t *testing.T) {
		t.Parallel()

		cfg := valid()
		cfg.Routes = []routes.Rule{{Pattern: ""}}
		assert.Error(t, cfg.Validate())
	})
}

func TestLoadServiceConfig(t *testing.T) {
	t.Parallel()

	const serviceYAML = `
serviceName: shop
server:
  port: 8081
serviceKeys:
  admin: admin-secret
  blog: blog-secret
publicRoutes:
  - pattern: /api/products
    methods: [GET]
    public: true
`

	cfg, err := LoadServiceConfig(writeTempConfig(t, serviceYAML))
	require.NoError(t, err)

	assert.Equal(t, "shop", cfg.ServiceName)
	assert.Equal(t, "admin-secret", cfg.ServiceKeys["admin"])
	assert.Len(t, cfg.PublicRoutes, 1)
	assert.Equal(t, DefaultShutdownTimeout, cfg.Server.ShutdownTimeout.Duration())
}

func TestServiceConfig_Validate(t *testing.T) {
	t.Parallel()

	t.Run("missing service name", func(t *testing.T) {
		t.Parallel()

		cfg := &ServiceConfig{}
		cfg.ApplyDefaults()
		assert.Error(t, cfg.Validate())
	})

	t.Run("empty key value", func(t *testing.T) {
		t.Parallel()

		cfg := &ServiceConfig{
			ServiceName: "shop",
			ServiceKeys: map[string]string{"blog": ""},
		}
		cfg.ApplyDefaults()
		assert.Error(t, cfg.Validate())
	})
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("SUBST_TEST_VAR", "value")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"set variable", "x: ${SUBST_TEST_VAR}", "x: value"},
		{"unset with default", "x: ${SUBST_TEST_MISSING:-fallback}", "x: fallback"},
		{"unset without default", "x: ${SUBST_TEST_MISSING}", "x: "},
		{"escaped dollar", "x: $$HOME", "x: $HOME"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, substituteEnvVars(tt.input))
		})
	}
}

func TestDurationYAML(t *testing.T) {
	t.Parallel()

	var cfg struct {
		D Duration `yaml:"d"`
	}

	require.NoError(t, parseYAML([]byte("d: 90s"), &cfg))
	assert.Equal(t, 90*time.Second, cfg.D.Duration())

	assert.Error(t, parseYAML([]byte("d: ninety"), &cfg))
}
