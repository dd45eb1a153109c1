// Package config loads and validates the YAML configuration of the edge
// gateway and the downstream services. Configuration is read once at
// process start; the identity-critical parts (signing secret, service
// keys, route rules) are immutable for the process lifetime.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/perfect8/shopgw/internal/middleware"
	"github.com/perfect8/shopgw/internal/observability"
	"github.com/perfect8/shopgw/internal/routes"
	"github.com/perfect8/shopgw/internal/token"
)

// Default server settings.
const (
	DefaultGatewayPort     = 8080
	DefaultServicePort     = 8081
	DefaultMetricsPort     = 9090
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultBackendTimeout  = 15 * time.Second
)

// GatewayConfig is the root configuration of the edge gateway.
type GatewayConfig struct {
	Server        ServerConfig           `yaml:"server"`
	Token         TokenConfig            `yaml:"token"`
	Routes        []routes.Rule          `yaml:"routes"`
	Backends      []BackendConfig        `yaml:"backends"`
	CORS          *middleware.CORSConfig `yaml:"cors"`
	Vault         VaultConfig            `yaml:"vault"`
	Observability ObservabilityConfig    `yaml:"observability"`
}

// ServiceConfig is the root configuration of a downstream service.
type ServiceConfig struct {
	// ServiceName identifies this service in logs and trust contexts.
	ServiceName string `yaml:"serviceName"`

	Server ServerConfig `yaml:"server"`

	// ServiceKeys maps caller service name to the shared key it must
	// present. Values may be plaintext or "bcrypt:<hash>".
	ServiceKeys map[string]string `yaml:"serviceKeys"`

	// PublicRoutes are evaluated after the common bypass list (health,
	// actuator, api docs) when deciding whether trust resolution runs.
	PublicRoutes []routes.Rule `yaml:"publicRoutes"`

	Vault         VaultConfig         `yaml:"vault"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// Address returns the host:port listen address.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TokenConfig holds token codec settings.
type TokenConfig struct {
	// Secret is the HMAC signing secret. May also be supplied via Vault.
	Secret string `yaml:"secret"`

	Issuer    string   `yaml:"issuer"`
	TTL       Duration `yaml:"ttl"`
	ClockSkew Duration `yaml:"clockSkew"`
}

// CodecConfig converts the YAML shape into the codec's configuration.
func (t TokenConfig) CodecConfig() *token.Config {
	return &token.Config{
		Secret:    t.Secret,
		Issuer:    t.Issuer,
		TTL:       t.TTL.Duration(),
		ClockSkew: t.ClockSkew.Duration(),
	}
}

// BackendConfig describes one downstream service the gateway proxies to.
type BackendConfig struct {
	// Name identifies the backend in logs and metrics.
	Name string `yaml:"name"`

	// URL is the backend base URL.
	URL string `yaml:"url"`

	// Prefix is the request path prefix routed to this backend.
	Prefix string `yaml:"prefix"`

	// Timeout bounds each proxied request. Defaults to
	// DefaultBackendTimeout.
	Timeout Duration `yaml:"timeout"`

	// CircuitBreaker protects the backend from cascading failures.
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// EffectiveTimeout returns the configured timeout or the default.
func (b BackendConfig) EffectiveTimeout() time.Duration {
	if b.Timeout > 0 {
		return b.Timeout.Duration()
	}
	return DefaultBackendTimeout
}

// CircuitBreakerConfig holds circuit breaker settings for a backend.
type CircuitBreakerConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Threshold int      `yaml:"threshold"`
	Timeout   Duration `yaml:"timeout"`
}

// VaultConfig holds the optional Vault secret source settings.
type VaultConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Token   string `yaml:"token"`

	// Mount and Path locate the KV v2 secret holding the signing secret
	// and/or service keys.
	Mount string `yaml:"mount"`
	Path  string `yaml:"path"`
}

// ObservabilityConfig groups logging, metrics and tracing settings.
type ObservabilityConfig struct {
	Logging observability.LogConfig    `yaml:"logging"`
	Metrics MetricsConfig              `yaml:"metrics"`
	Tracing observability.TracerConfig `yaml:"tracing"`
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// applyServerDefaults fills zero values with defaults.
func applyServerDefaults(s *ServerConfig, defaultPort int) {
	if s.Port == 0 {
		s.Port = defaultPort
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = Duration(DefaultReadTimeout)
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = Duration(DefaultWriteTimeout)
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
}

// ApplyDefaults fills unset gateway fields, including the platform's
// default route allow-list when no routes are configured.
func (c *GatewayConfig) ApplyDefaults() {
	applyServerDefaults(&c.Server, DefaultGatewayPort)
	if len(c.Routes) == 0 {
		c.Routes = routes.DefaultGatewayRules()
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = "/metrics"
	}
	if c.Observability.Metrics.Port == 0 {
		c.Observability.Metrics.Port = DefaultMetricsPort
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging = observability.DefaultLogConfig()
	}
}

// ApplyDefaults fills unset service fields.
func (c *ServiceConfig) ApplyDefaults() {
	applyServerDefaults(&c.Server, DefaultServicePort)
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = "/metrics"
	}
	if c.Observability.Metrics.Port == 0 {
		c.Observability.Metrics.Port = DefaultMetricsPort
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging = observability.DefaultLogConfig()
	}
}

// Validate checks the gateway configuration. A missing or short signing
// secret is reported via token.ErrSecretTooShort so the caller can treat
// it as startup-fatal.
func (c *GatewayConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}

	if len(c.Token.Secret) < token.MinSecretLength {
		return fmt.Errorf("token: %w", token.ErrSecretTooShort)
	}

	if _, err := routes.NewClassifier(c.Routes); err != nil {
		return fmt.Errorf("routes: %w", err)
	}

	if len(c.Backends) == 0 {
		return fmt.Errorf("backends: at least one backend is required")
	}

	seen := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("backends[%d]: name is required", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("backends[%d]: duplicate name %q", i, b.Name)
		}
		seen[b.Name] = true

		if b.Prefix == "" {
			return fmt.Errorf("backend %s: prefix is required", b.Name)
		}

		u, err := url.Parse(b.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("backend %s: invalid url %q", b.Name, b.URL)
		}
	}

	return nil
}

// Validate checks the service configuration.
func (c *ServiceConfig) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("serviceName is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}

	for name, key := range c.ServiceKeys {
		if name == "" {
			return fmt.Errorf("serviceKeys: empty service name")
		}
		if key == "" {
			return fmt.Errorf("serviceKeys: empty key for service %q", name)
		}
	}

	if _, err := routes.NewClassifier(c.PublicRoutes); err != nil {
		return fmt.Errorf("publicRoutes: %w", err)
	}

	return nil
}
