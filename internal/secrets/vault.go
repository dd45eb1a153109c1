// Package secrets resolves the signing secret and the service-key
// registry from HashiCorp Vault when the deployment keeps them out of the
// configuration file. Secrets are read once at startup; there is no
// runtime rotation.
package secrets

import (
	"context"
	"errors"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/perfect8/shopgw/internal/config"
	"github.com/perfect8/shopgw/internal/observability"
)

// Keys inside the platform's KV v2 secret.
const (
	// TokenSecretKey holds the HMAC signing secret.
	TokenSecretKey = "tokenSecret"

	// ServiceKeysKey holds the service-name → shared-key map.
	ServiceKeysKey = "serviceKeys"
)

// ErrSecretNotFound is returned when the configured path has no secret or
// the requested key is absent.
var ErrSecretNotFound = errors.New("secret not found")

// Source reads platform secrets.
type Source interface {
	// TokenSecret returns the token signing secret.
	TokenSecret(ctx context.Context) (string, error)

	// ServiceKeys returns the service-key registry entries.
	ServiceKeys(ctx context.Context) (map[string]string, error)
}

// vaultSource implements Source against a Vault KV v2 mount.
type vaultSource struct {
	client *vaultapi.Client
	mount  string
	path   string
	logger observability.Logger
}

var _ Source = (*vaultSource)(nil)

// Option is a functional option for the source.
type Option func(*vaultSource)

// WithSourceLogger sets the logger for the source.
func WithSourceLogger(logger observability.Logger) Option {
	return func(s *vaultSource) {
		s.logger = logger
	}
}

// NewVaultSource creates a Source from the Vault configuration.
func NewVaultSource(cfg config.VaultConfig, opts ...Option) (Source, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("vault: address is required")
	}
	if cfg.Mount == "" || cfg.Path == "" {
		return nil, fmt.Errorf("vault: mount and path are required")
	}

	apiConfig := vaultapi.DefaultConfig()
	apiConfig.Address = cfg.Address

	client, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to create client: %w", err)
	}

	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	s := &vaultSource{
		client: client,
		mount:  cfg.Mount,
		path:   cfg.Path,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// TokenSecret returns the token signing secret.
func (s *vaultSource) TokenSecret(ctx context.Context) (string, error) {
	data, err := s.read(ctx)
	if err != nil {
		return "", err
	}

	secret, ok := data[TokenSecretKey].(string)
	if !ok || secret == "" {
		return "", fmt.Errorf("%w: key %q", ErrSecretNotFound, TokenSecretKey)
	}

	return secret, nil
}

// ServiceKeys returns the service-key registry entries.
func (s *vaultSource) ServiceKeys(ctx context.Context) (map[string]string, error) {
	data, err := s.read(ctx)
	if err != nil {
		return nil, err
	}

	raw, ok := data[ServiceKeysKey].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: key %q", ErrSecretNotFound, ServiceKeysKey)
	}

	keys := make(map[string]string, len(raw))
	for name, value := range raw {
		key, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("vault: service key %q is not a string", name)
		}
		keys[name] = key
	}

	return keys, nil
}

// read fetches the KV v2 secret and unwraps the data envelope.
func (s *vaultSource) read(ctx context.Context) (map[string]interface{}, error) {
	fullPath := fmt.Sprintf("%s/data/%s", s.mount, s.path)

	secret, err := s.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read %s: %w", fullPath, err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, fullPath)
	}

	// KV v2 wraps the payload in a "data" key; deleted secrets have
	// data: null.
	dataValue, hasData := secret.Data["data"]
	if hasData && dataValue == nil {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, fullPath)
	}

	data, ok := dataValue.(map[string]interface{})
	if !ok {
		// KV v1 serves the payload unwrapped.
		data = secret.Data
	}

	s.logger.Debug("secret read", observability.String("path", fullPath))

	return data, nil
}
