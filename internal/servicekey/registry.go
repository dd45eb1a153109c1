// Package servicekey validates the shared secrets that internal services
// present to each other. The registry maps service name to expected key,
// is loaded once from configuration, and is immutable for the process
// lifetime.
package servicekey

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/perfect8/shopgw/internal/observability"
)

// Sentinel errors. Callers never learn whether the service name was
// unknown or the key mismatched; both are ErrInvalidServiceKey.
var (
	// ErrInvalidServiceKey is returned when the presented key does not
	// match the registry entry for the declared caller.
	ErrInvalidServiceKey = errors.New("invalid service key")

	// ErrEmptyServiceKey is returned when no key was presented.
	ErrEmptyServiceKey = errors.New("service key is empty")
)

// bcryptPrefix marks registry values stored as bcrypt hashes instead of
// plaintext, e.g. "bcrypt:$2a$10$...".
const bcryptPrefix = "bcrypt:"

// Registry validates service-to-service credentials.
type Registry interface {
	// Validate checks the key presented by the named service. The match
	// is exact; there is no partial or prefix matching.
	Validate(serviceName, key string) error

	// Services returns the registered service names, for startup logging.
	Services() []string
}

// storedKey is one registry entry.
type storedKey struct {
	hashed bool
	value  string
}

// registry implements Registry.
type registry struct {
	keys   map[string]storedKey
	logger observability.Logger
}

var _ Registry = (*registry)(nil)

// Option is a functional option for the registry.
type Option func(*registry)

// WithRegistryLogger sets the logger for the registry.
func WithRegistryLogger(logger observability.Logger) Option {
	return func(r *registry) {
		r.logger = logger
	}
}

// NewRegistry builds a registry from a service-name → key map. Service
// names are case-insensitive. Empty names or keys are configuration
// errors.
func NewRegistry(keys map[string]string, opts ...Option) (Registry, error) {
	r := &registry{
		keys:   make(map[string]storedKey, len(keys)),
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	for name, key := range keys {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return nil, fmt.Errorf("service key registry: empty service name")
		}
		if key == "" {
			return nil, fmt.Errorf("service key registry: empty key for service %q", name)
		}

		stored := storedKey{value: key}
		if strings.HasPrefix(key, bcryptPrefix) {
			stored.hashed = true
			stored.value = strings.TrimPrefix(key, bcryptPrefix)
		}
		r.keys[name] = stored
	}

	return r, nil
}

// Validate checks a presented key against the registry.
func (r *registry) Validate(serviceName, key string) error {
	if key == "" {
		return ErrEmptyServiceKey
	}

	stored, ok := r.keys[strings.ToLower(strings.TrimSpace(serviceName))]
	if !ok {
		r.logger.Warn("service key presented for unknown service",
			observability.String("service", serviceName),
		)
		return ErrInvalidServiceKey
	}

	if stored.hashed {
		if err := bcrypt.CompareHashAndPassword([]byte(stored.value), []byte(key)); err != nil {
			return ErrInvalidServiceKey
		}
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(stored.value), []byte(key)) != 1 {
		return ErrInvalidServiceKey
	}

	return nil
}

// Services returns the registered service names.
func (r *registry) Services() []string {
	names := make([]string, 0, len(r.keys))
	for name := range r.keys {
		names = append(names, name)
	}
	return names
}

// HashKey bcrypt-hashes a key for storage in configuration, returning the
// value in the "bcrypt:..." form the registry accepts.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash service key: %w", err)
	}
	return bcryptPrefix + string(hash), nil
}
