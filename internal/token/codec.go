// Package token implements the platform's signed credential: an HS256
// JWT carrying the user's identity claims. One codec is shared by
// everything that issues or verifies tokens; services differ only in
// configuration, never in logic.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/perfect8/shopgw/internal/observability"
)

const (
	// MinSecretLength is the minimum signing secret length in bytes
	// (256 bits, the HMAC-SHA256 key size).
	MinSecretLength = 32

	// DefaultTTL is the token lifetime used when none is configured.
	DefaultTTL = 24 * time.Hour

	// DefaultIssuer is the iss claim written into issued tokens.
	DefaultIssuer = "Perfect8Shop"
)

// Codec issues and verifies signed tokens.
type Codec interface {
	// Issue creates a signed token for the given identity. A zero ttl
	// uses the configured default.
	Issue(subject string, userID int64, roles []string, ttl time.Duration) (string, error)

	// Verify parses a token, checks its signature and expiry, and
	// returns the claims. Claims from a token that fails verification
	// are never returned.
	Verify(tokenString string) (*Claims, error)
}

// Config holds codec configuration.
type Config struct {
	// Secret is the shared signing secret. Must be at least
	// MinSecretLength bytes.
	Secret string `yaml:"secret"`

	// Issuer overrides the iss claim. Defaults to DefaultIssuer.
	Issuer string `yaml:"issuer"`

	// TTL is the default token lifetime. Defaults to DefaultTTL.
	TTL time.Duration `yaml:"ttl"`

	// ClockSkew is the tolerance applied to expiry checks.
	ClockSkew time.Duration `yaml:"clockSkew"`
}

// codec implements Codec.
type codec struct {
	config *Config
	key    []byte
	logger observability.Logger
	now    func() time.Time
}

var _ Codec = (*codec)(nil)

// Option is a functional option for the codec.
type Option func(*codec)

// WithCodecLogger sets the logger for the codec.
func WithCodecLogger(logger observability.Logger) Option {
	return func(c *codec) {
		c.logger = logger
	}
}

// NewCodec creates a codec. A secret shorter than MinSecretLength returns
// ErrSecretTooShort; that is a startup-fatal configuration error, not a
// per-request condition.
func NewCodec(config *Config, opts ...Option) (Codec, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if len(config.Secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: got %d bytes, need %d",
			ErrSecretTooShort, len(config.Secret), MinSecretLength)
	}

	c := &codec{
		config: config,
		key:    []byte(config.Secret),
		logger: observability.NopLogger(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Issue creates a signed token.
func (c *codec) Issue(subject string, userID int64, roles []string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = c.effectiveTTL()
	}

	now := c.now()
	claims := &Claims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.effectiveIssuer(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	c.logger.Debug("token issued",
		observability.String("subject", subject),
		observability.Duration("ttl", ttl),
	)

	return signed, nil
}

// Verify parses and verifies a token.
func (c *codec) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrEmptyToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, c.keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.config.ClockSkew),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, verifyError(err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidSignature
	}

	return claims, nil
}

// keyfunc pins the signing method before releasing the key. A token
// declaring "none" or an asymmetric algorithm never reaches signature
// comparison against the HMAC secret.
func (c *codec) keyfunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
	}
	return c.key, nil
}

// verifyError maps library parse errors onto the codec's sentinel
// taxonomy. Algorithm mismatches land on ErrInvalidSignature, either as
// a signature error from the valid-methods check or as an unverifiable
// token when the keyfunc refuses the method.
func verifyError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: missing exp claim", ErrTokenMalformed)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}

func (c *codec) effectiveTTL() time.Duration {
	if c.config.TTL > 0 {
		return c.config.TTL
	}
	return DefaultTTL
}

func (c *codec) effectiveIssuer() string {
	if c.config.Issuer != "" {
		return c.config.Issuer
	}
	return DefaultIssuer
}
