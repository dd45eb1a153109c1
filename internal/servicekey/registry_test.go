package servicekey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	t.Run("empty service name rejected", func(t *testing.T) {
		t.Parallel()

		r, err := NewRegistry(map[string]string{"": "some-key"})
		assert.Error(t, err)
		assert.Nil(t, r)
	})

	t.Run("empty key rejected", func(t *testing.T) {
		t.Parallel()

		r, err := NewRegistry(map[string]string{"shop": ""})
		assert.Error(t, err)
		assert.Nil(t, r)
	})

	t.Run("empty registry is valid", func(t *testing.T) {
		t.Parallel()

		r, err := NewRegistry(nil)
		require.NoError(t, err)
		assert.Empty(t, r.Services())
	})
}

func TestRegistry_Validate(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(map[string]string{
		"shop":  "shop-secret",
		"blog":  "blog-secret",
		"Email": "email-secret",
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		service string
		key     string
		wantErr error
	}{
		{"matching key", "shop", "shop-secret", nil},
		{"mismatched key", "shop", "wrong-secret", ErrInvalidServiceKey},
		{"key for another service", "shop", "blog-secret", ErrInvalidServiceKey},
		{"unknown service", "image", "shop-secret", ErrInvalidServiceKey},
		{"empty service name", "", "shop-secret", ErrInvalidServiceKey},
		{"empty key", "shop", "", ErrEmptyServiceKey},
		{"prefix of key is not enough", "shop", "shop-secr", ErrInvalidServiceKey},
		{"service name is case insensitive", "SHOP", "shop-secret", nil},
		{"mixed case registration", "email", "email-secret", nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := r.Validate(tt.service, tt.key)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistry_ValidateHashedKey(t *testing.T) {
	t.Parallel()

	hashed, err := HashKey("admin-secret")
	require.NoError(t, err)

	r, err := NewRegistry(map[string]string{"admin": hashed})
	require.NoError(t, err)

	assert.NoError(t, r.Validate("admin", "admin-secret"))
	assert.ErrorIs(t, r.Validate("admin", "wrong-secret"), ErrInvalidServiceKey)

	// The stored hash itself must not validate as the key.
	assert.ErrorIs(t, r.Validate("admin", hashed), ErrInvalidServiceKey)
}

func TestRegistry_Services(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(map[string]string{"shop": "a", "blog": "b"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"shop", "blog"}, r.Services())
}
