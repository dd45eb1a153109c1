package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{"default config", DefaultLogConfig(), false},
		{"console format", LogConfig{Level: "debug", Format: "console", Output: "stderr"}, false},
		{"invalid level", LogConfig{Level: "loudest"}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestLogger_WithContext(t *testing.T) {
	t.Parallel()

	logger := NopLogger()

	ctx := ContextWithRequestID(context.Background(), "req-123")
	ctx = ContextWithTraceID(ctx, "trace-456")

	// Fields from the context attach without panicking; the nop sink
	// swallows output.
	logger.WithContext(ctx).Info("message")

	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestGlobalLogger(t *testing.T) {
	logger := NopLogger()
	SetGlobalLogger(logger)

	assert.Equal(t, logger, L())
}
