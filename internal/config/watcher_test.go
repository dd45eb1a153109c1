package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfect8/shopgw/internal/observability"
)

func TestWatcher_NotifiesOnChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o600))

	changed := make(chan string, 1)
	w, err := NewWatcher(path, func(p string) {
		select {
		case changed <- p:
		default:
		}
	},
		WithWatcherLogger(observability.NopLogger()),
		WithDebounceDelay(10*time.Millisecond),
	)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600))

	select {
	case p := <-changed:
		assert.Equal(t, path, p)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}

func TestWatcher_StartStop(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: {}\n"), 0o600))

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	// Second start is a no-op.
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, w.Stop())
	// Second stop is a no-op.
	require.NoError(t, w.Stop())
}

func TestWatcher_StopAfterFailedStart(t *testing.T) {
	t.Parallel()

	// A path whose directory does not exist makes Start fail.
	path := filepath.Join(t.TempDir(), "missing", "gateway.yaml")

	w, err := NewWatcher(path, nil, WithWatcherLogger(observability.NopLogger()))
	require.NoError(t, err)
	require.Error(t, w.Start(context.Background()))

	// Stop must return promptly instead of waiting on a watch goroutine
	// that never started.
	done := make(chan error, 1)
	go func() { done <- w.Stop() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after a failed Start")
	}
}
