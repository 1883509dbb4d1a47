package browser

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless, "headless should be on by default")
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 1920, opts.ViewportWidth)
	assert.Equal(t, 1080, opts.ViewportHeight)
	assert.Equal(t, DefaultUserAgent, opts.UserAgent)
	assert.Contains(t, opts.UserAgent, "Chrome/123.0.0.0")
}

func TestLaunchArgs(t *testing.T) {
	opts := DefaultOptions()
	opts.ViewportWidth = 1280
	opts.ViewportHeight = 720

	args := strings.Join(opts.launchArgs(), " ")

	assert.Contains(t, args, "--disable-gpu")
	assert.Contains(t, args, "--window-size=1280,720")
	assert.Contains(t, args, "--disable-blink-features=AutomationControlled")
	assert.Contains(t, args, "--user-agent="+DefaultUserAgent)
}

func TestLaunchAfterStop(t *testing.T) {
	l := &Launcher{opts: DefaultOptions(), logger: slog.Default(), stopped: true}

	_, err := l.Launch(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.NoError(t, l.Stop(), "stopping twice is a no-op")
}

func TestLaunchCancelledContext(t *testing.T) {
	l := &Launcher{opts: DefaultOptions(), logger: slog.Default()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Launch(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	s := &Session{logger: slog.Default()}

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.True(t, s.closed)
}
