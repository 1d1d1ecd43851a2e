package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/connector/internal/application/authwindow"
	"github.com/erp/connector/internal/infrastructure/config"
)

func TestAllocatorOptions(t *testing.T) {
	g := authwindow.Geometry{Left: 660, Top: 190, Width: 600, Height: 700}

	base := allocatorOptions(config.BrowserConfig{}, g)
	full := allocatorOptions(config.BrowserConfig{
		NoSandbox: true,
		ExecPath:  "/usr/bin/chromium",
		UserDir:   "/tmp/connector-profile",
	}, g)

	assert.NotEmpty(t, base)
	assert.Len(t, full, len(base)+3)
}

func TestChromeOpener_UnreachableRemoteIsPopupBlocked(t *testing.T) {
	opener := NewChromeOpener(config.BrowserConfig{RemoteURL: "ws://127.0.0.1:1/devtools/browser/none"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	w, err := opener.Open(ctx, "https://provider.example.com/authorize", authwindow.Centered(1920, 1080, 600, 700))

	require.Error(t, err)
	assert.Nil(t, w)
	assert.ErrorIs(t, err, authwindow.ErrPopupBlocked)
}

func TestChromeWindow_ClosedWindow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	released := 0
	w := &chromeWindow{
		ctx:     ctx,
		closed:  make(chan struct{}),
		release: func() { released++; cancel() },
	}
	w.markClosed()

	_, err := w.Location(context.Background())
	assert.ErrorIs(t, err, authwindow.ErrWindowClosed)

	require.NoError(t, w.Close(context.Background()))
	require.NoError(t, w.Close(context.Background()))
	assert.Equal(t, 1, released)
}
