// Package browser opens consent windows in Chrome through the DevTools protocol.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/erp/connector/internal/application/authwindow"
	"github.com/erp/connector/internal/infrastructure/config"
)

const (
	defaultNavigateTimeout = 30 * time.Second
	locationTimeout        = 5 * time.Second
)

// ChromeOpener implements authwindow.Opener. Every window runs in its own
// browser (or its own connection to a remote one) so that its geometry is
// independent of other attempts.
type ChromeOpener struct {
	cfg             config.BrowserConfig
	logger          *zap.Logger
	navigateTimeout time.Duration
}

// NewChromeOpener creates a Chrome window opener
func NewChromeOpener(cfg config.BrowserConfig, logger *zap.Logger) *ChromeOpener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeOpener{cfg: cfg, logger: logger, navigateTimeout: defaultNavigateTimeout}
}

var _ authwindow.Opener = (*ChromeOpener)(nil)

// Open starts a window at the given geometry and navigates it to address.
// Any failure to bring the window up is reported as authwindow.ErrPopupBlocked.
func (o *ChromeOpener) Open(ctx context.Context, address string, g authwindow.Geometry) (authwindow.Window, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if o.cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), o.cfg.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), allocatorOptions(o.cfg, g)...)
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			o.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	w := &chromeWindow{
		ctx:    tabCtx,
		closed: make(chan struct{}),
		release: func() {
			tabCancel()
			allocCancel()
		},
	}

	// the first Run starts the browser and creates the tab
	if err := o.start(ctx, w); err != nil {
		w.release()
		o.logger.Warn("consent window could not be opened", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", authwindow.ErrPopupBlocked, err)
	}

	id := chromedp.FromContext(tabCtx).Target.TargetID
	chromedp.ListenBrowser(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*target.EventTargetDestroyed); ok && e.TargetID == id {
			w.markClosed()
		}
	})

	if o.cfg.RemoteURL != "" {
		if err := chromedp.Run(tabCtx, placeWindow(g)); err != nil {
			o.logger.Debug("failed to place remote window", zap.Error(err))
		}
	}

	navCtx, cancel := context.WithTimeout(tabCtx, o.navigateTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(address)); err != nil {
		if w.isClosed() || tabCtx.Err() != nil {
			w.release()
			return nil, authwindow.ErrPopupBlocked
		}
		// a slow provider page is still a usable window
		o.logger.Debug("consent page still loading", zap.Error(err))
	}
	return w, nil
}

func (o *ChromeOpener) start(ctx context.Context, w *chromeWindow) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(w.ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// allocatorOptions are the launch flags of a local browser showing one window
func allocatorOptions(cfg config.BrowserConfig, g authwindow.Geometry) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.DisableGPU),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.WindowSize(g.Width, g.Height),
		chromedp.Flag("window-position", fmt.Sprintf("%d,%d", g.Left, g.Top)),
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDir))
	}
	return opts
}

func placeWindow(g authwindow.Geometry) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		windowID, _, err := cdpbrowser.GetWindowForTarget().Do(ctx)
		if err != nil {
			return err
		}
		return cdpbrowser.SetWindowBounds(windowID, &cdpbrowser.Bounds{
			Left:        int64(g.Left),
			Top:         int64(g.Top),
			Width:       int64(g.Width),
			Height:      int64(g.Height),
			WindowState: cdpbrowser.WindowStateNormal,
		}).Do(ctx)
	})
}

// chromeWindow is one consent tab. DevTools can read any origin, so
// Location never reports authwindow.ErrCrossOrigin.
type chromeWindow struct {
	ctx     context.Context
	release func()

	closeOnce  sync.Once
	markedOnce sync.Once
	closed     chan struct{}
}

func (w *chromeWindow) Location(ctx context.Context) (*url.URL, error) {
	if w.isClosed() || w.ctx.Err() != nil {
		return nil, authwindow.ErrWindowClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(w.ctx, locationTimeout)
	defer cancel()
	var loc string
	if err := chromedp.Run(runCtx, chromedp.Location(&loc)); err != nil {
		if w.isClosed() || w.ctx.Err() != nil {
			return nil, authwindow.ErrWindowClosed
		}
		return nil, fmt.Errorf("read window location: %w", err)
	}
	return url.Parse(loc)
}

func (w *chromeWindow) Close(context.Context) error {
	var err error
	w.closeOnce.Do(func() {
		if !w.isClosed() && w.ctx.Err() == nil {
			err = chromedp.Cancel(w.ctx)
		}
		w.release()
		w.markClosed()
	})
	return err
}

func (w *chromeWindow) markClosed() {
	w.markedOnce.Do(func() { close(w.closed) })
}

func (w *chromeWindow) isClosed() bool {
	select {
	case <-w.closed:
		return true
	default:
		return false
	}
}
