// Package authwindow drives the user-visible part of an OAuth attempt: it
// opens the consent window, polls its address until the provider redirects
// back to the application, and closes it again.
//
// The poll loop is modelled as a state machine:
//
//	IDLE → OPENING → AWAITING_REDIRECT → {CODE_RECEIVED | ERROR_RECEIVED | USER_CANCELLED | TIMED_OUT} → CLOSED
//
// Cross-origin read failures while the provider's pages are shown are an
// expected transition, not an error.
package authwindow

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/infrastructure/telemetry"
)

// Phase is a state of the window state machine
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseOpening          Phase = "opening"
	PhaseAwaitingRedirect Phase = "awaiting_redirect"
	PhaseCodeReceived     Phase = "code_received"
	PhaseErrorReceived    Phase = "error_received"
	PhaseUserCancelled    Phase = "user_cancelled"
	PhaseTimedOut         Phase = "timed_out"
	PhaseClosed           Phase = "closed"
)

// IsTerminal reports whether the attempt has finished
func (p Phase) IsTerminal() bool {
	switch p {
	case PhaseCodeReceived, PhaseErrorReceived, PhaseUserCancelled, PhaseTimedOut:
		return true
	}
	return false
}

// ReasonSuperseded is the cancellation message of an attempt replaced by a newer one
const ReasonSuperseded = "superseded"

// closeTimeout bounds closing a window after the attempt ended
const closeTimeout = 5 * time.Second

var errSuperseded = errors.New("authwindow: " + ReasonSuperseded)

// Config holds consent window settings
type Config struct {
	// RedirectURL is the application page the provider redirects to
	RedirectURL  string
	PollInterval time.Duration
	Timeout      time.Duration
	Width        int
	Height       int
	ScreenWidth  int
	ScreenHeight int
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
	if c.Width <= 0 {
		c.Width = 600
	}
	if c.Height <= 0 {
		c.Height = 700
	}
	if c.ScreenWidth <= 0 {
		c.ScreenWidth = 1920
	}
	if c.ScreenHeight <= 0 {
		c.ScreenHeight = 1080
	}
}

// Attempt is one consent flow to drive
type Attempt struct {
	Marketplace integration.Marketplace
	AuthURL     string
	// State is the value issued with AuthURL; the redirect must carry it back
	State string
}

// Outcome is the single structured result of an attempt
type Outcome struct {
	// Phase is the terminal phase the attempt reached
	Phase Phase
	Code  string
	State string
	// Err is a *integration.ConnectError for every phase except CodeReceived
	Err error
}

// Option configures a Controller
type Option func(*Controller)

// WithMetrics records window metrics
func WithMetrics(m *telemetry.ConnectorMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the logger used when the context carries none
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithTransitionHook observes every phase change
func WithTransitionHook(fn func(mp integration.Marketplace, from, to Phase)) Option {
	return func(c *Controller) { c.onTransition = fn }
}

// Controller runs at most one attempt per marketplace. Starting a new attempt
// cancels the running one (it ends UserCancelled, "superseded") and waits for
// its window to close before opening the next.
type Controller struct {
	opener       Opener
	cfg          Config
	redirect     *url.URL
	metrics      *telemetry.ConnectorMetrics
	logger       *zap.Logger
	onTransition func(mp integration.Marketplace, from, to Phase)

	mu       sync.Mutex
	inFlight map[integration.Marketplace]*running
}

type running struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// NewController creates a window controller
func NewController(opener Opener, cfg Config, opts ...Option) (*Controller, error) {
	cfg.applyDefaults()
	redirect, err := url.Parse(cfg.RedirectURL)
	if err != nil || redirect.Scheme == "" || redirect.Host == "" {
		return nil, integration.NewConnectError(integration.KindInvalidRequest, "", "redirect url must be absolute", err)
	}
	c := &Controller{
		opener:   opener,
		cfg:      cfg,
		redirect: redirect,
		logger:   zap.NewNop(),
		inFlight: make(map[integration.Marketplace]*running),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// InFlight reports whether an attempt is running for the marketplace
func (c *Controller) InFlight(mp integration.Marketplace) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[mp]
	return ok
}

// Run drives one attempt to its terminal phase and always closes the window.
// It blocks until the redirect arrives, the window is closed, the ceiling
// elapses, ctx is done, or a newer attempt for the marketplace replaces it.
func (c *Controller) Run(ctx context.Context, a Attempt) Outcome {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	self := &running{cancel: cancel, done: make(chan struct{})}
	defer func() {
		c.mu.Lock()
		if c.inFlight[a.Marketplace] == self {
			delete(c.inFlight, a.Marketplace)
		}
		c.mu.Unlock()
		close(self.done)
	}()
	c.replace(ctx, a.Marketplace, self)

	log := c.log(ctx).With(zap.String("marketplace", a.Marketplace.String()))
	started := time.Now()
	phase := PhaseIdle
	move := func(to Phase) {
		if c.onTransition != nil {
			c.onTransition(a.Marketplace, phase, to)
		}
		log.Debug("consent window transition", zap.String("from", string(phase)), zap.String("to", string(to)))
		phase = to
	}

	move(PhaseOpening)
	if ctx.Err() != nil {
		out := c.cancelled(ctx, a.Marketplace)
		move(out.Phase)
		move(PhaseClosed)
		return out
	}
	geometry := Centered(c.cfg.ScreenWidth, c.cfg.ScreenHeight, c.cfg.Width, c.cfg.Height)
	window, err := c.opener.Open(ctx, a.AuthURL, geometry)
	if err != nil {
		out := Outcome{
			Phase: PhaseErrorReceived,
			Err:   integration.NewConnectError(integration.KindPopupBlocked, a.Marketplace, "popup blocked", err),
		}
		log.Warn("consent window could not be opened", zap.Error(err))
		move(out.Phase)
		move(PhaseClosed)
		c.metrics.WindowClosed(ctx, a.Marketplace.String(), string(out.Phase), time.Since(started))
		return out
	}
	c.metrics.WindowOpened(ctx, a.Marketplace.String())

	move(PhaseAwaitingRedirect)
	out := c.await(ctx, a, window, log)
	move(out.Phase)

	closeCtx, cancelClose := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	if err := window.Close(closeCtx); err != nil && !errors.Is(err, ErrWindowClosed) {
		log.Warn("failed to close consent window", zap.Error(err))
	}
	cancelClose()
	move(PhaseClosed)

	elapsed := time.Since(started)
	c.metrics.WindowClosed(ctx, a.Marketplace.String(), string(out.Phase), elapsed)
	if out.Phase == PhaseCodeReceived || out.Phase == PhaseUserCancelled {
		log.Info("consent window finished", zap.String("phase", string(out.Phase)), zap.Duration("duration", elapsed))
	} else {
		log.Warn("consent window failed", zap.String("phase", string(out.Phase)), zap.Duration("duration", elapsed), zap.Error(out.Err))
	}
	return out
}

// replace cancels a running attempt for the marketplace and waits for it to unwind
func (c *Controller) replace(ctx context.Context, mp integration.Marketplace, self *running) {
	for {
		c.mu.Lock()
		prior, ok := c.inFlight[mp]
		if !ok {
			c.inFlight[mp] = self
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		prior.cancel(errSuperseded)
		select {
		case <-prior.done:
		case <-ctx.Done():
			c.mu.Lock()
			if _, taken := c.inFlight[mp]; !taken {
				c.inFlight[mp] = self
			}
			c.mu.Unlock()
			return
		}
	}
}

func (c *Controller) await(ctx context.Context, a Attempt, window Window, log *zap.Logger) Outcome {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	ceiling := time.NewTimer(c.cfg.Timeout)
	defer ceiling.Stop()

	for {
		select {
		case <-ctx.Done():
			return c.cancelled(ctx, a.Marketplace)
		case <-ceiling.C:
			return Outcome{
				Phase: PhaseTimedOut,
				Err:   integration.NewConnectError(integration.KindTimedOut, a.Marketplace, "no redirect within "+c.cfg.Timeout.String(), nil),
			}
		case <-ticker.C:
		}

		loc, err := window.Location(ctx)
		switch {
		case errors.Is(err, ErrWindowClosed):
			return Outcome{
				Phase: PhaseUserCancelled,
				Err:   integration.NewConnectError(integration.KindUserCancelled, a.Marketplace, "window closed", nil),
			}
		case err != nil:
			// the provider's pages are not readable from here
			if !errors.Is(err, ErrCrossOrigin) {
				log.Debug("consent window address unreadable", zap.Error(err))
			}
			continue
		}
		if !c.isRedirect(loc) {
			continue
		}
		return c.inspect(a, loc.Query())
	}
}

// inspect classifies the redirect query
func (c *Controller) inspect(a Attempt, q url.Values) Outcome {
	if code := q.Get("error"); code != "" {
		msg := q.Get("error_description")
		if code == "access_denied" {
			return Outcome{
				Phase: PhaseErrorReceived,
				Err:   integration.NewConnectError(integration.KindUserCancelled, a.Marketplace, "consent declined", nil),
			}
		}
		return Outcome{Phase: PhaseErrorReceived, Err: integration.Rejected(a.Marketplace, code, msg)}
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" {
		return Outcome{Phase: PhaseErrorReceived, Err: integration.Rejected(a.Marketplace, "invalid_request", "redirect carried neither code nor error")}
	}
	if state != a.State {
		return Outcome{Phase: PhaseErrorReceived, Err: integration.Rejected(a.Marketplace, "state_mismatch", "state mismatch")}
	}
	return Outcome{Phase: PhaseCodeReceived, Code: code, State: state}
}

// isRedirect reports whether the address is the application's redirect page
func (c *Controller) isRedirect(loc *url.URL) bool {
	if loc == nil || !strings.EqualFold(loc.Scheme, c.redirect.Scheme) || !strings.EqualFold(loc.Host, c.redirect.Host) {
		return false
	}
	want := strings.TrimRight(c.redirect.Path, "/")
	return want == "" || strings.TrimRight(loc.Path, "/") == want
}

func (c *Controller) cancelled(ctx context.Context, mp integration.Marketplace) Outcome {
	msg := "attempt cancelled"
	if errors.Is(context.Cause(ctx), errSuperseded) {
		msg = ReasonSuperseded
	}
	return Outcome{
		Phase: PhaseUserCancelled,
		Err:   integration.NewConnectError(integration.KindUserCancelled, mp, msg, nil),
	}
}

func (c *Controller) log(ctx context.Context) *zap.Logger {
	if l := logger.FromContext(ctx); l.Core().Enabled(zap.FatalLevel) {
		return logger.L(ctx)
	}
	return logger.WithTraceContext(ctx, c.logger)
}
