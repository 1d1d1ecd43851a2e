// Package connection is the single entry point of the initiating side. It
// composes the connector backend with the consent window controller.
package connection

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/erp/connector/internal/application/authwindow"
	"github.com/erp/connector/internal/application/connector"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/infrastructure/telemetry"
)

const defaultCallTimeout = 30 * time.Second

// WindowRunner drives one consent window attempt to its terminal phase
type WindowRunner interface {
	Run(ctx context.Context, a authwindow.Attempt) authwindow.Outcome
}

// Option configures a Facade
type Option func(*Facade)

// WithCallTimeout bounds every individual backend call
func WithCallTimeout(d time.Duration) Option {
	return func(f *Facade) {
		if d > 0 {
			f.callTimeout = d
		}
	}
}

// WithLogger sets the facade logger
func WithLogger(l *zap.Logger) Option {
	return func(f *Facade) { f.logger = l }
}

// Facade exposes authenticate, refresh, validate, disconnect and status for
// one tenant. It never writes integration state itself.
type Facade struct {
	backend     BackendClient
	windows     WindowRunner
	logger      *zap.Logger
	callTimeout time.Duration
}

// NewFacade creates a connection facade
func NewFacade(backend BackendClient, windows WindowRunner, opts ...Option) *Facade {
	f := &Facade{
		backend:     backend,
		windows:     windows,
		logger:      zap.NewNop(),
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Authenticate connects the marketplace. API key marketplaces are validated
// and stored directly. OAuth marketplaces get a consent window; the code it
// yields is exchanged, and any other terminal phase is returned as a failure
// without a further backend call.
func (f *Facade) Authenticate(ctx context.Context, mp integration.Marketplace, credentials map[string]string, channelID string) (*connector.Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "connection", "authenticate",
		telemetry.WithAttribute(telemetry.SpanAttrMarketplace, mp.String()),
	)
	defer span.End()
	log := logger.WithTraceContext(ctx, f.logger).With(zap.String("marketplace", mp.String()))

	res, err := f.call(ctx, connector.WireRequest{
		Action:      string(connector.ActionAuthenticate),
		Marketplace: mp.String(),
		Credentials: credentials,
		ChannelID:   channelID,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if res.AuthURL == "" {
		telemetry.SetOK(span)
		return res, nil
	}

	out := f.windows.Run(ctx, authwindow.Attempt{Marketplace: mp, AuthURL: res.AuthURL, State: res.State})
	if out.Phase != authwindow.PhaseCodeReceived {
		ce := integration.Classify(mp, out.Err)
		if ce.Kind.Informational() {
			log.Info("authorization not completed", zap.String("phase", string(out.Phase)), zap.String("reason", ce.Message))
		} else {
			telemetry.RecordError(span, ce)
			log.Warn("authorization failed", zap.String("phase", string(out.Phase)), zap.Error(ce))
		}
		return nil, ce
	}

	res, err = f.call(ctx, connector.WireRequest{
		Action:      string(connector.ActionProcessCallback),
		Marketplace: mp.String(),
		Code:        out.Code,
		State:       out.State,
		ChannelID:   channelID,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)
	log.Info("marketplace connected")
	return res, nil
}

// RefreshToken renews the stored access token. A revoked refresh token marks
// the integration errored; no consent window is opened.
func (f *Facade) RefreshToken(ctx context.Context, mp integration.Marketplace) (*connector.Result, error) {
	return f.call(ctx, connector.WireRequest{Action: string(connector.ActionRefresh), Marketplace: mp.String()})
}

// ValidateCredentials checks the stored credentials against the marketplace
func (f *Facade) ValidateCredentials(ctx context.Context, mp integration.Marketplace) (*connector.Result, error) {
	return f.call(ctx, connector.WireRequest{Action: string(connector.ActionValidate), Marketplace: mp.String()})
}

// Disconnect revokes remotely when possible and always wipes local credentials
func (f *Facade) Disconnect(ctx context.Context, mp integration.Marketplace, channelID string) (*connector.Result, error) {
	return f.call(ctx, connector.WireRequest{
		Action:      string(connector.ActionDisconnect),
		Marketplace: mp.String(),
		ChannelID:   channelID,
	})
}

// GetConnectionStatus reports the connection and whether its credentials
// still authenticate. It never changes stored state.
func (f *Facade) GetConnectionStatus(ctx context.Context, mp integration.Marketplace) (*connector.Result, error) {
	return f.call(ctx, connector.WireRequest{Action: string(connector.ActionStatus), Marketplace: mp.String()})
}

func (f *Facade) call(ctx context.Context, req connector.WireRequest) (*connector.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
	defer cancel()

	res, err := f.backend.Call(callCtx, req)
	if err != nil {
		return nil, integration.Classify(integration.Marketplace(req.Marketplace), err)
	}
	return res, nil
}
