// Package connector implements the connector backend: the stateless
// operations that start OAuth attempts, redeem authorization codes, accept
// api keys, refresh, validate and disconnect marketplace integrations.
//
// The service is the only writer of Integration rows. Writes to one
// integration are serialized through the Locker, and every failure is
// returned as an *integration.ConnectError.
package connector

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/url"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// stateBytes is the entropy of a generated state (256 bits)
const stateBytes = 32

// maxStateAttempts bounds regeneration when a state collides
const maxStateAttempts = 3

// Backend is the connector backend contract
type Backend interface {
	GetAuthURL(ctx context.Context, tenantID uuid.UUID, req GetAuthURLRequest) (*Result, error)
	ConnectAPIKey(ctx context.Context, tenantID uuid.UUID, req ConnectAPIKeyRequest) (*Result, error)
	ExchangeCode(ctx context.Context, tenantID uuid.UUID, req ExchangeCodeRequest) (*Result, error)
	Refresh(ctx context.Context, tenantID uuid.UUID, req RefreshRequest) (*Result, error)
	Validate(ctx context.Context, tenantID uuid.UUID, req ValidateRequest) (*Result, error)
	Disconnect(ctx context.Context, tenantID uuid.UUID, req DisconnectRequest) (*Result, error)
	Status(ctx context.Context, tenantID uuid.UUID, req StatusRequest) (*Result, error)
	// Dispatch routes a decoded request to its named operation
	Dispatch(ctx context.Context, tenantID uuid.UUID, req Request) (*Result, error)
}

// WebhookProvisioner sets up and tears down the inbound webhook of an integration
type WebhookProvisioner interface {
	// Provision runs after activation. Failures are retried by the provisioner.
	Provision(ctx context.Context, i *integration.Integration) error
	Remove(ctx context.Context, i *integration.Integration) error
}

// Config holds connector backend settings
type Config struct {
	// RedirectURL is used when a request carries no redirect_uri
	RedirectURL     string
	StateTTL        time.Duration
	ProviderTimeout time.Duration
}

// Dependencies are the collaborators of Service. Webhooks, Events and
// Metrics are optional.
type Dependencies struct {
	Integrations integration.IntegrationRepository
	Providers    integration.ProviderRegistry
	States       integration.StateStore
	Locker       integration.Locker
	Webhooks     WebhookProvisioner
	Events       shared.EventPublisher
	Metrics      *telemetry.ConnectorMetrics
	Logger       *zap.Logger
}

// Service implements Backend
type Service struct {
	repo      integration.IntegrationRepository
	providers integration.ProviderRegistry
	states    integration.StateStore
	locker    integration.Locker
	webhooks  WebhookProvisioner
	events    shared.EventPublisher
	metrics   *telemetry.ConnectorMetrics
	logger    *zap.Logger
	cfg       Config

	now      func() time.Time
	newState func() (string, error)
}

// NewService creates the connector backend
func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 11 * time.Minute
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 15 * time.Second
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:      deps.Integrations,
		providers: deps.Providers,
		states:    deps.States,
		locker:    deps.Locker,
		webhooks:  deps.Webhooks,
		events:    deps.Events,
		metrics:   deps.Metrics,
		logger:    log,
		cfg:       cfg,
		now:       time.Now,
		newState:  generateState,
	}
}

var _ Backend = (*Service)(nil)

// Dispatch routes a decoded request to its named operation
func (s *Service) Dispatch(ctx context.Context, tenantID uuid.UUID, req Request) (*Result, error) {
	switch r := req.(type) {
	case GetAuthURLRequest:
		return s.GetAuthURL(ctx, tenantID, r)
	case ConnectAPIKeyRequest:
		return s.ConnectAPIKey(ctx, tenantID, r)
	case ExchangeCodeRequest:
		return s.ExchangeCode(ctx, tenantID, r)
	case RefreshRequest:
		return s.Refresh(ctx, tenantID, r)
	case ValidateRequest:
		return s.Validate(ctx, tenantID, r)
	case DisconnectRequest:
		return s.Disconnect(ctx, tenantID, r)
	case StatusRequest:
		return s.Status(ctx, tenantID, r)
	default:
		return nil, invalidRequest("", "unsupported request")
	}
}

// ---------------------------------------------------------------------------
// OAuth
// ---------------------------------------------------------------------------

// GetAuthURL builds the consent URL and issues a single-use state. Nothing is
// written to the integration until the code is redeemed.
func (s *Service) GetAuthURL(ctx context.Context, tenantID uuid.UUID, req GetAuthURLRequest) (*Result, error) {
	return s.run(ctx, ActionGetAuthURL, tenantID, req.Marketplace, func(ctx context.Context) (*Result, error) {
		provider, err := s.oauthProvider(req.Marketplace)
		if err != nil {
			return nil, err
		}
		redirectURI, err := s.redirectURI(req.Marketplace, req.RedirectURI)
		if err != nil {
			return nil, err
		}

		attempt := integration.AuthorizationAttempt{
			TenantID:    tenantID,
			Marketplace: req.Marketplace,
			RedirectURI: redirectURI,
			ChannelID:   req.ChannelID,
			OpenedAt:    s.now().UTC(),
		}
		for i := 0; ; i++ {
			if attempt.State, err = s.newState(); err != nil {
				return nil, err
			}
			err = s.states.Issue(ctx, attempt, s.cfg.StateTTL)
			if err == nil {
				break
			}
			if !errors.Is(err, integration.ErrStateConflict) || i+1 >= maxStateAttempts {
				return nil, err
			}
		}

		return &Result{
			Success: true,
			AuthURL: provider.AuthCodeURL(attempt.State, redirectURI),
			State:   attempt.State,
		}, nil
	})
}

// ExchangeCode consumes the state and redeems the code. The state is gone
// after the first call, so a replayed (code, state) pair is rejected before
// reaching the provider and the stored tokens stay those of the first exchange.
// Any failure after the state is consumed is final for this attempt.
func (s *Service) ExchangeCode(ctx context.Context, tenantID uuid.UUID, req ExchangeCodeRequest) (*Result, error) {
	return s.run(ctx, ActionProcessCallback, tenantID, req.Marketplace, func(ctx context.Context) (*Result, error) {
		attempt, err := s.states.Consume(ctx, req.State)
		if err != nil {
			return nil, err
		}
		res, err := s.redeem(ctx, tenantID, req, attempt)
		if err != nil {
			return nil, integration.SpentAttempt(req.Marketplace, err)
		}
		return res, nil
	})
}

// redeem finishes an exchange whose state is already consumed. Any failure
// here ends the attempt.
func (s *Service) redeem(ctx context.Context, tenantID uuid.UUID, req ExchangeCodeRequest, attempt *integration.AuthorizationAttempt) (*Result, error) {
	if attempt.TenantID != tenantID || attempt.Marketplace != req.Marketplace {
		return nil, integration.Rejected(req.Marketplace, "state_mismatch", "state was issued for another attempt")
	}
	if req.RedirectURI != "" && req.RedirectURI != attempt.RedirectURI {
		return nil, integration.Rejected(req.Marketplace, "redirect_uri_mismatch", "redirect_uri differs from the authorization request")
	}

	provider, err := s.oauthProvider(req.Marketplace)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lock(ctx, tenantID, req.Marketplace)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var creds integration.Credentials
	err = s.callProvider(ctx, func(ctx context.Context) (err error) {
		creds, err = provider.Exchange(ctx, req.Code, attempt.RedirectURI)
		return err
	})
	if err != nil {
		return nil, err
	}

	i, err := s.loadOrCreate(ctx, tenantID, req.Marketplace, integration.AuthTypeOAuth)
	if err != nil {
		return nil, err
	}
	channelID := req.ChannelID
	if channelID == "" {
		channelID = attempt.ChannelID
	}
	i.AttachChannel(channelID)
	if err := i.Activate(creds); err != nil {
		return nil, integration.Rejected(req.Marketplace, "invalid_token_response", "token response carried no access token")
	}
	if err := s.save(ctx, i); err != nil {
		return nil, err
	}
	s.provisionWebhook(ctx, i)

	return newResult(i, nil), nil
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

// ConnectAPIKey validates the key material with the marketplace and
// activates the integration. It never produces an auth URL.
func (s *Service) ConnectAPIKey(ctx context.Context, tenantID uuid.UUID, req ConnectAPIKeyRequest) (*Result, error) {
	return s.run(ctx, ActionAuthenticate, tenantID, req.Marketplace, func(ctx context.Context) (*Result, error) {
		provider, err := s.providers.Get(req.Marketplace)
		if err != nil {
			return nil, err
		}
		if provider.AuthType() != integration.AuthTypeAPIKey {
			return nil, invalidRequest(req.Marketplace, "marketplace uses oauth; request an auth url instead")
		}
		creds := integration.Credentials{APIKey: req.Credentials}
		if !creds.ValidFor(integration.AuthTypeAPIKey) {
			return nil, integration.NewConnectError(integration.KindInvalidRequest, req.Marketplace,
				"api key fields must not be empty", integration.ErrInvalidCredentials)
		}

		unlock, err := s.lock(ctx, tenantID, req.Marketplace)
		if err != nil {
			return nil, err
		}
		defer unlock()

		var profile *integration.Profile
		err = s.callProvider(ctx, func(ctx context.Context) (err error) {
			profile, err = provider.Validate(ctx, creds)
			return err
		})
		if err != nil {
			return nil, err
		}

		i, err := s.loadOrCreate(ctx, tenantID, req.Marketplace, integration.AuthTypeAPIKey)
		if err != nil {
			return nil, err
		}
		i.AttachChannel(req.ChannelID)
		if err := i.Activate(creds); err != nil {
			return nil, err
		}
		i.MarkValidated(s.now().UTC())
		if err := s.save(ctx, i); err != nil {
			return nil, err
		}
		s.provisionWebhook(ctx, i)

		return newResult(i, profile), nil
	})
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Refresh trades the stored refresh token for a new access token. When the
// marketplace reports the refresh token dead the integration moves to error;
// a new consent is never started from here.
func (s *Service) Refresh(ctx context.Context, tenantID uuid.UUID, req RefreshRequest) (*Result, error) {
	return s.run(ctx, ActionRefresh, tenantID, req.Marketplace, func(ctx context.Context) (*Result, error) {
		provider, err := s.oauthProvider(req.Marketplace)
		if err != nil {
			return nil, err
		}

		unlock, err := s.lock(ctx, tenantID, req.Marketplace)
		if err != nil {
			return nil, err
		}
		defer unlock()

		i, err := s.loadConnected(ctx, tenantID, req.Marketplace)
		if err != nil {
			return nil, err
		}
		if i.AuthType != integration.AuthTypeOAuth {
			return nil, integration.ErrNotOAuth
		}

		var fresh integration.Credentials
		err = s.callProvider(ctx, func(ctx context.Context) (err error) {
			fresh, err = provider.Refresh(ctx, i.Credentials)
			return err
		})
		if err != nil {
			s.metrics.RecordTokenRefresh(ctx, req.Marketplace.String(), outcomeOf(err))
			if integration.KindOf(err) == integration.KindTokenExpiredOrRevoked {
				s.markError(ctx, i, err)
			}
			return nil, err
		}

		if err := i.UpdateTokens(fresh); err != nil {
			return nil, err
		}
		if err := s.save(ctx, i); err != nil {
			return nil, err
		}
		s.metrics.RecordTokenRefresh(ctx, req.Marketplace.String(), telemetry.OutcomeSuccess)
		return newResult(i, nil), nil
	})
}

// Validate asks the marketplace whether the stored credentials still work.
// Expired or revoked credentials flip the integration to error and come back
// as valid=false rather than as a failure.
func (s *Service) Validate(ctx context.Context, tenantID uuid.UUID, req ValidateRequest) (*Result, error) {
	return s.run(ctx, ActionValidate, tenantID, req.Marketplace, func(ctx context.Context) (*Result, error) {
		provider, err := s.providers.Get(req.Marketplace)
		if err != nil {
			return nil, err
		}

		unlock, err := s.lock(ctx, tenantID, req.Marketplace)
		if err != nil {
			return nil, err
		}
		defer unlock()

		i, err := s.loadConnected(ctx, tenantID, req.Marketplace)
		if err != nil {
			return nil, err
		}

		var profile *integration.Profile
		err = s.callProvider(ctx, func(ctx context.Context) (err error) {
			profile, err = provider.Validate(ctx, i.Credentials)
			return err
		})
		switch {
		case err == nil:
		case integration.KindOf(err) == integration.KindTokenExpiredOrRevoked:
			s.markError(ctx, i, err)
			res := newResult(i, nil)
			res.Valid = boolPtr(false)
			return res, nil
		default:
			return nil, err
		}

		if i.Status == integration.StatusError {
			if err := i.Activate(i.Credentials); err != nil {
				return nil, err
			}
		}
		i.MarkValidated(s.now().UTC())
		if err := s.save(ctx, i); err != nil {
			return nil, err
		}

		res := newResult(i, profile)
		res.Valid = boolPtr(true)
		return res, nil
	})
}

// Disconnect revokes remotely on a best-effort basis, then always wipes the
// credentials and marks the integration disconnected.
func (s *Service) Disconnect(ctx context.Context, tenantID uuid.UUID, req DisconnectRequest) (*Result, error) {
	return s.run(ctx, ActionDisconnect, tenantID, req.Marketplace, func(ctx context.Context) (*Result, error) {
		unlock, err := s.lock(ctx, tenantID, req.Marketplace)
		if err != nil {
			return nil, err
		}
		defer unlock()

		i, err := s.repo.FindByMarketplace(ctx, tenantID, req.Marketplace)
		if errors.Is(err, integration.ErrIntegrationNotFound) {
			return &Result{Success: true, Data: &ResultData{Marketplace: req.Marketplace, Status: integration.StatusDisconnected}}, nil
		}
		if err != nil {
			return nil, err
		}
		if req.ChannelID != "" && i.ChannelID != "" && req.ChannelID != i.ChannelID {
			return nil, invalidRequest(req.Marketplace, "integration belongs to another channel")
		}

		if !i.Credentials.IsEmpty() {
			s.revoke(ctx, i)
		}
		if s.webhooks != nil {
			if err := s.webhooks.Remove(ctx, i); err != nil {
				logger.L(ctx).Warn("webhook removal failed", zap.String("integration_id", i.ID.String()), zap.Error(err))
			}
		}

		i.Disconnect()
		if err := s.save(ctx, i); err != nil {
			return nil, err
		}
		return newResult(i, nil), nil
	})
}

// Status reports the stored status and, for active integrations, whether the
// credentials still authenticate. It never writes.
func (s *Service) Status(ctx context.Context, tenantID uuid.UUID, req StatusRequest) (*Result, error) {
	return s.run(ctx, ActionStatus, tenantID, req.Marketplace, func(ctx context.Context) (*Result, error) {
		i, err := s.repo.FindByMarketplace(ctx, tenantID, req.Marketplace)
		if err != nil {
			return nil, err
		}
		if !i.IsActive() {
			res := newResult(i, nil)
			res.Valid = boolPtr(false)
			return res, nil
		}

		provider, err := s.providers.Get(req.Marketplace)
		if err != nil {
			return nil, err
		}
		var profile *integration.Profile
		err = s.callProvider(ctx, func(ctx context.Context) (err error) {
			profile, err = provider.Validate(ctx, i.Credentials)
			return err
		})
		switch {
		case err == nil:
			res := newResult(i, profile)
			res.Valid = boolPtr(true)
			return res, nil
		case integration.KindOf(err) == integration.KindTokenExpiredOrRevoked:
			res := newResult(i, nil)
			res.Valid = boolPtr(false)
			res.Data.LastError = integration.Classify(req.Marketplace, err).Message
			return res, nil
		default:
			return nil, err
		}
	})
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// run wraps an operation with a span, profiling labels, metrics and logging,
// and classifies any error it returns.
func (s *Service) run(ctx context.Context, action Action, tenantID uuid.UUID, mp integration.Marketplace, fn func(ctx context.Context) (*Result, error)) (*Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "connector", string(action),
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrMarketplace, mp.String()),
		telemetry.WithAttribute(telemetry.SpanAttrRequestKind, string(action)),
	)
	defer span.End()

	if logger.GetTenantID(ctx) == "" {
		ctx, _ = logger.WithTenantID(ctx, s.logger, tenantID.String())
	}

	start := s.now()
	var (
		res *Result
		err error
	)
	telemetry.WithMarketplaceLabels(ctx, mp.String(), string(action), func(ctx context.Context) {
		res, err = fn(ctx)
	})
	elapsed := s.now().Sub(start)

	outcome := outcomeOf(err)
	s.metrics.RecordRequest(ctx, string(action), mp.String(), outcome, elapsed)
	telemetry.SetAttributes(span, telemetry.SpanAttrOutcome, outcome)

	log := logger.L(ctx).With(
		zap.String("action", string(action)),
		zap.String("marketplace", mp.String()),
		zap.Duration("duration", elapsed),
	)
	if err == nil {
		telemetry.SetOK(span)
		log.Info("connector request completed")
		return res, nil
	}

	ce := integration.Classify(mp, err)
	telemetry.SetAttributes(span, telemetry.SpanAttrErrorKind, ce.Kind.String())
	switch ce.Kind {
	case integration.KindUserCancelled:
		log.Info("connector request cancelled", zap.String("error_kind", ce.Kind.String()))
	case integration.KindNetworkFailure:
		telemetry.RecordError(span, ce)
		log.Error("connector request failed", zap.String("error_kind", ce.Kind.String()), zap.Error(ce))
	default:
		telemetry.RecordError(span, ce)
		log.Warn("connector request failed", zap.String("error_kind", ce.Kind.String()), zap.Error(ce))
	}
	return nil, ce
}

// callProvider bounds a single marketplace call with the provider timeout
func (s *Service) callProvider(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	err := fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		if _, ok := integration.AsConnectError(err); !ok {
			return integration.NetworkFailure("", err)
		}
	}
	return err
}

func (s *Service) oauthProvider(mp integration.Marketplace) (integration.OAuthProvider, error) {
	provider, err := s.providers.Get(mp)
	if err != nil {
		return nil, err
	}
	oauth, ok := provider.(integration.OAuthProvider)
	if !ok || provider.AuthType() != integration.AuthTypeOAuth {
		return nil, invalidRequest(mp, "marketplace uses api key authentication")
	}
	return oauth, nil
}

func (s *Service) redirectURI(mp integration.Marketplace, requested string) (string, error) {
	uri := requested
	if uri == "" {
		uri = s.cfg.RedirectURL
	}
	u, err := url.Parse(uri)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", invalidRequest(mp, "redirect_uri must be an absolute http(s) url")
	}
	return uri, nil
}

func (s *Service) lock(ctx context.Context, tenantID uuid.UUID, mp integration.Marketplace) (func(), error) {
	unlock, err := s.locker.Lock(ctx, integration.LockKey(tenantID, mp))
	if err != nil {
		return nil, integration.NetworkFailure(mp, err)
	}
	return unlock, nil
}

// loadOrCreate returns the tenant's integration for the marketplace, creating
// a pending one on first connection.
func (s *Service) loadOrCreate(ctx context.Context, tenantID uuid.UUID, mp integration.Marketplace, authType integration.AuthType) (*integration.Integration, error) {
	i, err := s.repo.FindByMarketplace(ctx, tenantID, mp)
	switch {
	case errors.Is(err, integration.ErrIntegrationNotFound):
		return integration.NewIntegration(tenantID, mp, authType)
	case err != nil:
		return nil, err
	}
	if i.AuthType != authType {
		if i.IsActive() {
			i.Disconnect()
		}
		if err := i.SwitchAuthType(authType); err != nil {
			return nil, err
		}
	}
	return i, nil
}

// loadConnected returns the integration unless it was never connected or is disconnected
func (s *Service) loadConnected(ctx context.Context, tenantID uuid.UUID, mp integration.Marketplace) (*integration.Integration, error) {
	i, err := s.repo.FindByMarketplace(ctx, tenantID, mp)
	if err != nil {
		return nil, err
	}
	if i.Status == integration.StatusDisconnected || i.Status == integration.StatusPending {
		return nil, integration.NewConnectError(integration.KindNotConnected, mp, "integration is "+i.Status.String(), nil)
	}
	return i, nil
}

// save persists the integration and publishes the events it raised
func (s *Service) save(ctx context.Context, i *integration.Integration) error {
	if err := s.repo.Save(ctx, i); err != nil {
		return err
	}
	events := i.PullEvents()
	if s.events != nil && len(events) > 0 {
		if err := s.events.Publish(ctx, events...); err != nil {
			logger.L(ctx).Warn("failed to publish integration events", zap.Error(err))
		}
	}
	return nil
}

// markError records a credential failure. The caller's error is what gets
// returned, so a failed save is only logged.
func (s *Service) markError(ctx context.Context, i *integration.Integration, cause error) {
	reason := integration.Classify(i.Marketplace, cause).Message
	if reason == "" {
		reason = string(integration.KindTokenExpiredOrRevoked)
	}
	if err := i.MarkError(reason); err != nil {
		return
	}
	if err := s.save(ctx, i); err != nil {
		logger.L(ctx).Error("failed to record integration error", zap.String("integration_id", i.ID.String()), zap.Error(err))
	}
}

func (s *Service) revoke(ctx context.Context, i *integration.Integration) {
	provider, err := s.providers.Get(i.Marketplace)
	if err != nil {
		logger.L(ctx).Warn("skipping remote revocation", zap.Error(err))
		return
	}
	err = s.callProvider(ctx, func(ctx context.Context) error {
		return provider.Revoke(ctx, i.Credentials)
	})
	if err != nil {
		logger.L(ctx).Warn("remote revocation failed, disconnecting locally",
			zap.String("integration_id", i.ID.String()), zap.Error(err))
	}
}

// provisionWebhook hands the activated integration to the registrar. Its
// failure never undoes the activation.
func (s *Service) provisionWebhook(ctx context.Context, i *integration.Integration) {
	if s.webhooks == nil {
		return
	}
	if err := s.webhooks.Provision(ctx, i); err != nil {
		logger.L(ctx).Warn("webhook provisioning deferred",
			zap.String("integration_id", i.ID.String()), zap.Error(err))
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return telemetry.OutcomeSuccess
	}
	switch integration.KindOf(err) {
	case integration.KindUserCancelled:
		return telemetry.OutcomeCancelled
	case integration.KindTimedOut:
		return telemetry.OutcomeTimeout
	case integration.KindProviderRejected, integration.KindTokenExpiredOrRevoked:
		return telemetry.OutcomeRejected
	default:
		return telemetry.OutcomeError
	}
}

// generateState returns 256 random bits, base64url encoded
func generateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
