// Package webhook provisions inbound webhook endpoints for activated
// integrations and hands them over to initial synchronization.
package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/infrastructure/telemetry"
)

// secretBytes is the size of a registration signing secret
const secretBytes = 32

// RetryQueue defers a failed provisioning attempt
type RetryQueue interface {
	EnqueueProvision(ctx context.Context, tenantID, integrationID uuid.UUID, marketplace integration.Marketplace) error
}

// Dependencies are the collaborators of Registrar. Retries, Events and
// Metrics are optional.
type Dependencies struct {
	Registrations integration.WebhookRegistrationRepository
	Markers       integration.SyncMarkerRepository
	Providers     integration.ProviderRegistry
	Retries       RetryQueue
	Events        shared.EventPublisher
	Metrics       *telemetry.ConnectorMetrics
	Logger        *zap.Logger
}

// Registrar creates one webhook registration per active integration and
// records the initial-sync handoff once the registration exists.
type Registrar struct {
	registrations integration.WebhookRegistrationRepository
	markers       integration.SyncMarkerRepository
	providers     integration.ProviderRegistry
	retries       RetryQueue
	events        shared.EventPublisher
	metrics       *telemetry.ConnectorMetrics
	logger        *zap.Logger
	baseURL       string

	newSecret func() (string, error)
}

// NewRegistrar creates a registrar whose endpoints live under baseURL
func NewRegistrar(deps Dependencies, baseURL string) *Registrar {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Registrar{
		registrations: deps.Registrations,
		markers:       deps.Markers,
		providers:     deps.Providers,
		retries:       deps.Retries,
		events:        deps.Events,
		metrics:       deps.Metrics,
		logger:        log,
		baseURL:       baseURL,
		newSecret:     generateSecret,
	}
}

// Provision registers the webhook of a freshly activated integration. A
// failure is queued for retry and returned; activation is never undone.
func (r *Registrar) Provision(ctx context.Context, i *integration.Integration) error {
	err := r.Register(ctx, i)
	if err == nil {
		return nil
	}
	if r.retries == nil {
		return err
	}
	if qerr := r.retries.EnqueueProvision(ctx, i.TenantID, i.ID, i.Marketplace); qerr != nil {
		logger.L(ctx).Error("failed to queue webhook provisioning retry",
			zap.String("integration_id", i.ID.String()), zap.Error(qerr))
		return errors.Join(err, qerr)
	}
	return fmt.Errorf("webhook provisioning queued for retry: %w", err)
}

// Register performs one provisioning attempt. It is idempotent: an existing
// registration is reused, and a subscription that already has a remote ID is
// not repeated.
func (r *Registrar) Register(ctx context.Context, i *integration.Integration) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "webhook", "register",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, i.TenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrMarketplace, i.Marketplace.String()),
	)
	defer span.End()

	if !i.IsActive() {
		return integration.ErrInvalidStatusTransition
	}
	if logger.GetTenantID(ctx) == "" {
		ctx, _ = logger.WithTenantID(ctx, r.logger, i.TenantID.String())
	}
	log := logger.L(ctx).With(
		zap.String("integration_id", i.ID.String()),
		zap.String("marketplace", i.Marketplace.String()),
	)

	reg, created, err := r.loadOrCreate(ctx, i)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	var subscribed bool
	if reg.RemoteID == "" {
		if subscribed, err = r.subscribe(ctx, i, reg); err != nil {
			telemetry.RecordError(span, err)
			log.Warn("remote webhook subscription failed", zap.Error(err))
			return err
		}
	}

	// a registration is complete once it exists and any remote subscription succeeded
	if created || subscribed {
		_ = r.publish(ctx, integration.NewWebhookRegisteredEvent(i.TenantID, reg))
		r.metrics.RecordWebhook(ctx, i.Marketplace.String(), "registered")
		log.Info("webhook registered", zap.String("endpoint", reg.EndpointURL))
	}

	if err := r.requestSync(ctx, i, created); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.SetOK(span)
	return nil
}

// Remove deletes the registration of an integration; a missing one is not an error
func (r *Registrar) Remove(ctx context.Context, i *integration.Integration) error {
	err := r.registrations.DeleteByIntegration(ctx, i.ID)
	if errors.Is(err, integration.ErrWebhookRegistrationNotFound) {
		return nil
	}
	return err
}

// Lookup returns a registration by its ID for inbound delivery verification
func (r *Registrar) Lookup(ctx context.Context, marketplace integration.Marketplace, id uuid.UUID) (*integration.WebhookRegistration, error) {
	reg, err := r.registrations.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.Marketplace != marketplace {
		return nil, integration.ErrWebhookRegistrationNotFound
	}
	return reg, nil
}

func (r *Registrar) loadOrCreate(ctx context.Context, i *integration.Integration) (*integration.WebhookRegistration, bool, error) {
	reg, err := r.registrations.FindByIntegration(ctx, i.ID)
	if err == nil {
		return reg, false, nil
	}
	if !errors.Is(err, integration.ErrWebhookRegistrationNotFound) {
		return nil, false, err
	}

	secret, err := r.newSecret()
	if err != nil {
		return nil, false, err
	}
	reg, err = integration.NewWebhookRegistration(i, r.baseURL, secret)
	if err != nil {
		return nil, false, err
	}
	if err := r.registrations.Save(ctx, reg); err != nil {
		return nil, false, err
	}
	return reg, true, nil
}

// subscribe tells marketplaces that need it where to deliver notifications.
// It reports whether a remote subscription was made.
func (r *Registrar) subscribe(ctx context.Context, i *integration.Integration, reg *integration.WebhookRegistration) (bool, error) {
	if r.providers == nil {
		return false, nil
	}
	provider, err := r.providers.Get(i.Marketplace)
	if err != nil {
		return false, err
	}
	subscriber, ok := provider.(integration.WebhookSubscriber)
	if !ok {
		return false, nil
	}

	remoteID, err := subscriber.SubscribeWebhook(ctx, i.Credentials, reg.EndpointURL, reg.Secret)
	if err != nil {
		return false, err
	}
	if remoteID == "" {
		return true, nil
	}
	reg.SetRemoteID(remoteID)
	if err := r.registrations.Save(ctx, reg); err != nil {
		return false, err
	}
	return true, nil
}

// requestSync records the initial-sync handoff. A new registration always
// gets a new marker; a retried one reuses the latest undispatched marker.
func (r *Registrar) requestSync(ctx context.Context, i *integration.Integration, fresh bool) error {
	if r.markers == nil {
		return nil
	}
	var marker *integration.SyncMarker
	if !fresh {
		latest, err := r.markers.FindLatestByIntegration(ctx, i.ID)
		switch {
		case err == nil && latest.Status == integration.SyncMarkerDispatched:
			return nil
		case err == nil:
			marker = latest
		case !errors.Is(err, integration.ErrSyncMarkerNotFound):
			return err
		}
	}
	if marker == nil {
		var err error
		if marker, err = integration.NewSyncMarker(i); err != nil {
			return err
		}
		if err := r.markers.Save(ctx, marker); err != nil {
			return err
		}
	}

	if err := r.publish(ctx, integration.NewSyncRequestedEvent(marker)); err != nil {
		return err
	}
	marker.MarkDispatched()
	return r.markers.Save(ctx, marker)
}

func (r *Registrar) publish(ctx context.Context, event shared.DomainEvent) error {
	if r.events == nil {
		return nil
	}
	if err := r.events.Publish(ctx, event); err != nil {
		logger.L(ctx).Warn("failed to publish webhook event",
			zap.String("event_type", event.EventType()), zap.Error(err))
		return err
	}
	return nil
}

func generateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
