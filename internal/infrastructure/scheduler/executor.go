package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/connector/internal/domain/integration"
)

// WebhookRegistrar performs one webhook setup attempt without scheduling retries itself
type WebhookRegistrar interface {
	Register(ctx context.Context, i *integration.Integration) error
}

// WebhookRegistrarFunc adapts a function to WebhookRegistrar
type WebhookRegistrarFunc func(ctx context.Context, i *integration.Integration) error

// Register calls f
func (f WebhookRegistrarFunc) Register(ctx context.Context, i *integration.Integration) error {
	return f(ctx, i)
}

// TokenRefresher refreshes one integration through the connector backend
type TokenRefresher interface {
	RefreshToken(ctx context.Context, tenantID uuid.UUID, marketplace integration.Marketplace) error
}

// TokenRefresherFunc adapts a function to TokenRefresher
type TokenRefresherFunc func(ctx context.Context, tenantID uuid.UUID, marketplace integration.Marketplace) error

// RefreshToken calls f
func (f TokenRefresherFunc) RefreshToken(ctx context.Context, tenantID uuid.UUID, marketplace integration.Marketplace) error {
	return f(ctx, tenantID, marketplace)
}

// ConnectorExecutor runs provisioning and refresh jobs
type ConnectorExecutor struct {
	integrations integration.IntegrationRepository
	registrar    WebhookRegistrar
	refresher    TokenRefresher
	logger       *zap.Logger
}

// NewConnectorExecutor creates a new connector job executor
func NewConnectorExecutor(
	integrations integration.IntegrationRepository,
	registrar WebhookRegistrar,
	refresher TokenRefresher,
	logger *zap.Logger,
) *ConnectorExecutor {
	return &ConnectorExecutor{
		integrations: integrations,
		registrar:    registrar,
		refresher:    refresher,
		logger:       logger,
	}
}

// Execute dispatches the job by kind
func (e *ConnectorExecutor) Execute(ctx context.Context, job *Job) error {
	switch job.Kind {
	case JobKindProvisionWebhook:
		return e.provision(ctx, job)
	case JobKindRefreshToken:
		return e.refresh(ctx, job)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownJobKind, job.Kind)
	}
}

func (e *ConnectorExecutor) provision(ctx context.Context, job *Job) error {
	i, err := e.integrations.FindByID(ctx, job.TenantID, job.IntegrationID)
	if errors.Is(err, integration.ErrIntegrationNotFound) {
		e.logger.Info("Integration gone, dropping webhook provisioning",
			zap.String("integration_id", job.IntegrationID.String()))
		return nil
	}
	if err != nil {
		return err
	}
	// A disconnect between failure and retry makes the registration moot
	if !i.IsActive() {
		e.logger.Info("Integration no longer active, dropping webhook provisioning",
			zap.String("integration_id", i.ID.String()),
			zap.String("status", i.Status.String()),
		)
		return nil
	}
	return e.registrar.Register(ctx, i)
}

func (e *ConnectorExecutor) refresh(ctx context.Context, job *Job) error {
	err := e.refresher.RefreshToken(ctx, job.TenantID, job.Marketplace)
	switch integration.KindOf(err) {
	case "":
		return err
	case integration.KindTokenExpiredOrRevoked, integration.KindNotConnected, integration.KindInvalidRequest:
		// terminal: the backend already recorded the integration's status
		e.logger.Warn("Proactive refresh rejected",
			zap.String("tenant_id", job.TenantID.String()),
			zap.String("marketplace", job.Marketplace.String()),
			zap.Error(err),
		)
		return nil
	default:
		return err
	}
}
