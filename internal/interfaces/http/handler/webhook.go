package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/infrastructure/telemetry"
	"github.com/erp/connector/internal/interfaces/http/dto"
)

// Inbound delivery headers
const (
	WebhookSignatureHeader = "X-Webhook-Signature"
	WebhookDeliveryHeader  = "X-Webhook-Delivery"
	WebhookTopicHeader     = "X-Webhook-Topic"
)

const defaultDedupTTL = 24 * time.Hour

// RegistrationLookup resolves the registration an inbound delivery targets
type RegistrationLookup interface {
	Lookup(ctx context.Context, marketplace integration.Marketplace, id uuid.UUID) (*integration.WebhookRegistration, error)
}

// PayloadArchive keeps the raw body of verified deliveries
type PayloadArchive interface {
	ArchiveWebhook(ctx context.Context, reg *integration.WebhookRegistration, deliveryID string, body []byte) (string, error)
}

// WebhookHandlerConfig holds the collaborators of WebhookHandler
type WebhookHandlerConfig struct {
	Registrations RegistrationLookup
	Deliveries    shared.IdempotencyStore
	Events        shared.EventPublisher
	Metrics       *telemetry.ConnectorMetrics
	// Archive is optional
	Archive PayloadArchive
	// DedupTTL is how long delivery IDs are remembered
	DedupTTL time.Duration
}

// WebhookHandler accepts signed marketplace notifications and hands them to
// downstream consumers as integration.webhook_received events
type WebhookHandler struct {
	BaseHandler
	cfg WebhookHandlerConfig
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(cfg WebhookHandlerConfig) *WebhookHandler {
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = defaultDedupTTL
	}
	return &WebhookHandler{cfg: cfg}
}

// Receive godoc
// @ID           receiveWebhook
// @Summary      Receive a marketplace notification
// @Description  Verifies the HMAC-SHA256 body signature, drops repeated deliveries and publishes the notification
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        marketplace path string true "Marketplace ID"
// @Param        id path string true "Registration ID"
// @Success      202 {object} APIResponse[WebhookAck]
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      429 {object} ErrorResponse
// @Router       /api/v1/webhooks/{marketplace}/{id} [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.GetGinLogger(c)

	// unknown marketplaces and registrations look the same to the sender
	mp, err := integration.ParseMarketplace(c.Param("marketplace"))
	if err != nil {
		h.NotFound(c, "Webhook endpoint not found")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.NotFound(c, "Webhook endpoint not found")
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeRequestTooLarge, "Request body could not be read")
		return
	}

	reg, err := h.cfg.Registrations.Lookup(ctx, mp, id)
	if err != nil {
		if errors.Is(err, integration.ErrWebhookRegistrationNotFound) {
			h.cfg.Metrics.RecordWebhook(ctx, string(mp), "unknown")
			h.NotFound(c, "Webhook endpoint not found")
			return
		}
		log.Error("webhook registration lookup failed", zap.Error(err))
		h.InternalError(c, "Webhook could not be processed")
		return
	}

	if !reg.VerifySignature(body, c.GetHeader(WebhookSignatureHeader)) {
		h.cfg.Metrics.RecordWebhook(ctx, string(mp), "bad_signature")
		log.Warn("webhook signature rejected",
			zap.String("marketplace", string(mp)),
			zap.String("registration_id", reg.ID.String()),
		)
		h.ErrorWithCode(c, dto.ErrCodeWebhookSignature, "Signature verification failed")
		return
	}

	deliveryID := c.GetHeader(WebhookDeliveryHeader)
	dedupKey := reg.ID.String() + ":" + deliveryID
	if deliveryID != "" {
		seen, err := h.cfg.Deliveries.IsProcessed(ctx, dedupKey)
		if err != nil {
			log.Warn("delivery dedupe unavailable", zap.Error(err))
		} else if seen {
			h.cfg.Metrics.RecordWebhook(ctx, string(mp), "duplicate")
			h.Accepted(c, WebhookAck{Accepted: true, Duplicate: true})
			return
		}
	}

	event := integration.NewWebhookReceivedEvent(reg, deliveryID, c.GetHeader(WebhookTopicHeader), body)
	if h.cfg.Archive != nil {
		key, err := h.cfg.Archive.ArchiveWebhook(ctx, reg, deliveryID, body)
		if err != nil {
			log.Warn("failed to archive webhook payload", zap.Error(err))
		} else {
			event.ArchiveKey = key
		}
	}
	if err := h.cfg.Events.Publish(ctx, event); err != nil {
		h.cfg.Metrics.RecordWebhook(ctx, string(mp), "publish_failed")
		log.Error("failed to publish webhook", zap.Error(err))
		h.InternalError(c, "Webhook could not be processed")
		return
	}

	// marked only after publishing so a failed delivery can be redelivered
	if deliveryID != "" {
		if _, err := h.cfg.Deliveries.MarkProcessed(ctx, dedupKey, h.cfg.DedupTTL); err != nil {
			log.Warn("failed to remember delivery", zap.Error(err))
		}
	}
	h.cfg.Metrics.RecordWebhook(ctx, string(mp), "accepted")
	h.Accepted(c, WebhookAck{Accepted: true})
}
