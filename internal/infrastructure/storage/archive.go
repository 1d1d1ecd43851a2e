// Package storage archives raw webhook payloads to object storage.
package storage

import (
	"context"
	"errors"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/erp/connector/internal/domain/integration"
)

// ErrEmptyKey is returned for operations without an object key
var ErrEmptyKey = errors.New("storage key is required")

const payloadContentType = "application/json"

// WebhookKey builds the object key of one delivery:
// <prefix>/<marketplace>/<tenant>/<yyyy>/<mm>/<dd>/<registration>/<delivery>.json
// Deliveries without an ID get a random name.
func WebhookKey(prefix string, reg *integration.WebhookRegistration, deliveryID string, at time.Time) string {
	name := deliveryID
	if name == "" {
		name = uuid.NewString()
	}
	at = at.UTC()
	return path.Join(
		prefix,
		string(reg.Marketplace),
		reg.TenantID.String(),
		at.Format("2006"), at.Format("01"), at.Format("02"),
		reg.ID.String(),
		url.PathEscape(name)+".json",
	)
}

// putter is the write half shared by the archives
type putter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

func archiveWebhook(ctx context.Context, p putter, prefix string, now time.Time, reg *integration.WebhookRegistration, deliveryID string, body []byte) (string, error) {
	key := WebhookKey(prefix, reg, deliveryID, now)
	if err := p.Put(ctx, key, body, payloadContentType); err != nil {
		return "", err
	}
	return key, nil
}
