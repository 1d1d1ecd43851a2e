package integration

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/erp/connector/internal/domain/shared"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// WebhookRegistration Entity
// ---------------------------------------------------------------------------

// WebhookRegistration is the inbound notification endpoint created for an
// active integration. It references the integration but does not own it.
type WebhookRegistration struct {
	shared.BaseEntity

	TenantID      uuid.UUID
	IntegrationID uuid.UUID
	Marketplace   Marketplace
	// EndpointURL is the externally reachable URL the marketplace posts to
	EndpointURL string
	// Secret signs inbound deliveries (hex HMAC-SHA256 of the body)
	Secret string
	// RemoteID is the subscription ID returned by marketplaces that support remote registration
	RemoteID string
}

// NewWebhookRegistration creates a registration whose endpoint is
// <baseURL>/<marketplace>/<registration id>.
func NewWebhookRegistration(i *Integration, baseURL, secret string) (*WebhookRegistration, error) {
	if i == nil || i.ID == uuid.Nil {
		return nil, ErrIntegrationNotFound
	}
	if secret == "" {
		return nil, ErrInvalidCredentials
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, ErrInvalidEndpoint
	}

	reg := &WebhookRegistration{
		BaseEntity:    shared.NewBaseEntity(),
		TenantID:      i.TenantID,
		IntegrationID: i.ID,
		Marketplace:   i.Marketplace,
		Secret:        secret,
	}
	reg.EndpointURL = base.JoinPath(string(i.Marketplace), reg.ID.String()).String()
	return reg, nil
}

// Sign returns the hex HMAC-SHA256 signature of a payload
func (w *WebhookRegistration) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(w.Secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a delivery signature in constant time.
// A "sha256=" prefix is accepted.
func (w *WebhookRegistration) VerifySignature(payload []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false
	}
	want, _ := hex.DecodeString(w.Sign(payload))
	return hmac.Equal(got, want)
}

// SetRemoteID records the marketplace-side subscription ID
func (w *WebhookRegistration) SetRemoteID(remoteID string) {
	w.RemoteID = remoteID
	w.Touch()
}
