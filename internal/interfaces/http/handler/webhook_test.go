package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/erp/connector/internal/infrastructure/cache"
	"github.com/erp/connector/internal/infrastructure/storage"
	"github.com/erp/connector/internal/interfaces/http/dto"
)

type fakeRegistrations struct {
	regs map[uuid.UUID]*integration.WebhookRegistration
	err  error
}

func (f *fakeRegistrations) Lookup(_ context.Context, mp integration.Marketplace, id uuid.UUID) (*integration.WebhookRegistration, error) {
	if f.err != nil {
		return nil, f.err
	}
	reg, ok := f.regs[id]
	if !ok || reg.Marketplace != mp {
		return nil, integration.ErrWebhookRegistrationNotFound
	}
	return reg, nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
	err    error
}

func (p *capturingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type webhookEnv struct {
	router     *gin.Engine
	reg        *integration.WebhookRegistration
	deliveries *cache.InMemoryIdempotencyStore
	events     *capturingPublisher
}

func newWebhookEnv(t *testing.T) *webhookEnv {
	return newWebhookEnvWithArchive(t, nil)
}

func newWebhookEnvWithArchive(t *testing.T, archive PayloadArchive) *webhookEnv {
	t.Helper()

	i, err := integration.NewIntegration(uuid.New(), integration.MarketplaceShopify, integration.AuthTypeOAuth)
	require.NoError(t, err)
	reg, err := integration.NewWebhookRegistration(i, "https://erp.example.com/api/v1/webhooks", "whsec-test")
	require.NoError(t, err)

	deliveries := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = deliveries.Close() })
	events := &capturingPublisher{}

	h := NewWebhookHandler(WebhookHandlerConfig{
		Registrations: &fakeRegistrations{regs: map[uuid.UUID]*integration.WebhookRegistration{reg.ID: reg}},
		Deliveries:    deliveries,
		Events:        events,
		Archive:       archive,
	})
	router := gin.New()
	router.POST("/api/v1/webhooks/:marketplace/:id", h.Receive)
	return &webhookEnv{router: router, reg: reg, deliveries: deliveries, events: events}
}

func (e *webhookEnv) post(t *testing.T, path string, body []byte, signature, delivery string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(WebhookSignatureHeader, signature)
	}
	if delivery != "" {
		req.Header.Set(WebhookDeliveryHeader, delivery)
	}
	req.Header.Set(WebhookTopicHeader, "orders/create")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *webhookEnv) path() string {
	return "/api/v1/webhooks/shopify/" + e.reg.ID.String()
}

func decodeAck(t *testing.T, w *httptest.ResponseRecorder) WebhookAck {
	t.Helper()
	var resp APIResponse[WebhookAck]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestWebhookHandler_AcceptsSignedDelivery(t *testing.T) {
	env := newWebhookEnv(t)
	body := []byte(`{"order_id":42}`)

	w := env.post(t, env.path(), body, env.reg.Sign(body), "dlv-1")

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, WebhookAck{Accepted: true}, decodeAck(t, w))
	require.Equal(t, 1, env.events.count())

	event, ok := env.events.events[0].(*integration.WebhookReceivedEvent)
	require.True(t, ok)
	assert.Equal(t, integration.EventTypeWebhookReceived, event.EventType())
	assert.Equal(t, env.reg.ID, event.RegistrationID)
	assert.Equal(t, "dlv-1", event.DeliveryID)
	assert.Equal(t, "orders/create", event.Topic)
	assert.Equal(t, body, event.Payload)

	seen, err := env.deliveries.IsProcessed(context.Background(), env.reg.ID.String()+":dlv-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestWebhookHandler_PrefixedSignature(t *testing.T) {
	env := newWebhookEnv(t)
	body := []byte(`{}`)

	w := env.post(t, env.path(), body, "sha256="+env.reg.Sign(body), "")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, env.events.count())
}

func TestWebhookHandler_DuplicateDelivery(t *testing.T) {
	env := newWebhookEnv(t)
	body := []byte(`{"order_id":42}`)

	first := env.post(t, env.path(), body, env.reg.Sign(body), "dlv-1")
	second := env.post(t, env.path(), body, env.reg.Sign(body), "dlv-1")

	assert.Equal(t, http.StatusAccepted, first.Code)
	assert.Equal(t, http.StatusAccepted, second.Code)
	assert.Equal(t, WebhookAck{Accepted: true, Duplicate: true}, decodeAck(t, second))
	assert.Equal(t, 1, env.events.count())
}

func TestWebhookHandler_Rejections(t *testing.T) {
	body := []byte(`{"order_id":42}`)

	t.Run("bad signature", func(t *testing.T) {
		env := newWebhookEnv(t)
		w := env.post(t, env.path(), body, "deadbeef", "dlv-1")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeWebhookSignature, errorCode(t, w))
		assert.Zero(t, env.events.count())
	})

	t.Run("missing signature", func(t *testing.T) {
		env := newWebhookEnv(t)
		w := env.post(t, env.path(), body, "", "dlv-1")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Zero(t, env.events.count())
	})

	t.Run("unknown registration", func(t *testing.T) {
		env := newWebhookEnv(t)
		w := env.post(t, "/api/v1/webhooks/shopify/"+uuid.NewString(), body, env.reg.Sign(body), "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Zero(t, env.events.count())
	})

	t.Run("registration of another marketplace", func(t *testing.T) {
		env := newWebhookEnv(t)
		w := env.post(t, "/api/v1/webhooks/amazon/"+env.reg.ID.String(), body, env.reg.Sign(body), "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed registration id", func(t *testing.T) {
		env := newWebhookEnv(t)
		w := env.post(t, "/api/v1/webhooks/shopify/not-a-uuid", body, env.reg.Sign(body), "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestWebhookHandler_LookupFailure(t *testing.T) {
	h := NewWebhookHandler(WebhookHandlerConfig{
		Registrations: &fakeRegistrations{err: errors.New("database is down")},
		Deliveries:    cache.NewInMemoryIdempotencyStore(),
		Events:        &capturingPublisher{},
	})
	router := gin.New()
	router.POST("/api/v1/webhooks/:marketplace/:id", h.Receive)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/shopify/"+uuid.NewString(), bytes.NewReader([]byte(`{}`))))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhookHandler_PublishFailureIsNotRemembered(t *testing.T) {
	env := newWebhookEnv(t)
	env.events.err = errors.New("bus closed")
	body := []byte(`{"order_id":42}`)

	w := env.post(t, env.path(), body, env.reg.Sign(body), "dlv-1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	seen, err := env.deliveries.IsProcessed(context.Background(), env.reg.ID.String()+":dlv-1")
	require.NoError(t, err)
	assert.False(t, seen)

	// the marketplace redelivers once the bus recovers
	env.events.err = nil
	w = env.post(t, env.path(), body, env.reg.Sign(body), "dlv-1")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, WebhookAck{Accepted: true}, decodeAck(t, w))
	assert.Equal(t, 1, env.events.count())
}

type failingArchive struct{}

func (failingArchive) ArchiveWebhook(context.Context, *integration.WebhookRegistration, string, []byte) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestWebhookHandler_ArchivesPayload(t *testing.T) {
	archive := storage.NewMemoryArchive("webhooks")
	env := newWebhookEnvWithArchive(t, archive)
	body := []byte(`{"order_id":7}`)

	w := env.post(t, env.path(), body, env.reg.Sign(body), "dlv-7")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, 1, env.events.count())

	event := env.events.events[0].(*integration.WebhookReceivedEvent)
	require.NotEmpty(t, event.ArchiveKey)
	stored, err := archive.Get(context.Background(), event.ArchiveKey)
	require.NoError(t, err)
	assert.Equal(t, body, stored)

	// rejected deliveries are never archived
	w = env.post(t, env.path(), body, "bad", "dlv-8")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 1, archive.Len())
}

func TestWebhookHandler_ArchiveFailureStillAccepts(t *testing.T) {
	env := newWebhookEnvWithArchive(t, failingArchive{})
	body := []byte(`{"order_id":8}`)

	w := env.post(t, env.path(), body, env.reg.Sign(body), "dlv-8")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, 1, env.events.count())
	assert.Empty(t, env.events.events[0].(*integration.WebhookReceivedEvent).ArchiveKey)
}
