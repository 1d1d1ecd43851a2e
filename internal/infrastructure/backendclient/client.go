// Package backendclient calls a connector backend over HTTP. It is the
// transport the desktop facade uses when the backend runs as a service.
package backendclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/erp/connector/internal/application/connection"
	"github.com/erp/connector/internal/application/connector"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/config"
	"github.com/erp/connector/internal/infrastructure/telemetry"
)

const (
	dispatchPath    = "/api/v1/connector"
	maxResponseSize = 1 << 20
	defaultTimeout  = 30 * time.Second
)

// Client posts dispatch documents to the connector endpoint
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a Client for the backend at cfg.BaseURL
func New(cfg config.ClientConfig, tokens TokenSource, opts ...Option) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("backendclient: base url %q must be http or https", cfg.BaseURL)
	}
	if tokens == nil {
		return nil, fmt.Errorf("backendclient: token source is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ connection.BackendClient = (*Client)(nil)

// Call sends one document. Every failure comes back as an
// *integration.ConnectError: the backend's own failure body when there is
// one, NetworkFailure when the backend cannot be reached.
func (c *Client) Call(ctx context.Context, wire connector.WireRequest) (*connector.Result, error) {
	mp := integration.Marketplace(wire.Marketplace)
	ctx, span := telemetry.StartSpan(ctx, "connector.call",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrMarketplace, wire.Marketplace),
		telemetry.WithAttribute(telemetry.SpanAttrRequestKind, wire.Action),
	)
	defer span.End()

	result, err := c.call(ctx, mp, wire)
	if err != nil {
		telemetry.SetAttributes(span, telemetry.SpanAttrErrorKind, integration.KindOf(err).String())
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

func (c *Client) call(ctx context.Context, mp integration.Marketplace, wire connector.WireRequest) (*connector.Result, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, integration.NewConnectError(integration.KindInvalidRequest, mp, "no credentials for the connector backend", err)
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, integration.NewConnectError(integration.KindInvalidRequest, mp, "request could not be encoded", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+dispatchPath, bytes.NewReader(payload))
	if err != nil {
		return nil, integration.NewConnectError(integration.KindInvalidRequest, mp, "request could not be built", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", uuid.NewString())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, integration.NetworkFailure(mp, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, integration.NetworkFailure(mp, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		ce := decodeFailure(mp, resp.StatusCode, body)
		c.logger.Debug("connector call failed",
			zap.String("action", wire.Action),
			zap.String("marketplace", wire.Marketplace),
			zap.Int("status", resp.StatusCode),
			zap.String("error_kind", ce.Kind.String()),
		)
		return nil, ce
	}

	var result connector.Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, integration.NetworkFailure(mp, fmt.Errorf("unparseable backend response: %w", err))
	}
	return &result, nil
}

// failureBody accepts both the connector failure reply and the generic
// error envelope produced by the auth and rate limit middleware
type failureBody struct {
	Error       json.RawMessage `json:"error"`
	ErrorKind   string          `json:"error_kind"`
	Retryable   *bool           `json:"retryable"`
	Code        string          `json:"code"`
	Marketplace string          `json:"marketplace"`
}

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var knownKinds = map[integration.ErrorKind]bool{
	integration.KindUserCancelled:         true,
	integration.KindPopupBlocked:          true,
	integration.KindProviderRejected:      true,
	integration.KindNetworkFailure:        true,
	integration.KindTimedOut:              true,
	integration.KindTokenExpiredOrRevoked: true,
	integration.KindInvalidRequest:        true,
	integration.KindNotConnected:          true,
}

// decodeFailure rebuilds the backend's ConnectError from a non-200 reply
func decodeFailure(mp integration.Marketplace, status int, body []byte) *integration.ConnectError {
	var fb failureBody
	_ = json.Unmarshal(body, &fb)

	if kind := integration.ErrorKind(fb.ErrorKind); knownKinds[kind] {
		var message string
		_ = json.Unmarshal(fb.Error, &message)
		if fb.Marketplace != "" {
			mp = integration.Marketplace(fb.Marketplace)
		}
		ce := integration.NewConnectError(kind, mp, message, nil)
		ce.Code = fb.Code
		// a retryable kind the backend reports as final came from a spent attempt
		ce.Spent = fb.Retryable != nil && !*fb.Retryable && kind.Retryable()
		return ce
	}

	var env envelopeError
	_ = json.Unmarshal(fb.Error, &env)
	message := env.Message
	if message == "" {
		message = http.StatusText(status)
	}

	var ce *integration.ConnectError
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		ce = integration.NewConnectError(integration.KindNetworkFailure, mp, message, nil)
	default:
		ce = integration.NewConnectError(integration.KindInvalidRequest, mp, message, nil)
	}
	ce.Code = env.Code
	return ce
}
