// Package marketplace contains the adapters that talk to external commerce
// platforms on behalf of the connector: a generic OAuth2 adapter built on
// golang.org/x/oauth2, and signed-gateway adapters for Taobao and Douyin.
//
// Every error returned by an adapter is an *integration.ConnectError.
package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// maxResponseSize caps how much of a provider response is read (10MB)
const maxResponseSize = 10 * 1024 * 1024

// defaultTimeout applies when the marketplace config has none
const defaultTimeout = 15 * time.Second

// apiClient is the transport shared by all adapters
type apiClient struct {
	marketplace integration.Marketplace
	http        *http.Client
	metrics     *telemetry.ConnectorMetrics
}

func newAPIClient(marketplace integration.Marketplace, httpClient *http.Client, timeout time.Duration, metrics *telemetry.ConnectorMetrics) apiClient {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return apiClient{marketplace: marketplace, http: httpClient, metrics: metrics}
}

// observe runs one provider operation inside a client span and records its
// latency and error kind.
func (c *apiClient) observe(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, "marketplace."+operation,
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrMarketplace, c.marketplace.String()),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	kind := integration.KindOf(err)
	c.metrics.RecordProviderCall(ctx, c.marketplace.String(), operation, kind.String(), time.Since(start))

	if err != nil {
		telemetry.SetAttributes(span, telemetry.SpanAttrErrorKind, kind.String())
		telemetry.RecordError(span, err)
	}
	return err
}

// send performs the request and reads the bounded body. Transport failures
// come back as NetworkFailure; HTTP status is left to the caller.
func (c *apiClient) send(req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, integration.NetworkFailure(c.marketplace, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, integration.NetworkFailure(c.marketplace, fmt.Errorf("read response: %w", err))
	}
	return resp.StatusCode, body, nil
}

// statusError classifies a non-2xx response. 401 and 403 mean the
// credentials no longer work; 429 and 5xx are transient.
func (c *apiClient) statusError(status int, body []byte) *integration.ConnectError {
	code, message := providerErrorFields(body)
	if message == "" {
		message = http.StatusText(status)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		ce := integration.NewConnectError(integration.KindTokenExpiredOrRevoked, c.marketplace, message, nil)
		ce.Code = code
		return ce
	case status == http.StatusTooManyRequests || status >= 500:
		return integration.NetworkFailure(c.marketplace, fmt.Errorf("HTTP %d: %s", status, message))
	default:
		if code == "" {
			code = "http_" + strconv.Itoa(status)
		}
		return integration.Rejected(c.marketplace, code, message)
	}
}

// providerErrorFields pulls an OAuth style error and description out of a
// JSON error body, if there is one.
func providerErrorFields(body []byte) (code, message string) {
	var payload struct {
		Error            any    `json:"error"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	switch v := payload.Error.(type) {
	case string:
		code = v
	case map[string]any:
		if s, ok := v["code"].(string); ok {
			code = s
		}
		if s, ok := v["message"].(string); ok {
			message = s
		}
	}
	if payload.ErrorDescription != "" {
		message = payload.ErrorDescription
	} else if message == "" {
		message = payload.Message
	}
	return code, message
}

// decodeObject parses a JSON object body, wrapping parse failures as rejections
func (c *apiClient) decodeObject(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return integration.NewConnectError(integration.KindProviderRejected, c.marketplace,
			"unparseable provider response", err)
	}
	return nil
}

// isContextError reports whether err came from the caller's context
func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
