package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome labels recorded on connector metrics
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
	OutcomeTimeout   = "timeout"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
)

// Metric attribute keys.
var (
	AttrTenantID    = attribute.Key("tenant_id")
	AttrMarketplace = attribute.Key("marketplace")
	AttrRequestKind = attribute.Key("request_kind")
	AttrOutcome     = attribute.Key("outcome")
	AttrErrorKind   = attribute.Key("error_kind")
	AttrOperation   = attribute.Key("operation")

	AttrHTTPMethod     = attribute.Key("http.method")
	AttrHTTPStatusCode = attribute.Key("http.status_code")
	AttrHTTPRoute      = attribute.Key("http.route")
)

// Histogram bucket boundaries in seconds.
var (
	// HTTPDurationBuckets suit marketplace API round trips
	HTTPDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

	// WindowDurationBuckets suit the time a user spends on a consent screen
	WindowDurationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600}
)

// ErrMeterNil is returned when no meter is given
var ErrMeterNil = errors.New("NewConnectorMetrics: meter cannot be nil")

// ConnectorMetrics records connection traffic for the marketplace connector.
// All methods are safe on a nil receiver so callers may run without metrics.
type ConnectorMetrics struct {
	requestsTotal    metric.Int64Counter
	requestDuration  metric.Float64Histogram
	providerCalls    metric.Int64Counter
	providerLatency  metric.Float64Histogram
	webhooksReceived metric.Int64Counter
	tokenRefreshes   metric.Int64Counter
	windowsOpen      metric.Int64UpDownCounter
	windowDuration   metric.Float64Histogram
}

// NewConnectorMetrics creates the connector instruments on meter
func NewConnectorMetrics(meter metric.Meter) (*ConnectorMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	var (
		m    ConnectorMetrics
		errs []error
	)
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	m.requestsTotal, err = meter.Int64Counter("connector_requests_total",
		metric.WithDescription("Connector backend requests by kind and outcome"), metric.WithUnit("{requests}"))
	collect(err)
	m.requestDuration, err = meter.Float64Histogram("connector_request_duration_seconds",
		metric.WithDescription("Connector backend request latency"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(HTTPDurationBuckets...))
	collect(err)
	m.providerCalls, err = meter.Int64Counter("connector_provider_calls_total",
		metric.WithDescription("Calls made to marketplace APIs"), metric.WithUnit("{calls}"))
	collect(err)
	m.providerLatency, err = meter.Float64Histogram("connector_provider_latency_seconds",
		metric.WithDescription("Marketplace API round-trip latency"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(HTTPDurationBuckets...))
	collect(err)
	m.webhooksReceived, err = meter.Int64Counter("connector_webhooks_received_total",
		metric.WithDescription("Inbound marketplace notifications"), metric.WithUnit("{deliveries}"))
	collect(err)
	m.tokenRefreshes, err = meter.Int64Counter("connector_token_refreshes_total",
		metric.WithDescription("OAuth token refresh attempts"), metric.WithUnit("{refreshes}"))
	collect(err)
	m.windowsOpen, err = meter.Int64UpDownCounter("connector_authorization_windows_open",
		metric.WithDescription("Authorization windows currently open"), metric.WithUnit("{windows}"))
	collect(err)
	m.windowDuration, err = meter.Float64Histogram("connector_authorization_window_seconds",
		metric.WithDescription("Time from opening an authorization window to its outcome"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(WindowDurationBuckets...))
	collect(err)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &m, nil
}

// RecordRequest records one backend request
func (m *ConnectorMetrics) RecordRequest(ctx context.Context, kind, marketplace, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(
		AttrRequestKind.String(kind),
		AttrMarketplace.String(marketplace),
		AttrOutcome.String(outcome),
	))
	m.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		AttrRequestKind.String(kind),
		AttrMarketplace.String(marketplace),
	))
}

// RecordProviderCall records one marketplace API call. errorKind is empty on success.
func (m *ConnectorMetrics) RecordProviderCall(ctx context.Context, marketplace, operation, errorKind string, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if errorKind != "" {
		outcome = OutcomeError
	}
	m.providerCalls.Add(ctx, 1, metric.WithAttributes(
		AttrMarketplace.String(marketplace),
		AttrOperation.String(operation),
		AttrOutcome.String(outcome),
		AttrErrorKind.String(errorKind),
	))
	m.providerLatency.Record(ctx, d.Seconds(), metric.WithAttributes(
		AttrMarketplace.String(marketplace),
		AttrOperation.String(operation),
	))
}

// RecordWebhook records an inbound delivery
func (m *ConnectorMetrics) RecordWebhook(ctx context.Context, marketplace, outcome string) {
	if m == nil {
		return
	}
	m.webhooksReceived.Add(ctx, 1, metric.WithAttributes(AttrMarketplace.String(marketplace), AttrOutcome.String(outcome)))
}

// RecordTokenRefresh records a refresh attempt
func (m *ConnectorMetrics) RecordTokenRefresh(ctx context.Context, marketplace, outcome string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.Add(ctx, 1, metric.WithAttributes(AttrMarketplace.String(marketplace), AttrOutcome.String(outcome)))
}

// WindowOpened tracks a newly opened authorization window
func (m *ConnectorMetrics) WindowOpened(ctx context.Context, marketplace string) {
	if m == nil {
		return
	}
	m.windowsOpen.Add(ctx, 1, metric.WithAttributes(AttrMarketplace.String(marketplace)))
}

// WindowClosed records how an authorization window ended
func (m *ConnectorMetrics) WindowClosed(ctx context.Context, marketplace, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.windowsOpen.Add(ctx, -1, metric.WithAttributes(AttrMarketplace.String(marketplace)))
	m.windowDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		AttrMarketplace.String(marketplace),
		AttrOutcome.String(outcome),
	))
}
