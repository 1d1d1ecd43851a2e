// Package middleware provides HTTP middleware for the connector API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/erp/connector/internal/infrastructure/telemetry"
)

// MaxRequestIDLength is the maximum length accepted for inbound request IDs
const MaxRequestIDLength = 128

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// TracingWithConfig returns otelgin tracing middleware. Spans are named
// "METHOD route" and carry the request ID and, for webhook routes, the
// marketplace path parameter. 4xx/5xx responses mark the span as failed.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return otelgin.Middleware(cfg.ServiceName, otelgin.WithFilter(func(r *http.Request) bool {
		return r.URL.Path != "/health" && r.URL.Path != "/ready"
	}))
}

// SpanEnricher adds connector attributes to the request span once the
// handler chain has run, so tenant claims set by JWT auth are visible.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		if id := c.GetString("request_id"); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}
		if tenantID := GetJWTTenantID(c); tenantID != "" {
			span.SetAttributes(attribute.String(telemetry.SpanAttrTenantID, tenantID))
		}
		if mp := c.Param("marketplace"); mp != "" {
			span.SetAttributes(attribute.String(telemetry.SpanAttrMarketplace, mp))
		}

		status := c.Writer.Status()
		if status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
