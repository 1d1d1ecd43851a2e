package logger

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ginLoggerKey = "logger"

// Query parameters that carry authorization material. Provider redirects
// put codes and tokens in the query string.
var sensitiveParams = []string{"code", "state", "access_token", "refresh_token", "token", "hmac", "signature"}

// GinMiddleware writes one access log line per request and places a logger
// tagged with the request ID in both the gin and the request context.
func GinMiddleware(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx, reqLogger := WithRequestID(c.Request.Context(), base.With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		), c.GetString("request_id"))
		c.Request = c.Request.WithContext(ctx)
		c.Set(ginLoggerKey, reqLogger)

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if mp := c.Param("marketplace"); mp != "" {
			fields = append(fields, zap.String("marketplace", mp))
		}
		if q := redactQuery(c.Request.URL.RawQuery); q != "" {
			fields = append(fields, zap.String("query", q))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		// the request logger may have gained a tenant during c.Next
		final := GetGinLogger(c)
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			final.Error("request failed", fields...)
		case status >= http.StatusBadRequest:
			final.Warn("request rejected", fields...)
		default:
			final.Info("request served", fields...)
		}
	}
}

func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "[unparsable]"
	}
	for _, key := range sensitiveParams {
		if values.Has(key) {
			values.Set(key, "[redacted]")
		}
	}
	return values.Encode()
}

// Recovery turns a panic in a handler into a 500 and an error log with the stack
func Recovery(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			base.Error("handler panicked",
				zap.String("request_id", c.GetString("request_id")),
				zap.String("route", c.FullPath()),
				zap.Any("panic", recovered),
				zap.Stack("stacktrace"),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "internal error",
			})
		}()
		c.Next()
	}
}

// GetGinLogger returns the request logger, or a no-op logger outside GinMiddleware
func GetGinLogger(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(ginLoggerKey); ok {
		if l, ok := v.(*zap.Logger); ok {
			return l
		}
	}
	return zap.NewNop()
}
