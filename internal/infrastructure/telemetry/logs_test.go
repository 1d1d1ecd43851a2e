package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogExporter_Disabled(t *testing.T) {
	ctx := context.Background()
	e, err := NewLogExporter(ctx, LogsConfig{Enabled: false, CollectorEndpoint: "localhost:14317"}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, e.Enabled())
	assert.False(t, e.Core("connector", zapcore.DebugLevel).Enabled(zapcore.ErrorLevel))
	assert.NoError(t, e.Shutdown(ctx))

	var missing *LogExporter
	assert.False(t, missing.Enabled())
	assert.False(t, missing.Core("connector", zapcore.InfoLevel).Enabled(zapcore.ErrorLevel))
}

func TestExportCore_Level(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	core := &exportCore{Core: inner, min: zapcore.WarnLevel}

	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.WarnLevel))

	log := zap.New(core).With(zap.String("marketplace", "shopify"))
	log.Info("dropped")
	log.Warn("kept")
	log.Error("kept too")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
	assert.Equal(t, "shopify", logs.All()[0].ContextMap()["marketplace"])
}

func TestExportCore_RedactsCredentials(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(&exportCore{Core: inner, min: zapcore.DebugLevel}).
		With(zap.String("client_secret", "shh"))

	fields := []zap.Field{zap.String("access_token", "tok-1"), zap.String("marketplace", "douyin")}
	log.Info("token exchanged", fields...)

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, redacted, ctx["client_secret"])
	assert.Equal(t, redacted, ctx["access_token"])
	assert.Equal(t, "douyin", ctx["marketplace"])
	// the caller's slice is left alone
	assert.Equal(t, "tok-1", fields[0].String)
}
