package telemetry

import (
	"context"
	"runtime/pprof"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewProfiler_Disabled(t *testing.T) {
	p, err := NewProfiler(ProfilerConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestNewProfiler_Validation(t *testing.T) {
	_, err := NewProfiler(ProfilerConfig{Enabled: true, ApplicationName: "connector"}, zap.NewNop())
	assert.ErrorContains(t, err, "server address")

	_, err = NewProfiler(ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, zap.NewNop())
	assert.ErrorContains(t, err, "application name")
}

func TestConnectorProfileTypes(t *testing.T) {
	assert.Contains(t, connectorProfileTypes, pyroscope.ProfileCPU)
	assert.Contains(t, connectorProfileTypes, pyroscope.ProfileGoroutines)
}

func TestWithMarketplaceLabels(t *testing.T) {
	var got string
	WithMarketplaceLabels(context.Background(), "shopify", "refresh", func(ctx context.Context) {
		got, _ = pprof.Label(ctx, "marketplace")
	})
	assert.Equal(t, "shopify", got)
}
