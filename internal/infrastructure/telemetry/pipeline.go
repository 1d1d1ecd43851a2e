package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
)

// ServiceVersion is reported on every exported resource
const ServiceVersion = "1.0.0"

const pipelineShutdownTimeout = 10 * time.Second

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
}

// pipeline is the lifecycle shared by the trace and metric exporters.
// One that was never started has a nil stop and does nothing.
type pipeline struct {
	signal string
	logger *zap.Logger
	stop   func(context.Context) error
}

// Enabled reports whether the pipeline exports anything
func (p *pipeline) Enabled() bool {
	return p.stop != nil
}

// Shutdown flushes buffered data and stops the exporter
func (p *pipeline) Shutdown(ctx context.Context) error {
	if p.stop == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pipelineShutdownTimeout)
	defer cancel()
	if err := p.stop(ctx); err != nil {
		return fmt.Errorf("shutdown %s pipeline: %w", p.signal, err)
	}
	p.logger.Info("Telemetry pipeline stopped", zap.String("signal", p.signal))
	return nil
}
