package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogsConfig holds logs bridge configuration.
type LogsConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	Insecure          bool
}

const redacted = "[redacted]"

// exportRedactedKeys are field keys whose values never leave the process
var exportRedactedKeys = map[string]struct{}{
	"access_token":  {},
	"refresh_token": {},
	"client_secret": {},
	"app_secret":    {},
	"secret":        {},
	"code":          {},
	"password":      {},
	"authorization": {},
}

// LogExporter ships zap entries to the collector over OTLP/gRPC. A disabled
// exporter hands out no-op cores.
type LogExporter struct {
	provider *sdklog.LoggerProvider
	logger   *zap.Logger
}

// NewLogExporter starts the OTLP log pipeline when cfg.Enabled is set
func NewLogExporter(ctx context.Context, cfg LogsConfig, logger *zap.Logger) (*LogExporter, error) {
	e := &LogExporter{logger: logger}
	if !cfg.Enabled {
		return e, nil
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP logs exporter: %w", err)
	}
	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	e.provider = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(e.provider)

	logger.Info("OTLP log export enabled", zap.String("collector_endpoint", cfg.CollectorEndpoint))
	return e, nil
}

// Enabled reports whether entries are exported
func (e *LogExporter) Enabled() bool {
	return e != nil && e.provider != nil
}

// Core returns a zapcore.Core exporting entries at or above level. Pass it
// through logger.Config.Extra so the service logger tees into it.
func (e *LogExporter) Core(name string, level zapcore.Level) zapcore.Core {
	if !e.Enabled() {
		return zapcore.NewNopCore()
	}
	return &exportCore{
		Core: otelzap.NewCore(name, otelzap.WithLoggerProvider(e.provider)),
		min:  level,
	}
}

// Shutdown flushes buffered records and stops the exporter
func (e *LogExporter) Shutdown(ctx context.Context) error {
	if !e.Enabled() {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.provider.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown log exporter: %w", err)
	}
	return nil
}

// exportCore adds a minimum level (otelzap has none) and masks credential
// fields on their way out
type exportCore struct {
	zapcore.Core
	min zapcore.Level
}

func (c *exportCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && c.Core.Enabled(lvl)
}

func (c *exportCore) With(fields []zapcore.Field) zapcore.Core {
	return &exportCore{Core: c.Core.With(redactFields(fields)), min: c.min}
}

func (c *exportCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return ce
	}
	return ce.AddCore(entry, c)
}

func (c *exportCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(entry, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if _, ok := exportRedactedKeys[f.Key]; !ok {
			continue
		}
		if out == nil {
			out = append([]zapcore.Field(nil), fields...)
		}
		out[i] = zap.String(f.Key, redacted)
	}
	if out == nil {
		return fields
	}
	return out
}
