package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type tracedRow struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:100"`
}

func setupTracedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	return db
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()
	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "postgresql", cfg.DBSystem)
}

func TestRegisterDBTracing_Disabled(t *testing.T) {
	db := setupTracedDB(t)
	require.NoError(t, RegisterDBTracing(db, DefaultDBTracingConfig(), zap.NewNop()))
	assert.Nil(t, db.Callback().Query().Get("otel_timing:after_query"))
}

func TestRegisterDBTracing_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	db := setupTracedDB(t)
	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	cfg.DBSystem = "sqlite"
	require.NoError(t, RegisterDBTracing(db, cfg, zap.NewNop()))

	ctx, parent := tp.Tracer("test").Start(context.Background(), "parent")
	require.NoError(t, db.WithContext(ctx).Create(&tracedRow{Name: "a"}).Error)
	var rows []tracedRow
	require.NoError(t, db.WithContext(ctx).Find(&rows).Error)
	parent.End()

	var dbSpans []sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() != "parent" {
			dbSpans = append(dbSpans, s)
		}
	}
	require.NotEmpty(t, dbSpans)
	for _, s := range dbSpans {
		assert.Equal(t, parent.SpanContext().TraceID(), s.SpanContext().TraceID())
	}
}

func TestAnnotateSpan_SlowQuery(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	ctx, span := tp.Tracer("test").Start(context.Background(), "query")
	ctx = context.WithValue(ctx, queryStartKey{}, time.Now().Add(-time.Second))

	db := setupTracedDB(t)
	tx := db.WithContext(ctx)
	tx.Statement.Table = "marketplace_integrations"
	tx.Statement.RowsAffected = 3

	annotateSpan(tx, 100*time.Millisecond)
	span.End()

	got := recorder.Ended()
	require.Len(t, got, 1)
	attrs := got[0].Attributes()
	assert.Contains(t, attrs, attribute.Bool("db.slow_query", true))
	assert.Contains(t, attrs, attribute.String("db.sql.table", "marketplace_integrations"))
	assert.Contains(t, attrs, attribute.Int64("db.rows_affected", 3))
	require.Len(t, got[0].Events(), 1)
	assert.Equal(t, "slow_query_warning", got[0].Events()[0].Name)
}
