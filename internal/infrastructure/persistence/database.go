package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erp/connector/internal/infrastructure/config"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/infrastructure/persistence/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Database is the connector's PostgreSQL handle. Repositories share DB.
type Database struct {
	DB  *gorm.DB
	sql *sql.DB
}

// NewDatabase opens PostgreSQL, applies the pool limits from cfg and
// verifies the connection. Query logs go through zap at logLevel.
func NewDatabase(cfg *config.DatabaseConfig, log *zap.Logger, logLevel gormlogger.LogLevel) (*Database, error) {
	return open(postgres.Open(cfg.DSN()), cfg, log, logLevel)
}

func open(dialector gorm.Dialector, cfg *config.DatabaseConfig, log *zap.Logger, logLevel gormlogger.LogLevel) (*Database, error) {
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.NewGormLogger(log, logLevel),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	d := &Database{DB: gdb, sql: sqlDB}
	if err := d.Ping(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return d, nil
}

// Ping is the readiness probe for the credential store
func (d *Database) Ping(ctx context.Context) error {
	if err := d.sql.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (d *Database) Close() error {
	return d.sql.Close()
}

// AutoMigrate creates the connector tables from the GORM models.
// Deployed databases are migrated with the SQL files instead.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.IntegrationModel{},
		&models.WebhookRegistrationModel{},
		&models.SyncMarkerModel{},
	)
}
