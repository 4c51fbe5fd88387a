// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/coachlyai/config"
	"github.com/coachlyai/pkg/commons"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresConnector hands out the shared gorm handle. Stores never open their
// own connections; they ask the connector for a context-scoped session.
type PostgresConnector interface {
	DB(ctx context.Context) *gorm.DB
	AutoMigrate(models ...interface{}) error
	Close() error
}

type postgresConnector struct {
	db     *gorm.DB
	logger commons.Logger
}

// NewPostgresConnector opens the pooled connection. Boot fails fast if the
// database is unreachable — the agent cannot persist sessions without it.
func NewPostgresConnector(cfg *config.AppConfig, logger commons.Logger) PostgresConnector {
	pg := cfg.PostgresConfig
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.Auth.User, pg.Auth.Password, pg.DbName, pg.SslMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Fatalf("unable to connect to postgres: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatalf("unable to access postgres pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(pg.MaxOpenConnection)
	sqlDB.SetMaxIdleConns(pg.MaxIdealConnection)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &postgresConnector{db: db, logger: logger}
}

func (c *postgresConnector) DB(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx)
}

func (c *postgresConnector) AutoMigrate(models ...interface{}) error {
	return c.db.AutoMigrate(models...)
}

func (c *postgresConnector) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
