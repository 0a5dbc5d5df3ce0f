// Package database opens and pools the PostgreSQL connection behind the
// audit trail, and maps driver errors onto domain errors.
package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/docuflow/ocr-service/pkg/config"
	"github.com/docuflow/ocr-service/pkg/logger"
)

// DB wraps sqlx.DB so pool tuning and connection logging live in one place.
type DB struct {
	*sqlx.DB
	logger *logger.Logger
}

// New connects using the service configuration and applies its pool limits.
func New(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.Debug().
		Str("host", cfg.Host).
		Str("database", cfg.Database).
		Int("max_open_conns", cfg.MaxOpenConns).
		Msg("connected to database")

	return &DB{DB: db, logger: log}, nil
}

// NewWithDSN connects with a raw DSN and default pool settings.
// Integration suites use this against throwaway containers.
func NewWithDSN(dsn string, log *logger.Logger) (*DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{DB: db, logger: log}, nil
}

// NewFromDB wraps an existing sqlx connection. Used by tests that build
// their connection elsewhere (sqlmock, testcontainers).
func NewFromDB(db *sqlx.DB, log *logger.Logger) *DB {
	return &DB{DB: db, logger: log}
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Close closes the underlying pool.
func (db *DB) Close() error {
	db.logger.Debug().Msg("closing database connection")
	return db.DB.Close()
}
