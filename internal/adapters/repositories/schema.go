package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Dialect-specific DDL. Orders keep indexed columns for filtering and the full
// document as JSON so history slices survive without extra tables.
var schemas = map[string][]string{
	"sqlite": {
		`CREATE TABLE IF NOT EXISTS delivery_orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			delivery_status TEXT NOT NULL,
			assigned_driver TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			payload TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_orders_driver
			ON delivery_orders(assigned_driver, created_at);`,
		`CREATE TABLE IF NOT EXISTS geocode_cache (
			address TEXT PRIMARY KEY,
			lat REAL NOT NULL,
			lng REAL NOT NULL,
			resolved_at INTEGER NOT NULL DEFAULT 0
		);`,
	},
	"pgx": {
		`CREATE TABLE IF NOT EXISTS delivery_orders (
			id BIGSERIAL PRIMARY KEY,
			delivery_status TEXT NOT NULL,
			assigned_driver TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			payload JSONB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_orders_driver
			ON delivery_orders(assigned_driver, created_at);`,
		`CREATE TABLE IF NOT EXISTS geocode_cache (
			address TEXT PRIMARY KEY,
			lat DOUBLE PRECISION NOT NULL,
			lng DOUBLE PRECISION NOT NULL,
			resolved_at BIGINT NOT NULL DEFAULT 0
		);`,
	},
}

// InitSchema creates the tables for db's driver ("sqlite" or "pgx").
func InitSchema(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}
	statements, ok := schemas[db.DriverName()]
	if !ok {
		return fmt.Errorf("init schema: unsupported driver %q", db.DriverName())
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}
	return nil
}
