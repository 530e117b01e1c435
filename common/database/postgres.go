package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tankwatch-chart/common/config"

	_ "github.com/lib/pq"
)

const (
	connectTimeout  = 10 * time.Second
	connMaxLifetime = 30 * time.Minute
)

// Connect opens the lib/pq pool for cfg and waits until the server answers or
// ctx (bounded by connectTimeout) expires.
func Connect(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	db.SetConnMaxLifetime(connMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s/%s: %w", cfg.Host, cfg.Database, err)
	}

	return db, nil
}

// Close closes the pool; a nil pool is ignored.
func Close(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}
