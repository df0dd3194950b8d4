// Package db owns the Postgres pool backing the workflow catalog and
// execution telemetry. Repositories in common/repository run their SQL
// against this pool; nothing else in the conductor touches the database.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowmatic/conductor/common/config"
	"github.com/flowmatic/conductor/common/logger"
)

const (
	connectTimeout = 5 * time.Second
	healthTimeout  = 3 * time.Second
)

// DB embeds pgxpool.Pool so repositories can use Query/Exec directly.
type DB struct {
	*pgxpool.Pool
	log *logger.Logger
}

// New opens the pool and verifies the database is reachable before the
// conductor starts accepting submissions.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database connected", "host", cfg.Database.Host, "db", cfg.Database.Database)

	return &DB{
		Pool: pool,
		log:  log,
	}, nil
}

// Close drains the pool. Called from the bootstrap shutdown stack after
// the run loop stops, so no telemetry write is in flight by then.
func (db *DB) Close() {
	db.log.Info("closing database connection pool")
	db.Pool.Close()
}

// Health pings with a short deadline; feeds the /health endpoint.
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	return db.Pool.Ping(ctx)
}
