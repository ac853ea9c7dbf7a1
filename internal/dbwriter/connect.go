package dbwriter

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres:// driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/your-org/trigger-trader/db/schema"
	"github.com/your-org/trigger-trader/internal/config"
)

// New returns a TimescaleWriter when a database is configured and a dummy
// writer otherwise. Migrations are applied first when cfg.Migrate is set.
func New(ctx context.Context, cfg config.DatabaseConfig, zl *zap.Logger) (DBWriter, error) {
	if !cfg.Enabled() {
		return NewDummyWriter(zl.Sugar()), nil
	}
	if cfg.Migrate {
		if err := Migrate(cfg.DSN()); err != nil {
			return nil, err
		}
	}
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewTimescaleWriter(pool, cfg.BatchSize, cfg.FlushInterval, zl), nil
}

// Connect opens a pgx pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return pool, nil
}

// Migrate applies every pending up migration embedded in db/schema.
func Migrate(dsn string) (err error) {
	src, err := iofs.New(schema.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("failed to initialise migrations: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		err = multierr.Combine(err, srcErr, dbErr)
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
