//-------------------------------------------------------------------------
//
// pgEdge Star Schema Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/pgEdge/pgedge-starload/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// TemplateFeedTable is the feed table other feeds are cloned from.
const TemplateFeedTable = "in_sales_order"

func newMigrator(pool *pgxpool.Pool) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations: %w", err)
	}

	// The *sql.DB shares the pool; the migrator is never closed so the
	// pool stays open.
	driver, err := postgres.WithInstance(stdlib.OpenDBFromPool(pool), &postgres.Config{
		MigrationsTable: "starload_schema_migrations",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// Migrate applies every pending schema migration.
func Migrate(pool *pgxpool.Pool) error {
	m, err := newMigrator(pool)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	logging.Info().Uint("version", version).Msg("Schema is up to date")
	return nil
}

// Rollback reverts every schema migration, dropping the star schema.
func Rollback(pool *pgxpool.Pool) error {
	m, err := newMigrator(pool)
	if err != nil {
		return err
	}

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	logging.Info().Msg("Dropped star schema")
	return nil
}

// SchemaVersion returns the applied migration version. A zero version means
// no migration has been applied.
func SchemaVersion(pool *pgxpool.Pool) (uint, bool, error) {
	m, err := newMigrator(pool)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// EnsureFeedTables creates any feed table that does not exist yet with the
// layout of TemplateFeedTable.
func EnsureFeedTables(ctx context.Context, pool *pgxpool.Pool, tables []string) error {
	template := pgx.Identifier{TemplateFeedTable}.Sanitize()
	for _, t := range tables {
		if t == TemplateFeedTable {
			continue
		}
		sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (LIKE %s INCLUDING ALL)",
			pgx.Identifier{t}.Sanitize(), template)
		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to create feed table %s: %w", t, err)
		}
		logging.Debug().Str("table", t).Msg("Ensured feed table")
	}
	return nil
}
