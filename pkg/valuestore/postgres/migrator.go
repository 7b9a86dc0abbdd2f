// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teradata-labs/qfleet/pkg/observability"
	"github.com/teradata-labs/qfleet/pkg/valuestore"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationAdvisoryLockID serializes migrations across every process
// sharing the database.
const migrationAdvisoryLockID = 587310944

// Migrator manages the PostgreSQL schema with embedded SQL files.
type Migrator struct {
	pool       *pgxpool.Pool
	tracer     observability.Tracer
	migrations []valuestore.Migration
}

// NewMigrator loads the embedded migrations for pool.
func NewMigrator(pool *pgxpool.Pool, tracer observability.Tracer) (*Migrator, error) {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}

	list, err := valuestore.LoadMigrations(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	return &Migrator{
		pool:       pool,
		tracer:     tracer,
		migrations: list,
	}, nil
}

// withLock runs fn on one dedicated connection holding the migration
// advisory lock. Session-level advisory locks belong to a connection, so
// lock and unlock must not go through the pool separately.
func (m *Migrator) withLock(ctx context.Context, fn func(conn *pgxpool.Conn) error) error {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationAdvisoryLockID); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationAdvisoryLockID)
	}()

	return fn(conn)
}

// MigrateUp applies all pending migrations.
func (m *Migrator) MigrateUp(ctx context.Context) error {
	ctx, span := m.tracer.StartSpan(ctx, "valuestore.postgres.migrate_up")
	defer m.tracer.EndSpan(span)

	err := m.withLock(ctx, func(conn *pgxpool.Conn) error {
		if err := ensureMigrationsTable(ctx, conn); err != nil {
			return err
		}

		currentVersion, err := currentVersion(ctx, conn)
		if err != nil {
			return err
		}
		span.SetAttribute("current_version", currentVersion)

		applied := 0
		for _, migration := range m.migrations {
			if migration.Version <= currentVersion {
				continue
			}
			if err := applyMigration(ctx, conn, migration); err != nil {
				return fmt.Errorf("migration %d failed: %w", migration.Version, err)
			}
			applied++
		}
		span.SetAttribute("migrations_applied", applied)
		return nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// MigrateDown rolls back up to steps applied migrations, newest first.
func (m *Migrator) MigrateDown(ctx context.Context, steps int) error {
	ctx, span := m.tracer.StartSpan(ctx, "valuestore.postgres.migrate_down")
	defer m.tracer.EndSpan(span)
	span.SetAttribute("steps", steps)

	err := m.withLock(ctx, func(conn *pgxpool.Conn) error {
		currentVersion, err := currentVersion(ctx, conn)
		if err != nil {
			return err
		}
		span.SetAttribute("current_version", currentVersion)

		rolled := 0
		for i := len(m.migrations) - 1; i >= 0 && rolled < steps; i-- {
			migration := m.migrations[i]
			if migration.Version > currentVersion {
				continue
			}
			if err := rollbackMigration(ctx, conn, migration); err != nil {
				return fmt.Errorf("rollback of migration %d failed: %w", migration.Version, err)
			}
			rolled++
		}
		span.SetAttribute("migrations_rolled_back", rolled)
		return nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// CurrentVersion returns the highest applied version, or 0 on a fresh database.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()
	return currentVersion(ctx, conn)
}

// PendingMigrations lists migrations not yet applied.
func (m *Migrator) PendingMigrations(ctx context.Context) ([]valuestore.Migration, error) {
	version, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	return valuestore.MigrationsAfter(m.migrations, version), nil
}

func currentVersion(ctx context.Context, conn *pgxpool.Conn) (int, error) {
	var exists bool
	if err := conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = 'schema_migrations')",
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check for schema_migrations table: %w", err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	if err := conn.QueryRow(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations",
	).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current migration version: %w", err)
	}
	return version, nil
}

func ensureMigrationsTable(ctx context.Context, conn *pgxpool.Conn) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			description TEXT
		)
	`)
	return err
}

func applyMigration(ctx context.Context, conn *pgxpool.Conn, migration valuestore.Migration) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, migration.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING",
		migration.Version, migration.Description,
	); err != nil {
		return fmt.Errorf("failed to record migration version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

func rollbackMigration(ctx context.Context, conn *pgxpool.Conn, migration valuestore.Migration) error {
	if migration.DownSQL == "" {
		return fmt.Errorf("no down migration for version %d", migration.Version)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, migration.DownSQL); err != nil {
		return fmt.Errorf("failed to execute rollback SQL: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", migration.Version); err != nil {
		return fmt.Errorf("failed to remove migration version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}
	return nil
}
