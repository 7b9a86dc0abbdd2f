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

// Package postgres implements valuestore.Store on PostgreSQL through a
// bounded pgx pool. It is the backend for fleets whose learners run in
// several processes or hosts and share one system of record.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/teradata-labs/qfleet/internal/pgxdriver"
	"github.com/teradata-labs/qfleet/pkg/config"
	"github.com/teradata-labs/qfleet/pkg/observability"
	"github.com/teradata-labs/qfleet/pkg/valuestore"
)

// BackendName identifies this implementation in spans and stats.
const BackendName = "postgres"

// Config configures Open.
type Config struct {
	Postgres       config.PostgresConfig
	SkipMigrations bool

	valuestore.Options
	Tracer observability.Tracer
	Logger *zap.Logger
}

// Store is the PostgreSQL value store.
type Store struct {
	pool     *pgxpool.Pool
	migrator *Migrator
	opts     valuestore.Options
	tracer   observability.Tracer
	logger   *zap.Logger
}

var (
	_ valuestore.Store    = (*Store)(nil)
	_ valuestore.Migrator = (*Store)(nil)
)

// Open creates the pool and applies pending migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	pool, err := pgxdriver.NewPool(ctx, cfg.Postgres, cfg.Tracer)
	if err != nil {
		return nil, err
	}

	s, err := New(pool, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	if !cfg.SkipMigrations {
		if err := s.MigrateUp(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate postgres store: %w", err)
		}
	}

	s.logger.Info("PostgreSQL value store opened",
		zap.Int32("max_conns", pool.Config().MaxConns),
		zap.Duration("ttl", s.opts.TTL))
	return s, nil
}

// New wraps an existing pool. The schema is not migrated.
func New(pool *pgxpool.Pool, cfg Config) (*Store, error) {
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	migrator, err := NewMigrator(pool, cfg.Tracer)
	if err != nil {
		return nil, err
	}

	return &Store{
		pool:     pool,
		migrator: migrator,
		opts:     cfg.Options.WithDefaults(),
		tracer:   cfg.Tracer,
		logger:   cfg.Logger,
	}, nil
}

// Pool exposes the underlying pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) MigrateUp(ctx context.Context) error { return s.migrator.MigrateUp(ctx) }

func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.migrator.MigrateDown(ctx, steps)
}

func (s *Store) CurrentVersion(ctx context.Context) (int, error) {
	return s.migrator.CurrentVersion(ctx)
}

func (s *Store) PendingMigrations(ctx context.Context) ([]valuestore.Migration, error) {
	return s.migrator.PendingMigrations(ctx)
}

// Ping implements valuestore.Store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

// Close implements valuestore.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) startSpan(ctx context.Context, name string) (context.Context, *observability.Span) {
	return s.tracer.StartSpan(ctx, "valuestore.postgres."+name,
		observability.WithAttribute(observability.AttrBackend, BackendName))
}

func (s *Store) now() time.Time {
	return s.opts.Now()
}
