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

// Package sqlite implements valuestore.Store on an embedded SQLite database.
// It suits single-node deployments, development and tests; fleets sharing one
// store across hosts use the postgres package.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/qfleet/internal/sqlitedriver"
	"github.com/teradata-labs/qfleet/pkg/observability"
	"github.com/teradata-labs/qfleet/pkg/valuestore"
)

// BackendName identifies this implementation in spans and stats.
const BackendName = "sqlite"

// Config configures Open.
type Config struct {
	Path         string
	MaxOpenConns int
	// SkipMigrations leaves the schema untouched; the caller migrates.
	SkipMigrations bool

	valuestore.Options
	Tracer observability.Tracer
	Logger *zap.Logger
}

// Store is the SQLite value store.
type Store struct {
	db       *sql.DB
	migrator *Migrator
	opts     valuestore.Options
	tracer   observability.Tracer
	logger   *zap.Logger
}

var (
	_ valuestore.Store    = (*Store)(nil)
	_ valuestore.Migrator = (*Store)(nil)
)

// Open opens (creating if needed) the database at cfg.Path and applies
// pending migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sqlitedriver.Open(ctx, cfg.Path, sqlitedriver.Options{MaxOpenConns: cfg.MaxOpenConns})
	if err != nil {
		return nil, err
	}

	s, err := New(db, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if !cfg.SkipMigrations {
		if err := s.MigrateUp(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate sqlite store: %w", err)
		}
	}

	s.logger.Info("SQLite value store opened",
		zap.String("path", cfg.Path),
		zap.Duration("ttl", s.opts.TTL))
	return s, nil
}

// New wraps an already opened database. The schema is not migrated.
func New(db *sql.DB, cfg Config) (*Store, error) {
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	migrator, err := NewMigrator(db, cfg.Tracer)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:       db,
		migrator: migrator,
		opts:     cfg.Options.WithDefaults(),
		tracer:   cfg.Tracer,
		logger:   cfg.Logger,
	}, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

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
	if err := s.db.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

// Close implements valuestore.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) startSpan(ctx context.Context, name string) (context.Context, *observability.Span) {
	return s.tracer.StartSpan(ctx, "valuestore.sqlite."+name,
		observability.WithAttribute(observability.AttrBackend, BackendName))
}

func (s *Store) now() time.Time {
	return s.opts.Now()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
