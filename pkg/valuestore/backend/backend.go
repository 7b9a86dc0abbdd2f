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
// Package backend opens the value store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/qfleet/pkg/config"
	"github.com/teradata-labs/qfleet/pkg/observability"
	"github.com/teradata-labs/qfleet/pkg/types"
	"github.com/teradata-labs/qfleet/pkg/valuestore"
	"github.com/teradata-labs/qfleet/pkg/valuestore/postgres"
	"github.com/teradata-labs/qfleet/pkg/valuestore/sqlite"
)

// Options tune Open beyond what the configuration file carries.
type Options struct {
	// SkipMigrations opens the store without applying pending migrations.
	SkipMigrations bool
	Tracer         observability.Tracer
	Logger         *zap.Logger
	// Now overrides the store clock in tests.
	Now func() time.Time
}

// Backend is an opened value store. Store is the CachedStore wrapper when
// caching is enabled and the raw implementation otherwise.
type Backend struct {
	valuestore.Store
	Name     string
	Migrator valuestore.Migrator
	Cache    *valuestore.CachedStore
}

// Open creates the store named by cfg.Storage.Backend. An empty backend
// name selects SQLite.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Backend, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = observability.NewNoOpTracer()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	storeOpts := valuestore.Options{
		TTL:          cfg.Storage.TTL,
		CleanupBatch: cfg.Cleanup.BatchSize,
		Now:          opts.Now,
	}

	var (
		raw      valuestore.Store
		migrator valuestore.Migrator
		name     string
	)
	switch cfg.Storage.Backend {
	case "", config.BackendSQLite:
		s, err := sqlite.Open(ctx, sqlite.Config{
			Path:           cfg.Storage.SQLite.Path,
			MaxOpenConns:   cfg.Storage.SQLite.MaxOpenConns,
			SkipMigrations: opts.SkipMigrations,
			Options:        storeOpts,
			Tracer:         opts.Tracer,
			Logger:         opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		raw, migrator, name = s, s, sqlite.BackendName

	case config.BackendPostgres:
		s, err := postgres.Open(ctx, postgres.Config{
			Postgres:       cfg.Storage.Postgres,
			SkipMigrations: opts.SkipMigrations,
			Options:        storeOpts,
			Tracer:         opts.Tracer,
			Logger:         opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		raw, migrator, name = s, s, postgres.BackendName

	default:
		return nil, fmt.Errorf("unsupported storage backend %q: %w", cfg.Storage.Backend, types.ErrInvalidConfig)
	}

	b := &Backend{Store: raw, Name: name, Migrator: migrator}
	if cfg.Storage.CacheTTL > 0 {
		b.Cache = valuestore.NewCachedStore(raw, cfg.Storage.CacheTTL, opts.Tracer).WithClock(opts.Now)
		b.Store = b.Cache
	}

	opts.Logger.Debug("Value store backend ready",
		zap.String("backend", name),
		zap.Bool("cached", b.Cache != nil))
	return b, nil
}
