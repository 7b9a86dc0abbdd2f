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
package backend

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/qfleet/pkg/config"
	"github.com/teradata-labs/qfleet/pkg/types"
	"github.com/teradata-labs/qfleet/pkg/valuestore/sqlite"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendSQLite
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "qfleet.db")
	return cfg
}

func TestOpen_SQLiteWithCache(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Storage.CacheTTL = time.Minute

	b, err := Open(ctx, cfg, Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, sqlite.BackendName, b.Name)
	require.NotNil(t, b.Cache)
	assert.Same(t, b.Cache, b.Store)

	version, err := b.Migrator.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Positive(t, version)
	require.NoError(t, b.Ping(ctx))

	stats, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, sqlite.BackendName, stats.Backend)
}

func TestOpen_CachedBestActionExpiresWithRow(t *testing.T) {
	ctx := context.Background()
	var clock atomic.Int64
	clock.Store(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixNano())
	now := func() time.Time { return time.Unix(0, clock.Load()).UTC() }

	cfg := testConfig(t)
	cfg.Storage.TTL = time.Hour
	cfg.Storage.CacheTTL = time.Minute

	b, err := Open(ctx, cfg, Options{Logger: zaptest.NewLogger(t), Now: now})
	require.NoError(t, err)
	defer b.Close()
	require.NotNil(t, b.Cache)

	w := types.QValueWrite{
		AgentType:  types.AgentCoverageAnalyzer,
		StateHash:  strings.Repeat("c", 64),
		ActionHash: strings.Repeat("d", 64),
		ActionData: types.ActionData{"strategy": "branch"},
		Value:      0.6,
	}
	_, err = b.UpsertQValue(ctx, w)
	require.NoError(t, err)

	best, found, err := b.GetBestAction(ctx, w.AgentType, w.StateHash)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, now().Add(time.Hour).Equal(best.ExpiresAt), "expires at %v", best.ExpiresAt)
	assert.Equal(t, 1, b.Cache.Len())

	clock.Add(int64(2 * time.Hour))

	_, found, err = b.Cache.Store.GetBestAction(ctx, w.AgentType, w.StateHash)
	require.NoError(t, err)
	assert.False(t, found, "raw store filters the expired row")

	best, found, err = b.GetBestAction(ctx, w.AgentType, w.StateHash)
	require.NoError(t, err)
	assert.False(t, found, "cached entry must not outlive its row")
	assert.Nil(t, best)
}

func TestOpen_WithoutCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.CacheTTL = 0

	b, err := Open(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer b.Close()

	assert.Nil(t, b.Cache)
	_, ok := b.Store.(*sqlite.Store)
	assert.True(t, ok)
}

func TestOpen_SkipMigrations(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, testConfig(t), Options{SkipMigrations: true})
	require.NoError(t, err)
	defer b.Close()

	pending, err := b.Migrator.PendingMigrations(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, pending)
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = "cassandra"

	_, err := Open(context.Background(), cfg, Options{})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}
