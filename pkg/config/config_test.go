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
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/qfleet/pkg/types"
)

func TestDefault(t *testing.T) {
	t.Setenv(DataDirEnv, t.TempDir())
	cfg := Default()

	assert.Equal(t, 0.1, cfg.Learning.LearningRate)
	assert.Equal(t, 0.95, cfg.Learning.DiscountFactor)
	assert.Equal(t, 0.3, cfg.Learning.InitialExploration)
	assert.Equal(t, 0.01, cfg.Learning.MinExploration)
	assert.Equal(t, 0.995, cfg.Learning.ExplorationDecay)
	assert.Equal(t, 10, cfg.Learning.FlushEvery)
	assert.Equal(t, 100, cfg.Learning.MaxStepsPerEpisode)
	assert.Equal(t, 2*time.Second, cfg.Learning.StoreTimeout)

	assert.InDelta(t, 1.0, cfg.Reward.CoverageWeight+cfg.Reward.QualityWeight+
		cfg.Reward.TimeWeight+cfg.Reward.PatternWeight+cfg.Reward.CostWeight, 1e-9)
	assert.Equal(t, -50.0, cfg.Reward.FailurePenalty)
	assert.Equal(t, -25.0, cfg.Reward.TimeoutPenalty)

	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, 30*24*time.Hour, cfg.Storage.TTL)
	assert.Equal(t, DefaultSQLitePath(), cfg.Storage.SQLite.Path)
	assert.Equal(t, int32(25), cfg.Storage.Postgres.Pool.MaxConns)
	assert.Equal(t, int32(5), cfg.Storage.Postgres.Pool.MinConns)

	assert.Equal(t, "@every 1h", cfg.Cleanup.Schedule)
	assert.Equal(t, 1000, cfg.Cleanup.BatchSize)

	require.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(DataDirEnv, dir)
	path := filepath.Join(dir, "qfleet.yaml")
	content := `
learning:
  learning_rate: 0.2
  store_timeout: 500ms
storage:
  backend: postgres
  postgres:
    host: db.internal
    database: qfleet
    pool:
      max_conns: 10
cleanup:
  schedule: "0 */6 * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("QFLEET_LEARNING_DISCOUNT_FACTOR", "0.5")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 0.2, cfg.Learning.LearningRate)
	assert.Equal(t, 0.5, cfg.Learning.DiscountFactor)
	assert.Equal(t, 500*time.Millisecond, cfg.Learning.StoreTimeout)
	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, "db.internal", cfg.Storage.Postgres.Host)
	assert.Equal(t, int32(10), cfg.Storage.Postgres.Pool.MaxConns)
	assert.Equal(t, int32(5), cfg.Storage.Postgres.Pool.MinConns)
	assert.Equal(t, "0 */6 * * *", cfg.Cleanup.Schedule)
	assert.Empty(t, cfg.Storage.SQLite.Path)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(DataDirEnv, t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.Learning.LearningRate)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	t.Setenv(DataDirEnv, t.TempDir())
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"zero learning rate", func(c *Config) { c.Learning.LearningRate = 0 }, "learning_rate"},
		{"learning rate above one", func(c *Config) { c.Learning.LearningRate = 1.5 }, "learning_rate"},
		{"discount above one", func(c *Config) { c.Learning.DiscountFactor = 1.1 }, "discount_factor"},
		{"floor above start", func(c *Config) { c.Learning.MinExploration = 0.5 }, "min_exploration"},
		{"decay of one", func(c *Config) { c.Learning.ExplorationDecay = 1 }, "exploration_decay"},
		{"no flush cadence", func(c *Config) { c.Learning.FlushEvery = 0 }, "flush_every"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }, "storage.backend"},
		{"postgres without target", func(c *Config) { c.Storage.Backend = BackendPostgres }, "dsn or host"},
		{"pool inverted", func(c *Config) {
			c.Storage.Backend = BackendPostgres
			c.Storage.Postgres.DSN = "postgres://localhost/qfleet"
			c.Storage.Postgres.Pool.MinConns = 30
		}, "min_conns"},
		{"empty schedule", func(c *Config) { c.Cleanup.Schedule = "" }, "cleanup.schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(DataDirEnv, t.TempDir())
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	t.Setenv(DataDirEnv, t.TempDir())
	cfg := Default()
	cfg.Learning.LearningRate = 0
	cfg.Cleanup.BatchSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "learning_rate")
	assert.Contains(t, err.Error(), "batch_size")
}
