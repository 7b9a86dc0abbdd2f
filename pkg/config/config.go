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

// Package config holds the qfleet configuration model, its defaults and
// validation. Values come from flags, a qfleet.yaml file, QFLEET_* environment
// variables and the defaults below, in that order of priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teradata-labs/qfleet/pkg/types"
)

const (
	// DefaultConfigFileName is the config file base name (qfleet.yaml).
	DefaultConfigFileName = "qfleet"
	// EnvPrefix prefixes every environment override, e.g. QFLEET_LEARNING_LEARNING_RATE.
	EnvPrefix = "QFLEET"

	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config is the root configuration.
type Config struct {
	// DataDir is computed from QFLEET_DATA_DIR, never read from the file.
	DataDir string `mapstructure:"-"`

	Learning LearningConfig `mapstructure:"learning"`
	Reward   RewardConfig   `mapstructure:"reward"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// LearningConfig holds the Q-learning hyperparameters shared by every agent type.
type LearningConfig struct {
	LearningRate       float64       `mapstructure:"learning_rate"`
	DiscountFactor     float64       `mapstructure:"discount_factor"`
	InitialExploration float64       `mapstructure:"initial_exploration"`
	MinExploration     float64       `mapstructure:"min_exploration"`
	ExplorationDecay   float64       `mapstructure:"exploration_decay"`
	InitialQValue      float64       `mapstructure:"initial_q_value"`
	FlushEvery         int           `mapstructure:"flush_every"`
	MaxStepsPerEpisode int           `mapstructure:"max_steps_per_episode"`
	StoreTimeout       time.Duration `mapstructure:"store_timeout"`
	FlushMaxRetries    int           `mapstructure:"flush_max_retries"`
}

// RewardConfig holds the reward weights and fixed adjustments. The defaults
// are empirical and meant to be tuned per deployment.
type RewardConfig struct {
	CoverageWeight         float64 `mapstructure:"coverage_weight"`
	QualityWeight          float64 `mapstructure:"quality_weight"`
	TimeWeight             float64 `mapstructure:"time_weight"`
	PatternWeight          float64 `mapstructure:"pattern_weight"`
	CostWeight             float64 `mapstructure:"cost_weight"`
	FailurePenalty         float64 `mapstructure:"failure_penalty"`
	TimeoutPenalty         float64 `mapstructure:"timeout_penalty"`
	CoverageBonus          float64 `mapstructure:"coverage_bonus"`
	QualityBonus           float64 `mapstructure:"quality_bonus"`
	CoverageBonusThreshold float64 `mapstructure:"coverage_bonus_threshold"`
	QualityBonusThreshold  float64 `mapstructure:"quality_bonus_threshold"`
}

// StorageConfig selects and configures the value store.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	TTL      time.Duration  `mapstructure:"ttl"`
	CacheTTL time.Duration  `mapstructure:"cache_ttl"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// SQLiteConfig configures the single-node backend.
type SQLiteConfig struct {
	Path         string `mapstructure:"path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// PostgresConfig configures the fleet backend. DSN, when set, wins over the
// individual fields.
type PostgresConfig struct {
	DSN      string     `mapstructure:"dsn"`
	Host     string     `mapstructure:"host"`
	Port     int        `mapstructure:"port"`
	Database string     `mapstructure:"database"`
	User     string     `mapstructure:"user"`
	Password string     `mapstructure:"password"`
	SSLMode  string     `mapstructure:"ssl_mode"`
	Schema   string     `mapstructure:"schema"`
	Pool     PoolConfig `mapstructure:"pool"`
}

// PoolConfig bounds the PostgreSQL connection pool. The size is fixed at startup.
type PoolConfig struct {
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// CleanupConfig schedules the expired-row reaper.
type CleanupConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Schedule  string `mapstructure:"schedule"`
	BatchSize int    `mapstructure:"batch_size"`
}

// LoggingConfig configures the zap logger built by the CLI.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MetricsConfig configures the Prometheus endpoint exposed by `serve`.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("learning.learning_rate", 0.1)
	v.SetDefault("learning.discount_factor", 0.95)
	v.SetDefault("learning.initial_exploration", 0.3)
	v.SetDefault("learning.min_exploration", 0.01)
	v.SetDefault("learning.exploration_decay", 0.995)
	v.SetDefault("learning.initial_q_value", 0.0)
	v.SetDefault("learning.flush_every", 10)
	v.SetDefault("learning.max_steps_per_episode", 100)
	v.SetDefault("learning.store_timeout", 2*time.Second)
	v.SetDefault("learning.flush_max_retries", 3)

	v.SetDefault("reward.coverage_weight", 0.30)
	v.SetDefault("reward.quality_weight", 0.25)
	v.SetDefault("reward.time_weight", 0.20)
	v.SetDefault("reward.pattern_weight", 0.15)
	v.SetDefault("reward.cost_weight", 0.10)
	v.SetDefault("reward.failure_penalty", -50.0)
	v.SetDefault("reward.timeout_penalty", -25.0)
	v.SetDefault("reward.coverage_bonus", 10.0)
	v.SetDefault("reward.quality_bonus", 10.0)
	v.SetDefault("reward.coverage_bonus_threshold", 90.0)
	v.SetDefault("reward.quality_bonus_threshold", 90.0)

	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.ttl", 30*24*time.Hour)
	v.SetDefault("storage.cache_ttl", 5*time.Second)
	v.SetDefault("storage.sqlite.path", "")
	v.SetDefault("storage.sqlite.max_open_conns", 8)
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.ssl_mode", "require")
	v.SetDefault("storage.postgres.schema", "public")
	v.SetDefault("storage.postgres.pool.max_conns", 25)
	v.SetDefault("storage.postgres.pool.min_conns", 5)
	v.SetDefault("storage.postgres.pool.max_conn_idle_time", 5*time.Minute)
	v.SetDefault("storage.postgres.pool.max_conn_lifetime", time.Hour)
	v.SetDefault("storage.postgres.pool.health_check_period", 30*time.Second)

	v.SetDefault("cleanup.enabled", true)
	v.SetDefault("cleanup.schedule", "@every 1h")
	v.SetDefault("cleanup.batch_size", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9464")
	v.SetDefault("metrics.namespace", "qfleet")
}

// Default returns the configuration produced by the defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// defaults are all well-typed; decoding cannot fail
	_ = v.Unmarshal(&cfg)
	cfg.finish()
	return &cfg
}

// Load reads cfgFile (or searches the standard locations), applies QFLEET_*
// environment overrides and returns the decoded configuration. A missing
// config file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(GetDataDir())
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/qfleet/")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.finish()
	return &cfg, nil
}

func (c *Config) finish() {
	c.DataDir = GetDataDir()
	if c.Storage.Backend == BackendSQLite && c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = DefaultSQLitePath()
	}
}

// Validate reports every invalid setting at once. Only invalid configuration
// is fatal at startup; everything else degrades at runtime.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	l := c.Learning
	if l.LearningRate <= 0 || l.LearningRate > 1 {
		add("learning.learning_rate must be in (0, 1], got %v", l.LearningRate)
	}
	if l.DiscountFactor < 0 || l.DiscountFactor > 1 {
		add("learning.discount_factor must be in [0, 1], got %v", l.DiscountFactor)
	}
	if l.MinExploration <= 0 || l.MinExploration > l.InitialExploration {
		add("learning.min_exploration must be in (0, initial_exploration], got %v", l.MinExploration)
	}
	if l.InitialExploration > 1 {
		add("learning.initial_exploration must be at most 1, got %v", l.InitialExploration)
	}
	if l.ExplorationDecay <= 0 || l.ExplorationDecay >= 1 {
		add("learning.exploration_decay must be in (0, 1), got %v", l.ExplorationDecay)
	}
	if l.FlushEvery <= 0 {
		add("learning.flush_every must be positive, got %d", l.FlushEvery)
	}
	if l.MaxStepsPerEpisode <= 0 {
		add("learning.max_steps_per_episode must be positive, got %d", l.MaxStepsPerEpisode)
	}
	if l.StoreTimeout <= 0 {
		add("learning.store_timeout must be positive, got %v", l.StoreTimeout)
	}

	if c.Storage.TTL <= 0 {
		add("storage.ttl must be positive, got %v", c.Storage.TTL)
	}
	switch c.Storage.Backend {
	case BackendSQLite:
	case BackendPostgres:
		pg := c.Storage.Postgres
		if pg.DSN == "" && (pg.Host == "" || pg.Database == "") {
			add("storage.postgres requires dsn or host+database")
		}
		if pg.Pool.MaxConns > 0 && pg.Pool.MinConns > pg.Pool.MaxConns {
			add("storage.postgres.pool.min_conns (%d) exceeds max_conns (%d)", pg.Pool.MinConns, pg.Pool.MaxConns)
		}
	default:
		add("storage.backend must be %q or %q, got %q", BackendSQLite, BackendPostgres, c.Storage.Backend)
	}

	if c.Cleanup.Enabled && c.Cleanup.Schedule == "" {
		add("cleanup.schedule is required when cleanup is enabled")
	}
	if c.Cleanup.BatchSize <= 0 {
		add("cleanup.batch_size must be positive, got %d", c.Cleanup.BatchSize)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", types.ErrInvalidConfig, errors.Join(errs...))
}
