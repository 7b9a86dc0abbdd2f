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
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/qfleet/internal/version"
	"github.com/teradata-labs/qfleet/pkg/config"
	"github.com/teradata-labs/qfleet/pkg/observability"
	"github.com/teradata-labs/qfleet/pkg/valuestore/backend"
)

var (
	cfgFile   string
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "qfleet",
	Short: "qfleet - reinforcement-learning value store for agent fleets",
	Long: heredoc.Doc(`
		qfleet manages the Q-value store shared by a fleet of learning agents:
		schema migrations, expired-row cleanup, inspection of learned values and a
		long-running server exposing fleet status and Prometheus metrics.
	`),
	Version:       version.Get(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $QFLEET_DATA_DIR/qfleet.yaml)")

	rootCmd.PersistentFlags().String("backend", config.BackendSQLite, "value store backend (sqlite, postgres)")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (default: $QFLEET_DATA_DIR/qfleet.db)")
	rootCmd.PersistentFlags().String("postgres-dsn", "", "PostgreSQL connection string")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")
	rootCmd.PersistentFlags().String("log-file", "", "write logs to this file instead of stderr")

	_ = viper.BindPFlag("storage.backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("storage.sqlite.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("storage.postgres.dsn", rootCmd.PersistentFlags().Lookup("postgres-dsn"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(migrateCmd, cleanupCmd, serveCmd, inspectCmd, simulateCmd)
}

// initConfig reads the config file and QFLEET_* environment variables.
func initConfig() {
	var err error
	appConfig, err = config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}

// runtime bundles what every subcommand needs.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	level   zap.AtomicLevel
	tracer  observability.Tracer
	backend *backend.Backend
}

// setup validates the configuration, builds the logger and tracer and opens
// the store. reg may be nil when metrics are not exported.
func setup(ctx context.Context, reg prometheus.Registerer, opts backend.Options) (*runtime, error) {
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	logger, level, err := newLogger(appConfig.Logging)
	if err != nil {
		return nil, err
	}

	var tracer observability.Tracer = observability.NewNoOpTracer()
	if reg != nil {
		prom, err := observability.NewPrometheusTracer(appConfig.Metrics.Namespace, reg, logger)
		if err != nil {
			_ = logger.Sync()
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		tracer = prom
	}

	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug("Config file loaded", zap.String("path", used))
	}

	opts.Tracer = tracer
	opts.Logger = logger
	b, err := backend.Open(ctx, appConfig, opts)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to open %s store: %w", appConfig.Storage.Backend, err)
	}

	return &runtime{cfg: appConfig, logger: logger, level: level, tracer: tracer, backend: b}, nil
}

func (r *runtime) close() {
	if err := r.backend.Close(); err != nil {
		r.logger.Warn("Error closing store", zap.Error(err))
	}
	_ = r.logger.Sync()
}
