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
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teradata-labs/qfleet/pkg/fleet"
	"github.com/teradata-labs/qfleet/pkg/learning"
	"github.com/teradata-labs/qfleet/pkg/types"
	"github.com/teradata-labs/qfleet/pkg/valuestore/backend"
)

var serveActionsFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fleet with cleanup, status and metrics endpoints",
	Long: heredoc.Doc(`
		Run a long-lived fleet process. It applies pending migrations, restores
		one learner per agent type listed in --actions, runs the expired-row reaper on
		cleanup.schedule and serves /healthz, /status and /metrics on metrics.addr.
	`),
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from metrics.addr)")
	serveCmd.Flags().StringVar(&serveActionsFile, "actions", "", "YAML file with action spaces; one learner is spawned per agent type")
	_ = viper.BindPFlag("metrics.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var reg *prometheus.Registry
	if appConfig.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	var registerer prometheus.Registerer
	if reg != nil {
		registerer = reg
	}
	rt, err := setup(ctx, registerer, backend.Options{})
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger

	f, err := fleet.New(fleet.Deps{
		Config: rt.cfg,
		Store:  rt.backend,
		Tracer: rt.tracer,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	var spaces map[types.AgentType]learning.ActionSpace
	if serveActionsFile != "" {
		spaces, err = learning.LoadActionSpaces(serveActionsFile, f.Encoder())
		if err != nil {
			return err
		}
	}
	if err := startFleet(ctx, f, spaces); err != nil {
		return err
	}
	watchLogLevel(rt)

	var gatherer prometheus.Gatherer
	if reg != nil {
		gatherer = reg
	}
	srv := &http.Server{
		Addr:              rt.cfg.Metrics.Addr,
		Handler:           newMux(f, rt.backend, rt.backend.Name, gatherer, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Status server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("Fleet running",
		zap.String("backend", rt.backend.Name),
		zap.Int("learners", len(f.Learners())),
		zap.Bool("cleanup", rt.cfg.Cleanup.Enabled))

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigch)

	var serveErr error
	select {
	case <-sigch:
		logger.Info("Shutting down gracefully...")
	case serveErr = <-errCh:
		logger.Error("Status server failed", zap.Error(serveErr))
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error stopping status server", zap.Error(err))
	}
	if err := f.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Fleet shutdown left updates unpersisted", zap.Error(err))
		serveErr = errors.Join(serveErr, err)
	}
	logger.Info("Shutdown complete")
	return serveErr
}

// startFleet spawns one learner per agent type in spaces and starts the
// reaper. On failure the fleet is shut down so spawned learners still get
// their final flush.
func startFleet(ctx context.Context, f *fleet.Fleet, spaces map[types.AgentType]learning.ActionSpace) error {
	agentTypes := make([]types.AgentType, 0, len(spaces))
	for at := range spaces {
		agentTypes = append(agentTypes, at)
	}
	sort.Slice(agentTypes, func(i, j int) bool { return agentTypes[i] < agentTypes[j] })

	for _, at := range agentTypes {
		if _, err := f.Spawn(ctx, at, fmt.Sprintf("%s-0", at), spaces[at]); err != nil {
			_ = f.Shutdown(context.WithoutCancel(ctx))
			return err
		}
	}
	if err := f.Start(); err != nil {
		_ = f.Shutdown(context.WithoutCancel(ctx))
		return fmt.Errorf("start fleet: %w", err)
	}
	return nil
}

// watchLogLevel applies logging.level changes from the config file without a
// restart. Other settings need a restart.
func watchLogLevel(rt *runtime) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(viper.GetString("logging.level"))); err != nil {
			rt.logger.Warn("Ignoring invalid log level from config", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if lvl == rt.level.Level() {
			return
		}
		rt.level.SetLevel(lvl)
		rt.logger.Info("Log level changed", zap.String("file", e.Name), zap.Stringer("level", lvl))
	})
	viper.WatchConfig()
}
