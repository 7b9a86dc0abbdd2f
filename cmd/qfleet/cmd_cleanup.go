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
	"fmt"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/qfleet/pkg/valuestore"
	"github.com/teradata-labs/qfleet/pkg/valuestore/backend"
)

var cleanupTimeout time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired Q-values and trajectories once",
	Long: heredoc.Doc(`
		Run a single reaping pass over the value store. Rows are removed in
		batches of cleanup.batch_size. Reads already ignore expired rows, so this only
		reclaims space; "qfleet serve" runs the same pass on cleanup.schedule.
	`),
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupTimeout, "timeout", 5*time.Minute, "upper bound for the pass")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := setup(ctx, nil, backend.Options{})
	if err != nil {
		return err
	}
	defer rt.close()

	reaper, err := valuestore.NewReaper(rt.backend, valuestore.ReaperConfig{
		Schedule: rt.cfg.Cleanup.Schedule,
		Timeout:  cleanupTimeout,
		Tracer:   rt.tracer,
		Logger:   rt.logger,
	})
	if err != nil {
		return err
	}

	res, err := reaper.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	rt.logger.Debug("Cleanup finished", zap.Int64("removed", res.Total()))
	return writeJSON(cmd.OutOrStdout(), res)
}
