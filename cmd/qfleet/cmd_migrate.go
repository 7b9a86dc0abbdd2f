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
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/qfleet/pkg/valuestore/backend"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the value store schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd.Context(), func(rt *runtime) error {
			if err := rt.backend.Migrator.MigrateUp(cmd.Context()); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			v, err := rt.backend.Migrator.CurrentVersion(cmd.Context())
			if err != nil {
				return err
			}
			rt.logger.Info("Schema up to date", zap.String("backend", rt.backend.Name), zap.Int("version", v))
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d\n", rt.backend.Name, v)
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back the most recent migrations (default 1)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[0])
			}
			steps = n
		}
		return withMigrator(cmd.Context(), func(rt *runtime) error {
			if err := rt.backend.Migrator.MigrateDown(cmd.Context(), steps); err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			v, err := rt.backend.Migrator.CurrentVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema rolled back to version %d\n", rt.backend.Name, v)
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current schema version and pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd.Context(), func(rt *runtime) error {
			v, err := rt.backend.Migrator.CurrentVersion(cmd.Context())
			if err != nil {
				return err
			}
			pending, err := rt.backend.Migrator.PendingMigrations(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Backend: %s\nVersion: %d\n", rt.backend.Name, v)
			if len(pending) == 0 {
				fmt.Fprintln(out, "No pending migrations")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tDESCRIPTION")
			for _, m := range pending {
				fmt.Fprintf(w, "%d\t%s\n", m.Version, m.Description)
			}
			return w.Flush()
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}

// withMigrator opens the store without migrating it and runs fn.
func withMigrator(ctx context.Context, fn func(rt *runtime) error) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	rt, err := setup(ctx, nil, backend.Options{SkipMigrations: true})
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.backend.Migrator == nil {
		fmt.Fprintf(os.Stderr, "%s backend has no versioned schema\n", rt.backend.Name)
		return nil
	}
	return fn(rt)
}
