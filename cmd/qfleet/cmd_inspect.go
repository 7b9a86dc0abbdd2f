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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/teradata-labs/qfleet/pkg/encoder"
	"github.com/teradata-labs/qfleet/pkg/types"
	"github.com/teradata-labs/qfleet/pkg/valuestore"
	"github.com/teradata-labs/qfleet/pkg/valuestore/backend"
)

var (
	inspectAgentType string
	inspectContext   string
	inspectStateHash string
	inspectLimit     int
	inspectJSON      bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Read learned values, trajectories and agent state",
}

var inspectBestCmd = &cobra.Command{
	Use:   "best-action",
	Short: "Show the best known action for a state",
	Long: heredoc.Doc(`
		Show the highest-valued live action for a state. The state is given either
		as a raw task context (--context '{"complexity": 7}') which is encoded the way
		agents encode it, or directly as --state-hash.
	`),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(rt *runtime) error {
			at, hash, err := resolveState()
			if err != nil {
				return err
			}
			best, found, err := rt.backend.GetBestAction(cmd.Context(), at, hash)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !found {
				fmt.Fprintf(out, "No live values for %s state %s\n", at, hash)
				return nil
			}
			if jsonOutput(cmd) {
				return writeJSON(out, map[string]any{
					"agent_type":  at,
					"state_hash":  hash,
					"action_hash": best.ActionHash,
					"action_data": best.ActionData,
					"value":       best.Value,
					"visit_count": best.VisitCount,
				})
			}
			data, _ := json.Marshal(best.ActionData)
			fmt.Fprintf(out, "State:   %s\nAction:  %s %s\nValue:   %.4f\nVisits:  %d\n",
				hash, short(best.ActionHash), data, best.Value, best.VisitCount)
			return nil
		})
	},
}

var inspectValuesCmd = &cobra.Command{
	Use:   "values",
	Short: "List every live action value for a state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(rt *runtime) error {
			at, hash, err := resolveState()
			if err != nil {
				return err
			}
			values, err := rt.backend.GetStateValues(cmd.Context(), at, hash)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), values)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ACTION\tVALUE\tVISITS\tCONFIDENCE\tEXPIRES\tPAYLOAD")
			for _, v := range values {
				data, _ := json.Marshal(v.ActionData)
				fmt.Fprintf(w, "%s\t%.4f\t%d\t%.2f\t%s\t%s\n",
					short(v.ActionHash), v.Value, v.VisitCount, v.ConfidenceScore,
					v.ExpiresAt.Format(time.RFC3339), data)
			}
			return w.Flush()
		})
	},
}

var inspectStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize store contents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(rt *runtime) error {
			stats, err := rt.backend.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		})
	},
}

var inspectTrajectoriesCmd = &cobra.Command{
	Use:   "trajectories",
	Short: "List the most recent episodes of an agent type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := types.ParseAgentType(inspectAgentType)
		if err != nil {
			return err
		}
		return withStore(cmd, func(rt *runtime) error {
			trajs, err := rt.backend.RecentTrajectories(cmd.Context(), at, inspectLimit)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), trajs)
			}
			if len(trajs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No trajectories")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tAGENT\tSTEPS\tREWARD\tDISCOUNTED\tSUCCESS\tDONE\tCOMPLETED")
			for _, t := range trajs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%.3f\t%.3f\t%v\t%v\t%s\n",
					t.ID, t.AgentID, len(t.Steps), t.TotalReward, t.DiscountedReward,
					t.Success, t.Done, t.CompletedAt.Format(time.RFC3339))
			}
			return w.Flush()
		})
	},
}

var inspectTrajectoryCmd = &cobra.Command{
	Use:   "trajectory <id>",
	Short: "Print one trajectory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(rt *runtime) error {
			t, err := rt.backend.GetTrajectory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), t)
		})
	},
}

var inspectAgentCmd = &cobra.Command{
	Use:   "agent <agent-id>",
	Short: "Print the persisted learning state of an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(rt *runtime) error {
			state, err := rt.backend.LoadAgentState(cmd.Context(), args[0])
			if errors.Is(err, valuestore.ErrNotFound) {
				return fmt.Errorf("agent %q has no persisted state", args[0])
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), state)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{inspectBestCmd, inspectValuesCmd} {
		c.Flags().StringVarP(&inspectAgentType, "agent-type", "t", "", "agent type (required)")
		c.Flags().StringVar(&inspectContext, "context", "", "task context as a JSON object")
		c.Flags().StringVar(&inspectStateHash, "state-hash", "", "state hash, instead of --context")
		_ = c.MarkFlagRequired("agent-type")
		c.MarkFlagsMutuallyExclusive("context", "state-hash")
	}
	inspectTrajectoriesCmd.Flags().StringVarP(&inspectAgentType, "agent-type", "t", "", "agent type (required)")
	inspectTrajectoriesCmd.Flags().IntVarP(&inspectLimit, "limit", "n", 20, "maximum number of trajectories")
	_ = inspectTrajectoriesCmd.MarkFlagRequired("agent-type")

	inspectCmd.PersistentFlags().BoolVar(&inspectJSON, "json", false, "print JSON (default when stdout is not a terminal)")
	inspectCmd.AddCommand(inspectBestCmd, inspectValuesCmd, inspectStatsCmd,
		inspectTrajectoriesCmd, inspectTrajectoryCmd, inspectAgentCmd)
}

// resolveState turns the --agent-type/--context/--state-hash flags into a
// state key.
func resolveState() (types.AgentType, string, error) {
	at, err := types.ParseAgentType(inspectAgentType)
	if err != nil {
		return "", "", err
	}
	if inspectStateHash != "" {
		return at, inspectStateHash, nil
	}

	taskCtx := map[string]any{}
	if inspectContext != "" {
		if err := json.Unmarshal([]byte(inspectContext), &taskCtx); err != nil {
			return "", "", fmt.Errorf("--context must be a JSON object: %w", err)
		}
	}
	state, err := encoder.New().Encode(at, taskCtx)
	if err != nil {
		return "", "", err
	}
	return at, state.Hash, nil
}

func withStore(cmd *cobra.Command, fn func(rt *runtime) error) error {
	rt, err := setup(cmd.Context(), nil, backend.Options{})
	if err != nil {
		return err
	}
	defer rt.close()
	return fn(rt)
}

// jsonOutput reports whether results should be printed as JSON: on request,
// or when stdout is redirected.
func jsonOutput(cmd *cobra.Command) bool {
	if inspectJSON {
		return true
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	return !ok || !term.IsTerminal(int(f.Fd()))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
