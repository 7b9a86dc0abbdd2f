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
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/qfleet/pkg/encoder"
	"github.com/teradata-labs/qfleet/pkg/fleet"
	"github.com/teradata-labs/qfleet/pkg/learning"
	"github.com/teradata-labs/qfleet/pkg/types"
	"github.com/teradata-labs/qfleet/pkg/valuestore/backend"
)

var (
	simTypes         []string
	simAgentsPerType int
	simEpisodes      int
	simSteps         int
	simSeed          int64
	simActionsFile   string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Train a fleet against a synthetic environment",
	Long: heredoc.Doc(`
		Spawn learners and run episodes against a synthetic task environment in
		which one action per state pays off noticeably better than the rest. Learned
		values are written to the configured store, so repeated runs continue from the
		previous state. Useful for smoke-testing a deployment and for watching the
		exploration rate decay.
	`),
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringSliceVar(&simTypes, "types", nil, "agent types to simulate (default: all)")
	simulateCmd.Flags().IntVar(&simAgentsPerType, "agents-per-type", 1, "learners per agent type")
	simulateCmd.Flags().IntVar(&simEpisodes, "episodes", 50, "episodes per learner")
	simulateCmd.Flags().IntVar(&simSteps, "steps", 3, "steps per episode")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 0, "random seed; 0 picks one from the clock")
	simulateCmd.Flags().StringVar(&simActionsFile, "actions", "", "YAML file with action spaces per agent type")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simAgentsPerType < 1 || simEpisodes < 1 || simSteps < 1 {
		return fmt.Errorf("--agents-per-type, --episodes and --steps must be positive")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx, nil, backend.Options{})
	if err != nil {
		return err
	}
	defer rt.close()

	agentTypes, err := parseAgentTypes(simTypes)
	if err != nil {
		return err
	}

	seed := simSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	f, err := fleet.New(fleet.Deps{
		Config: rt.cfg,
		Store:  rt.backend,
		Tracer: rt.tracer,
		Logger: rt.logger,
		Seed:   seed,
	})
	if err != nil {
		return err
	}

	spaces, err := simulationSpaces(f.Encoder(), agentTypes, simActionsFile)
	if err != nil {
		return err
	}

	var learners []*learning.Learner
	for _, at := range agentTypes {
		for i := 0; i < simAgentsPerType; i++ {
			l, err := f.Spawn(ctx, at, fmt.Sprintf("sim-%s-%d", at, i), spaces[at])
			if err != nil {
				_ = f.Shutdown(context.WithoutCancel(ctx))
				return err
			}
			learners = append(learners, l)
		}
	}

	rt.logger.Info("Starting simulation",
		zap.Int("learners", len(learners)),
		zap.Int("episodes", simEpisodes),
		zap.Int64("seed", seed))

	errs := make([]error, len(learners))
	var wg sync.WaitGroup
	for i, l := range learners {
		wg.Add(1)
		go func(i int, l *learning.Learner) {
			defer wg.Done()
			env := newSyntheticEnv(f.Encoder(), l.AgentType(), spaces[l.AgentType()], simSteps, rand.New(rand.NewSource(seed+int64(i))))
			errs[i] = runEpisodes(ctx, l, env, simEpisodes, rt.logger)
		}(i, l)
	}
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := f.Shutdown(shutdownCtx); err != nil {
		rt.logger.Warn("Some learning updates were not persisted", zap.Error(err))
	}

	printStatus(cmd, f.Status())
	return errors.Join(errs...)
}

func runEpisodes(ctx context.Context, l *learning.Learner, env *syntheticEnv, episodes int, logger *zap.Logger) error {
	for e := 0; e < episodes; e++ {
		_, err := l.RunEpisode(ctx, env)
		var limit *types.EpisodeStepLimitExceeded
		switch {
		case err == nil:
		case errors.As(err, &limit):
			logger.Debug("Episode hit step limit", zap.String("agent_id", l.AgentID()))
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("%s: episode %d: %w", l.AgentID(), e, err)
		}
	}
	return nil
}

func printStatus(cmd *cobra.Command, status []fleet.LearnerStatus) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tTYPE\tATTEMPTED\tSUCCESS\tREWARD\tEPSILON\tPATTERNS\tFLUSH FAILURES")
	for _, s := range status {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.1f%%\t%.2f\t%.3f\t%d\t%d\n",
			s.AgentID, s.AgentType, s.TasksAttempted, 100*s.SuccessRate(),
			s.TotalReward, s.ExplorationRate, s.PatternsLearned, s.Counters.FlushFailures)
	}
	_ = w.Flush()
}

func parseAgentTypes(names []string) ([]types.AgentType, error) {
	if len(names) == 0 {
		return types.AllAgentTypes(), nil
	}
	out := make([]types.AgentType, 0, len(names))
	for _, n := range names {
		at, err := types.ParseAgentType(n)
		if err != nil {
			return nil, err
		}
		out = append(out, at)
	}
	return out, nil
}

var defaultStrategies = []types.ActionData{
	{"strategy": "conservative", "parallelism": 1},
	{"strategy": "balanced", "parallelism": 2},
	{"strategy": "aggressive", "parallelism": 4},
	{"strategy": "exhaustive", "parallelism": 8},
}

// simulationSpaces loads action spaces from path, or gives every agent type
// the default strategies when path is empty.
func simulationSpaces(enc *encoder.Encoder, agentTypes []types.AgentType, path string) (map[types.AgentType]learning.ActionSpace, error) {
	if path != "" {
		spaces, err := learning.LoadActionSpaces(path, enc)
		if err != nil {
			return nil, err
		}
		for _, at := range agentTypes {
			if _, ok := spaces[at]; !ok {
				return nil, fmt.Errorf("%s defines no action space for %s", path, at)
			}
		}
		return spaces, nil
	}

	spaces := make(map[types.AgentType]learning.ActionSpace, len(agentTypes))
	for _, at := range agentTypes {
		space, err := learning.NewActionSpace(enc, at, defaultStrategies)
		if err != nil {
			return nil, err
		}
		spaces[at] = space
	}
	return spaces, nil
}

var (
	simLanguages    = []string{"go", "python", "typescript", "java"}
	simFrameworks   = []string{"testing", "pytest", "jest", "junit"}
	simEnvironments = []string{"dev", "staging", "production"}
)

// syntheticEnv pays off one preferred action per encoded state. The
// preferred action is derived from the state hash, so every learner of a
// type faces the same hidden optimum.
type syntheticEnv struct {
	enc       *encoder.Encoder
	agentType types.AgentType
	space     learning.ActionSpace
	steps     int
	rng       *rand.Rand

	step    int
	current map[string]any
}

func newSyntheticEnv(enc *encoder.Encoder, at types.AgentType, space learning.ActionSpace, steps int, rng *rand.Rand) *syntheticEnv {
	return &syntheticEnv{enc: enc, agentType: at, space: space, steps: steps, rng: rng}
}

func (e *syntheticEnv) Observe(ctx context.Context) (map[string]any, error) {
	e.step = 0
	e.current = e.randomContext()
	return e.current, nil
}

func (e *syntheticEnv) Execute(ctx context.Context, action types.Action) (types.Outcome, error) {
	preferred, err := e.preferred(e.current)
	if err != nil {
		return types.Outcome{}, err
	}

	hit := action.Hash == preferred.Hash
	p := 0.25
	if hit {
		p = 0.85
	}
	success := e.rng.Float64() < p

	out := types.Outcome{
		Success:          success,
		ExpectedDuration: time.Minute,
		ActualDuration:   time.Duration(60+e.rng.Intn(60)) * time.Second,
	}
	if hit {
		out.ActualDuration = time.Duration(20+e.rng.Intn(30)) * time.Second
	}
	if success {
		out.CoverageDelta = 1 + 4*e.rng.Float64()
		out.QualityDelta = 1 + 4*e.rng.Float64()
		out.DefectsFound = e.rng.Intn(3)
	}

	e.step++
	if e.step >= e.steps {
		out.Done = true
		return out, nil
	}
	e.current = e.randomContext()
	out.NextContext = e.current
	return out, nil
}

func (e *syntheticEnv) preferred(taskCtx map[string]any) (types.Action, error) {
	state, err := e.enc.Encode(e.agentType, taskCtx)
	if err != nil {
		return types.Action{}, err
	}
	n, err := strconv.ParseUint(state.Hash[:8], 16, 64)
	if err != nil {
		return types.Action{}, fmt.Errorf("state hash %q: %w", state.Hash, err)
	}
	return e.space.Actions[n%uint64(len(e.space.Actions))], nil
}

func (e *syntheticEnv) randomContext() map[string]any {
	return map[string]any{
		"complexity":   1 + e.rng.Intn(20),
		"coverage":     30 + 65*e.rng.Float64(),
		"quality":      40 + 60*e.rng.Float64(),
		"language":     simLanguages[e.rng.Intn(len(simLanguages))],
		"framework":    simFrameworks[e.rng.Intn(len(simFrameworks))],
		"environment":  simEnvironments[e.rng.Intn(len(simEnvironments))],
		"test_count":   e.rng.Intn(1000),
		"failure_rate": 0.3 * e.rng.Float64(),
	}
}
