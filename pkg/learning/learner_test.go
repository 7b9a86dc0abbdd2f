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
package learning

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/qfleet/pkg/encoder"
	"github.com/teradata-labs/qfleet/pkg/observability"
	"github.com/teradata-labs/qfleet/pkg/reward"
	"github.com/teradata-labs/qfleet/pkg/types"
	"github.com/teradata-labs/qfleet/pkg/valuestore"
	"github.com/teradata-labs/qfleet/pkg/valuestore/sqlite"
)

// flakyStore fails on demand in front of a real store.
type flakyStore struct {
	valuestore.Store
	down       atomic.Bool
	rejectAll  atomic.Bool
	upsertHits atomic.Int64
	// readGate holds GetStateValues until closed; readEntered reports the call.
	readGate    chan struct{}
	readEntered chan struct{}
}

func (f *flakyStore) outage(op string) error {
	return valuestore.Unavailable(op, errors.New("connection refused"))
}

func (f *flakyStore) UpsertQValue(ctx context.Context, w types.QValueWrite) (int64, error) {
	f.upsertHits.Add(1)
	if f.rejectAll.Load() {
		return 0, valuestore.Constraint("upsert q-value", "rejected", nil)
	}
	if f.down.Load() {
		return 0, f.outage("upsert q-value")
	}
	return f.Store.UpsertQValue(ctx, w)
}

func (f *flakyStore) GetStateValues(ctx context.Context, at types.AgentType, stateHash string) ([]types.QValue, error) {
	if f.readGate != nil {
		select {
		case f.readEntered <- struct{}{}:
		default:
		}
		<-f.readGate
	}
	if f.down.Load() {
		return nil, f.outage("get state values")
	}
	return f.Store.GetStateValues(ctx, at, stateHash)
}

func (f *flakyStore) AppendTrajectory(ctx context.Context, t *types.Trajectory) error {
	if f.down.Load() {
		return f.outage("append trajectory")
	}
	return f.Store.AppendTrajectory(ctx, t)
}

func (f *flakyStore) SaveAgentState(ctx context.Context, st types.AgentLearningState) error {
	if f.down.Load() {
		return f.outage("save agent state")
	}
	return f.Store.SaveAgentState(ctx, st)
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), sqlite.Config{
		Path:   filepath.Join(t.TempDir(), "learning.db"),
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StoreTimeout = time.Second
	cfg.FlushMaxRetries = 1
	cfg.FlushInterval = 0
	return cfg
}

func greedyConfig() Config {
	cfg := testConfig()
	cfg.InitialExploration = 1e-9
	cfg.MinExploration = 1e-9
	return cfg
}

func space(t *testing.T, agentType types.AgentType, names ...string) ActionSpace {
	t.Helper()
	payloads := make([]types.ActionData, len(names))
	for i, n := range names {
		payloads[i] = types.ActionData{"strategy": n}
	}
	s, err := NewActionSpace(encoder.New(), agentType, payloads)
	require.NoError(t, err)
	return s
}

func newLearner(t *testing.T, cfg Config, store valuestore.Store, s ActionSpace, seed int64) *Learner {
	t.Helper()
	l, err := New(cfg, s.AgentType, "", s, Deps{
		Store:  store,
		Logger: zaptest.NewLogger(t),
		Rand:   rand.New(rand.NewSource(seed)),
	})
	require.NoError(t, err)
	return l
}

// unitReward makes a coverage delta of 1 worth exactly 1.0.
func unitReward() *reward.Calculator {
	return reward.New(reward.Config{CoverageWeight: 0.1})
}

func TestBellmanUpdate(t *testing.T) {
	assert.InDelta(t, 0.37, BellmanUpdate(0.3, 1.0, 0.0, 0.1, 0.95), 1e-12)
	assert.InDelta(t, 0.3+0.1*(1.0+0.95*2.0-0.3), BellmanUpdate(0.3, 1.0, 2.0, 0.1, 0.95), 1e-12)
	assert.Equal(t, 0.5, BellmanUpdate(0.5, 0.5, 0, 1, 0), "alpha 1 replaces the estimate")
}

func TestDecayExploration_NeverBelowFloor(t *testing.T) {
	rate := 0.3
	for i := 0; i < 5000; i++ {
		next := DecayExploration(rate, 0.995, 0.01)
		assert.GreaterOrEqual(t, next, 0.01)
		if rate > 0.01 {
			assert.Less(t, next, rate)
		}
		rate = next
	}
	assert.Equal(t, 0.01, rate)
}

func TestNew_Validation(t *testing.T) {
	store := openStore(t)
	s := space(t, types.AgentGenerator, "a")

	_, err := New(testConfig(), "nope", "", s, Deps{Store: store})
	assert.ErrorIs(t, err, types.ErrUnknownAgentType)

	bad := testConfig()
	bad.LearningRate = -0.1
	_, err = New(bad, types.AgentGenerator, "", s, Deps{Store: store})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = New(testConfig(), types.AgentGenerator, "", s, Deps{})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = New(testConfig(), types.AgentExecutor, "", s, Deps{Store: store})
	assert.ErrorIs(t, err, types.ErrInvalidConfig, "action space of another type")

	l, err := New(testConfig(), types.AgentGenerator, "", s, Deps{Store: store})
	require.NoError(t, err)
	assert.NotEmpty(t, l.AgentID())
	assert.Equal(t, 0.3, l.ExplorationRate())
}

func TestLearner_BellmanScenario(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	enc := encoder.New()
	s := space(t, types.AgentGenerator, "A")
	taskCtx := map[string]any{"complexity_bucket": 2}

	state, err := enc.Encode(types.AgentGenerator, taskCtx)
	require.NoError(t, err)
	assert.Equal(t, 2.0, state.Data["complexity_bucket"])
	_, err = store.UpsertQValue(ctx, types.QValueWrite{
		AgentType:  types.AgentGenerator,
		StateHash:  state.Hash,
		StateData:  state.Data,
		ActionHash: s.Actions[0].Hash,
		ActionData: s.Actions[0].Data,
		Value:      0.3,
	})
	require.NoError(t, err)

	l, err := New(greedyConfig(), types.AgentGenerator, "", s, Deps{
		Store:   store,
		Rewards: unitReward(),
		Logger:  zaptest.NewLogger(t),
		Rand:    rand.New(rand.NewSource(1)),
	})
	require.NoError(t, err)

	d, err := l.SelectAction(ctx, taskCtx)
	require.NoError(t, err)
	assert.False(t, d.Explored)
	assert.Equal(t, s.Actions[0].Hash, d.Action.Hash)
	assert.InDelta(t, 0.3, d.Value, 1e-12, "cached value warmed from the store")
	assert.Equal(t, PhaseExecuting, l.Phase())

	res, err := l.ReportOutcome(ctx, types.Outcome{Success: true, CoverageDelta: 1, Done: true})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Reward, 1e-12)
	assert.InDelta(t, 0.3, res.Previous, 1e-12)
	assert.InDelta(t, 0.37, res.Value, 1e-12)
	require.NotNil(t, res.Trajectory)
	assert.True(t, res.Trajectory.Done)
	assert.Equal(t, PhaseTerminal, l.Phase())

	require.NoError(t, l.Flush(ctx))
	best, found, err := store.GetBestAction(ctx, types.AgentGenerator, state.Hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 0.37, best.Value, 1e-12)
	assert.EqualValues(t, 2, best.VisitCount)
}

func TestLearner_GreedyPicksStoredBest(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	s := space(t, types.AgentCoverageAnalyzer, "fast", "deep", "wide")
	taskCtx := map[string]any{"coverage": 42.0}

	state, err := encoder.New().Encode(types.AgentCoverageAnalyzer, taskCtx)
	require.NoError(t, err)
	for i, v := range []float64{0.2, 0.9, 0.5} {
		_, err := store.UpsertQValue(ctx, types.QValueWrite{
			AgentType:  types.AgentCoverageAnalyzer,
			StateHash:  state.Hash,
			ActionHash: s.Actions[i].Hash,
			ActionData: s.Actions[i].Data,
			Value:      v,
		})
		require.NoError(t, err)
	}

	l := newLearner(t, greedyConfig(), store, s, 7)
	d, err := l.SelectAction(ctx, taskCtx)
	require.NoError(t, err)
	assert.Equal(t, "deep", d.Action.Data["strategy"])
	assert.InDelta(t, 0.9, d.Value, 1e-12)
}

func TestLearner_GreedyTiePrefersFewerVisits(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	s := space(t, types.AgentExecutor, "a", "b")
	taskCtx := map[string]any{"framework": "jest"}

	state, err := encoder.New().Encode(types.AgentExecutor, taskCtx)
	require.NoError(t, err)
	for i, visits := range []int64{5, 1} {
		_, err := store.UpsertQValue(ctx, types.QValueWrite{
			AgentType:  types.AgentExecutor,
			StateHash:  state.Hash,
			ActionHash: s.Actions[i].Hash,
			ActionData: s.Actions[i].Data,
			Value:      0.9,
			Visits:     visits,
		})
		require.NoError(t, err)
	}

	l := newLearner(t, greedyConfig(), store, s, 3)
	d, err := l.SelectAction(ctx, taskCtx)
	require.NoError(t, err)
	assert.Equal(t, s.Actions[1].Hash, d.Action.Hash)
}

// scriptedEnv replays a fixed sequence of outcomes.
type scriptedEnv struct {
	initial  map[string]any
	outcomes []types.Outcome
	calls    int
}

func (e *scriptedEnv) Observe(context.Context) (map[string]any, error) {
	return e.initial, nil
}

func (e *scriptedEnv) Execute(_ context.Context, _ types.Action) (types.Outcome, error) {
	o := e.outcomes[e.calls%len(e.outcomes)]
	e.calls++
	return o, nil
}

func chainEnv(steps int) *scriptedEnv {
	env := &scriptedEnv{initial: map[string]any{"complexity": 1}}
	for i := 0; i < steps; i++ {
		env.outcomes = append(env.outcomes, types.Outcome{
			Success:       true,
			CoverageDelta: float64(i + 1),
			NextContext:   map[string]any{"complexity": (i + 2) % 4},
			Done:          i == steps-1,
		})
	}
	return env
}

func TestLearner_ReproducibleReplay(t *testing.T) {
	ctx := context.Background()
	run := func() []float64 {
		l := newLearner(t, testConfig(), openStore(t), space(t, types.AgentGenerator, "a", "b", "c"), 42)
		var values []float64
		for ep := 0; ep < 20; ep++ {
			env := chainEnv(4)
			_, err := l.BeginEpisode("", env.initial)
			require.NoError(t, err)
			taskCtx := env.initial
			for {
				d, err := l.SelectAction(ctx, taskCtx)
				require.NoError(t, err)
				o, _ := env.Execute(ctx, d.Action)
				res, err := l.ReportOutcome(ctx, o)
				require.NoError(t, err)
				values = append(values, res.Value)
				if res.Trajectory != nil {
					break
				}
				taskCtx = o.NextContext
			}
		}
		return values
	}

	first, second := run(), run()
	require.Len(t, first, 80)
	assert.Equal(t, first, second)
}

func TestLearner_ExplorationDecaysPerEpisode(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.ExplorationDecay = 0.5
	cfg.MinExploration = 0.01
	l := newLearner(t, cfg, openStore(t), space(t, types.AgentQualityGate, "pass", "block"), 5)

	prev := l.ExplorationRate()
	for i := 0; i < 30; i++ {
		traj, err := l.RunEpisode(ctx, chainEnv(1))
		require.NoError(t, err)
		require.True(t, traj.Done)

		rate := l.ExplorationRate()
		assert.GreaterOrEqual(t, rate, cfg.MinExploration)
		if prev > cfg.MinExploration {
			assert.Less(t, rate, prev)
		}
		prev = rate
	}
	assert.Equal(t, cfg.MinExploration, prev)

	st := l.State()
	assert.EqualValues(t, 30, st.TasksAttempted)
	assert.EqualValues(t, 30, st.TasksSucceeded)
}

func TestLearner_StepLimit(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.MaxStepsPerEpisode = 3
	store := openStore(t)
	l := newLearner(t, cfg, store, space(t, types.AgentChaosEngineer, "kill-pod", "add-latency"), 11)

	env := &scriptedEnv{
		initial:  map[string]any{"blast_radius": "small"},
		outcomes: []types.Outcome{{Success: true, NextContext: map[string]any{"blast_radius": "small"}}},
	}
	traj, err := l.RunEpisode(ctx, env)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrEpisodeStepLimit)
	var limit *types.EpisodeStepLimitExceeded
	require.True(t, errors.As(err, &limit))
	assert.Equal(t, 3, limit.MaxSteps)

	require.NotNil(t, traj)
	assert.Equal(t, traj.ID, limit.TrajectoryID)
	assert.False(t, traj.Done)
	assert.Len(t, traj.Steps, 3)
	assert.Equal(t, 3, env.calls)

	require.NoError(t, l.Flush(ctx))
	stored, err := store.GetTrajectory(ctx, traj.ID)
	require.NoError(t, err)
	assert.False(t, stored.Done)
	assert.Len(t, stored.Steps, 3)
}

func TestLearner_DiscountedReward(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.DiscountFactor = 0.5
	l, err := New(cfg, types.AgentGenerator, "", space(t, types.AgentGenerator, "a"), Deps{
		Store:   openStore(t),
		Rewards: unitReward(),
		Logger:  zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	env := &scriptedEnv{
		initial: map[string]any{"complexity": 0},
		outcomes: []types.Outcome{
			{Success: true, CoverageDelta: 1, NextContext: map[string]any{"complexity": 1}},
			{Success: true, CoverageDelta: 1, NextContext: map[string]any{"complexity": 2}},
			{Success: true, CoverageDelta: 1, Done: true},
		},
	}
	traj, err := l.RunEpisode(ctx, env)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, traj.TotalReward, 1e-12)
	assert.InDelta(t, 1+0.5+0.25, traj.DiscountedReward, 1e-12)
	assert.Equal(t, []float64{1, 1, 1}, traj.StepRewards())
}

func TestLearner_FlushCadence(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.FlushEvery = 3
	store := openStore(t)
	s := space(t, types.AgentSecurityScanner, "sast")
	l := newLearner(t, cfg, store, s, 1)
	taskCtx := map[string]any{"language": "go"}

	stepOnce := func() types.State {
		d, err := l.SelectAction(ctx, taskCtx)
		require.NoError(t, err)
		_, err = l.ReportOutcome(ctx, types.Outcome{Success: true, NextContext: taskCtx})
		require.NoError(t, err)
		return d.State
	}

	state := stepOnce()
	stepOnce()
	values, err := store.GetStateValues(ctx, types.AgentSecurityScanner, state.Hash)
	require.NoError(t, err)
	assert.Empty(t, values, "nothing flushed before the cadence")
	assert.Equal(t, 1, l.PendingWrites(), "updates of one key coalesce")

	stepOnce()
	values, err = store.GetStateValues(ctx, types.AgentSecurityScanner, state.Hash)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.EqualValues(t, 3, values[0].VisitCount)
	assert.Zero(t, l.PendingWrites())
	assert.EqualValues(t, 1, l.Counters().FlushedWrites)
}

func TestLearner_StoreOutage(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.FlushEvery = 2
	inner := openStore(t)
	store := &flakyStore{Store: inner}
	s := space(t, types.AgentPerformanceTester, "load", "soak")
	l := newLearner(t, cfg, store, s, 9)
	taskCtx := map[string]any{"endpoint_count": 3}

	store.down.Store(true)
	var states []types.State
	for i := 0; i < 4; i++ {
		d, err := l.SelectAction(ctx, taskCtx)
		require.NoError(t, err, "selection never surfaces an outage")
		states = append(states, d.State)
		_, err = l.ReportOutcome(ctx, types.Outcome{Success: true, NextContext: taskCtx})
		require.NoError(t, err, "reporting never surfaces an outage")
	}

	c := l.Counters()
	assert.Positive(t, c.ReadFallbacks)
	assert.EqualValues(t, 2, c.FlushFailures)
	assert.Zero(t, c.FlushedWrites)
	assert.Positive(t, l.PendingWrites())
	assert.EqualValues(t, 2, l.State().FlushFailures)

	store.down.Store(false)
	require.NoError(t, l.Flush(ctx))
	assert.Zero(t, l.PendingWrites())

	var visits int64
	rows, err := inner.GetStateValues(ctx, types.AgentPerformanceTester, states[0].Hash)
	require.NoError(t, err)
	for _, r := range rows {
		visits += r.VisitCount
		v, ok := l.Value(states[0].Hash, r.ActionHash)
		require.True(t, ok)
		assert.InDelta(t, v, r.Value, 1e-12, "stored value is the newest local value")
	}
	assert.EqualValues(t, 4, visits, "no update lost across failed flushes")

	saved, err := inner.LoadAgentState(ctx, l.AgentID())
	require.NoError(t, err)
	assert.False(t, saved.LastFlushAt.IsZero())
}

func TestLearner_ConstraintViolationsDropped(t *testing.T) {
	ctx := context.Background()
	tracer := observability.NewMockTracer()
	store := &flakyStore{Store: openStore(t)}
	store.rejectAll.Store(true)

	cfg := testConfig()
	cfg.FlushMaxRetries = 5
	s := space(t, types.AgentVisualTester, "snapshot")
	l, err := New(cfg, types.AgentVisualTester, "", s, Deps{
		Store:  store,
		Tracer: tracer,
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	_, err = l.SelectAction(ctx, map[string]any{"viewport_count": 2})
	require.NoError(t, err)
	_, err = l.ReportOutcome(ctx, types.Outcome{Success: true})
	require.NoError(t, err)

	require.NoError(t, l.Flush(ctx))
	assert.EqualValues(t, 1, store.upsertHits.Load(), "permanent errors are not retried")
	assert.EqualValues(t, 1, l.Counters().DroppedWrites)
	assert.Zero(t, l.Counters().FlushFailures)
	assert.Equal(t, 0.0, tracer.MetricTotal(MetricFlushFailures))
	assert.Equal(t, 1.0, tracer.MetricTotal(MetricDroppedWrites))
}

func TestLearner_RestoreAgentState(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	s := space(t, types.AgentFlakyTestHunter, "rerun", "quarantine")

	l1, err := New(testConfig(), types.AgentFlakyTestHunter, "hunter-1", s, Deps{Store: store, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := l1.RunEpisode(ctx, chainEnv(2))
		require.NoError(t, err)
	}
	require.NoError(t, l1.Flush(ctx))
	want := l1.State()

	l2, err := New(testConfig(), types.AgentFlakyTestHunter, "hunter-1", s, Deps{Store: store, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	require.NoError(t, l2.Restore(ctx))
	got := l2.State()
	assert.Equal(t, want.TasksAttempted, got.TasksAttempted)
	assert.InDelta(t, want.TotalReward, got.TotalReward, 1e-9)
	assert.InDelta(t, want.ExplorationRate, got.ExplorationRate, 1e-12)

	l3, err := New(testConfig(), types.AgentFlakyTestHunter, "fresh", s, Deps{Store: store})
	require.NoError(t, err)
	require.NoError(t, l3.Restore(ctx), "unknown agents start fresh")
	assert.Zero(t, l3.State().TasksAttempted)

	trajs, err := store.RecentTrajectories(ctx, types.AgentFlakyTestHunter, 10)
	require.NoError(t, err)
	assert.Len(t, trajs, 3)
}

func TestLearner_BackgroundWorker(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.FlushEvery = 1
	store := openStore(t)
	l := newLearner(t, cfg, store, space(t, types.AgentGenerator, "a", "b"), 2)

	require.NoError(t, l.Start(ctx))
	require.NoError(t, l.Start(ctx), "second start is a no-op")
	for i := 0; i < 5; i++ {
		_, err := l.RunEpisode(ctx, chainEnv(3))
		require.NoError(t, err)
	}
	require.NoError(t, l.Stop(ctx))
	assert.Zero(t, l.PendingWrites())

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Positive(t, stats.LiveQValues)
	assert.EqualValues(t, 5, stats.Trajectories)
	assert.EqualValues(t, 1, stats.Agents)
}

func TestLearner_ProtocolErrors(t *testing.T) {
	ctx := context.Background()
	l := newLearner(t, testConfig(), openStore(t), space(t, types.AgentGenerator, "a"), 1)

	_, err := l.ReportOutcome(ctx, types.Outcome{Success: true})
	assert.ErrorIs(t, err, ErrNoPendingAction)

	_, err = l.SelectAction(ctx, nil)
	require.NoError(t, err)
	_, err = l.SelectAction(ctx, nil)
	assert.Error(t, err, "outcome still pending")

	_, err = l.BeginEpisode("s", nil)
	assert.ErrorIs(t, err, ErrEpisodeInProgress)

	traj := l.Abandon()
	require.NotNil(t, traj)
	assert.False(t, traj.Done)
	assert.False(t, traj.Success)
	assert.Nil(t, l.Abandon())

	id, err := l.BeginEpisode("session-7", map[string]any{"complexity": 3})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestLearner_InlineFlushDoesNotRetry(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: openStore(t)}
	store.down.Store(true)

	cfg := testConfig()
	cfg.FlushEvery = 1
	cfg.FlushMaxRetries = 4
	l := newLearner(t, cfg, store, space(t, types.AgentExecutor, "a"), 9)

	_, err := l.SelectAction(ctx, map[string]any{"complexity": 2})
	require.NoError(t, err)
	_, err = l.ReportOutcome(ctx, types.Outcome{Success: true, Done: true})
	require.NoError(t, err)

	assert.EqualValues(t, 1, store.upsertHits.Load(), "inline flush makes one attempt")
	assert.Equal(t, 2, l.PendingWrites(), "q-value and trajectory stay queued")

	require.Error(t, l.Flush(ctx))
	assert.EqualValues(t, 5, store.upsertHits.Load(), "explicit flush uses the configured retries")
}

func TestLearner_ConcurrentSelectRejected(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{
		Store:       openStore(t),
		readGate:    make(chan struct{}),
		readEntered: make(chan struct{}, 1),
	}
	l := newLearner(t, testConfig(), store, space(t, types.AgentGenerator, "a", "b"), 2)

	type selected struct {
		d   Decision
		err error
	}
	first := make(chan selected, 1)
	go func() {
		d, err := l.SelectAction(ctx, map[string]any{"complexity": 4})
		first <- selected{d, err}
	}()
	<-store.readEntered

	_, err := l.SelectAction(ctx, map[string]any{"complexity": 4})
	assert.ErrorIs(t, err, ErrSelectionInProgress)

	close(store.readGate)
	got := <-first
	require.NoError(t, got.err)
	assert.NotEmpty(t, got.d.Action.Hash)

	res, err := l.ReportOutcome(ctx, types.Outcome{Success: true, Done: true})
	require.NoError(t, err)
	require.NotNil(t, res)

	_, err = l.SelectAction(ctx, map[string]any{"complexity": 4})
	assert.NoError(t, err, "selection is available again once the first returned")
}

func TestLearner_TrajectoryFinite(t *testing.T) {
	ctx := context.Background()
	l := newLearner(t, testConfig(), openStore(t), space(t, types.AgentGenerator, "a", "b"), 4)
	env := &scriptedEnv{
		initial: map[string]any{},
		outcomes: []types.Outcome{
			{Success: false, Timeout: true, CoverageDelta: math.Inf(1), Done: true},
		},
	}
	traj, err := l.RunEpisode(ctx, env)
	require.NoError(t, err)
	assert.False(t, math.IsInf(traj.TotalReward, 0))
	assert.InDelta(t, -75, traj.TotalReward, 1e-9)
	assert.EqualValues(t, 1, l.State().TasksFailed)
}
