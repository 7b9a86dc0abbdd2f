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
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/qfleet/pkg/encoder"
	"github.com/teradata-labs/qfleet/pkg/observability"
	"github.com/teradata-labs/qfleet/pkg/reward"
	"github.com/teradata-labs/qfleet/pkg/types"
	"github.com/teradata-labs/qfleet/pkg/valuestore"
)

// Metric names recorded by a Learner.
const (
	MetricSelections    = "learning.selections"
	MetricExplorations  = "learning.explorations"
	MetricReadFallbacks = "learning.read_fallbacks"
	MetricUpdates       = "learning.updates"
	MetricEpisodes      = "learning.episodes"
	MetricFlushedWrites = "learning.flush.writes"
	MetricFlushFailures = "learning.flush.failures"
	MetricDroppedWrites = "learning.flush.dropped"
)

// Deps are the collaborators of a Learner. Only Store is required.
type Deps struct {
	Store   valuestore.Store
	Encoder *encoder.Encoder
	Rewards *reward.Calculator
	Tracer  observability.Tracer
	Logger  *zap.Logger
	// Rand drives exploration; seed it for reproducible runs.
	Rand *rand.Rand
	Now  func() time.Time
	// SessionID is stamped on trajectories started without one.
	SessionID string
}

// Decision is the result of SelectAction.
type Decision struct {
	State    types.State
	Action   types.Action
	Value    float64
	Explored bool
}

// StepResult describes one applied update.
type StepResult struct {
	Reward   float64
	Previous float64
	Value    float64
	// Trajectory is set when the step sealed the episode.
	Trajectory *types.Trajectory
}

// Counters are the monitoring counters of a Learner.
type Counters struct {
	FlushFailures int64 `json:"flush_failures"`
	FlushedWrites int64 `json:"flushed_writes"`
	DroppedWrites int64 `json:"dropped_writes"`
	ReadFallbacks int64 `json:"read_fallbacks"`
}

// Learner is the learning engine of one agent instance. SelectAction and
// ReportOutcome alternate within an episode; all methods are safe for
// concurrent use.
type Learner struct {
	cfg       Config
	agentType types.AgentType
	agentID   string
	sessionID string
	space     ActionSpace

	store   valuestore.Store
	encoder *encoder.Encoder
	rewards *reward.Calculator
	tracer  observability.Tracer
	logger  *zap.Logger
	clock   func() time.Time

	mu                  sync.Mutex
	rng                 *rand.Rand
	table               *qTable
	pending             map[writeKey]*types.QValueWrite
	pendingTrajectories []*types.Trajectory
	updatesSinceFlush   int
	exploration         float64
	stats               types.AgentLearningState
	episode             *episode
	phase               Phase
	selecting           bool

	flushFailures atomic.Int64
	flushedWrites atomic.Int64
	droppedWrites atomic.Int64
	readFallbacks atomic.Int64

	// flushMu serializes flushes so snapshots are written in order.
	flushMu sync.Mutex

	workerMu sync.Mutex
	started  bool
	flushCh  chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
}

type writeKey struct {
	stateHash  string
	actionHash string
}

// New builds a Learner for one agent instance. An empty agentID is replaced
// by a random UUID.
func New(cfg Config, agentType types.AgentType, agentID string, space ActionSpace, deps Deps) (*Learner, error) {
	if err := agentType.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("learner requires a value store: %w", types.ErrInvalidConfig)
	}
	if space.AgentType != agentType || len(space.Actions) == 0 {
		return nil, fmt.Errorf("learner for %s requires a non-empty action space of the same type: %w",
			agentType, types.ErrInvalidConfig)
	}

	if deps.Encoder == nil {
		deps.Encoder = encoder.New()
	}
	if deps.Rewards == nil {
		deps.Rewards = reward.New(reward.DefaultConfig())
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NewNoOpTracer()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if agentID == "" {
		agentID = uuid.NewString()
	}
	if deps.SessionID == "" {
		deps.SessionID = uuid.NewString()
	}

	l := &Learner{
		cfg:         cfg,
		agentType:   agentType,
		agentID:     agentID,
		sessionID:   deps.SessionID,
		space:       space,
		store:       deps.Store,
		encoder:     deps.Encoder,
		rewards:     deps.Rewards,
		tracer:      deps.Tracer,
		logger:      deps.Logger.With(zap.String("agent_id", agentID), zap.String("agent_type", string(agentType))),
		clock:       deps.Now,
		rng:         deps.Rand,
		table:       newQTable(),
		pending:     make(map[writeKey]*types.QValueWrite),
		exploration: cfg.InitialExploration,
		flushCh:     make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
	}
	l.stats = types.AgentLearningState{
		AgentID:      agentID,
		AgentType:    agentType,
		LearningRate: cfg.LearningRate,
	}
	return l, nil
}

// AgentID returns the instance ID.
func (l *Learner) AgentID() string { return l.agentID }

// AgentType returns the agent type the learner serves.
func (l *Learner) AgentType() types.AgentType { return l.agentType }

// ExplorationRate returns the current epsilon.
func (l *Learner) ExplorationRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exploration
}

// Phase returns the current episode phase.
func (l *Learner) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// Restore loads persisted counters and exploration rate for this agent ID.
// A missing record is not an error.
func (l *Learner) Restore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()

	saved, err := l.store.LoadAgentState(ctx, l.agentID)
	if errors.Is(err, valuestore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if saved.AgentType != l.agentType {
		return &types.ConstraintViolationError{
			Op:     "restore agent state",
			Reason: fmt.Sprintf("agent %s is a %s, not a %s", l.agentID, saved.AgentType, l.agentType),
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.TasksAttempted = saved.TasksAttempted
	l.stats.TasksSucceeded = saved.TasksSucceeded
	l.stats.TasksFailed = saved.TasksFailed
	l.stats.TotalReward = saved.TotalReward
	l.stats.PatternsLearned = saved.PatternsLearned
	l.stats.LastFlushAt = saved.LastFlushAt
	l.flushFailures.Store(saved.FlushFailures)

	rate := saved.ExplorationRate
	if rate < l.cfg.MinExploration {
		rate = l.cfg.MinExploration
	}
	if rate > l.cfg.InitialExploration {
		rate = l.cfg.InitialExploration
	}
	l.exploration = rate

	l.logger.Info("Restored learning state",
		zap.Int64("tasks_attempted", saved.TasksAttempted),
		zap.Float64("exploration_rate", rate))
	return nil
}

// State returns a snapshot of the learning counters.
func (l *Learner) State() types.AgentLearningState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked()
}

func (l *Learner) stateLocked() types.AgentLearningState {
	st := l.stats
	st.ExplorationRate = l.exploration
	st.FlushFailures = l.flushFailures.Load()
	st.PendingWrites = int64(len(l.pending) + len(l.pendingTrajectories))
	st.UpdatedAt = l.now()
	return st
}

// Counters returns the monitoring counters.
func (l *Learner) Counters() Counters {
	return Counters{
		FlushFailures: l.flushFailures.Load(),
		FlushedWrites: l.flushedWrites.Load(),
		DroppedWrites: l.droppedWrites.Load(),
		ReadFallbacks: l.readFallbacks.Load(),
	}
}

// Value returns the locally cached estimate for (state, action).
func (l *Learner) Value(stateHash, actionHash string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.table.get(stateHash, actionHash)
	if !ok {
		return 0, false
	}
	return e.value, true
}

// SelectAction encodes taskCtx and picks an action epsilon-greedily. Store
// failures are never surfaced: selection falls back to the local table.
func (l *Learner) SelectAction(ctx context.Context, taskCtx map[string]any) (Decision, error) {
	ctx, span := l.tracer.StartSpan(ctx, "learning.select_action")
	defer l.tracer.EndSpan(span)
	span.SetAttribute(observability.AttrAgentType, string(l.agentType))
	span.SetAttribute(observability.AttrAgentID, l.agentID)

	state, err := l.encoder.Encode(l.agentType, taskCtx)
	if err != nil {
		span.RecordError(err)
		return Decision{}, err
	}
	span.SetAttribute(observability.AttrStateHash, state.Hash)

	l.mu.Lock()
	if l.selecting {
		l.mu.Unlock()
		return Decision{}, ErrSelectionInProgress
	}
	if l.episode != nil && l.episode.pending != nil {
		l.mu.Unlock()
		return Decision{}, fmt.Errorf("action %s is still awaiting its outcome", l.episode.pending.Action.Hash)
	}
	if l.episode == nil {
		l.beginLocked("", state)
	}
	l.phase = PhaseSelecting
	l.selecting = true
	warm := l.table.isWarm(state.Hash)
	l.mu.Unlock()

	if !warm {
		l.warm(ctx, state.Hash)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.selecting = false
	if l.episode == nil {
		// abandoned while the store was read
		l.beginLocked("", state)
	}

	var d Decision
	d.State = state
	if l.rng.Float64() < l.exploration {
		d.Action = l.space.Actions[l.rng.Intn(len(l.space.Actions))]
		d.Explored = true
		if e, ok := l.table.get(state.Hash, d.Action.Hash); ok {
			d.Value = e.value
		} else {
			d.Value = l.cfg.InitialQValue
		}
	} else {
		d.Action, d.Value = l.table.best(state.Hash, l.space.Actions, l.cfg.InitialQValue)
	}

	l.episode.pending = &d
	l.phase = PhaseExecuting

	labels := map[string]string{observability.AttrAgentType: string(l.agentType)}
	l.tracer.RecordMetric(MetricSelections, 1, labels)
	if d.Explored {
		l.tracer.RecordMetric(MetricExplorations, 1, labels)
	}
	span.SetAttribute(observability.AttrActionHash, d.Action.Hash)
	span.SetAttribute("explored", d.Explored)

	l.logger.Debug("Selected action",
		zap.String("state_hash", state.Hash),
		zap.String("action_hash", d.Action.Hash),
		zap.Bool("explored", d.Explored),
		zap.Float64("value", d.Value))
	return d, nil
}

// warm loads the stored action values of a state the local table has not
// seen. A failed or timed-out read leaves the table as is.
func (l *Learner) warm(ctx context.Context, stateHash string) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()

	rows, err := l.store.GetStateValues(ctx, l.agentType, stateHash)
	if err != nil {
		l.readFallbacks.Add(1)
		l.tracer.RecordMetric(MetricReadFallbacks, 1, map[string]string{
			observability.AttrAgentType: string(l.agentType),
		})
		l.logger.Debug("Falling back to local values", zap.String("state_hash", stateHash), zap.Error(err))
		return
	}

	l.mu.Lock()
	l.table.load(stateHash, rows)
	l.mu.Unlock()
}

// ReportOutcome scores the outcome of the pending action and applies the
// Bellman update locally. It never waits on the store: writes are queued
// and flushed every FlushEvery updates by the worker started with Start.
// Without a worker a due flush runs inline, making a single attempt per
// write with no backoff. When the step bound is reached the
// episode is sealed and *types.EpisodeStepLimitExceeded is returned along
// with the result.
func (l *Learner) ReportOutcome(ctx context.Context, outcome types.Outcome) (*StepResult, error) {
	ctx, span := l.tracer.StartSpan(ctx, "learning.report_outcome")
	defer l.tracer.EndSpan(span)
	span.SetAttribute(observability.AttrAgentType, string(l.agentType))
	span.SetAttribute(observability.AttrAgentID, l.agentID)

	var next *types.State
	if !outcome.Done && outcome.NextContext != nil {
		s, err := l.encoder.Encode(l.agentType, outcome.NextContext)
		if err != nil {
			return nil, err
		}
		next = &s
	}

	l.mu.Lock()
	if l.episode == nil || l.episode.pending == nil {
		l.mu.Unlock()
		return nil, ErrNoPendingAction
	}
	d := *l.episode.pending
	l.episode.pending = nil

	l.phase = PhaseObserving
	r := l.rewards.Calculate(l.agentType, outcome)

	l.phase = PhaseUpdating
	var maxNext float64
	if next != nil {
		maxNext = l.table.maxValue(next.Hash)
	}
	prev := l.cfg.InitialQValue
	var visits int64
	if e, ok := l.table.get(d.State.Hash, d.Action.Hash); ok {
		prev, visits = e.value, e.visits
	}
	value := BellmanUpdate(prev, r, maxNext, l.cfg.LearningRate, l.cfg.DiscountFactor)
	l.table.set(d.State.Hash, d.Action.Hash, value, visits+1)
	l.queueLocked(d, value)

	ep := l.episode
	ep.traj.DiscountedReward += discount(l.cfg.DiscountFactor, ep.steps()) * r
	ep.traj.TotalReward += r
	ep.traj.Steps = append(ep.traj.Steps, types.TrajectoryStep{
		StateHash:  d.State.Hash,
		StateData:  d.State.Data,
		ActionHash: d.Action.Hash,
		ActionData: d.Action.Data,
		Reward:     r,
		Explored:   d.Explored,
		At:         l.now(),
	})

	result := &StepResult{Reward: r, Previous: prev, Value: value}
	var stepErr error
	final := d.State.Data
	if next != nil {
		final = next.Data
	}
	switch {
	case outcome.Done:
		result.Trajectory = l.sealLocked(outcome.Success, true, final)
	case ep.steps() >= l.cfg.MaxStepsPerEpisode:
		result.Trajectory = l.sealLocked(outcome.Success, false, final)
		stepErr = &types.EpisodeStepLimitExceeded{MaxSteps: l.cfg.MaxStepsPerEpisode, TrajectoryID: result.Trajectory.ID}
	default:
		l.phase = PhaseIdle
	}

	l.updatesSinceFlush++
	due := l.updatesSinceFlush >= l.cfg.FlushEvery
	l.mu.Unlock()

	labels := map[string]string{observability.AttrAgentType: string(l.agentType)}
	l.tracer.RecordMetric(MetricUpdates, 1, labels)
	if result.Trajectory != nil {
		l.tracer.RecordMetric(MetricEpisodes, 1, labels)
	}
	span.SetAttribute(observability.AttrStateHash, d.State.Hash)
	span.SetAttribute(observability.AttrActionHash, d.Action.Hash)
	span.SetAttribute("reward", r)

	l.logger.Debug("Applied update",
		zap.String("state_hash", d.State.Hash),
		zap.String("action_hash", d.Action.Hash),
		zap.Float64("reward", r),
		zap.Float64("previous", prev),
		zap.Float64("value", value))

	if due {
		l.requestFlush(ctx)
	}
	return result, stepErr
}

// queueLocked coalesces an update into the pending write for its key.
func (l *Learner) queueLocked(d Decision, value float64) {
	key := writeKey{stateHash: d.State.Hash, actionHash: d.Action.Hash}
	if w, ok := l.pending[key]; ok {
		w.Value = value
		w.Visits++
		return
	}
	l.pending[key] = &types.QValueWrite{
		AgentType:  l.agentType,
		StateHash:  d.State.Hash,
		StateData:  d.State.Data,
		ActionHash: d.Action.Hash,
		ActionData: d.Action.Data,
		Value:      value,
		Visits:     1,
	}
}

func (l *Learner) newID() string {
	return uuid.NewString()
}
