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
// Package fleet owns the learners of one process. Every learner receives
// the shared store handle and configuration explicitly; there is no
// process-wide singleton.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/qfleet/pkg/config"
	"github.com/teradata-labs/qfleet/pkg/encoder"
	"github.com/teradata-labs/qfleet/pkg/learning"
	"github.com/teradata-labs/qfleet/pkg/observability"
	"github.com/teradata-labs/qfleet/pkg/reward"
	"github.com/teradata-labs/qfleet/pkg/types"
	"github.com/teradata-labs/qfleet/pkg/valuestore"
)

// ErrShutdown is returned by Spawn once Shutdown has begun.
var ErrShutdown = errors.New("fleet is shut down")

// Deps are the shared collaborators of a Fleet. Config and Store are
// required.
type Deps struct {
	Config *config.Config
	Store  valuestore.Store
	Tracer observability.Tracer
	Logger *zap.Logger
	// Seed, when non-zero, derives a deterministic random source per learner.
	Seed int64
}

// Fleet is a container of learners sharing one store.
type Fleet struct {
	cfg      *config.Config
	learning learning.Config
	store    valuestore.Store
	encoder  *encoder.Encoder
	rewards  *reward.Calculator
	tracer   observability.Tracer
	logger   *zap.Logger
	reaper   *valuestore.Reaper
	seed     int64

	mu       sync.RWMutex
	learners map[string]*learning.Learner
	spawned  int64
	closed   bool
}

// New validates the configuration and builds an empty fleet. The reaper is
// created here and started by Start when cleanup is enabled.
func New(deps Deps) (*Fleet, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("fleet requires a configuration: %w", types.ErrInvalidConfig)
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("fleet requires a value store: %w", types.ErrInvalidConfig)
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NewNoOpTracer()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	lcfg := learning.ConfigFrom(deps.Config.Learning)
	if err := lcfg.Validate(); err != nil {
		return nil, err
	}

	f := &Fleet{
		cfg:      deps.Config,
		learning: lcfg,
		store:    deps.Store,
		encoder:  encoder.New(),
		rewards:  reward.New(reward.Config(deps.Config.Reward)),
		tracer:   deps.Tracer,
		logger:   deps.Logger,
		seed:     deps.Seed,
		learners: make(map[string]*learning.Learner),
	}

	if deps.Config.Cleanup.Enabled {
		reaper, err := valuestore.NewReaper(deps.Store, valuestore.ReaperConfig{
			Schedule: deps.Config.Cleanup.Schedule,
			Tracer:   deps.Tracer,
			Logger:   deps.Logger.Named("reaper"),
		})
		if err != nil {
			return nil, err
		}
		f.reaper = reaper
	}
	return f, nil
}

// Encoder returns the fleet's state encoder.
func (f *Fleet) Encoder() *encoder.Encoder { return f.encoder }

// Rewards returns the fleet's reward calculator.
func (f *Fleet) Rewards() *reward.Calculator { return f.rewards }

// Reaper returns the cleanup reaper, or nil when cleanup is disabled.
func (f *Fleet) Reaper() *valuestore.Reaper { return f.reaper }

// Start starts the reaper schedule.
func (f *Fleet) Start() error {
	if f.reaper == nil {
		return nil
	}
	return f.reaper.Start()
}

// Spawn builds a learner for agentType, restores any saved state for
// agentID and starts its flush worker. An empty agentID gets a UUID. The
// saved state is read without holding the fleet lock, so a slow store does
// not stall other spawns or Status.
func (f *Fleet) Spawn(ctx context.Context, agentType types.AgentType, agentID string, space learning.ActionSpace) (*learning.Learner, error) {
	if err := agentType.Validate(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	if err := f.admitLocked(agentID); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	index := f.spawned
	f.spawned++
	f.mu.Unlock()

	deps := learning.Deps{
		Store:   f.store,
		Encoder: f.encoder,
		Rewards: f.rewards,
		Tracer:  f.tracer,
		Logger:  f.logger.Named("learner"),
	}
	if f.seed != 0 {
		deps.Rand = rand.New(rand.NewSource(f.seed + index))
	}

	l, err := learning.New(f.learning, agentType, agentID, space, deps)
	if err != nil {
		return nil, err
	}
	if err := l.Restore(ctx); err != nil {
		if !types.IsRetryable(err) {
			return nil, err
		}
		f.logger.Warn("Starting learner without saved state",
			zap.String("agent_id", l.AgentID()), zap.Error(err))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// the fleet may have shut down or gained this ID during the restore
	if err := f.admitLocked(l.AgentID()); err != nil {
		return nil, err
	}
	if err := l.Start(ctx); err != nil {
		return nil, err
	}

	f.learners[l.AgentID()] = l
	f.logger.Info("Learner spawned",
		zap.String("agent_id", l.AgentID()),
		zap.String("agent_type", string(agentType)),
		zap.Int("actions", len(space.Actions)))
	return l, nil
}

func (f *Fleet) admitLocked(agentID string) error {
	if f.closed {
		return ErrShutdown
	}
	if _, exists := f.learners[agentID]; exists && agentID != "" {
		return fmt.Errorf("learner %s already exists", agentID)
	}
	return nil
}

// Learner returns a spawned learner by ID.
func (f *Fleet) Learner(agentID string) (*learning.Learner, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	l, ok := f.learners[agentID]
	return l, ok
}

// Learners returns every learner ordered by agent type then ID.
func (f *Fleet) Learners() []*learning.Learner {
	f.mu.RLock()
	out := make([]*learning.Learner, 0, len(f.learners))
	for _, l := range f.learners {
		out = append(out, l)
	}
	f.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].AgentType() != out[j].AgentType() {
			return out[i].AgentType() < out[j].AgentType()
		}
		return out[i].AgentID() < out[j].AgentID()
	})
	return out
}

// LearnerStatus is one entry of Status.
type LearnerStatus struct {
	types.AgentLearningState
	Phase    string            `json:"phase"`
	Counters learning.Counters `json:"counters"`
}

// Status returns the learning state of every learner.
func (f *Fleet) Status() []LearnerStatus {
	learners := f.Learners()
	out := make([]LearnerStatus, len(learners))
	for i, l := range learners {
		out[i] = LearnerStatus{
			AgentLearningState: l.State(),
			Phase:              l.Phase().String(),
			Counters:           l.Counters(),
		}
	}
	return out
}

// Shutdown stops every learner with a final flush, then the reaper. It
// returns the flush errors of learners whose writes are still pending.
func (f *Fleet) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	start := time.Now()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, l := range f.Learners() {
		wg.Add(1)
		go func(l *learning.Learner) {
			defer wg.Done()
			if err := l.Stop(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("learner %s: %w", l.AgentID(), err))
				mu.Unlock()
			}
		}(l)
	}
	wg.Wait()

	if f.reaper != nil {
		f.reaper.Stop(ctx)
	}

	f.logger.Info("Fleet shut down",
		zap.Int("learners", len(f.learners)),
		zap.Int("flush_errors", len(errs)),
		zap.Duration("elapsed", time.Since(start)))
	return errors.Join(errs...)
}
