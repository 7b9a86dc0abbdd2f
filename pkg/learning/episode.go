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
	"time"

	"github.com/teradata-labs/qfleet/pkg/types"
)

// Phase is the position of a Learner in its episode state machine:
// Idle → Selecting → Executing → Observing → Updating → Idle | Terminal.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSelecting
	PhaseExecuting
	PhaseObserving
	PhaseUpdating
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSelecting:
		return "selecting"
	case PhaseExecuting:
		return "executing"
	case PhaseObserving:
		return "observing"
	case PhaseUpdating:
		return "updating"
	case PhaseTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

var (
	// ErrNoPendingAction is returned by ReportOutcome without a preceding
	// SelectAction.
	ErrNoPendingAction = errors.New("no action awaiting an outcome")
	// ErrEpisodeInProgress is returned by BeginEpisode while steps have
	// already been taken in the current episode.
	ErrEpisodeInProgress = errors.New("episode already in progress")
	// ErrSelectionInProgress is returned by SelectAction while another
	// selection on the same learner has not returned yet.
	ErrSelectionInProgress = errors.New("action selection already in progress")
)

// Environment executes actions for RunEpisode.
type Environment interface {
	// Observe returns the task context at the start of an episode.
	Observe(ctx context.Context) (map[string]any, error)
	// Execute performs action and reports its outcome. Outcome.NextContext
	// carries the following task context and Outcome.Done ends the episode.
	Execute(ctx context.Context, action types.Action) (types.Outcome, error)
}

// episode accumulates the trajectory of the running episode.
type episode struct {
	traj    types.Trajectory
	pending *Decision
}

func (e *episode) steps() int { return len(e.traj.Steps) }

// BeginEpisode starts a new episode from taskCtx and returns its trajectory
// ID. SelectAction begins one implicitly when none is running.
func (l *Learner) BeginEpisode(sessionID string, taskCtx map[string]any) (string, error) {
	state, err := l.encoder.Encode(l.agentType, taskCtx)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.episode != nil && (l.episode.steps() > 0 || l.episode.pending != nil) {
		return "", fmt.Errorf("%w: %s", ErrEpisodeInProgress, l.episode.traj.ID)
	}
	l.beginLocked(sessionID, state)
	return l.episode.traj.ID, nil
}

func (l *Learner) beginLocked(sessionID string, state types.State) {
	if sessionID == "" {
		sessionID = l.sessionID
	}
	l.episode = &episode{traj: types.Trajectory{
		ID:           l.newID(),
		AgentType:    l.agentType,
		AgentID:      l.agentID,
		SessionID:    sessionID,
		InitialState: state.Data,
		StartedAt:    l.now(),
	}}
	l.phase = PhaseIdle
}

// sealLocked closes the running episode, queues its trajectory for the next
// flush and decays exploration.
func (l *Learner) sealLocked(success, done bool, final types.StateData) *types.Trajectory {
	ep := l.episode
	l.episode = nil
	l.phase = PhaseTerminal

	traj := ep.traj
	traj.Success = success
	traj.Done = done
	traj.FinalState = final
	traj.CompletedAt = l.now()
	if traj.FinalState == nil {
		traj.FinalState = traj.InitialState
	}

	l.stats.TasksAttempted++
	if success {
		l.stats.TasksSucceeded++
	} else {
		l.stats.TasksFailed++
	}
	l.stats.TotalReward += traj.TotalReward
	l.stats.PatternsLearned = int64(l.table.size())
	l.exploration = DecayExploration(l.exploration, l.cfg.ExplorationDecay, l.cfg.MinExploration)

	l.pendingTrajectories = append(l.pendingTrajectories, &traj)
	out := traj
	return &out
}

// RunEpisode drives env until it reports a terminal outcome or the step
// bound is reached. Hitting the bound returns the sealed trajectory
// together with *types.EpisodeStepLimitExceeded.
func (l *Learner) RunEpisode(ctx context.Context, env Environment) (*types.Trajectory, error) {
	taskCtx, err := env.Observe(ctx)
	if err != nil {
		return nil, fmt.Errorf("observe initial context: %w", err)
	}
	if _, err := l.BeginEpisode("", taskCtx); err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return l.Abandon(), err
		}

		decision, err := l.SelectAction(ctx, taskCtx)
		if err != nil {
			return l.Abandon(), err
		}

		outcome, err := env.Execute(ctx, decision.Action)
		if err != nil {
			return l.Abandon(), fmt.Errorf("execute action: %w", err)
		}

		result, err := l.ReportOutcome(ctx, outcome)
		if result != nil && result.Trajectory != nil {
			return result.Trajectory, err
		}
		if err != nil {
			return l.Abandon(), err
		}
		if outcome.NextContext != nil {
			taskCtx = outcome.NextContext
		}
	}
}

// Abandon seals the running episode as failed and not done. It returns nil
// when no episode is running.
func (l *Learner) Abandon() *types.Trajectory {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.episode == nil {
		return nil
	}
	var final types.StateData
	if ep := l.episode; ep.pending != nil {
		final = ep.pending.State.Data
	}
	return l.sealLocked(false, false, final)
}

func (l *Learner) now() time.Time {
	return l.clock()
}
