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
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/teradata-labs/qfleet/pkg/observability"
	"github.com/teradata-labs/qfleet/pkg/types"
	"github.com/teradata-labs/qfleet/pkg/valuestore"
)

const trajectoryColumns = `id, agent_type, agent_id, session_id, initial_state, final_state,
	steps, total_reward, discounted_reward, success, done, started_at, completed_at, expires_at`

// AppendTrajectory implements valuestore.Store. ExpiresAt is assigned from
// the store TTL when unset.
func (s *Store) AppendTrajectory(ctx context.Context, t *types.Trajectory) error {
	ctx, span := s.startSpan(ctx, "append_trajectory")
	defer s.tracer.EndSpan(span)

	if err := valuestore.ValidateTrajectory(t); err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttribute(observability.AttrAgentType, string(t.AgentType))
	span.SetAttribute("trajectory.id", t.ID)

	cols, err := encodeTrajectory(t)
	if err != nil {
		return valuestore.Constraint("append trajectory", "trajectory is not serializable", err)
	}

	expiresAt := t.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = s.now().Add(s.opts.TTL)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trajectories (
			id, agent_type, agent_id, session_id, initial_state, final_state,
			actions_taken, states_visited, step_rewards, steps,
			total_reward, discounted_reward, success, done,
			started_at, completed_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.AgentType), t.AgentID, t.SessionID, cols.initial, cols.final,
		cols.actions, cols.states, cols.rewards, cols.steps,
		t.TotalReward, t.DiscountedReward, t.Success, t.Done,
		toUnix(t.StartedAt), toUnix(t.CompletedAt), toUnix(expiresAt),
	)
	if err != nil {
		err = classify("append trajectory", err)
		span.RecordError(err)
		return err
	}
	return nil
}

// GetTrajectory implements valuestore.Store. Expired trajectories are not
// returned.
func (s *Store) GetTrajectory(ctx context.Context, id string) (*types.Trajectory, error) {
	ctx, span := s.startSpan(ctx, "get_trajectory")
	defer s.tracer.EndSpan(span)
	span.SetAttribute("trajectory.id", id)

	row := s.db.QueryRowContext(ctx,
		"SELECT "+trajectoryColumns+" FROM trajectories WHERE id = ? AND expires_at > ?",
		id, toUnix(s.now()))
	t, err := scanTrajectory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trajectory %s: %w", id, valuestore.ErrNotFound)
	}
	if err != nil {
		err = classify("get trajectory", err)
		span.RecordError(err)
		return nil, err
	}
	return t, nil
}

// RecentTrajectories implements valuestore.Store, newest first.
func (s *Store) RecentTrajectories(ctx context.Context, agentType types.AgentType, limit int) ([]*types.Trajectory, error) {
	ctx, span := s.startSpan(ctx, "recent_trajectories")
	defer s.tracer.EndSpan(span)
	span.SetAttribute(observability.AttrAgentType, string(agentType))

	if err := agentType.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+trajectoryColumns+` FROM trajectories
		WHERE agent_type = ? AND expires_at > ?
		ORDER BY completed_at DESC, id ASC
		LIMIT ?`,
		string(agentType), toUnix(s.now()), limit)
	if err != nil {
		err = classify("recent trajectories", err)
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	var out []*types.Trajectory
	for rows.Next() {
		t, err := scanTrajectory(rows)
		if err != nil {
			return nil, classify("recent trajectories", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("recent trajectories", err)
	}
	return out, nil
}

type trajectoryJSON struct {
	initial, final, actions, states, rewards, steps string
}

func encodeTrajectory(t *types.Trajectory) (trajectoryJSON, error) {
	var out trajectoryJSON
	fields := []struct {
		dst *string
		v   any
	}{
		{&out.initial, nonNilMap(t.InitialState)},
		{&out.final, nonNilMap(t.FinalState)},
		{&out.actions, t.ActionsTaken()},
		{&out.states, t.StatesVisited()},
		{&out.rewards, t.StepRewards()},
		{&out.steps, nonNilSteps(t.Steps)},
	}
	for _, f := range fields {
		b, err := json.Marshal(f.v)
		if err != nil {
			return out, err
		}
		*f.dst = string(b)
	}
	return out, nil
}

func nonNilMap(m types.StateData) types.StateData {
	if m == nil {
		return types.StateData{}
	}
	return m
}

func nonNilSteps(s []types.TrajectoryStep) []types.TrajectoryStep {
	if s == nil {
		return []types.TrajectoryStep{}
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrajectory(row rowScanner) (*types.Trajectory, error) {
	var (
		t                                types.Trajectory
		agentType                        string
		initial, final, steps            string
		startedAt, completedAt, expireAt int64
	)
	if err := row.Scan(&t.ID, &agentType, &t.AgentID, &t.SessionID, &initial, &final,
		&steps, &t.TotalReward, &t.DiscountedReward, &t.Success, &t.Done,
		&startedAt, &completedAt, &expireAt); err != nil {
		return nil, err
	}
	t.AgentType = types.AgentType(agentType)
	t.StartedAt = fromUnix(startedAt)
	t.CompletedAt = fromUnix(completedAt)
	t.ExpiresAt = fromUnix(expireAt)

	if err := json.Unmarshal([]byte(initial), &t.InitialState); err != nil {
		return nil, fmt.Errorf("decode initial state: %w", err)
	}
	if err := json.Unmarshal([]byte(final), &t.FinalState); err != nil {
		return nil, fmt.Errorf("decode final state: %w", err)
	}
	if err := json.Unmarshal([]byte(steps), &t.Steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	return &t, nil
}
