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
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/teradata-labs/qfleet/pkg/observability"
	"github.com/teradata-labs/qfleet/pkg/types"
	"github.com/teradata-labs/qfleet/pkg/valuestore"
)

const trajectoryColumns = `id::text, agent_type, agent_id, session_id, initial_state, final_state,
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

	_, err = s.pool.Exec(ctx, `
		INSERT INTO trajectories (
			id, agent_type, agent_id, session_id, initial_state, final_state,
			actions_taken, states_visited, step_rewards, steps,
			total_reward, discounted_reward, success, done,
			started_at, completed_at, expires_at
		) VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7::jsonb, $8::jsonb, $9::jsonb, $10::jsonb,
			$11, $12, $13, $14, $15, $16, $17)`,
		t.ID, string(t.AgentType), t.AgentID, t.SessionID, cols[0], cols[1],
		cols[2], cols[3], cols[4], cols[5],
		t.TotalReward, t.DiscountedReward, t.Success, t.Done,
		t.StartedAt, t.CompletedAt, expiresAt,
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

	row := s.pool.QueryRow(ctx,
		"SELECT "+trajectoryColumns+" FROM trajectories WHERE id::text = $1 AND expires_at > $2",
		id, s.now())
	t, err := scanTrajectory(row)
	if errors.Is(err, pgx.ErrNoRows) {
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

	rows, err := s.pool.Query(ctx,
		"SELECT "+trajectoryColumns+` FROM trajectories
		WHERE agent_type = $1 AND expires_at > $2
		ORDER BY completed_at DESC, id ASC
		LIMIT $3`,
		string(agentType), s.now(), limit)
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

// encodeTrajectory returns the JSON columns in insert order: initial and
// final state, actions, states, rewards, steps.
func encodeTrajectory(t *types.Trajectory) ([6]string, error) {
	var out [6]string
	initial, final := t.InitialState, t.FinalState
	if initial == nil {
		initial = types.StateData{}
	}
	if final == nil {
		final = types.StateData{}
	}
	steps := t.Steps
	if steps == nil {
		steps = []types.TrajectoryStep{}
	}

	for i, v := range []any{initial, final, t.ActionsTaken(), t.StatesVisited(), t.StepRewards(), steps} {
		b, err := json.Marshal(v)
		if err != nil {
			return out, err
		}
		out[i] = string(b)
	}
	return out, nil
}

func scanTrajectory(row pgx.Row) (*types.Trajectory, error) {
	var (
		t                     types.Trajectory
		agentType             string
		initial, final, steps []byte
	)
	if err := row.Scan(&t.ID, &agentType, &t.AgentID, &t.SessionID, &initial, &final,
		&steps, &t.TotalReward, &t.DiscountedReward, &t.Success, &t.Done,
		&t.StartedAt, &t.CompletedAt, &t.ExpiresAt); err != nil {
		return nil, err
	}
	t.AgentType = types.AgentType(agentType)

	if err := json.Unmarshal(initial, &t.InitialState); err != nil {
		return nil, fmt.Errorf("decode initial state: %w", err)
	}
	if err := json.Unmarshal(final, &t.FinalState); err != nil {
		return nil, fmt.Errorf("decode final state: %w", err)
	}
	if err := json.Unmarshal(steps, &t.Steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	return &t, nil
}
