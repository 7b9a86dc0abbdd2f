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
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/teradata-labs/qfleet/pkg/observability"
	"github.com/teradata-labs/qfleet/pkg/types"
	"github.com/teradata-labs/qfleet/pkg/valuestore"
)

// SaveAgentState implements valuestore.Store.
func (s *Store) SaveAgentState(ctx context.Context, st types.AgentLearningState) error {
	ctx, span := s.startSpan(ctx, "save_agent_state")
	defer s.tracer.EndSpan(span)
	span.SetAttribute(observability.AttrAgentID, st.AgentID)

	if err := valuestore.ValidateAgentState(st); err != nil {
		span.RecordError(err)
		return err
	}

	updatedAt := st.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	var lastFlushAt *time.Time
	if !st.LastFlushAt.IsZero() {
		lastFlushAt = &st.LastFlushAt
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_learning_state (
			agent_id, agent_type, tasks_attempted, tasks_succeeded, tasks_failed,
			total_reward, exploration_rate, learning_rate, patterns_learned,
			flush_failures, pending_writes, last_flush_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (agent_id) DO UPDATE SET
			agent_type = EXCLUDED.agent_type,
			tasks_attempted = EXCLUDED.tasks_attempted,
			tasks_succeeded = EXCLUDED.tasks_succeeded,
			tasks_failed = EXCLUDED.tasks_failed,
			total_reward = EXCLUDED.total_reward,
			exploration_rate = EXCLUDED.exploration_rate,
			learning_rate = EXCLUDED.learning_rate,
			patterns_learned = EXCLUDED.patterns_learned,
			flush_failures = EXCLUDED.flush_failures,
			pending_writes = EXCLUDED.pending_writes,
			last_flush_at = EXCLUDED.last_flush_at,
			updated_at = EXCLUDED.updated_at`,
		st.AgentID, string(st.AgentType), st.TasksAttempted, st.TasksSucceeded, st.TasksFailed,
		st.TotalReward, st.ExplorationRate, st.LearningRate, st.PatternsLearned,
		st.FlushFailures, st.PendingWrites, lastFlushAt, updatedAt,
	)
	if err != nil {
		err = classify("save agent state", err)
		span.RecordError(err)
		return err
	}
	return nil
}

// LoadAgentState implements valuestore.Store.
func (s *Store) LoadAgentState(ctx context.Context, agentID string) (*types.AgentLearningState, error) {
	ctx, span := s.startSpan(ctx, "load_agent_state")
	defer s.tracer.EndSpan(span)
	span.SetAttribute(observability.AttrAgentID, agentID)

	var (
		st          types.AgentLearningState
		agentType   string
		lastFlushAt *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT agent_id, agent_type, tasks_attempted, tasks_succeeded, tasks_failed,
			total_reward, exploration_rate, learning_rate, patterns_learned,
			flush_failures, pending_writes, last_flush_at, updated_at
		FROM agent_learning_state WHERE agent_id = $1`, agentID,
	).Scan(&st.AgentID, &agentType, &st.TasksAttempted, &st.TasksSucceeded, &st.TasksFailed,
		&st.TotalReward, &st.ExplorationRate, &st.LearningRate, &st.PatternsLearned,
		&st.FlushFailures, &st.PendingWrites, &lastFlushAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", agentID, valuestore.ErrNotFound)
	}
	if err != nil {
		err = classify("load agent state", err)
		span.RecordError(err)
		return nil, err
	}
	st.AgentType = types.AgentType(agentType)
	if lastFlushAt != nil {
		st.LastFlushAt = *lastFlushAt
	}
	return &st, nil
}
