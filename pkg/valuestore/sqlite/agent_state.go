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
	"errors"
	"fmt"

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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_learning_state (
			agent_id, agent_type, tasks_attempted, tasks_succeeded, tasks_failed,
			total_reward, exploration_rate, learning_rate, patterns_learned,
			flush_failures, pending_writes, last_flush_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent_id) DO UPDATE SET
			agent_type = excluded.agent_type,
			tasks_attempted = excluded.tasks_attempted,
			tasks_succeeded = excluded.tasks_succeeded,
			tasks_failed = excluded.tasks_failed,
			total_reward = excluded.total_reward,
			exploration_rate = excluded.exploration_rate,
			learning_rate = excluded.learning_rate,
			patterns_learned = excluded.patterns_learned,
			flush_failures = excluded.flush_failures,
			pending_writes = excluded.pending_writes,
			last_flush_at = excluded.last_flush_at,
			updated_at = excluded.updated_at`,
		st.AgentID, string(st.AgentType), st.TasksAttempted, st.TasksSucceeded, st.TasksFailed,
		st.TotalReward, st.ExplorationRate, st.LearningRate, st.PatternsLearned,
		st.FlushFailures, st.PendingWrites, toUnix(st.LastFlushAt), toUnix(updatedAt),
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
		st                     types.AgentLearningState
		agentType              string
		lastFlushAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT agent_id, agent_type, tasks_attempted, tasks_succeeded, tasks_failed,
			total_reward, exploration_rate, learning_rate, patterns_learned,
			flush_failures, pending_writes, last_flush_at, updated_at
		FROM agent_learning_state WHERE agent_id = ?`, agentID,
	).Scan(&st.AgentID, &agentType, &st.TasksAttempted, &st.TasksSucceeded, &st.TasksFailed,
		&st.TotalReward, &st.ExplorationRate, &st.LearningRate, &st.PatternsLearned,
		&st.FlushFailures, &st.PendingWrites, &lastFlushAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", agentID, valuestore.ErrNotFound)
	}
	if err != nil {
		err = classify("load agent state", err)
		span.RecordError(err)
		return nil, err
	}
	st.AgentType = types.AgentType(agentType)
	st.LastFlushAt = fromUnix(lastFlushAt)
	st.UpdatedAt = fromUnix(updatedAt)
	return &st, nil
}
