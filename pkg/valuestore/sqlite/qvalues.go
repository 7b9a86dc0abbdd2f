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

// An expired row that has not been reaped yet starts over instead of
// inheriting its stale visit count.
const upsertQValueSQL = `
	INSERT INTO q_values (
		agent_type, state_hash, state_data, action_hash, action_data,
		value, visit_count, confidence_score, created_at, updated_at, expires_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, CAST(? AS REAL) / (? + ?), ?, ?, ?)
	ON CONFLICT (agent_type, state_hash, action_hash) DO UPDATE SET
		state_data = excluded.state_data,
		action_data = excluded.action_data,
		value = excluded.value,
		visit_count = CASE WHEN q_values.expires_at <= excluded.updated_at
			THEN excluded.visit_count
			ELSE q_values.visit_count + excluded.visit_count END,
		confidence_score = CAST(CASE WHEN q_values.expires_at <= excluded.updated_at
			THEN excluded.visit_count
			ELSE q_values.visit_count + excluded.visit_count END AS REAL) /
			(CASE WHEN q_values.expires_at <= excluded.updated_at
			THEN excluded.visit_count
			ELSE q_values.visit_count + excluded.visit_count END + ?),
		updated_at = excluded.updated_at,
		expires_at = excluded.expires_at
	RETURNING id`

// UpsertQValue implements valuestore.Store with a single atomic statement.
func (s *Store) UpsertQValue(ctx context.Context, w types.QValueWrite) (int64, error) {
	ctx, span := s.startSpan(ctx, "upsert_q_value")
	defer s.tracer.EndSpan(span)
	span.SetAttribute(observability.AttrAgentType, string(w.AgentType))
	span.SetAttribute(observability.AttrStateHash, w.StateHash)
	span.SetAttribute(observability.AttrActionHash, w.ActionHash)

	if err := valuestore.ValidateWrite(w); err != nil {
		span.RecordError(err)
		return 0, err
	}

	stateJSON, err := marshalPayload(w.StateData)
	if err != nil {
		return 0, valuestore.Constraint("upsert q-value", "state data is not serializable", err)
	}
	actionJSON, err := marshalPayload(w.ActionData)
	if err != nil {
		return 0, valuestore.Constraint("upsert q-value", "action data is not serializable", err)
	}

	now := s.now()
	visits := w.VisitDelta()
	var id int64
	err = s.db.QueryRowContext(ctx, upsertQValueSQL,
		string(w.AgentType), w.StateHash, stateJSON, w.ActionHash, actionJSON,
		w.Value, visits, visits, visits, valuestore.ConfidencePrior,
		toUnix(now), toUnix(now), toUnix(now.Add(s.opts.TTL)),
		valuestore.ConfidencePrior,
	).Scan(&id)
	if err != nil {
		err = classify("upsert q-value", err)
		span.RecordError(err)
		return 0, err
	}
	return id, nil
}

// GetBestAction implements valuestore.Store.
func (s *Store) GetBestAction(ctx context.Context, agentType types.AgentType, stateHash string) (*types.BestAction, bool, error) {
	ctx, span := s.startSpan(ctx, "get_best_action")
	defer s.tracer.EndSpan(span)
	span.SetAttribute(observability.AttrAgentType, string(agentType))
	span.SetAttribute(observability.AttrStateHash, stateHash)

	if err := valuestore.ValidateKey("get best action", agentType, stateHash); err != nil {
		span.RecordError(err)
		return nil, false, err
	}

	var (
		best       types.BestAction
		actionJSON string
		expiresAt  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT action_hash, action_data, value, visit_count, expires_at
		FROM q_values
		WHERE agent_type = ? AND state_hash = ? AND expires_at > ?
		ORDER BY value DESC, visit_count ASC, action_hash ASC
		LIMIT 1`,
		string(agentType), stateHash, toUnix(s.now()),
	).Scan(&best.ActionHash, &actionJSON, &best.Value, &best.VisitCount, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		err = classify("get best action", err)
		span.RecordError(err)
		return nil, false, err
	}

	if best.ActionData, err = unmarshalAction(actionJSON); err != nil {
		return nil, false, fmt.Errorf("decode action data: %w", err)
	}
	best.ExpiresAt = fromUnix(expiresAt)
	span.SetAttribute(observability.AttrActionHash, best.ActionHash)
	return &best, true, nil
}

// GetStateValues implements valuestore.Store.
func (s *Store) GetStateValues(ctx context.Context, agentType types.AgentType, stateHash string) ([]types.QValue, error) {
	ctx, span := s.startSpan(ctx, "get_state_values")
	defer s.tracer.EndSpan(span)
	span.SetAttribute(observability.AttrAgentType, string(agentType))
	span.SetAttribute(observability.AttrStateHash, stateHash)

	if err := valuestore.ValidateKey("get state values", agentType, stateHash); err != nil {
		span.RecordError(err)
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, state_data, action_hash, action_data, value, visit_count,
			confidence_score, updated_at, expires_at
		FROM q_values
		WHERE agent_type = ? AND state_hash = ? AND expires_at > ?
		ORDER BY value DESC, visit_count ASC, action_hash ASC`,
		string(agentType), stateHash, toUnix(s.now()),
	)
	if err != nil {
		err = classify("get state values", err)
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	var out []types.QValue
	for rows.Next() {
		q := types.QValue{AgentType: agentType, StateHash: stateHash}
		var stateJSON, actionJSON string
		var updatedAt, expiresAt int64
		if err := rows.Scan(&q.ID, &stateJSON, &q.ActionHash, &actionJSON, &q.Value,
			&q.VisitCount, &q.ConfidenceScore, &updatedAt, &expiresAt); err != nil {
			return nil, classify("get state values", err)
		}
		if q.StateData, err = unmarshalState(stateJSON); err != nil {
			return nil, fmt.Errorf("decode state data: %w", err)
		}
		if q.ActionData, err = unmarshalAction(actionJSON); err != nil {
			return nil, fmt.Errorf("decode action data: %w", err)
		}
		q.UpdatedAt = fromUnix(updatedAt)
		q.ExpiresAt = fromUnix(expiresAt)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("get state values", err)
	}
	span.SetAttribute(observability.AttrRowsAffected, len(out))
	return out, nil
}

func marshalPayload(v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalState(raw string) (types.StateData, error) {
	var out types.StateData
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func unmarshalAction(raw string) (types.ActionData, error) {
	var out types.ActionData
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
