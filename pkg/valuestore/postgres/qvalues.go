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

// An expired row that has not been reaped yet starts over instead of
// inheriting its stale visit count.
const upsertQValueSQL = `
	INSERT INTO q_values AS q (
		agent_type, state_hash, state_data, action_hash, action_data,
		value, visit_count, confidence_score, created_at, updated_at, expires_at
	) VALUES ($1, $2, $3::jsonb, $4, $5::jsonb, $6, $7, $8, $9, $9, $10)
	ON CONFLICT (agent_type, state_hash, action_hash) DO UPDATE SET
		state_data = EXCLUDED.state_data,
		action_data = EXCLUDED.action_data,
		value = EXCLUDED.value,
		visit_count = CASE WHEN q.expires_at <= EXCLUDED.updated_at
			THEN EXCLUDED.visit_count
			ELSE q.visit_count + EXCLUDED.visit_count END,
		confidence_score = (CASE WHEN q.expires_at <= EXCLUDED.updated_at
			THEN EXCLUDED.visit_count
			ELSE q.visit_count + EXCLUDED.visit_count END)::double precision /
			((CASE WHEN q.expires_at <= EXCLUDED.updated_at
			THEN EXCLUDED.visit_count
			ELSE q.visit_count + EXCLUDED.visit_count END) + $11::bigint),
		updated_at = EXCLUDED.updated_at,
		expires_at = EXCLUDED.expires_at
	RETURNING id`

// UpsertQValue implements valuestore.Store with a single atomic statement;
// the row lock taken by ON CONFLICT serializes concurrent writers of a key.
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
	err = s.pool.QueryRow(ctx, upsertQValueSQL,
		string(w.AgentType), w.StateHash, stateJSON, w.ActionHash, actionJSON,
		w.Value, visits, valuestore.Confidence(visits),
		now, now.Add(s.opts.TTL), int64(valuestore.ConfidencePrior),
	).Scan(&id)
	if err != nil {
		err = classify("upsert q-value", err)
		span.RecordError(err)
		return 0, err
	}
	return id, nil
}

// GetBestAction implements valuestore.Store. The query walks
// idx_q_values_best and stops at the first live row.
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
		actionJSON []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT action_hash, action_data, value, visit_count, expires_at
		FROM q_values
		WHERE agent_type = $1 AND state_hash = $2 AND expires_at > $3
		ORDER BY value DESC, visit_count ASC, action_hash ASC
		LIMIT 1`,
		string(agentType), stateHash, s.now(),
	).Scan(&best.ActionHash, &actionJSON, &best.Value, &best.VisitCount, &best.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		err = classify("get best action", err)
		span.RecordError(err)
		return nil, false, err
	}

	if err := json.Unmarshal(actionJSON, &best.ActionData); err != nil {
		return nil, false, fmt.Errorf("decode action data: %w", err)
	}
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

	rows, err := s.pool.Query(ctx, `
		SELECT id, state_data, action_hash, action_data, value, visit_count,
			confidence_score, updated_at, expires_at
		FROM q_values
		WHERE agent_type = $1 AND state_hash = $2 AND expires_at > $3
		ORDER BY value DESC, visit_count ASC, action_hash ASC`,
		string(agentType), stateHash, s.now(),
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
		var stateJSON, actionJSON []byte
		if err := rows.Scan(&q.ID, &stateJSON, &q.ActionHash, &actionJSON, &q.Value,
			&q.VisitCount, &q.ConfidenceScore, &q.UpdatedAt, &q.ExpiresAt); err != nil {
			return nil, classify("get state values", err)
		}
		if err := json.Unmarshal(stateJSON, &q.StateData); err != nil {
			return nil, fmt.Errorf("decode state data: %w", err)
		}
		if err := json.Unmarshal(actionJSON, &q.ActionData); err != nil {
			return nil, fmt.Errorf("decode action data: %w", err)
		}
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
