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
	"fmt"

	"github.com/teradata-labs/qfleet/pkg/observability"
	"github.com/teradata-labs/qfleet/pkg/types"
	"github.com/teradata-labs/qfleet/pkg/valuestore"
)

// CleanupExpired implements valuestore.Store. Each batch is its own short
// statement so writers are never locked out for a whole pass.
func (s *Store) CleanupExpired(ctx context.Context) (valuestore.CleanupResult, error) {
	ctx, span := s.startSpan(ctx, "cleanup_expired")
	defer s.tracer.EndSpan(span)

	var res valuestore.CleanupResult
	cutoff := toUnix(s.now())

	n, err := s.deleteExpired(ctx, "q_values", "id", cutoff)
	res.QValues = n
	if err != nil {
		span.RecordError(err)
		return res, err
	}

	n, err = s.deleteExpired(ctx, "trajectories", "rowid", cutoff)
	res.Trajectories = n
	if err != nil {
		span.RecordError(err)
		return res, err
	}

	span.SetAttribute(observability.AttrRowsAffected, res.Total())
	return res, nil
}

func (s *Store) deleteExpired(ctx context.Context, table, key string, cutoff int64) (int64, error) {
	query := fmt.Sprintf(
		"DELETE FROM %s WHERE %s IN (SELECT %s FROM %s WHERE expires_at <= ? LIMIT ?)",
		table, key, key, table)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, classify("cleanup "+table, err)
		}
		result, err := s.db.ExecContext(ctx, query, cutoff, s.opts.CleanupBatch)
		if err != nil {
			return total, classify("cleanup "+table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, classify("cleanup "+table, err)
		}
		total += n
		if n < int64(s.opts.CleanupBatch) {
			return total, nil
		}
	}
}

// Stats implements valuestore.Store.
func (s *Store) Stats(ctx context.Context) (valuestore.Stats, error) {
	ctx, span := s.startSpan(ctx, "stats")
	defer s.tracer.EndSpan(span)

	stats := valuestore.Stats{Backend: BackendName, PerAgentType: make(map[types.AgentType]int64)}
	now := toUnix(s.now())

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN expires_at > ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0)
		FROM q_values`, now, now,
	).Scan(&stats.LiveQValues, &stats.ExpiredQValues)
	if err != nil {
		err = classify("stats", err)
		span.RecordError(err)
		return stats, err
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trajectories").Scan(&stats.Trajectories); err != nil {
		return stats, classify("stats", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM agent_learning_state").Scan(&stats.Agents); err != nil {
		return stats, classify("stats", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT agent_type, COUNT(*) FROM q_values WHERE expires_at > ? GROUP BY agent_type", now)
	if err != nil {
		return stats, classify("stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var at string
		var n int64
		if err := rows.Scan(&at, &n); err != nil {
			return stats, classify("stats", err)
		}
		stats.PerAgentType[types.AgentType(at)] = n
	}
	return stats, classify("stats", rows.Err())
}
