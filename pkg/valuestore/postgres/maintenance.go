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
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/teradata-labs/qfleet/internal/pgxdriver"
	"github.com/teradata-labs/qfleet/pkg/observability"
	"github.com/teradata-labs/qfleet/pkg/types"
	"github.com/teradata-labs/qfleet/pkg/valuestore"
)

// CleanupExpired implements valuestore.Store. Rows are removed in bounded
// batches; SKIP LOCKED lets several reapers share the work without
// blocking writers.
func (s *Store) CleanupExpired(ctx context.Context) (valuestore.CleanupResult, error) {
	ctx, span := s.startSpan(ctx, "cleanup_expired")
	defer s.tracer.EndSpan(span)

	var res valuestore.CleanupResult
	cutoff := s.now()

	n, err := s.deleteExpired(ctx, "q_values", cutoff)
	res.QValues = n
	if err != nil {
		span.RecordError(err)
		return res, err
	}

	n, err = s.deleteExpired(ctx, "trajectories", cutoff)
	res.Trajectories = n
	if err != nil {
		span.RecordError(err)
		return res, err
	}

	span.SetAttribute(observability.AttrRowsAffected, res.Total())
	return res, nil
}

func (s *Store) deleteExpired(ctx context.Context, table string, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE id IN (
			SELECT id FROM %s WHERE expires_at <= $1
			LIMIT $2 FOR UPDATE SKIP LOCKED)`, table, table)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, classify("cleanup "+table, err)
		}
		// one transaction per batch keeps row locks short-lived
		var n int64
		err := pgxdriver.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, query, cutoff, s.opts.CleanupBatch)
			n = tag.RowsAffected()
			return err
		})
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
	now := s.now()

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE expires_at > $1),
			COUNT(*) FILTER (WHERE expires_at <= $1),
			(SELECT COUNT(*) FROM trajectories),
			(SELECT COUNT(*) FROM agent_learning_state)
		FROM q_values`, now,
	).Scan(&stats.LiveQValues, &stats.ExpiredQValues, &stats.Trajectories, &stats.Agents)
	if err != nil {
		err = classify("stats", err)
		span.RecordError(err)
		return stats, err
	}

	rows, err := s.pool.Query(ctx,
		"SELECT agent_type, COUNT(*) FROM q_values WHERE expires_at > $1 GROUP BY agent_type", now)
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
