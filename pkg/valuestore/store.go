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

// Package valuestore defines the durable Q-value and trajectory store shared
// by every learner in the fleet, plus the pieces that sit in front of or
// behind any implementation: key validation, error classification, a
// read-through cache and the scheduled reaper for expired rows.
//
// Implementations live in the sqlite and postgres subpackages; backend
// selects one from configuration.
package valuestore

import (
	"context"
	"errors"
	"time"

	"github.com/teradata-labs/qfleet/pkg/types"
)

// ErrNotFound is returned by point reads of trajectories and agent state.
var ErrNotFound = errors.New("not found")

// Defaults shared by the implementations.
const (
	DefaultTTL          = 30 * 24 * time.Hour
	DefaultCleanupBatch = 1000
	// ConfidencePrior is the visit count at which confidence reaches 0.5.
	ConfidencePrior = 10
)

// Store is the system of record for learned values. Every method is safe for
// concurrent use by many learners. Transient failures are reported as
// *types.StoreUnavailableError and malformed input as
// *types.ConstraintViolationError.
type Store interface {
	// UpsertQValue atomically inserts or updates the row keyed by
	// (agent_type, state_hash, action_hash): value is overwritten (last writer
	// wins), visit_count grows by w.VisitDelta(), confidence and expires_at
	// are refreshed. Concurrent calls on one key never lose visits.
	UpsertQValue(ctx context.Context, w types.QValueWrite) (int64, error)

	// GetBestAction returns the highest-valued live action for a state.
	// Ties prefer the lower visit count. found is false for unseen states.
	GetBestAction(ctx context.Context, agentType types.AgentType, stateHash string) (best *types.BestAction, found bool, err error)

	// GetStateValues returns every live action value recorded for a state,
	// best first.
	GetStateValues(ctx context.Context, agentType types.AgentType, stateHash string) ([]types.QValue, error)

	// AppendTrajectory inserts a sealed trajectory. Trajectories are never
	// updated; appending an existing ID is a constraint violation.
	AppendTrajectory(ctx context.Context, t *types.Trajectory) error
	GetTrajectory(ctx context.Context, id string) (*types.Trajectory, error)
	RecentTrajectories(ctx context.Context, agentType types.AgentType, limit int) ([]*types.Trajectory, error)

	SaveAgentState(ctx context.Context, state types.AgentLearningState) error
	LoadAgentState(ctx context.Context, agentID string) (*types.AgentLearningState, error)

	// CleanupExpired deletes expired rows in bounded batches until none remain.
	CleanupExpired(ctx context.Context) (CleanupResult, error)

	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// Migrator is implemented by stores with versioned schemas.
type Migrator interface {
	MigrateUp(ctx context.Context) error
	MigrateDown(ctx context.Context, steps int) error
	CurrentVersion(ctx context.Context) (int, error)
	PendingMigrations(ctx context.Context) ([]Migration, error)
}

// Migration is one versioned schema step.
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
}

// CleanupResult counts the rows removed by one reaping pass.
type CleanupResult struct {
	QValues      int64 `json:"q_values"`
	Trajectories int64 `json:"trajectories"`
}

// Total is the number of rows removed across tables.
func (r CleanupResult) Total() int64 { return r.QValues + r.Trajectories }

// Stats summarizes store contents.
type Stats struct {
	Backend        string                    `json:"backend"`
	LiveQValues    int64                     `json:"live_q_values"`
	ExpiredQValues int64                     `json:"expired_q_values"`
	Trajectories   int64                     `json:"trajectories"`
	Agents         int64                     `json:"agents"`
	PerAgentType   map[types.AgentType]int64 `json:"per_agent_type,omitempty"`
}

// Confidence derives the confidence score stored alongside a value.
// It is monotone in visits and stays below 1.
func Confidence(visits int64) float64 {
	if visits <= 0 {
		return 0
	}
	return float64(visits) / float64(visits+ConfidencePrior)
}

// Options holds settings common to the implementations.
type Options struct {
	// TTL is the lifetime granted to a row on every write.
	TTL time.Duration
	// CleanupBatch bounds the rows deleted per statement.
	CleanupBatch int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// WithDefaults fills zero fields.
func (o Options) WithDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.CleanupBatch <= 0 {
		o.CleanupBatch = DefaultCleanupBatch
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
