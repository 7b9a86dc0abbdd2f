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
package types

import (
	"time"
)

// StateData is the canonical, bucketed feature payload of a state. Values are
// restricted to ints, strings and bools so the JSON form is stable.
type StateData map[string]any

// ActionData is the opaque payload describing a concrete action.
type ActionData map[string]any

// State is where an agent currently is, as seen by its agent type.
type State struct {
	AgentType AgentType `json:"agent_type"`
	Hash      string    `json:"state_hash"`
	Data      StateData `json:"state_data"`
}

// Action is a concrete choice available to an agent type.
type Action struct {
	AgentType AgentType  `json:"agent_type"`
	Hash      string     `json:"action_hash"`
	Data      ActionData `json:"action_data"`
}

// QValue is the learned value of taking Action in State.
// ConfidenceScore is derived from VisitCount and is informational only.
type QValue struct {
	ID              int64      `json:"id"`
	AgentType       AgentType  `json:"agent_type"`
	StateHash       string     `json:"state_hash"`
	StateData       StateData  `json:"state_data,omitempty"`
	ActionHash      string     `json:"action_hash"`
	ActionData      ActionData `json:"action_data,omitempty"`
	Value           float64    `json:"value"`
	VisitCount      int64      `json:"visit_count"`
	ConfidenceScore float64    `json:"confidence_score"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
}

// Expired reports whether the row is past its TTL at now.
func (q QValue) Expired(now time.Time) bool {
	return !q.ExpiresAt.After(now)
}

// QValueWrite is the payload of an atomic upsert. Visits is the number of
// local updates coalesced into this write; zero counts as one.
type QValueWrite struct {
	AgentType  AgentType
	StateHash  string
	StateData  StateData
	ActionHash string
	ActionData ActionData
	Value      float64
	Visits     int64
}

// VisitDelta returns the visit increment applied by the write.
func (w QValueWrite) VisitDelta() int64 {
	if w.Visits <= 0 {
		return 1
	}
	return w.Visits
}

// BestAction is the highest-valued live action recorded for a state.
type BestAction struct {
	ActionHash string
	ActionData ActionData
	Value      float64
	VisitCount int64
	ExpiresAt  time.Time
}

// TrajectoryStep is one (state, action, reward) transition of an episode.
type TrajectoryStep struct {
	StateHash  string     `json:"state_hash"`
	StateData  StateData  `json:"state_data,omitempty"`
	ActionHash string     `json:"action_hash"`
	ActionData ActionData `json:"action_data,omitempty"`
	Reward     float64    `json:"reward"`
	Explored   bool       `json:"explored"`
	At         time.Time  `json:"at"`
}

// Trajectory is the sealed record of one learning episode. It is insert-only.
type Trajectory struct {
	ID               string           `json:"id"`
	AgentType        AgentType        `json:"agent_type"`
	AgentID          string           `json:"agent_id"`
	SessionID        string           `json:"session_id"`
	InitialState     StateData        `json:"initial_state"`
	FinalState       StateData        `json:"final_state"`
	Steps            []TrajectoryStep `json:"steps"`
	TotalReward      float64          `json:"total_reward"`
	DiscountedReward float64          `json:"discounted_reward"`
	Success          bool             `json:"success"`
	Done             bool             `json:"done"`
	StartedAt        time.Time        `json:"started_at"`
	CompletedAt      time.Time        `json:"completed_at"`
	ExpiresAt        time.Time        `json:"expires_at,omitempty"`
}

// Duration is the wall-clock length of the episode.
func (t *Trajectory) Duration() time.Duration {
	if t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

// ActionsTaken returns the action hashes in step order.
func (t *Trajectory) ActionsTaken() []string {
	out := make([]string, len(t.Steps))
	for i, s := range t.Steps {
		out[i] = s.ActionHash
	}
	return out
}

// StatesVisited returns the state hashes in step order.
func (t *Trajectory) StatesVisited() []string {
	out := make([]string, len(t.Steps))
	for i, s := range t.Steps {
		out[i] = s.StateHash
	}
	return out
}

// StepRewards returns the per-step rewards in step order.
func (t *Trajectory) StepRewards() []float64 {
	out := make([]float64, len(t.Steps))
	for i, s := range t.Steps {
		out[i] = s.Reward
	}
	return out
}

// AgentLearningState holds the counters of one agent instance.
type AgentLearningState struct {
	AgentID         string    `json:"agent_id"`
	AgentType       AgentType `json:"agent_type"`
	TasksAttempted  int64     `json:"tasks_attempted"`
	TasksSucceeded  int64     `json:"tasks_succeeded"`
	TasksFailed     int64     `json:"tasks_failed"`
	TotalReward     float64   `json:"total_reward"`
	ExplorationRate float64   `json:"exploration_rate"`
	LearningRate    float64   `json:"learning_rate"`
	PatternsLearned int64     `json:"patterns_learned"`
	FlushFailures   int64     `json:"flush_failures"`
	PendingWrites   int64     `json:"pending_writes"`
	LastFlushAt     time.Time `json:"last_flush_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SuccessRate is TasksSucceeded / TasksAttempted, or 0 with no attempts.
func (s AgentLearningState) SuccessRate() float64 {
	if s.TasksAttempted == 0 {
		return 0
	}
	return float64(s.TasksSucceeded) / float64(s.TasksAttempted)
}
