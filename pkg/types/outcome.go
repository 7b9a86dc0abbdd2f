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

import "time"

// PatternReuse describes whether a learned pattern was reused for the task.
type PatternReuse int

const (
	PatternNotReused PatternReuse = iota
	PatternReusedSucceeded
	PatternReusedFailed
)

func (p PatternReuse) String() string {
	switch p {
	case PatternReusedSucceeded:
		return "reused_succeeded"
	case PatternReusedFailed:
		return "reused_failed"
	default:
		return "not_reused"
	}
}

// FlakinessVerdict is reported by flaky-test hunters: what the agent
// predicted and what re-runs confirmed.
type FlakinessVerdict struct {
	PredictedFlaky bool `json:"predicted_flaky"`
	ConfirmedFlaky bool `json:"confirmed_flaky"`
}

// Outcome is what an agent reports after executing an action. Only Success is
// required; every other zero-valued field contributes nothing to the reward.
type Outcome struct {
	Success bool `json:"success"`
	Timeout bool `json:"timeout,omitempty"`

	// Coverage in percentage points.
	CoverageDelta   float64 `json:"coverage_delta,omitempty"`
	CoveragePercent float64 `json:"coverage_percent,omitempty"`

	// Quality on a 0-100 scale.
	QualityDelta float64 `json:"quality_delta,omitempty"`
	QualityScore float64 `json:"quality_score,omitempty"`

	DefectsFound    int `json:"defects_found,omitempty"`
	CriticalDefects int `json:"critical_defects,omitempty"`

	ActualDuration   time.Duration `json:"actual_duration,omitempty"`
	ExpectedDuration time.Duration `json:"expected_duration,omitempty"`

	PatternReuse PatternReuse `json:"pattern_reuse,omitempty"`

	ActualCost   float64 `json:"actual_cost,omitempty"`
	BudgetedCost float64 `json:"budgeted_cost,omitempty"`

	// Agent-type specific signals.
	Flakiness          *FlakinessVerdict `json:"flakiness,omitempty"`
	FalsePositives     int               `json:"false_positives,omitempty"`
	RegressionDetected bool              `json:"regression_detected,omitempty"`
	RegressionReal     bool              `json:"regression_real,omitempty"`

	// NextContext is the task context after the action; nil means unseen.
	NextContext map[string]any `json:"next_context,omitempty"`
	// Done marks the transition as terminal for the episode.
	Done bool `json:"done,omitempty"`
}
