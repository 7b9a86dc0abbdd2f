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

// Package reward converts reported outcomes into scalar learning signals.
//
// The reward is a weighted sum of five independently clamped components
// (coverage, quality, time efficiency, pattern reuse, cost efficiency),
// followed by additive penalties and bonuses and an optional agent-type
// adjustment. Calculation never fails: missing fields contribute zero and
// non-finite inputs are ignored.
package reward

import (
	"math"

	"github.com/teradata-labs/qfleet/pkg/types"
)

// Component clamp ranges.
const (
	CoverageMin, CoverageMax = -100.0, 100.0
	QualityMin, QualityMax   = -100.0, 100.0
	TimeMin, TimeMax         = -50.0, 50.0
	PatternMin, PatternMax   = -50.0, 50.0
	CostMin, CostMax         = -50.0, 50.0
	AdjustMin, AdjustMax     = -10.0, 10.0
)

// Raw component scaling.
const (
	coveragePerPoint    = 10.0
	qualityPerPoint     = 5.0
	rewardPerDefect     = 5.0
	rewardPerCritical   = 10.0
	patternReuseSuccess = 50.0
	patternReuseFailure = -25.0
)

// Config holds the reward weights and fixed adjustments. Field layout
// mirrors config.RewardConfig so one converts to the other directly.
type Config struct {
	CoverageWeight         float64
	QualityWeight          float64
	TimeWeight             float64
	PatternWeight          float64
	CostWeight             float64
	FailurePenalty         float64
	TimeoutPenalty         float64
	CoverageBonus          float64
	QualityBonus           float64
	CoverageBonusThreshold float64
	QualityBonusThreshold  float64
}

// DefaultConfig returns the 30/25/20/15/10 weighting with -50 failure,
// -25 timeout and +10 bonuses at 90.
func DefaultConfig() Config {
	return Config{
		CoverageWeight:         0.30,
		QualityWeight:          0.25,
		TimeWeight:             0.20,
		PatternWeight:          0.15,
		CostWeight:             0.10,
		FailurePenalty:         -50,
		TimeoutPenalty:         -25,
		CoverageBonus:          10,
		QualityBonus:           10,
		CoverageBonusThreshold: 90,
		QualityBonusThreshold:  90,
	}
}

// Breakdown itemizes a reward. Components are clamped but unweighted.
type Breakdown struct {
	Coverage   float64 `json:"coverage"`
	Quality    float64 `json:"quality"`
	Time       float64 `json:"time"`
	Pattern    float64 `json:"pattern"`
	Cost       float64 `json:"cost"`
	Weighted   float64 `json:"weighted"`
	Penalties  float64 `json:"penalties"`
	Bonuses    float64 `json:"bonuses"`
	Adjustment float64 `json:"adjustment"`
	Total      float64 `json:"total"`
}

// Calculator scores outcomes. It is stateless and safe for concurrent use.
type Calculator struct {
	cfg       Config
	adjusters map[types.AgentType]Adjuster
}

// New returns a Calculator using cfg and the built-in agent-type adjusters.
func New(cfg Config) *Calculator {
	return &Calculator{cfg: cfg, adjusters: builtinAdjusters()}
}

// Config returns the calculator's configuration.
func (c *Calculator) Config() Config { return c.cfg }

// Calculate returns the scalar reward for outcome.
func (c *Calculator) Calculate(agentType types.AgentType, outcome types.Outcome) float64 {
	return c.Breakdown(agentType, outcome).Total
}

// Breakdown returns the itemized reward for outcome.
func (c *Calculator) Breakdown(agentType types.AgentType, outcome types.Outcome) Breakdown {
	b := Breakdown{
		Coverage: coverageComponent(outcome),
		Quality:  qualityComponent(outcome),
		Time:     timeComponent(outcome),
		Pattern:  patternComponent(outcome),
		Cost:     costComponent(outcome),
	}
	b.Weighted = c.cfg.CoverageWeight*b.Coverage +
		c.cfg.QualityWeight*b.Quality +
		c.cfg.TimeWeight*b.Time +
		c.cfg.PatternWeight*b.Pattern +
		c.cfg.CostWeight*b.Cost

	if !outcome.Success {
		b.Penalties += c.cfg.FailurePenalty
	}
	if outcome.Timeout {
		b.Penalties += c.cfg.TimeoutPenalty
	}
	if finite(outcome.CoveragePercent) && outcome.CoveragePercent >= c.cfg.CoverageBonusThreshold {
		b.Bonuses += c.cfg.CoverageBonus
	}
	if finite(outcome.QualityScore) && outcome.QualityScore >= c.cfg.QualityBonusThreshold {
		b.Bonuses += c.cfg.QualityBonus
	}

	if adjust, ok := c.adjusters[agentType]; ok {
		b.Adjustment = clamp(adjust(outcome), AdjustMin, AdjustMax)
	}

	b.Total = b.Weighted + b.Penalties + b.Bonuses + b.Adjustment
	return b
}

// Bounds returns the smallest and largest reward Calculate can produce.
func (c *Calculator) Bounds() (lo, hi float64) {
	type span struct{ w, min, max float64 }
	for _, s := range []span{
		{c.cfg.CoverageWeight, CoverageMin, CoverageMax},
		{c.cfg.QualityWeight, QualityMin, QualityMax},
		{c.cfg.TimeWeight, TimeMin, TimeMax},
		{c.cfg.PatternWeight, PatternMin, PatternMax},
		{c.cfg.CostWeight, CostMin, CostMax},
	} {
		lo += math.Min(s.w*s.min, s.w*s.max)
		hi += math.Max(s.w*s.min, s.w*s.max)
	}
	for _, adj := range []float64{c.cfg.FailurePenalty, c.cfg.TimeoutPenalty, c.cfg.CoverageBonus, c.cfg.QualityBonus} {
		lo += math.Min(adj, 0)
		hi += math.Max(adj, 0)
	}
	return lo + AdjustMin, hi + AdjustMax
}

func coverageComponent(o types.Outcome) float64 {
	if !finite(o.CoverageDelta) {
		return 0
	}
	return clamp(o.CoverageDelta*coveragePerPoint, CoverageMin, CoverageMax)
}

func qualityComponent(o types.Outcome) float64 {
	raw := float64(max(o.DefectsFound, 0))*rewardPerDefect +
		float64(max(o.CriticalDefects, 0))*rewardPerCritical
	if finite(o.QualityDelta) {
		raw += o.QualityDelta * qualityPerPoint
	}
	return clamp(raw, QualityMin, QualityMax)
}

// timeComponent is the relative time saved against the estimate.
func timeComponent(o types.Outcome) float64 {
	if o.ExpectedDuration <= 0 || o.ActualDuration <= 0 {
		return 0
	}
	saved := float64(o.ExpectedDuration-o.ActualDuration) / float64(o.ExpectedDuration)
	return clamp(saved*100, TimeMin, TimeMax)
}

func patternComponent(o types.Outcome) float64 {
	switch o.PatternReuse {
	case types.PatternReusedSucceeded:
		return clamp(patternReuseSuccess, PatternMin, PatternMax)
	case types.PatternReusedFailed:
		return clamp(patternReuseFailure, PatternMin, PatternMax)
	default:
		return 0
	}
}

// costComponent is the relative budget saved.
func costComponent(o types.Outcome) float64 {
	if !finite(o.BudgetedCost) || !finite(o.ActualCost) || o.BudgetedCost <= 0 || o.ActualCost < 0 {
		return 0
	}
	saved := (o.BudgetedCost - o.ActualCost) / o.BudgetedCost
	return clamp(saved*100, CostMin, CostMax)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
