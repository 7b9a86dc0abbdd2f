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
package reward

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/qfleet/pkg/types"
)

func TestCalculate_FailureOnly(t *testing.T) {
	calc := New(DefaultConfig())
	for _, at := range types.AllAgentTypes() {
		b := calc.Breakdown(at, types.Outcome{Success: false})
		assert.Equal(t, -50.0, b.Total, at)
		assert.Zero(t, b.Weighted, at)
		assert.Zero(t, b.Adjustment, at)
	}
}

func TestCalculate_EmptySuccessIsZero(t *testing.T) {
	calc := New(DefaultConfig())
	assert.Zero(t, calc.Calculate(types.AgentGenerator, types.Outcome{Success: true}))
}

func TestCalculate_Components(t *testing.T) {
	calc := New(DefaultConfig())

	tests := []struct {
		name    string
		outcome types.Outcome
		want    float64
	}{
		{"coverage delta", types.Outcome{Success: true, CoverageDelta: 5}, 0.30 * 50},
		{"coverage capped", types.Outcome{Success: true, CoverageDelta: 80}, 0.30 * 100},
		{"quality delta and defects", types.Outcome{Success: true, QualityDelta: 2, DefectsFound: 1, CriticalDefects: 1}, 0.25 * (10 + 5 + 10)},
		{"quality capped", types.Outcome{Success: true, DefectsFound: 100}, 0.25 * 100},
		{"faster than expected", types.Outcome{Success: true, ActualDuration: 30 * time.Second, ExpectedDuration: time.Minute}, 0.20 * 50},
		{"much slower clamps", types.Outcome{Success: true, ActualDuration: 10 * time.Minute, ExpectedDuration: time.Minute}, 0.20 * -50},
		{"pattern reused ok", types.Outcome{Success: true, PatternReuse: types.PatternReusedSucceeded}, 0.15 * 50},
		{"pattern reused failed", types.Outcome{Success: true, PatternReuse: types.PatternReusedFailed}, 0.15 * -25},
		{"under budget", types.Outcome{Success: true, ActualCost: 0.75, BudgetedCost: 1}, 0.10 * 25},
		{"over budget clamps", types.Outcome{Success: true, ActualCost: 9, BudgetedCost: 1}, 0.10 * -50},
		{"timeout", types.Outcome{Success: false, Timeout: true}, -75},
		{"coverage bonus", types.Outcome{Success: true, CoveragePercent: 90}, 10},
		{"quality bonus", types.Outcome{Success: true, QualityScore: 95}, 10},
		{"below bonus thresholds", types.Outcome{Success: true, CoveragePercent: 89.9, QualityScore: 89}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, calc.Calculate(types.AgentExecutor, tt.outcome), 1e-9)
		})
	}
}

func TestCalculate_NonFiniteInputs(t *testing.T) {
	calc := New(DefaultConfig())
	got := calc.Calculate(types.AgentGenerator, types.Outcome{
		Success:         true,
		CoverageDelta:   math.Inf(1),
		QualityDelta:    math.NaN(),
		CoveragePercent: math.NaN(),
		ActualCost:      math.Inf(-1),
		BudgetedCost:    10,
	})
	assert.Zero(t, got)
}

func TestAdjusters(t *testing.T) {
	calc := New(DefaultConfig())

	tests := []struct {
		name      string
		agentType types.AgentType
		outcome   types.Outcome
		want      float64
	}{
		{"flaky verdict correct", types.AgentFlakyTestHunter, types.Outcome{Success: true, Flakiness: &types.FlakinessVerdict{PredictedFlaky: true, ConfirmedFlaky: true}}, 5},
		{"flaky verdict wrong", types.AgentFlakyTestHunter, types.Outcome{Success: true, Flakiness: &types.FlakinessVerdict{PredictedFlaky: true}}, -5},
		{"flaky without verdict", types.AgentFlakyTestHunter, types.Outcome{Success: true}, 0},
		{"false positives", types.AgentSecurityScanner, types.Outcome{Success: true, FalsePositives: 3}, -3},
		{"false positives capped", types.AgentSecurityScanner, types.Outcome{Success: true, FalsePositives: 40}, -10},
		{"confirmed regression", types.AgentPerformanceTester, types.Outcome{Success: true, RegressionDetected: true, RegressionReal: true}, 5},
		{"unconfirmed regression", types.AgentPerformanceTester, types.Outcome{Success: true, RegressionDetected: true}, 0},
		{"no adjuster", types.AgentGenerator, types.Outcome{Success: true, FalsePositives: 3}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := calc.Breakdown(tt.agentType, tt.outcome)
			assert.Equal(t, tt.want, b.Adjustment)
			assert.Equal(t, tt.want, b.Total)
		})
	}
}

func TestBounds_Default(t *testing.T) {
	lo, hi := New(DefaultConfig()).Bounds()
	assert.InDelta(t, -77.5-75-10, lo, 1e-9)
	assert.InDelta(t, 77.5+20+10, hi, 1e-9)
}

func TestCalculate_AlwaysFiniteAndBounded(t *testing.T) {
	calc := New(DefaultConfig())
	lo, hi := calc.Bounds()
	rng := rand.New(rand.NewSource(7))
	agents := types.AllAgentTypes()

	wild := func() float64 {
		switch rng.Intn(6) {
		case 0:
			return math.NaN()
		case 1:
			return math.Inf(1 - 2*rng.Intn(2))
		case 2:
			return 0
		default:
			return (rng.Float64() - 0.5) * 1e6
		}
	}

	for i := 0; i < 5000; i++ {
		o := types.Outcome{
			Success:            rng.Intn(2) == 0,
			Timeout:            rng.Intn(4) == 0,
			CoverageDelta:      wild(),
			CoveragePercent:    wild(),
			QualityDelta:       wild(),
			QualityScore:       wild(),
			DefectsFound:       rng.Intn(200) - 50,
			CriticalDefects:    rng.Intn(50) - 10,
			ActualDuration:     time.Duration(rng.Int63n(int64(time.Hour))),
			ExpectedDuration:   time.Duration(rng.Int63n(int64(time.Hour))),
			PatternReuse:       types.PatternReuse(rng.Intn(4)),
			ActualCost:         wild(),
			BudgetedCost:       wild(),
			FalsePositives:     rng.Intn(100),
			RegressionDetected: rng.Intn(2) == 0,
			RegressionReal:     rng.Intn(2) == 0,
		}
		if rng.Intn(2) == 0 {
			o.Flakiness = &types.FlakinessVerdict{PredictedFlaky: rng.Intn(2) == 0, ConfirmedFlaky: rng.Intn(2) == 0}
		}

		got := calc.Calculate(agents[rng.Intn(len(agents))], o)
		require.False(t, math.IsNaN(got) || math.IsInf(got, 0), "reward must be finite: %+v", o)
		require.GreaterOrEqual(t, got, lo)
		require.LessOrEqual(t, got, hi)
	}
}

func TestCalculate_CustomConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailurePenalty = -100
	cfg.CoverageWeight = 1
	calc := New(cfg)

	assert.Equal(t, -100.0, calc.Calculate(types.AgentGenerator, types.Outcome{}))
	assert.InDelta(t, 20.0, calc.Calculate(types.AgentGenerator, types.Outcome{Success: true, CoverageDelta: 2}), 1e-9)
	assert.Equal(t, cfg, calc.Config())
}
