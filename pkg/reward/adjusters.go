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

import "github.com/teradata-labs/qfleet/pkg/types"

// Adjuster adds a small domain-specific correction for one agent type.
// Results are clamped to [AdjustMin, AdjustMax].
type Adjuster func(types.Outcome) float64

const (
	flakinessVerdictReward = 5.0
	falsePositiveCost      = 1.0
	falsePositiveCap       = 10.0
	confirmedRegression    = 5.0
)

func builtinAdjusters() map[types.AgentType]Adjuster {
	return map[types.AgentType]Adjuster{
		types.AgentFlakyTestHunter:   flakinessAdjuster,
		types.AgentSecurityScanner:   falsePositiveAdjuster,
		types.AgentPerformanceTester: regressionAdjuster,
	}
}

// flakinessAdjuster rewards telling real flakiness apart from a one-off failure.
func flakinessAdjuster(o types.Outcome) float64 {
	if o.Flakiness == nil {
		return 0
	}
	if o.Flakiness.PredictedFlaky == o.Flakiness.ConfirmedFlaky {
		return flakinessVerdictReward
	}
	return -flakinessVerdictReward
}

func falsePositiveAdjuster(o types.Outcome) float64 {
	if o.FalsePositives <= 0 {
		return 0
	}
	return -min(float64(o.FalsePositives)*falsePositiveCost, falsePositiveCap)
}

func regressionAdjuster(o types.Outcome) float64 {
	if o.RegressionDetected && o.RegressionReal {
		return confirmedRegression
	}
	return 0
}
