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
package learning

import "math"

// BellmanUpdate returns Q(s,a) + α·(r + γ·maxNext − Q(s,a)). maxNext is the
// best cached value of the next state, 0 when it is terminal or unseen.
func BellmanUpdate(q, reward, maxNext, alpha, gamma float64) float64 {
	return q + alpha*(reward+gamma*maxNext-q)
}

// DecayExploration applies one multiplicative decay step, never going
// below floor.
func DecayExploration(rate, decay, floor float64) float64 {
	return math.Max(floor, rate*decay)
}

// discount returns γ^t.
func discount(gamma float64, t int) float64 {
	return math.Pow(gamma, float64(t))
}
