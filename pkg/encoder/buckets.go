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
package encoder

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Neutral is the bucket assigned to missing or unreadable fields.
const Neutral = "unknown"

// Kind selects how a raw context value is bucketed.
type Kind int

const (
	// KindDecile buckets a percentage in [0,100] into 0..9.
	KindDecile Kind = iota
	// KindGapDecile buckets the distance to 100% (100 - value) into 0..9.
	KindGapDecile
	// KindRatio buckets a fraction in [0,1] into 0..9.
	KindRatio
	// KindCount buckets a non-negative count into none/small/medium/large.
	KindCount
	// KindComplexity maps a label or a cyclomatic number onto 0..3.
	KindComplexity
	// KindCategory keeps a normalized lowercase label.
	KindCategory
	// KindBool keeps a boolean flag.
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindDecile:
		return "decile"
	case KindGapDecile:
		return "gap-decile"
	case KindRatio:
		return "ratio"
	case KindCount:
		return "count"
	case KindComplexity:
		return "complexity"
	case KindCategory:
		return "category"
	case KindBool:
		return "bool"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Count bucket labels.
const (
	CountNone   = "none"
	CountSmall  = "small"
	CountMedium = "medium"
	CountLarge  = "large"
)

// CountRange holds the inclusive upper bounds of the small and medium
// count buckets.
type CountRange struct {
	Small  float64
	Medium float64
}

// DefaultCountRange: 1-5 small, 6-20 medium, above 20 large.
var DefaultCountRange = CountRange{Small: 5, Medium: 20}

func decile(v float64) int {
	if v <= 0 {
		return 0
	}
	if v >= 100 {
		return 9
	}
	return int(v / 10)
}

func countBucket(v float64, r CountRange) string {
	switch {
	case v <= 0:
		return CountNone
	case v <= r.Small:
		return CountSmall
	case v <= r.Medium:
		return CountMedium
	default:
		return CountLarge
	}
}

var complexityLabels = map[string]int{
	"trivial":   0,
	"low":       0,
	"simple":    0,
	"easy":      0,
	"medium":    1,
	"moderate":  1,
	"normal":    1,
	"high":      2,
	"complex":   2,
	"hard":      2,
	"critical":  3,
	"very_high": 3,
	"extreme":   3,
}

// complexityLevel accepts a label or a cyclomatic complexity number.
func complexityLevel(raw any) (int, bool) {
	if s, ok := raw.(string); ok {
		if lvl, ok := complexityLabels[normalizeLabel(s)]; ok {
			return lvl, true
		}
	}
	v, ok := toFloat(raw)
	if !ok {
		return 0, false
	}
	switch {
	case v <= 5:
		return 0, true
	case v <= 10:
		return 1, true
	case v <= 20:
		return 2, true
	default:
		return 3, true
	}
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

// toFloat coerces numeric context values. Strings are parsed; NaN and
// infinities are rejected.
func toFloat(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int8:
		v = float64(n)
	case int16:
		v = float64(n)
	case int32:
		v = float64(n)
	case int64:
		v = float64(n)
	case uint:
		v = float64(n)
	case uint8:
		v = float64(n)
	case uint16:
		v = float64(n)
	case uint32:
		v = float64(n)
	case uint64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func toBool(raw any) (bool, bool) {
	switch b := raw.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, false
		}
		return parsed, true
	}
	if v, ok := toFloat(raw); ok {
		return v != 0, true
	}
	return false, false
}
