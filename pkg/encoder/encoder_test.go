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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/qfleet/pkg/types"
)

func TestEncode_DeterministicAcrossKeyOrder(t *testing.T) {
	enc := New()

	// Go map iteration order is randomized, so building the same context
	// repeatedly exercises different insertion orders.
	var first string
	for i := 0; i < 50; i++ {
		taskCtx := map[string]any{
			"framework":        "Jest",
			"coverage_percent": 62.5,
			"complexity":       "high",
			"language":         "typescript",
			"function_count":   12,
			"irrelevant":       i,
		}
		state, err := enc.Encode(types.AgentGenerator, taskCtx)
		require.NoError(t, err)
		if i == 0 {
			first = state.Hash
			continue
		}
		assert.Equal(t, first, state.Hash)
	}
	assert.Len(t, first, HashLength)
}

func TestEncode_GeneratorFeatures(t *testing.T) {
	enc := New()
	state, err := enc.Encode(types.AgentGenerator, map[string]any{
		"coverage_percent": 62.5,
		"complexity":       "high",
		"framework":        " Jest ",
		"function_count":   12,
	})
	require.NoError(t, err)

	assert.Equal(t, types.AgentGenerator, state.AgentType)
	assert.Equal(t, float64(2), state.Data["complexity_bucket"])
	assert.Equal(t, float64(3), state.Data["coverage_gap_bucket"])
	assert.Equal(t, "jest", state.Data["framework"])
	assert.Equal(t, CountMedium, state.Data["function_count_bucket"])
	assert.Equal(t, Neutral, state.Data["language"])
}

func TestEncode_PrebucketedComplexity(t *testing.T) {
	enc := New()
	a, err := enc.Encode(types.AgentGenerator, map[string]any{"complexity_bucket": 2})
	require.NoError(t, err)
	b, err := enc.Encode(types.AgentGenerator, map[string]any{"complexity": "complex"})
	require.NoError(t, err)

	assert.Equal(t, float64(2), a.Data["complexity_bucket"])
	assert.Equal(t, a.Hash, b.Hash)
}

func TestEncode_EquivalentNumericForms(t *testing.T) {
	enc := New()
	a, err := enc.Encode(types.AgentCoverageAnalyzer, map[string]any{"coverage": 71})
	require.NoError(t, err)
	b, err := enc.Encode(types.AgentCoverageAnalyzer, map[string]any{"coverage": "78.9%"})
	require.NoError(t, err)
	c, err := enc.Encode(types.AgentCoverageAnalyzer, map[string]any{"coverage": json.Number("75")})
	require.NoError(t, err)

	assert.Equal(t, a.Hash, b.Hash)
	assert.Equal(t, a.Hash, c.Hash)
}

func TestEncode_MalformedFieldsAreNeutral(t *testing.T) {
	enc := New()
	state, err := enc.Encode(types.AgentFlakyTestHunter, map[string]any{
		"failure_rate":  "not a number",
		"framework":     42,
		"run_count":     math.NaN(),
		"retry_enabled": []string{"x"},
	})
	require.NoError(t, err)
	for _, f := range state.Data {
		assert.Equal(t, Neutral, f)
	}

	empty, err := enc.Encode(types.AgentFlakyTestHunter, nil)
	require.NoError(t, err)
	assert.Equal(t, state.Hash, empty.Hash)
}

func TestEncode_UnknownAgentType(t *testing.T) {
	_, err := New().Encode(types.AgentType("poet"), map[string]any{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnknownAgentType)

	var unknown *types.UnknownAgentTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "poet", unknown.Value)
}

func TestEncode_EveryAgentTypeHasExtractor(t *testing.T) {
	enc := New()
	for _, at := range types.AllAgentTypes() {
		features, err := enc.Features(at)
		require.NoError(t, err, at)
		assert.NotEmpty(t, features, at)

		state, err := enc.Encode(at, map[string]any{})
		require.NoError(t, err, at)
		assert.Len(t, state.Hash, HashLength)
		assert.Len(t, state.Data, len(features))
	}
}

func TestBuckets(t *testing.T) {
	assert.Equal(t, 0, decile(-5))
	assert.Equal(t, 0, decile(9.99))
	assert.Equal(t, 5, decile(50))
	assert.Equal(t, 9, decile(99.9))
	assert.Equal(t, 9, decile(100))
	assert.Equal(t, 9, decile(250))

	assert.Equal(t, CountNone, countBucket(0, DefaultCountRange))
	assert.Equal(t, CountSmall, countBucket(5, DefaultCountRange))
	assert.Equal(t, CountMedium, countBucket(6, DefaultCountRange))
	assert.Equal(t, CountMedium, countBucket(20, DefaultCountRange))
	assert.Equal(t, CountLarge, countBucket(21, DefaultCountRange))

	tests := []struct {
		in   any
		want int
	}{
		{"LOW", 0},
		{"Moderate", 1},
		{"very high", 3},
		{3, 0},
		{8, 1},
		{15, 2},
		{40, 3},
	}
	for _, tt := range tests {
		got, ok := complexityLevel(tt.in)
		assert.True(t, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, ok := complexityLevel("unclear")
	assert.False(t, ok)
}

func TestEncodeAction(t *testing.T) {
	enc := New()
	a, err := enc.EncodeAction(types.AgentGenerator, types.ActionData{
		"strategy": "property-based",
		"params":   map[string]any{"cases": 100, "shrink": true},
	})
	require.NoError(t, err)
	b, err := enc.EncodeAction(types.AgentGenerator, types.ActionData{
		"params":   map[string]any{"shrink": true, "cases": 100.0},
		"strategy": "property-based",
	})
	require.NoError(t, err)

	assert.Equal(t, a.Hash, b.Hash)
	assert.Len(t, a.Hash, HashLength)
	assert.Equal(t, float64(100), a.Data["params"].(map[string]any)["cases"])
}

func TestEncodeAction_Invalid(t *testing.T) {
	enc := New()

	_, err := enc.EncodeAction(types.AgentType("nope"), types.ActionData{"a": 1})
	assert.ErrorIs(t, err, types.ErrUnknownAgentType)

	_, err = enc.EncodeAction(types.AgentExecutor, nil)
	assert.ErrorIs(t, err, types.ErrConstraintViolation)

	_, err = enc.EncodeAction(types.AgentExecutor, types.ActionData{"ch": make(chan int)})
	assert.ErrorIs(t, err, types.ErrConstraintViolation)
}

func TestHash_StableVector(t *testing.T) {
	h, err := Hash(map[string]any{"b": 1, "a": "x"})
	require.NoError(t, err)
	h2, err := Hash(map[string]any{"a": "x", "b": 1})
	require.NoError(t, err)
	assert.Equal(t, h, h2)

	// sha256(`{}`)
	empty, err := Hash(nil)
	require.NoError(t, err)
	assert.Equal(t, "44136fa355b3678a1146ad16f7e8649e94fb4fc21fe77e8310c060f61caaff8a", empty)
}
