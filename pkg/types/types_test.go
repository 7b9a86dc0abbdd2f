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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllAgentTypes(t *testing.T) {
	all := AllAgentTypes()
	assert.Len(t, all, 18)
	for i := 1; i < len(all); i++ {
		assert.Less(t, string(all[i-1]), string(all[i]), "catalogue should be sorted")
	}
	assert.Contains(t, all, AgentGenerator)
	assert.Contains(t, all, AgentFlakyTestHunter)
}

func TestParseAgentType(t *testing.T) {
	tests := []struct {
		in      string
		want    AgentType
		wantErr bool
	}{
		{in: "generator", want: AgentGenerator},
		{in: "  Security_Scanner ", want: AgentSecurityScanner},
		{in: "FLAKY-TEST-HUNTER", want: AgentFlakyTestHunter},
		{in: "", wantErr: true},
		{in: "painter", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAgentType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnknownAgentType))
				var typed *UnknownAgentTypeError
				require.ErrorAs(t, err, &typed)
				assert.Equal(t, tt.in, typed.Value)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAgentType_Suggestion(t *testing.T) {
	_, err := ParseAgentType("genrator")
	var typed *UnknownAgentTypeError
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, AgentGenerator, typed.Suggestion)
	assert.Contains(t, err.Error(), `did you mean "generator"`)

	_, err = ParseAgentType("flaky_hunter")
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, AgentFlakyTestHunter, typed.Suggestion)

	_, err = ParseAgentType("zzz")
	require.ErrorAs(t, err, &typed)
	assert.Empty(t, typed.Suggestion)
	assert.Equal(t, `unknown agent type "zzz"`, err.Error())
}

func TestAgentType_Validate(t *testing.T) {
	assert.NoError(t, AgentChaosEngineer.Validate())
	assert.ErrorIs(t, AgentType("nope").Validate(), ErrUnknownAgentType)
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	unavailable := fmt.Errorf("flush: %w", &StoreUnavailableError{Op: "upsert_q_value", Err: cause})
	assert.ErrorIs(t, unavailable, ErrStoreUnavailable)
	assert.ErrorIs(t, unavailable, cause)
	assert.True(t, IsRetryable(unavailable))

	violation := &ConstraintViolationError{Op: "upsert_q_value", Reason: "empty state hash"}
	assert.ErrorIs(t, violation, ErrConstraintViolation)
	assert.False(t, IsRetryable(violation))
	assert.Contains(t, violation.Error(), "empty state hash")

	limit := &EpisodeStepLimitExceeded{MaxSteps: 5, TrajectoryID: "t-1"}
	assert.ErrorIs(t, limit, ErrEpisodeStepLimit)
	assert.Contains(t, limit.Error(), "5 steps")
}

func TestTrajectoryProjections(t *testing.T) {
	traj := &Trajectory{
		Steps: []TrajectoryStep{
			{StateHash: "s1", ActionHash: "a1", Reward: 1.5},
			{StateHash: "s2", ActionHash: "a2", Reward: -2},
		},
	}
	assert.Equal(t, []string{"a1", "a2"}, traj.ActionsTaken())
	assert.Equal(t, []string{"s1", "s2"}, traj.StatesVisited())
	assert.Equal(t, []float64{1.5, -2}, traj.StepRewards())
	assert.Zero(t, traj.Duration())
}

func TestQValueWrite_VisitDelta(t *testing.T) {
	assert.Equal(t, int64(1), QValueWrite{}.VisitDelta())
	assert.Equal(t, int64(1), QValueWrite{Visits: -3}.VisitDelta())
	assert.Equal(t, int64(4), QValueWrite{Visits: 4}.VisitDelta())
}
