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
package valuestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net"
	"syscall"

	"github.com/teradata-labs/qfleet/pkg/types"
)

const hashLength = 64

// ValidateKey checks an (agent_type, hash) pair before it reaches SQL.
func ValidateKey(op string, agentType types.AgentType, stateHash string) error {
	if err := agentType.Validate(); err != nil {
		return &types.ConstraintViolationError{Op: op, Reason: "unknown agent type", Err: err}
	}
	if !validHash(stateHash) {
		return &types.ConstraintViolationError{Op: op, Reason: fmt.Sprintf("malformed state hash %q", stateHash)}
	}
	return nil
}

// ValidateWrite checks a Q-value write.
func ValidateWrite(w types.QValueWrite) error {
	const op = "upsert q-value"
	if err := ValidateKey(op, w.AgentType, w.StateHash); err != nil {
		return err
	}
	if !validHash(w.ActionHash) {
		return &types.ConstraintViolationError{Op: op, Reason: fmt.Sprintf("malformed action hash %q", w.ActionHash)}
	}
	if math.IsNaN(w.Value) || math.IsInf(w.Value, 0) {
		return &types.ConstraintViolationError{Op: op, Reason: fmt.Sprintf("non-finite value %v", w.Value)}
	}
	return nil
}

// ValidateTrajectory checks a trajectory before it is appended.
func ValidateTrajectory(t *types.Trajectory) error {
	const op = "append trajectory"
	if t == nil {
		return &types.ConstraintViolationError{Op: op, Reason: "nil trajectory"}
	}
	if t.ID == "" {
		return &types.ConstraintViolationError{Op: op, Reason: "missing trajectory id"}
	}
	if err := t.AgentType.Validate(); err != nil {
		return &types.ConstraintViolationError{Op: op, Reason: "unknown agent type", Err: err}
	}
	if math.IsNaN(t.TotalReward) || math.IsInf(t.TotalReward, 0) ||
		math.IsNaN(t.DiscountedReward) || math.IsInf(t.DiscountedReward, 0) {
		return &types.ConstraintViolationError{Op: op, Reason: "non-finite reward"}
	}
	return nil
}

// ValidateAgentState checks learning counters before they are saved.
func ValidateAgentState(s types.AgentLearningState) error {
	const op = "save agent state"
	if s.AgentID == "" {
		return &types.ConstraintViolationError{Op: op, Reason: "missing agent id"}
	}
	if err := s.AgentType.Validate(); err != nil {
		return &types.ConstraintViolationError{Op: op, Reason: "unknown agent type", Err: err}
	}
	return nil
}

func validHash(h string) bool {
	if len(h) != hashLength {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Unavailable wraps err as a transient store failure.
func Unavailable(op string, err error) error {
	return &types.StoreUnavailableError{Op: op, Err: err}
}

// Constraint wraps err as a permanent constraint violation.
func Constraint(op, reason string, err error) error {
	return &types.ConstraintViolationError{Op: op, Reason: reason, Err: err}
}

// ClassifyCommon maps driver-independent failures: context expiry, closed
// connections and network errors become StoreUnavailable. It returns nil
// for errors it does not recognize so drivers can classify the rest.
func ClassifyCommon(op string, err error) error {
	if err == nil {
		return nil
	}
	var unavailable *types.StoreUnavailableError
	var constraint *types.ConstraintViolationError
	if errors.As(err, &unavailable) || errors.As(err, &constraint) {
		return err
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.As(err, &netErr):
		return Unavailable(op, err)
	}
	return nil
}
