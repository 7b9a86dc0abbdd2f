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
)

// Sentinel errors. The typed errors below match these via errors.Is.
var (
	ErrUnknownAgentType    = errors.New("unknown agent type")
	ErrStoreUnavailable    = errors.New("value store unavailable")
	ErrConstraintViolation = errors.New("value store constraint violation")
	ErrEpisodeStepLimit    = errors.New("episode step limit exceeded")
	ErrInvalidConfig       = errors.New("invalid configuration")
)

// UnknownAgentTypeError is returned when a caller passes a value outside the
// AgentType catalogue. It is fatal to the call and never retried.
type UnknownAgentTypeError struct {
	Value string
	// Suggestion is the closest known type, if any.
	Suggestion AgentType
}

func (e *UnknownAgentTypeError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown agent type %q (did you mean %q?)", e.Value, e.Suggestion)
	}
	return fmt.Sprintf("unknown agent type %q", e.Value)
}

func (e *UnknownAgentTypeError) Is(target error) bool {
	return target == ErrUnknownAgentType
}

// StoreUnavailableError wraps a transient failure (connectivity, timeout,
// lock contention). Callers may retry with backoff.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s: store unavailable: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

func (e *StoreUnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// ConstraintViolationError reports a malformed key or payload. Retrying the
// same write cannot succeed.
type ConstraintViolationError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ConstraintViolationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: constraint violation: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: constraint violation: %s", e.Op, e.Reason)
}

func (e *ConstraintViolationError) Unwrap() error { return e.Err }

func (e *ConstraintViolationError) Is(target error) bool {
	return target == ErrConstraintViolation
}

// EpisodeStepLimitExceeded is non-fatal: the episode was sealed with
// done=false and its trajectory is still usable.
type EpisodeStepLimitExceeded struct {
	MaxSteps     int
	TrajectoryID string
}

func (e *EpisodeStepLimitExceeded) Error() string {
	return fmt.Sprintf("episode %s terminated after %d steps without reaching a terminal state", e.TrajectoryID, e.MaxSteps)
}

func (e *EpisodeStepLimitExceeded) Is(target error) bool {
	return target == ErrEpisodeStepLimit
}

// IsRetryable reports whether err is a transient store failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) && !errors.Is(err, ErrConstraintViolation)
}
