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

// Package encoder maps free-form task contexts onto discrete, hashed states.
//
// Each agent type owns a fixed feature extractor that picks the context
// fields it cares about and buckets them (deciles, count ranges, complexity
// levels, categories). The bucketed mapping is serialized as canonical JSON
// (sorted keys) and hashed with SHA-256, so the same context always yields
// the same 64-character hex state hash regardless of key insertion order.
//
// Encoding is total: missing or malformed fields fall into the neutral
// bucket instead of failing. Only an unknown agent type is an error.
package encoder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/teradata-labs/qfleet/pkg/types"
)

// HashLength is the length of every state and action hash (hex SHA-256).
const HashLength = sha256.Size * 2

// Encoder encodes states and actions. It is immutable and safe for
// concurrent use.
type Encoder struct {
	extractors map[types.AgentType]FeatureExtractor
}

// New returns an Encoder covering every known agent type.
func New() *Encoder {
	return &Encoder{extractors: builtinExtractors()}
}

// Encode extracts the agent type's features from taskCtx and returns the
// hashed state.
func (e *Encoder) Encode(agentType types.AgentType, taskCtx map[string]any) (types.State, error) {
	ex, err := e.extractor(agentType)
	if err != nil {
		return types.State{}, err
	}

	features := ex.Extract(taskCtx)
	data, hash, err := canonicalize(features)
	if err != nil {
		// extractors only emit strings, ints and bools
		return types.State{}, fmt.Errorf("encode state for %s: %w", agentType, err)
	}
	return types.State{AgentType: agentType, Hash: hash, Data: types.StateData(data)}, nil
}

// EncodeAction hashes an action payload. The returned Data is the
// canonical form of payload, i.e. what a store returns after a round-trip.
func (e *Encoder) EncodeAction(agentType types.AgentType, payload types.ActionData) (types.Action, error) {
	if err := agentType.Validate(); err != nil {
		return types.Action{}, err
	}
	if len(payload) == 0 {
		return types.Action{}, &types.ConstraintViolationError{
			Op:     "encode action",
			Reason: "action payload is empty",
		}
	}

	data, hash, err := canonicalize(map[string]any(payload))
	if err != nil {
		return types.Action{}, &types.ConstraintViolationError{
			Op:     "encode action",
			Reason: "action payload is not serializable",
			Err:    err,
		}
	}
	return types.Action{AgentType: agentType, Hash: hash, Data: types.ActionData(data)}, nil
}

// Features lists the features extracted for agentType, in output key order.
func (e *Encoder) Features(agentType types.AgentType) ([]Feature, error) {
	ex, err := e.extractor(agentType)
	if err != nil {
		return nil, err
	}
	return ex.Features(), nil
}

func (e *Encoder) extractor(agentType types.AgentType) (FeatureExtractor, error) {
	ex, ok := e.extractors[agentType]
	if !ok {
		return nil, &types.UnknownAgentTypeError{Value: string(agentType)}
	}
	return ex, nil
}

// Hash returns the hex SHA-256 of the canonical JSON encoding of payload.
func Hash(payload map[string]any) (string, error) {
	_, hash, err := canonicalize(payload)
	return hash, err
}

// canonicalize serializes payload with sorted keys, hashes the bytes and
// decodes them back so callers hold exactly what was hashed.
func canonicalize(payload map[string]any) (map[string]any, string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	// encoding/json writes map keys in sorted order at every nesting level
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(raw)

	var canonical map[string]any
	if err := json.Unmarshal(raw, &canonical); err != nil {
		return nil, "", err
	}
	return canonical, hex.EncodeToString(sum[:]), nil
}
