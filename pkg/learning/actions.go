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

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/qfleet/pkg/encoder"
	"github.com/teradata-labs/qfleet/pkg/types"
)

// ActionSpace is the finite set of actions valid for one agent type.
type ActionSpace struct {
	AgentType types.AgentType
	Actions   []types.Action
}

// NewActionSpace hashes payloads into an ActionSpace. Duplicate payloads
// collapse into one action; an empty space is rejected.
func NewActionSpace(enc *encoder.Encoder, agentType types.AgentType, payloads []types.ActionData) (ActionSpace, error) {
	if err := agentType.Validate(); err != nil {
		return ActionSpace{}, err
	}
	if len(payloads) == 0 {
		return ActionSpace{}, fmt.Errorf("action space for %s is empty: %w", agentType, types.ErrInvalidConfig)
	}

	seen := make(map[string]struct{}, len(payloads))
	space := ActionSpace{AgentType: agentType}
	for i, p := range payloads {
		a, err := enc.EncodeAction(agentType, p)
		if err != nil {
			return ActionSpace{}, fmt.Errorf("action %d for %s: %w", i, agentType, err)
		}
		if _, dup := seen[a.Hash]; dup {
			continue
		}
		seen[a.Hash] = struct{}{}
		space.Actions = append(space.Actions, a)
	}
	return space, nil
}

// Lookup returns the action with the given hash.
func (s ActionSpace) Lookup(hash string) (types.Action, bool) {
	for _, a := range s.Actions {
		if a.Hash == hash {
			return a, true
		}
	}
	return types.Action{}, false
}

// actionSpacesFile is the YAML layout read by LoadActionSpaces:
//
//	action_spaces:
//	  generator:
//	    - {strategy: property-based, depth: 2}
//	    - {strategy: example-based}
type actionSpacesFile struct {
	ActionSpaces map[string][]map[string]any `yaml:"action_spaces"`
}

// LoadActionSpaces reads action space definitions from a YAML file.
func LoadActionSpaces(path string, enc *encoder.Encoder) (map[types.AgentType]ActionSpace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read action spaces %s: %w", path, err)
	}
	return ParseActionSpaces(data, enc)
}

// actionSpacesSchema checks the document shape before payloads are hashed.
const actionSpacesSchema = `{
  "type": "object",
  "required": ["action_spaces"],
  "properties": {
    "action_spaces": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "array",
        "minItems": 1,
        "items": {"type": "object"}
      }
    }
  }
}`

// ParseActionSpaces decodes the YAML form read by LoadActionSpaces.
func ParseActionSpaces(data []byte, enc *encoder.Encoder) (map[types.AgentType]ActionSpace, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse action spaces: %w", err)
	}
	if err := validateActionSpaces(doc); err != nil {
		return nil, err
	}

	var file actionSpacesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse action spaces: %w", err)
	}

	names := make([]string, 0, len(file.ActionSpaces))
	for name := range file.ActionSpaces {
		names = append(names, name)
	}
	sort.Strings(names)

	spaces := make(map[types.AgentType]ActionSpace, len(names))
	for _, name := range names {
		agentType, err := types.ParseAgentType(name)
		if err != nil {
			return nil, err
		}
		payloads := make([]types.ActionData, len(file.ActionSpaces[name]))
		for i, p := range file.ActionSpaces[name] {
			payloads[i] = types.ActionData(p)
		}
		space, err := NewActionSpace(enc, agentType, payloads)
		if err != nil {
			return nil, err
		}
		spaces[agentType] = space
	}
	return spaces, nil
}

func validateActionSpaces(doc any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(actionSpacesSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("action spaces: %v: %w", err, types.ErrInvalidConfig)
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			msgs[i] = e.String()
		}
		return fmt.Errorf("invalid action spaces: %s: %w", strings.Join(msgs, "; "), types.ErrInvalidConfig)
	}
	return nil
}
