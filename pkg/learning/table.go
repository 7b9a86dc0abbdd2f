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
	"sort"

	"github.com/teradata-labs/qfleet/pkg/types"
)

type entry struct {
	value  float64
	visits int64
}

// qTable is the local value table of one Learner, keyed by state hash and
// then action hash. It is guarded by Learner.mu.
type qTable struct {
	states map[string]map[string]*entry
	// warmed records states already loaded from the store.
	warmed map[string]struct{}
}

func newQTable() *qTable {
	return &qTable{
		states: make(map[string]map[string]*entry),
		warmed: make(map[string]struct{}),
	}
}

func (t *qTable) get(stateHash, actionHash string) (*entry, bool) {
	e, ok := t.states[stateHash][actionHash]
	return e, ok
}

func (t *qTable) set(stateHash, actionHash string, value float64, visits int64) *entry {
	actions, ok := t.states[stateHash]
	if !ok {
		actions = make(map[string]*entry)
		t.states[stateHash] = actions
	}
	e, ok := actions[actionHash]
	if !ok {
		e = &entry{}
		actions[actionHash] = e
	}
	e.value = value
	e.visits = visits
	return e
}

// maxValue is the best cached value of a state; 0 if nothing is cached.
func (t *qTable) maxValue(stateHash string) float64 {
	actions := t.states[stateHash]
	if len(actions) == 0 {
		return 0
	}
	first := true
	var best float64
	for _, e := range actions {
		if first || e.value > best {
			best = e.value
			first = false
		}
	}
	return best
}

// best picks the greedy action among space: highest value, then fewest
// visits, then lowest hash. Unseen actions count as initial with 0 visits.
func (t *qTable) best(stateHash string, space []types.Action, initial float64) (types.Action, float64) {
	candidates := make([]types.Action, len(space))
	copy(candidates, space)
	score := func(a types.Action) (float64, int64) {
		if e, ok := t.get(stateHash, a.Hash); ok {
			return e.value, e.visits
		}
		return initial, 0
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		vi, ni := score(candidates[i])
		vj, nj := score(candidates[j])
		if vi != vj {
			return vi > vj
		}
		if ni != nj {
			return ni < nj
		}
		return candidates[i].Hash < candidates[j].Hash
	})
	v, _ := score(candidates[0])
	return candidates[0], v
}

// load merges store rows into the table without overwriting local entries,
// which are at least as fresh as anything already flushed.
func (t *qTable) load(stateHash string, rows []types.QValue) {
	for _, q := range rows {
		if _, ok := t.get(stateHash, q.ActionHash); ok {
			continue
		}
		t.set(stateHash, q.ActionHash, q.Value, q.VisitCount)
	}
	t.warmed[stateHash] = struct{}{}
}

func (t *qTable) isWarm(stateHash string) bool {
	_, ok := t.warmed[stateHash]
	return ok
}

func (t *qTable) size() int {
	n := 0
	for _, actions := range t.states {
		n += len(actions)
	}
	return n
}
