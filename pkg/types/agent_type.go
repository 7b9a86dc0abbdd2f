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

// Package types holds the data model shared by the encoder, reward, value store
// and learning packages: agent types, states, actions, Q-values, trajectories,
// per-agent learning counters and the error taxonomy.
package types

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// AgentType identifies the category of task executor that owns a row.
// State and action hashes are only ever compared within one AgentType.
type AgentType string

const (
	AgentGenerator              AgentType = "generator"
	AgentExecutor               AgentType = "executor"
	AgentCoverageAnalyzer       AgentType = "coverage-analyzer"
	AgentQualityGate            AgentType = "quality-gate"
	AgentQualityAnalyzer        AgentType = "quality-analyzer"
	AgentPerformanceTester      AgentType = "performance-tester"
	AgentSecurityScanner        AgentType = "security-scanner"
	AgentRequirementsValidator  AgentType = "requirements-validator"
	AgentProductionIntelligence AgentType = "production-intelligence"
	AgentFleetCommander         AgentType = "fleet-commander"
	AgentDeploymentReadiness    AgentType = "deployment-readiness"
	AgentRegressionRisk         AgentType = "regression-risk-analyzer"
	AgentTestDataArchitect      AgentType = "test-data-architect"
	AgentAPIContractValidator   AgentType = "api-contract-validator"
	AgentFlakyTestHunter        AgentType = "flaky-test-hunter"
	AgentVisualTester           AgentType = "visual-tester"
	AgentChaosEngineer          AgentType = "chaos-engineer"
	AgentCodeComplexity         AgentType = "code-complexity"
)

var knownAgentTypes = map[AgentType]struct{}{
	AgentGenerator:              {},
	AgentExecutor:               {},
	AgentCoverageAnalyzer:       {},
	AgentQualityGate:            {},
	AgentQualityAnalyzer:        {},
	AgentPerformanceTester:      {},
	AgentSecurityScanner:        {},
	AgentRequirementsValidator:  {},
	AgentProductionIntelligence: {},
	AgentFleetCommander:         {},
	AgentDeploymentReadiness:    {},
	AgentRegressionRisk:         {},
	AgentTestDataArchitect:      {},
	AgentAPIContractValidator:   {},
	AgentFlakyTestHunter:        {},
	AgentVisualTester:           {},
	AgentChaosEngineer:          {},
	AgentCodeComplexity:         {},
}

// AllAgentTypes returns every known agent type in lexical order.
func AllAgentTypes() []AgentType {
	out := make([]AgentType, 0, len(knownAgentTypes))
	for t := range knownAgentTypes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Valid reports whether t is a member of the catalogue.
func (t AgentType) Valid() bool {
	_, ok := knownAgentTypes[t]
	return ok
}

// Validate returns an *UnknownAgentTypeError when t is not in the catalogue.
func (t AgentType) Validate() error {
	if !t.Valid() {
		return &UnknownAgentTypeError{Value: string(t)}
	}
	return nil
}

func (t AgentType) String() string {
	return string(t)
}

// ParseAgentType normalizes s (case, surrounding space, underscores) and
// resolves it against the catalogue.
func ParseAgentType(s string) (AgentType, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	t := AgentType(norm)
	if !t.Valid() {
		return "", &UnknownAgentTypeError{Value: s, Suggestion: suggestAgentType(norm)}
	}
	return t, nil
}

// suggestAgentType returns the best fuzzy match for s in the catalogue, or ""
// when nothing matches.
func suggestAgentType(s string) AgentType {
	if s == "" {
		return ""
	}
	all := AllAgentTypes()
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = string(t)
	}
	matches := fuzzy.Find(s, names)
	if len(matches) == 0 {
		return ""
	}
	return all[matches[0].Index]
}
