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
	"strings"

	"github.com/teradata-labs/qfleet/pkg/types"
)

// FeatureExtractor turns a task context into the bucketed feature mapping
// of one agent type.
type FeatureExtractor interface {
	Extract(taskCtx map[string]any) map[string]any
	Features() []Feature
}

// Feature describes one bucketed state feature. The first of Keys present
// in the context is used.
type Feature struct {
	Name  string
	Keys  []string
	Kind  Kind
	Range CountRange // KindCount only; zero means DefaultCountRange
}

func (f Feature) bucket(taskCtx map[string]any) any {
	key, raw, ok := lookup(taskCtx, f.Keys)
	if !ok {
		return Neutral
	}
	// a context may carry an already bucketed value under the feature name
	if key == f.Name {
		if b, ok := f.prebucketed(raw); ok {
			return b
		}
	}

	switch f.Kind {
	case KindDecile, KindGapDecile, KindRatio:
		v, ok := toFloat(raw)
		if !ok {
			return Neutral
		}
		switch f.Kind {
		case KindGapDecile:
			v = 100 - v
		case KindRatio:
			v *= 100
		}
		return decile(v)
	case KindCount:
		v, ok := toFloat(raw)
		if !ok {
			return Neutral
		}
		r := f.Range
		if r == (CountRange{}) {
			r = DefaultCountRange
		}
		return countBucket(v, r)
	case KindComplexity:
		lvl, ok := complexityLevel(raw)
		if !ok {
			return Neutral
		}
		return lvl
	case KindCategory:
		s, ok := raw.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return Neutral
		}
		return normalizeLabel(s)
	case KindBool:
		b, ok := toBool(raw)
		if !ok {
			return Neutral
		}
		return b
	default:
		return Neutral
	}
}

func (f Feature) prebucketed(raw any) (any, bool) {
	switch f.Kind {
	case KindDecile, KindGapDecile, KindRatio, KindComplexity:
		v, ok := toFloat(raw)
		maxBucket := 9.0
		if f.Kind == KindComplexity {
			maxBucket = 3
		}
		if !ok || v != float64(int(v)) || v < 0 || v > maxBucket {
			return nil, false
		}
		return int(v), true
	case KindCount:
		s, ok := raw.(string)
		if !ok {
			return nil, false
		}
		switch s {
		case CountNone, CountSmall, CountMedium, CountLarge:
			return s, true
		}
	}
	return nil, false
}

func lookup(taskCtx map[string]any, keys []string) (string, any, bool) {
	for _, k := range keys {
		if v, ok := taskCtx[k]; ok && v != nil {
			return k, v, true
		}
	}
	return "", nil, false
}

type featureSet []Feature

func (fs featureSet) Extract(taskCtx map[string]any) map[string]any {
	out := make(map[string]any, len(fs))
	for _, f := range fs {
		out[f.Name] = f.bucket(taskCtx)
	}
	return out
}

func (fs featureSet) Features() []Feature {
	out := make([]Feature, len(fs))
	copy(out, fs)
	return out
}

// shared feature definitions
var (
	complexity  = Feature{Name: "complexity_bucket", Keys: []string{"complexity_bucket", "complexity", "complexity_level", "cyclomatic_complexity"}, Kind: KindComplexity}
	coverage    = Feature{Name: "coverage_bucket", Keys: []string{"coverage_bucket", "coverage", "coverage_percent", "current_coverage"}, Kind: KindDecile}
	coverageGap = Feature{Name: "coverage_gap_bucket", Keys: []string{"coverage_percent", "coverage", "current_coverage"}, Kind: KindGapDecile}
	framework   = Feature{Name: "framework", Keys: []string{"framework", "test_framework"}, Kind: KindCategory}
	language    = Feature{Name: "language", Keys: []string{"language", "lang"}, Kind: KindCategory}
	environment = Feature{Name: "environment", Keys: []string{"environment", "env"}, Kind: KindCategory}
	failureRate = Feature{Name: "failure_rate_bucket", Keys: []string{"failure_rate"}, Kind: KindRatio}
	quality     = Feature{Name: "quality_bucket", Keys: []string{"quality_score", "quality"}, Kind: KindDecile}
)

func count(name string, keys ...string) Feature {
	return Feature{Name: name, Keys: keys, Kind: KindCount}
}

func countIn(name string, r CountRange, keys ...string) Feature {
	return Feature{Name: name, Keys: keys, Kind: KindCount, Range: r}
}

func category(name string, keys ...string) Feature {
	return Feature{Name: name, Keys: keys, Kind: KindCategory}
}

func flag(name string, keys ...string) Feature {
	return Feature{Name: name, Keys: keys, Kind: KindBool}
}

func ratio(name string, keys ...string) Feature {
	return Feature{Name: name, Keys: keys, Kind: KindRatio}
}

// builtinExtractors is the closed extractor set, one per agent type.
// Keep bucket cardinality low: every extra bucket multiplies table size.
func builtinExtractors() map[types.AgentType]FeatureExtractor {
	return map[types.AgentType]FeatureExtractor{
		types.AgentGenerator: featureSet{
			complexity, coverageGap, framework, language,
			count("function_count_bucket", "function_count", "functions"),
		},
		types.AgentExecutor: featureSet{
			countIn("test_count_bucket", CountRange{Small: 50, Medium: 500}, "test_count", "tests"),
			framework, environment, failureRate,
			flag("parallel", "parallel", "parallel_execution"),
		},
		types.AgentCoverageAnalyzer: featureSet{
			coverage, language,
			countIn("uncovered_lines_bucket", CountRange{Small: 50, Medium: 500}, "uncovered_lines"),
			count("file_count_bucket", "file_count", "files"),
		},
		types.AgentQualityGate: featureSet{
			quality, coverage,
			count("defect_bucket", "defect_count", "defects"),
			count("critical_bucket", "critical_defects", "critical_count"),
			category("gate_level", "gate_level", "strictness"),
		},
		types.AgentQualityAnalyzer: featureSet{
			quality, complexity, language,
			countIn("code_smell_bucket", CountRange{Small: 10, Medium: 50}, "code_smells", "smell_count"),
		},
		types.AgentPerformanceTester: featureSet{
			category("load_profile", "load_profile", "load_type"),
			count("endpoint_bucket", "endpoint_count", "endpoints"),
			ratio("error_rate_bucket", "error_rate"),
			flag("has_baseline", "has_baseline", "baseline_available"),
		},
		types.AgentSecurityScanner: featureSet{
			category("scan_type", "scan_type"),
			language,
			countIn("dependency_bucket", CountRange{Small: 20, Medium: 200}, "dependency_count", "dependencies"),
			count("known_vulnerability_bucket", "known_vulnerabilities", "vulnerability_count"),
		},
		types.AgentRequirementsValidator: featureSet{
			count("requirement_bucket", "requirement_count", "requirements"),
			ratio("ambiguity_bucket", "ambiguity", "ambiguity_ratio"),
			category("domain", "domain"),
		},
		types.AgentProductionIntelligence: featureSet{
			count("incident_bucket", "incident_count", "incidents"),
			ratio("error_rate_bucket", "error_rate"),
			category("traffic_level", "traffic_level", "traffic"),
			environment,
		},
		types.AgentFleetCommander: featureSet{
			count("active_agent_bucket", "active_agents", "agent_count"),
			countIn("queue_depth_bucket", CountRange{Small: 10, Medium: 100}, "queue_depth", "pending_tasks"),
			ratio("utilization_bucket", "utilization", "load"),
		},
		types.AgentDeploymentReadiness: featureSet{
			coverage, quality, environment,
			count("failing_test_bucket", "failing_tests", "failed_tests"),
			category("risk_level", "risk_level", "risk"),
		},
		types.AgentRegressionRisk: featureSet{
			countIn("changed_files_bucket", CountRange{Small: 5, Medium: 50}, "changed_files", "files_changed"),
			complexity, coverage,
			ratio("historical_failure_bucket", "historical_failure_rate", "failure_rate"),
		},
		types.AgentTestDataArchitect: featureSet{
			Feature{Name: "schema_complexity_bucket", Keys: []string{"schema_complexity"}, Kind: KindComplexity},
			count("table_bucket", "table_count", "tables"),
			category("data_volume", "data_volume", "volume"),
			flag("contains_pii", "contains_pii", "pii"),
		},
		types.AgentAPIContractValidator: featureSet{
			countIn("endpoint_bucket", CountRange{Small: 10, Medium: 50}, "endpoint_count", "endpoints"),
			category("spec_format", "spec_format", "contract_format"),
			count("breaking_change_bucket", "breaking_changes"),
			flag("versioned", "versioned", "has_versioning"),
		},
		types.AgentFlakyTestHunter: featureSet{
			failureRate, framework,
			countIn("run_count_bucket", CountRange{Small: 10, Medium: 100}, "run_count", "runs"),
			flag("retry_enabled", "retry_enabled", "retries"),
		},
		types.AgentVisualTester: featureSet{
			count("viewport_bucket", "viewport_count", "viewports"),
			countIn("component_bucket", CountRange{Small: 10, Medium: 100}, "component_count", "components"),
			category("browser", "browser"),
			ratio("diff_threshold_bucket", "diff_threshold"),
		},
		types.AgentChaosEngineer: featureSet{
			count("service_bucket", "service_count", "services"),
			category("fault_type", "fault_type", "fault"),
			category("blast_radius", "blast_radius"),
			flag("steady_state_defined", "steady_state_defined", "steady_state"),
		},
		types.AgentCodeComplexity: featureSet{
			complexity, language,
			countIn("loc_bucket", CountRange{Small: 200, Medium: 1000}, "lines_of_code", "loc"),
			count("function_count_bucket", "function_count", "functions"),
		},
	}
}
