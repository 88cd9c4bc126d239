// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package compiler merges a base persona with an organizational
// governance overlay into the single compiled Agent the faculties run
// against. Compilation is pure and deterministic: same inputs, same
// output, no I/O.
package compiler

import (
	"fmt"
	"strings"

	"github.com/kadirpekel/aegis/pkg/values"
)

const weightTolerance = 1e-6

// Compile merges governance into base, the glue layer that keeps the
// faculties ignorant of where a worldview, rule, or value came from.
//
// Worldview is the governance worldview prefixed onto the base
// worldview. Will rules are the governance rules prepended onto the
// base rules. Values are rebalanced so that the governance values sum
// to governanceWeight and the base values are scaled down to sum to
// 1-governanceWeight, governance values ordered first.
func Compile(base *values.Agent, governance *values.GovernancePolicy, governanceWeight float64) (*values.Agent, error) {
	if base == nil {
		return nil, fmt.Errorf("compiler: base persona is nil")
	}
	if governanceWeight < 0 || governanceWeight > 1 {
		return nil, fmt.Errorf("compiler: governance weight %v out of range [0,1]", governanceWeight)
	}

	compiled := &values.Agent{
		Key:           base.Key,
		Name:          base.Name,
		Description:   base.Description,
		Style:         base.Style,
		PolicyID:      base.PolicyID,
		RAGFormat:     base.RAGFormat,
		KnowledgeBase: base.KnowledgeBase,
	}

	compiled.Worldview = mergeWorldview(base.Worldview, governance)
	compiled.WillRules = mergeWillRules(base.WillRules, governance)

	rebalanced, err := rebalanceValues(base.Values, governance, governanceWeight)
	if err != nil {
		return nil, err
	}
	compiled.Values = rebalanced

	if err := rejectDuplicateValues(compiled.Values); err != nil {
		return nil, err
	}

	return compiled, nil
}

func mergeWorldview(baseWorldview string, governance *values.GovernancePolicy) string {
	if governance == nil || governance.GlobalWorldview == "" {
		return baseWorldview
	}
	if baseWorldview == "" {
		return governance.GlobalWorldview
	}
	return governance.GlobalWorldview + "\n\n" + baseWorldview
}

func mergeWillRules(baseRules []values.WillRule, governance *values.GovernancePolicy) []values.WillRule {
	if governance == nil || len(governance.GlobalWillRules) == 0 {
		return append([]values.WillRule(nil), baseRules...)
	}
	merged := make([]values.WillRule, 0, len(governance.GlobalWillRules)+len(baseRules))
	merged = append(merged, governance.GlobalWillRules...)
	merged = append(merged, baseRules...)
	return merged
}

func rebalanceValues(baseValues []values.Value, governance *values.GovernancePolicy, governanceWeight float64) ([]values.Value, error) {
	var govValues []values.Value
	if governance != nil {
		govValues = governance.GlobalValues
	}

	if len(govValues) == 0 {
		return append([]values.Value(nil), baseValues...), nil
	}
	if len(baseValues) == 0 {
		return scaleValues(govValues, 1.0), nil
	}

	govSum := values.SumWeights(govValues)
	baseSum := values.SumWeights(baseValues)

	scaledGov := govValues
	if govSum > 0 {
		scaledGov = scaleValues(govValues, governanceWeight/govSum)
	}

	baseTarget := 1.0 - governanceWeight
	scaledBase := baseValues
	if baseSum > 0 {
		scaledBase = scaleValues(baseValues, baseTarget/baseSum)
	}

	out := make([]values.Value, 0, len(scaledGov)+len(scaledBase))
	out = append(out, scaledGov...)
	out = append(out, scaledBase...)

	if total := values.SumWeights(out); absFloat(total-1.0) > weightTolerance {
		return nil, fmt.Errorf("compiler: rebalanced value weights sum to %v, want 1.0 +/- %v", total, weightTolerance)
	}

	return out, nil
}

func scaleValues(vs []values.Value, factor float64) []values.Value {
	out := make([]values.Value, len(vs))
	for i, v := range vs {
		out[i] = v
		out[i].Weight = v.Weight * factor
	}
	return out
}

func rejectDuplicateValues(vs []values.Value) error {
	seen := make(map[string]string, len(vs))
	for _, v := range vs {
		key := values.NormalizeName(v.Name)
		if original, ok := seen[key]; ok {
			return fmt.Errorf("compiler: duplicate value %q collides with %q after normalization", v.Name, original)
		}
		seen[key] = v.Name
	}
	return nil
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Describe returns a human-readable summary of a compiled agent, useful
// for debug logging around compilation failures.
func Describe(a *values.Agent) string {
	if a == nil {
		return "<nil agent>"
	}
	names := make([]string, len(a.Values))
	for i, v := range a.Values {
		names[i] = fmt.Sprintf("%s=%.3f", v.Name, v.Weight)
	}
	return fmt.Sprintf("agent(%s): values=[%s]", a.Key, strings.Join(names, ", "))
}
