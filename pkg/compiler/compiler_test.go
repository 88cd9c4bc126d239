package compiler

import (
	"testing"

	"github.com/kadirpekel/aegis/pkg/values"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_MergesWorldviewAndRules(t *testing.T) {
	base := &values.Agent{
		Key:       "support-bot",
		Worldview: "You are a helpful support assistant.",
		WillRules: []values.WillRule{"never share internal ticket IDs"},
		Values:    []values.Value{{Name: "Helpfulness", Weight: 1.0}},
	}
	governance := &values.GovernancePolicy{
		GlobalWorldview: "You operate under organizational policy.",
		GlobalWillRules: []values.WillRule{"never provide medical advice"},
		GlobalValues:    []values.Value{{Name: "Safety", Weight: 1.0}},
	}

	compiled, err := Compile(base, governance, 0.4)
	require.NoError(t, err)

	assert.Contains(t, compiled.Worldview, "organizational policy")
	assert.Contains(t, compiled.Worldview, "helpful support assistant")
	require.Len(t, compiled.WillRules, 2)
	assert.Equal(t, "never provide medical advice", compiled.WillRules[0])
	assert.Equal(t, "never share internal ticket IDs", compiled.WillRules[1])
}

func TestCompile_RebalancesValueWeightsToSumOne(t *testing.T) {
	base := &values.Agent{
		Values: []values.Value{
			{Name: "Helpfulness", Weight: 0.6},
			{Name: "Creativity", Weight: 0.4},
		},
	}
	governance := &values.GovernancePolicy{
		GlobalValues: []values.Value{{Name: "Safety", Weight: 1.0}},
	}

	compiled, err := Compile(base, governance, 0.4)
	require.NoError(t, err)

	total := values.SumWeights(compiled.Values)
	assert.InDelta(t, 1.0, total, 1e-6)

	idx := values.Index(compiled.Values)
	assert.InDelta(t, 0.4, compiled.Values[idx["safety"]].Weight, 1e-9)
	assert.InDelta(t, 0.36, compiled.Values[idx["helpfulness"]].Weight, 1e-9)
	assert.InDelta(t, 0.24, compiled.Values[idx["creativity"]].Weight, 1e-9)
}

func TestCompile_GovernanceValuesOrderedFirst(t *testing.T) {
	base := &values.Agent{Values: []values.Value{{Name: "Creativity", Weight: 1.0}}}
	governance := &values.GovernancePolicy{GlobalValues: []values.Value{{Name: "Safety", Weight: 1.0}}}

	compiled, err := Compile(base, governance, 0.5)
	require.NoError(t, err)

	require.Len(t, compiled.Values, 2)
	assert.Equal(t, "Safety", compiled.Values[0].Name)
	assert.Equal(t, "Creativity", compiled.Values[1].Name)
}

func TestCompile_RejectsDuplicateValueNamesAfterNormalization(t *testing.T) {
	base := &values.Agent{Values: []values.Value{{Name: "Harm-Reduction", Weight: 0.5}}}
	governance := &values.GovernancePolicy{GlobalValues: []values.Value{{Name: "harm_reduction", Weight: 0.5}}}

	_, err := Compile(base, governance, 0.4)
	assert.Error(t, err)
}

func TestCompile_NoGovernanceValuesReturnsBaseUnscaled(t *testing.T) {
	base := &values.Agent{Values: []values.Value{{Name: "Helpfulness", Weight: 1.0}}}

	compiled, err := Compile(base, &values.GovernancePolicy{}, 0.4)
	require.NoError(t, err)

	assert.Equal(t, 1.0, compiled.Values[0].Weight)
}

func TestCompile_RejectsNilBase(t *testing.T) {
	_, err := Compile(nil, &values.GovernancePolicy{}, 0.4)
	assert.Error(t, err)
}

func TestCompile_RejectsOutOfRangeWeight(t *testing.T) {
	base := &values.Agent{Values: []values.Value{{Name: "Helpfulness", Weight: 1.0}}}
	_, err := Compile(base, &values.GovernancePolicy{}, 1.5)
	assert.Error(t, err)
}
