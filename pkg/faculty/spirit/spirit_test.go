package spirit

import (
	"math"
	"testing"

	"github.com/kadirpekel/aegis/pkg/values"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoValueAgent() *values.Agent {
	return &values.Agent{
		Values: []values.Value{
			{Name: "Honesty", Weight: 0.6},
			{Name: "Harm Reduction", Weight: 0.4},
		},
	}
}

// S1: empty ledger (short interaction) leaves mu unchanged, spiritScore=1.
func TestCompute_EmptyLedgerLeavesMuUnchangedWithScoreOne(t *testing.T) {
	res := Compute(twoValueAgent(), nil, []float64{0, 0}, 0.9)

	assert.Equal(t, 1, res.SpiritScore)
	assert.Equal(t, []float64{0, 0}, res.MuNew)
	assert.Contains(t, res.Note, "Ledger missing:")
	assert.Nil(t, res.Drift)
}

// S2-style: full ledger produces the documented p_t and mu_new.
func TestCompute_FullLedgerMatchesEMAFormula(t *testing.T) {
	ledger := []values.LedgerEntry{
		{Value: "Honesty", Score: 1, Confidence: 0.9},
		{Value: "Harm Reduction", Score: 1, Confidence: 0.8},
	}

	res := Compute(twoValueAgent(), ledger, []float64{0, 0}, 0.9)

	require.Len(t, res.Pt, 2)
	assert.InDelta(t, 0.6, res.Pt[0], 1e-9)
	assert.InDelta(t, 0.4, res.Pt[1], 1e-9)

	// mu_new = beta*mu_prev + (1-beta)*p_t, componentwise within 1e-9.
	for i := range res.MuNew {
		want := 0.9*0 + 0.1*res.Pt[i]
		assert.InDelta(t, want, res.MuNew[i], 1e-9)
	}
	assert.GreaterOrEqual(t, res.SpiritScore, 8)
}

// S4: case-varied but still-normalizable name is found; truly missing
// name leaves mu unchanged and names the missing value.
func TestCompute_PartialLedgerMatchFailsToMissing(t *testing.T) {
	ledger := []values.LedgerEntry{
		{Value: "HONESTY", Score: 1, Confidence: 0.9},
	}

	res := Compute(twoValueAgent(), ledger, []float64{0, 0}, 0.9)

	assert.Equal(t, 1, res.SpiritScore)
	assert.Contains(t, res.Note, "Harm Reduction")
	assert.Equal(t, []float64{0, 0}, res.MuNew)
}

func TestCompute_SpiritScoreAlwaysInRange(t *testing.T) {
	cases := [][]values.LedgerEntry{
		{{Value: "Honesty", Score: -1, Confidence: 1}, {Value: "Harm Reduction", Score: -1, Confidence: 1}},
		{{Value: "Honesty", Score: 0, Confidence: 0}, {Value: "Harm Reduction", Score: 0, Confidence: 0}},
		{{Value: "Honesty", Score: 1, Confidence: 1}, {Value: "Harm Reduction", Score: 1, Confidence: 1}},
	}
	for _, ledger := range cases {
		res := Compute(twoValueAgent(), ledger, []float64{0.1, -0.2}, 0.9)
		assert.GreaterOrEqual(t, res.SpiritScore, 1)
		assert.LessOrEqual(t, res.SpiritScore, 10)
	}
}

func TestCompute_NaNScoreCoercedToZero(t *testing.T) {
	ledger := []values.LedgerEntry{
		{Value: "Honesty", Score: math.NaN(), Confidence: 0.9},
		{Value: "Harm Reduction", Score: 0.5, Confidence: 0.8},
	}

	res := Compute(twoValueAgent(), ledger, []float64{0, 0}, 0.9)

	assert.Equal(t, 0.0, res.Pt[0])
}

func TestCompute_DriftWithinCosineRange(t *testing.T) {
	ledger := []values.LedgerEntry{
		{Value: "Honesty", Score: 1, Confidence: 1},
		{Value: "Harm Reduction", Score: -1, Confidence: 1},
	}

	res := Compute(twoValueAgent(), ledger, []float64{0.5, 0.5}, 0.9)

	require.NotNil(t, res.Drift)
	assert.GreaterOrEqual(t, *res.Drift, 0.0)
	assert.LessOrEqual(t, *res.Drift, 2.0)
}

func TestCompute_ZeroMuPrevHasNilDrift(t *testing.T) {
	ledger := []values.LedgerEntry{
		{Value: "Honesty", Score: 1, Confidence: 1},
		{Value: "Harm Reduction", Score: 1, Confidence: 1},
	}

	res := Compute(twoValueAgent(), ledger, []float64{0, 0}, 0.9)

	assert.Nil(t, res.Drift)
}

func TestFeedbackSeed_IdentifiesStrongestAndWeakest(t *testing.T) {
	seed := FeedbackSeed([]float64{0.8, 0.1}, []string{"Honesty", "Harm Reduction"}, nil, nil)

	assert.Contains(t, seed, "strongest on Honesty")
	assert.Contains(t, seed, "weakest on Harm Reduction")
	assert.Contains(t, seed, "Drift: none")
}

func TestFeedbackSeed_OmitsTrendBelowWindow(t *testing.T) {
	seed := FeedbackSeed([]float64{0.5, 0.5}, []string{"Honesty", "Harm Reduction"}, nil,
		[][]float64{{0, 0}, {0.1, 0.1}})

	assert.NotContains(t, seed, "Trend:")
}

func TestFeedbackSeed_EmitsTrendAtWindowThreshold(t *testing.T) {
	seed := FeedbackSeed([]float64{0.5, 0.1}, []string{"Honesty", "Harm Reduction"}, nil,
		[][]float64{{0, 0.5}, {0.2, 0.3}, {0.5, 0.1}})

	assert.Contains(t, seed, "Trend:")
	assert.Contains(t, seed, "Honesty:rising")
	assert.Contains(t, seed, "Harm Reduction:falling")
}
