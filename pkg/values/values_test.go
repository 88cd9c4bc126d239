package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName_FoldsCaseDashesAndWhitespace(t *testing.T) {
	assert.Equal(t, "harm reduction", NormalizeName("Harm-Reduction"))
	assert.Equal(t, "harm reduction", NormalizeName("  harm   reduction  "))
	assert.Equal(t, "harm reduction", NormalizeName("harm_reduction"))
}

func TestIndex_BuildsNormalizedLookup(t *testing.T) {
	vs := []Value{{Name: "Honesty"}, {Name: "Harm Reduction"}}
	idx := Index(vs)

	assert.Equal(t, 0, idx["honesty"])
	assert.Equal(t, 1, idx["harm reduction"])
}

func TestSumWeights(t *testing.T) {
	vs := []Value{{Weight: 0.6}, {Weight: 0.4}}
	assert.InDelta(t, 1.0, SumWeights(vs), 1e-9)
}
