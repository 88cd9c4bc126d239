package parsing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIntellect_RoundTripsAssemble(t *testing.T) {
	raw := AssembleIntellect("The answer is 42.", "I double-checked the arithmetic.")

	answer, reflection := ParseIntellect(raw)

	assert.Equal(t, "The answer is 42.", answer)
	assert.Equal(t, "I double-checked the arithmetic.", reflection)
}

func TestParseIntellect_DelimitedWithPlainTextTail(t *testing.T) {
	raw := "Paris is the capital of France.---REFLECTION---I am confident in this fact."

	answer, reflection := ParseIntellect(raw)

	assert.Equal(t, "Paris is the capital of France.", answer)
	assert.Equal(t, "I am confident in this fact.", reflection)
}

func TestParseIntellect_FencedJSONReflection(t *testing.T) {
	raw := "Here is my answer to your question.\n" +
		"```json\n{\"reflection\": \"Checked against known sources.\"}\n```"

	answer, reflection := ParseIntellect(raw)

	assert.Equal(t, "Here is my answer to your question.", answer)
	assert.Equal(t, "Checked against known sources.", reflection)
}

func TestParseIntellect_InlineJSONReflectionNoFence(t *testing.T) {
	raw := `The recipe serves four. {"reflection": "Portions scaled from a base of two."}`

	answer, reflection := ParseIntellect(raw)

	assert.Equal(t, "The recipe serves four.", answer)
	assert.Equal(t, "Portions scaled from a base of two.", reflection)
}

func TestParseIntellect_DamagedJSONFallsBackToReverseKeySearch(t *testing.T) {
	raw := `The answer is here. {"reflection" : "partial text that never closes`

	answer, reflection := ParseIntellect(raw)

	assert.Equal(t, "The answer is here.", answer)
	assert.Equal(t, "partial text that never closes", reflection)
}

func TestParseIntellect_UnparsableInputSalvagesWholeTextAsAnswer(t *testing.T) {
	raw := "just a plain sentence with no structure at all"

	answer, reflection := ParseIntellect(raw)

	assert.Equal(t, raw, answer)
	assert.Equal(t, SalvageReflectionNote, reflection)
}

func TestParseIntellect_EmptyInput(t *testing.T) {
	answer, reflection := ParseIntellect("")

	assert.Equal(t, "", answer)
	assert.Equal(t, SalvageReflectionNote, reflection)
}
