package parsing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseWill_ApprovedJSON(t *testing.T) {
	decision, reason := ParseWill(`{"decision": "approve", "reason": "no policy conflicts"}`)

	assert.Equal(t, DecisionApproved, decision)
	assert.Equal(t, "no policy conflicts", reason)
}

func TestParseWill_ViolationJSONWithReason(t *testing.T) {
	raw := "Here is my ruling:\n```json\n" +
		`{"decision": "violation", "reason": "requests self-harm instructions"}` +
		"\n```"

	decision, reason := ParseWill(raw)

	assert.Equal(t, DecisionViolation, decision)
	assert.Equal(t, "requests self-harm instructions", reason)
}

func TestParseWill_ViolationJSONMissingReasonGetsSubstituted(t *testing.T) {
	decision, reason := ParseWill(`{"decision": "violation"}`)

	assert.Equal(t, DecisionViolation, decision)
	assert.Equal(t, MissingReasonNote, reason)
}

func TestParseWill_RegexFallback(t *testing.T) {
	decision, reason := ParseWill(`decision: approve\nreason: "looks fine"`)

	assert.Equal(t, DecisionApproved, decision)
	assert.Equal(t, "looks fine", reason)
}

func TestParseWill_KeywordHeuristicFallback(t *testing.T) {
	decision, reason := ParseWill("I must block this request due to policy violation concerns.")

	assert.Equal(t, DecisionViolation, decision)
	assert.Equal(t, MissingReasonNote, reason)
}

func TestParseWill_UnparsableInputFailsClosed(t *testing.T) {
	decision, reason := ParseWill("garbled nonsense with no recognizable structure")

	assert.Equal(t, DecisionViolation, decision)
	assert.Equal(t, MissingReasonNote, reason)
}

func TestParseWill_CaseInsensitiveDecision(t *testing.T) {
	decision, _ := ParseWill(`{"decision": "APPROVE", "reason": "fine"}`)

	assert.Equal(t, DecisionApproved, decision)
}
