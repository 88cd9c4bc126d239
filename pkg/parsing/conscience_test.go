package parsing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConscience_EnvelopeShape(t *testing.T) {
	raw := `{"evaluations": [{"value": "honesty", "score": 1, "confidence": 0.9, "reason": "accurate"}]}`

	entries := ParseConscience(raw)

	require.Len(t, entries, 1)
	assert.Equal(t, "honesty", entries[0].Value)
	assert.Equal(t, 1.0, entries[0].Score)
	assert.Equal(t, 0.9, entries[0].Confidence)
}

func TestParseConscience_BareArrayShape(t *testing.T) {
	raw := `[{"value": "harm_reduction", "score": -0.5, "confidence": 0.7, "reason": "minor risk"}]`

	entries := ParseConscience(raw)

	require.Len(t, entries, 1)
	assert.Equal(t, "harm_reduction", entries[0].Value)
	assert.Equal(t, -0.5, entries[0].Score)
}

func TestParseConscience_FencedEnvelope(t *testing.T) {
	raw := "```json\n" + `{"evaluations": [{"value": "honesty", "score": 0.5, "confidence": 1}]}` + "\n```"

	entries := ParseConscience(raw)

	require.Len(t, entries, 1)
	assert.Equal(t, 0.5, entries[0].Score)
}

func TestParseConscience_ScoreClampedToNearestAllowed(t *testing.T) {
	raw := `{"evaluations": [{"value": "honesty", "score": 0.73, "confidence": 1}]}`

	entries := ParseConscience(raw)

	require.Len(t, entries, 1)
	assert.Equal(t, 0.5, entries[0].Score)
}

func TestParseConscience_ConfidenceClampedToRange(t *testing.T) {
	raw := `{"evaluations": [{"value": "honesty", "score": 1, "confidence": 1.4}]}`

	entries := ParseConscience(raw)

	require.Len(t, entries, 1)
	assert.Equal(t, 1.0, entries[0].Confidence)
}

func TestParseConscience_UnparsableInputReturnsSingleErrorRecord(t *testing.T) {
	entries := ParseConscience("not json at all")

	require.Len(t, entries, 1)
	assert.Equal(t, ErrorLedgerValue, entries[0].Value)
}
