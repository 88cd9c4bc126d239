package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_AppendThenReadFileRoundTrips(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	ts := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	rec := TurnRecord{Timestamp: ts, TurnIndex: 11, UserPrompt: "Hi", FinalOutput: "Hello there.", UserID: "user-1"}

	require.NoError(t, w.Append("Fiduciary", rec))
	require.NoError(t, w.Append("Fiduciary", TurnRecord{Timestamp: ts, TurnIndex: 12, UserID: "user-1"}))

	records, err := ReadFile(filepath.Join(dir, "fiduciary-2026-07-30.jsonl"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 11, records[0].TurnIndex)
	assert.Equal(t, "Hello there.", records[0].FinalOutput)
	assert.Equal(t, 12, records[1].TurnIndex)
}

func TestWriter_SeparatesFilesPerAgentAndDay(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	day1 := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	require.NoError(t, w.Append("Fiduciary", TurnRecord{Timestamp: day1, TurnIndex: 1}))
	require.NoError(t, w.Append("Fiduciary", TurnRecord{Timestamp: day2, TurnIndex: 2}))
	require.NoError(t, w.Append("Support", TurnRecord{Timestamp: day1, TurnIndex: 1}))

	entries, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
