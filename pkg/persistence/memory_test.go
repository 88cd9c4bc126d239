package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SatisfiesStoreContract(t *testing.T) {
	runStoreContractTests(t, func() Store { return NewMemoryStore() })
}

func runStoreContractTests(t *testing.T, newStore func() Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("save and get message", func(t *testing.T) {
		s := newStore()
		convID, err := s.CreateConversation(ctx, "assistant", "user-1")
		require.NoError(t, err)

		msg := Message{ID: "msg_1", ConversationID: convID, AgentKey: "assistant", UserPrompt: "hi", FinalOutput: "hello", AuditStatus: AuditPending}
		require.NoError(t, s.SaveMessage(ctx, msg))

		got, err := s.GetMessage(ctx, "msg_1")
		require.NoError(t, err)
		assert.Equal(t, "hello", got.FinalOutput)
		assert.Equal(t, AuditPending, got.AuditStatus)
	})

	t.Run("missing message returns not found", func(t *testing.T) {
		s := newStore()
		_, err := s.GetMessage(ctx, "does-not-exist")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set audit status updates in place", func(t *testing.T) {
		s := newStore()
		convID, _ := s.CreateConversation(ctx, "assistant", "user-1")
		require.NoError(t, s.SaveMessage(ctx, Message{ID: "msg_2", ConversationID: convID, AgentKey: "assistant", AuditStatus: AuditPending}))

		require.NoError(t, s.SetAuditStatus(ctx, "msg_2", AuditCompleted))

		got, err := s.GetMessage(ctx, "msg_2")
		require.NoError(t, err)
		assert.Equal(t, AuditCompleted, got.AuditStatus)
	})

	t.Run("audit record round trip", func(t *testing.T) {
		s := newStore()
		rec := AuditRecord{MessageID: "msg_3", Summary: "went well", SpiritScore: 8, Suggestions: []string{"tell me more"}, Mu: []float64{0.1, 0.2}}
		require.NoError(t, s.SaveAuditRecord(ctx, rec))

		got, err := s.GetAuditRecord(ctx, "msg_3")
		require.NoError(t, err)
		assert.Equal(t, "went well", got.Summary)
		assert.Equal(t, 8, got.SpiritScore)
		assert.Equal(t, []string{"tell me more"}, got.Suggestions)
		assert.Equal(t, []float64{0.1, 0.2}, got.Mu)
	})

	t.Run("spirit memory txn commits updated mu", func(t *testing.T) {
		s := newStore()
		txn, err := s.LockSpiritMemory(ctx, "assistant", []string{"honesty", "safety"})
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0}, txn.Memory().Mu)

		require.NoError(t, txn.Commit(ctx, SpiritMemory{AgentKey: "assistant", Mu: []float64{0.5, 0.1}, ValueKeys: []string{"honesty", "safety"}, FeedbackSeed: "Alignment: strongest on honesty", Turn: 11}))

		txn2, err := s.LockSpiritMemory(ctx, "assistant", []string{"honesty", "safety"})
		require.NoError(t, err)
		assert.Equal(t, []float64{0.5, 0.1}, txn2.Memory().Mu)
		assert.Equal(t, "Alignment: strongest on honesty", txn2.Memory().FeedbackSeed)
		assert.Equal(t, 11, txn2.Memory().Turn)
		require.NoError(t, txn2.Rollback(ctx))
	})

	t.Run("conversation summary round trips and message count reflects saved turns", func(t *testing.T) {
		s := newStore()
		convID, err := s.CreateConversation(ctx, "assistant", "user-1")
		require.NoError(t, err)

		summary, err := s.GetConversationSummary(ctx, convID)
		require.NoError(t, err)
		assert.Empty(t, summary)

		count, err := s.CountMessagesInConversation(ctx, convID)
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		require.NoError(t, s.SaveMessage(ctx, Message{ID: "msg_summary_1", ConversationID: convID, AgentKey: "assistant", AuditStatus: AuditPending}))
		require.NoError(t, s.SaveConversationSummary(ctx, convID, "user is asking about billing"))

		summary, err = s.GetConversationSummary(ctx, convID)
		require.NoError(t, err)
		assert.Equal(t, "user is asking about billing", summary)

		count, err = s.CountMessagesInConversation(ctx, convID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("user profile defaults to empty map", func(t *testing.T) {
		s := newStore()
		profile, err := s.LoadUserProfile(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, profile.Data)
		assert.Empty(t, profile.Data)
	})
}
