package quota

import (
	"context"
	"testing"
	"time"

	"github.com/kadirpekel/aegis/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_DisabledLimitAlwaysPasses(t *testing.T) {
	store := persistence.NewMemoryStore()
	l := NewLimiter(store, 0, nil)

	require.NoError(t, l.Check(context.Background(), "assistant", "user-1"))
}

func TestCheck_UnderLimitPasses(t *testing.T) {
	store := persistence.NewMemoryStore()
	convID, _ := store.CreateConversation(context.Background(), "assistant", "user-1")
	require.NoError(t, store.SaveMessage(context.Background(), persistence.Message{ID: "m1", ConversationID: convID, AgentKey: "assistant"}))

	l := NewLimiter(store, 5, nil)

	assert.NoError(t, l.Check(context.Background(), "assistant", "user-1"))
}

func TestCheck_AtLimitFails(t *testing.T) {
	store := persistence.NewMemoryStore()
	convID, _ := store.CreateConversation(context.Background(), "assistant", "user-1")
	require.NoError(t, store.SaveMessage(context.Background(), persistence.Message{ID: "m1", ConversationID: convID, AgentKey: "assistant", CreatedAt: time.Now()}))
	require.NoError(t, store.SaveMessage(context.Background(), persistence.Message{ID: "m2", ConversationID: convID, AgentKey: "assistant", CreatedAt: time.Now()}))

	l := NewLimiter(store, 2, nil)

	assert.ErrorIs(t, l.Check(context.Background(), "assistant", "user-1"), ErrLimitExceeded)
}
