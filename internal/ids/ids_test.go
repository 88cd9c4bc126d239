package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMessageID_HasPrefixAndIsUnique(t *testing.T) {
	a := NewMessageID()
	b := NewMessageID()

	assert.True(t, strings.HasPrefix(a, "msg_"))
	assert.NotEqual(t, a, b)
}

func TestNewConversationID_HasPrefix(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewConversationID(), "conv_"))
}

func TestNewAuditSnapshotID_HasPrefix(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewAuditSnapshotID(), "audit_"))
}
