package contextprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisabled_AlwaysReturnsNoDocumentsFound(t *testing.T) {
	p := NewDisabled()
	assert.Equal(t, NoDocumentsFound, p.GetContext(context.Background(), "anything", "%s"))
}

func TestFormatError_WrapsReasonInSentinel(t *testing.T) {
	assert.Equal(t, "[RAG ERROR: timeout]", FormatError("timeout"))
}
