package will

import (
	"context"
	"errors"
	"testing"

	"github.com/kadirpekel/aegis/pkg/llms"
	"github.com/kadirpekel/aegis/pkg/values"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls  int
	result llms.Result
	err    error
}

func (p *countingProvider) Invoke(_ context.Context, _, _ string) (llms.Result, error) {
	p.calls++
	return p.result, p.err
}
func (p *countingProvider) Model() string        { return "fake-model" }
func (p *countingProvider) ProviderName() string { return "fake" }

func testAgent() *values.Agent {
	return &values.Agent{Name: "assistant", Values: []values.Value{{Name: "Honesty", Weight: 1.0}}}
}

func TestEvaluate_ApprovedVerdict(t *testing.T) {
	provider := &countingProvider{result: llms.Result{Text: `{"decision": "approve", "reason": "fine"}`}}
	f := New()

	v, err := f.Evaluate(context.Background(), provider, testAgent(), "hi", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "approve", v.Decision)
	assert.False(t, v.Cached)
}

func TestEvaluate_RepeatedCallIsServedFromCache(t *testing.T) {
	provider := &countingProvider{result: llms.Result{Text: `{"decision": "approve", "reason": "fine"}`}}
	f := New()
	agent := testAgent()

	_, err := f.Evaluate(context.Background(), provider, agent, "hi", "hello", "")
	require.NoError(t, err)

	v2, err := f.Evaluate(context.Background(), provider, agent, "hi", "hello", "")
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls)
	assert.True(t, v2.Cached)
}

func TestEvaluate_DifferentValuesProduceDifferentCacheEntries(t *testing.T) {
	provider := &countingProvider{result: llms.Result{Text: `{"decision": "approve", "reason": "fine"}`}}
	f := New()

	agentA := &values.Agent{Values: []values.Value{{Name: "Honesty", Weight: 1.0}}}
	agentB := &values.Agent{Values: []values.Value{{Name: "Honesty", Weight: 0.5}}}

	_, err := f.Evaluate(context.Background(), provider, agentA, "hi", "hello", "")
	require.NoError(t, err)
	_, err = f.Evaluate(context.Background(), provider, agentB, "hi", "hello", "")
	require.NoError(t, err)

	assert.Equal(t, 2, provider.calls)
}

func TestEvaluate_ProviderFailureFailsClosed(t *testing.T) {
	provider := &countingProvider{err: errors.New("timeout")}
	f := New()

	v, err := f.Evaluate(context.Background(), provider, testAgent(), "hi", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "violation", v.Decision)
	assert.Equal(t, UnavailableReason, v.Reason)
}

// flakyProvider errors on its first N calls, then returns result.
type flakyProvider struct {
	failures int
	calls    int
	result   llms.Result
}

func (p *flakyProvider) Invoke(_ context.Context, _, _ string) (llms.Result, error) {
	p.calls++
	if p.calls <= p.failures {
		return llms.Result{}, errors.New("timeout")
	}
	return p.result, nil
}
func (p *flakyProvider) Model() string        { return "fake-model" }
func (p *flakyProvider) ProviderName() string { return "fake" }

func TestEvaluate_ProviderFailureNotCachedSoRetrySucceeds(t *testing.T) {
	provider := &flakyProvider{failures: 1, result: llms.Result{Text: `{"decision": "approve", "reason": "fine"}`}}
	f := New()
	agent := testAgent()

	v1, err := f.Evaluate(context.Background(), provider, agent, "hi", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "violation", v1.Decision)
	assert.False(t, v1.Cached)

	v2, err := f.Evaluate(context.Background(), provider, agent, "hi", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "approve", v2.Decision)
	assert.False(t, v2.Cached)
	assert.Equal(t, 2, provider.calls)
}

func TestEvaluate_ViolationWithoutExplicitReasonStillHasOne(t *testing.T) {
	provider := &countingProvider{result: llms.Result{Text: `{"decision": "violation"}`}}
	f := New()

	v, err := f.Evaluate(context.Background(), provider, testAgent(), "hi", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "violation", v.Decision)
	assert.NotEmpty(t, v.Reason)
}
