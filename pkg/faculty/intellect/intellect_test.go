package intellect

import (
	"context"
	"errors"
	"testing"

	"github.com/kadirpekel/aegis/pkg/llms"
	"github.com/kadirpekel/aegis/pkg/values"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	result llms.Result
	err    error
}

func (f *fakeProvider) Invoke(_ context.Context, _, _ string) (llms.Result, error) {
	return f.result, f.err
}
func (f *fakeProvider) Model() string        { return "fake-model" }
func (f *fakeProvider) ProviderName() string { return "fake" }

func TestRun_AssemblesAnswerAndReflectionOnSuccess(t *testing.T) {
	provider := &fakeProvider{result: llms.Result{Text: "Hello.---REFLECTION---{\"reflection\": \"confident\"}"}}

	agent := &values.Agent{Worldview: "You are helpful."}
	res := Run(context.Background(), provider, Input{Agent: agent}, "hi")

	assert.False(t, res.Failed)
	assert.Equal(t, "Hello.", res.Answer)
	assert.Equal(t, "confident", res.Reflection)
}

func TestRun_ProviderFailureReturnsGenericMessage(t *testing.T) {
	provider := &fakeProvider{err: errors.New("network down")}

	agent := &values.Agent{Worldview: "You are helpful."}
	res := Run(context.Background(), provider, Input{Agent: agent}, "hi")

	require.True(t, res.Failed)
	assert.Equal(t, GenericFailureMessage, res.Answer)
}

func TestAssembleContextUsed_PrependsPluginErrorDirective(t *testing.T) {
	in := Input{PluginContextError: "timeout", PluginContext: "plugin docs", RetrievedContext: "retrieved docs"}

	ctxUsed := assembleContextUsed(in)

	assert.Contains(t, ctxUsed, "Context retrieval failed: timeout")
	assert.Contains(t, ctxUsed, "plugin docs")
	assert.Contains(t, ctxUsed, "retrieved docs")
}

func TestAssembleSystemPrompt_IncludesCorrectiveDirectiveOnReflexion(t *testing.T) {
	agent := &values.Agent{Worldview: "Base worldview."}
	in := Input{Agent: agent, CorrectiveDirective: "Implies specific financial advice."}

	prompt := assembleSystemPrompt(in, "")

	assert.Contains(t, prompt, "Implies specific financial advice.")
}

func TestAssembleSystemPrompt_InterpolatesContextPlaceholder(t *testing.T) {
	agent := &values.Agent{Worldview: "Base. {{context}} End."}
	in := Input{Agent: agent, RetrievedContext: "retrieved docs"}

	prompt := assembleSystemPrompt(in, "retrieved docs")

	assert.Contains(t, prompt, "Base. retrieved docs End.")
}
