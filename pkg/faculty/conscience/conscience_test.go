package conscience

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kadirpekel/aegis/pkg/llms"
	"github.com/kadirpekel/aegis/pkg/values"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	calls  int
	result llms.Result
	err    error
}

func (f *fakeProvider) Invoke(_ context.Context, _, _ string) (llms.Result, error) {
	f.calls++
	return f.result, f.err
}
func (f *fakeProvider) Model() string        { return "fake-model" }
func (f *fakeProvider) ProviderName() string { return "fake" }

func longText(n int) string { return strings.Repeat("a", n) }

func TestRun_ShortInteractionSkipsCall(t *testing.T) {
	provider := &fakeProvider{result: llms.Result{Text: `{"evaluations":[]}`}}

	ledger := Run(context.Background(), provider, Input{
		Agent:       &values.Agent{},
		UserPrompt:  "Hi",
		FinalOutput: "Hello there.",
	})

	assert.Empty(t, ledger)
	assert.Equal(t, 0, provider.calls)
}

func TestRun_LongInteractionCallsProviderAndParsesLedger(t *testing.T) {
	provider := &fakeProvider{result: llms.Result{
		Text: `{"evaluations":[{"value":"Honesty","score":1,"confidence":0.9,"reason":"accurate"}]}`,
	}}

	ledger := Run(context.Background(), provider, Input{
		Agent:       &values.Agent{Values: []values.Value{{Name: "Honesty", Weight: 1.0}}},
		UserPrompt:  longText(150),
		FinalOutput: longText(150),
	})

	require.Len(t, ledger, 1)
	assert.Equal(t, "Honesty", ledger[0].Value)
	assert.Equal(t, 1.0, ledger[0].Score)
}

func TestRun_ProviderFailureDegradesToEmptyLedger(t *testing.T) {
	provider := &fakeProvider{err: errors.New("timeout")}

	ledger := Run(context.Background(), provider, Input{
		Agent:       &values.Agent{},
		UserPrompt:  longText(150),
		FinalOutput: longText(150),
	})

	assert.Empty(t, ledger)
}

func TestRun_OnlyUserPromptLongStillCallsProvider(t *testing.T) {
	provider := &fakeProvider{result: llms.Result{Text: `{"evaluations":[]}`}}

	Run(context.Background(), provider, Input{
		Agent:       &values.Agent{},
		UserPrompt:  longText(150),
		FinalOutput: "short",
	})

	assert.Equal(t, 1, provider.calls)
}
