package persona

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/aegis/pkg/values"
)

const sampleYAML = `
personas:
  - key: assistant
    name: Assistant
    worldview: "You are a helpful, honest assistant. {{context}}"
    style: concise
    governed: true
    will_rules:
      - "Never give specific financial advice."
    values:
      - name: Honesty
        weight: 0.6
        rubric:
          description: "Is the answer truthful?"
          scoring_guide:
            - score: 1
              criteria: "Fully truthful"
            - score: -1
              criteria: "Contains falsehoods"
      - name: Harm Reduction
        weight: 0.4
        rubric:
          description: "Does the answer avoid harm?"
governance:
  global_worldview: "Operate within organizational policy."
  global_will_rules:
    - "Never disclose internal credentials."
  global_values:
    - name: Compliance
      weight: 1.0
      rubric:
        description: "Does the answer respect compliance rules?"
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestNewFileSource_LoadsPersonaAndGovernance(t *testing.T) {
	src, err := NewFileSource(writeSample(t))
	require.NoError(t, err)

	agent, err := src.BasePersona(context.Background(), "Assistant")
	require.NoError(t, err)
	assert.Equal(t, "assistant", agent.Key)
	assert.Len(t, agent.Values, 2)
	assert.Equal(t, "Honesty", agent.Values[0].Name)
	assert.InDelta(t, 0.6, agent.Values[0].Weight, 1e-9)
	assert.True(t, agent.Governed)

	gov, err := src.GovernancePolicy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Operate within organizational policy.", gov.GlobalWorldview)
	assert.Len(t, gov.GlobalValues, 1)
}

func TestNewFileSource_PersonaWithoutGovernedFlagDefaultsIndependent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
personas:
  - key: fiduciary
    name: Fiduciary
    worldview: "You advise independently."
governance:
  global_worldview: "Operate within organizational policy."
`), 0o644))

	src, err := NewFileSource(path)
	require.NoError(t, err)

	agent, err := src.BasePersona(context.Background(), "fiduciary")
	require.NoError(t, err)
	assert.False(t, agent.Governed)
}

func TestNewFileSource_LookupIsCaseInsensitive(t *testing.T) {
	src, err := NewFileSource(writeSample(t))
	require.NoError(t, err)

	_, err = src.BasePersona(context.Background(), "ASSISTANT")
	assert.NoError(t, err)
}

func TestNewFileSource_UnknownAgentReturnsError(t *testing.T) {
	src, err := NewFileSource(writeSample(t))
	require.NoError(t, err)

	_, err = src.BasePersona(context.Background(), "nonexistent")
	assert.Error(t, err)
}

func TestNewFileSource_RejectsMissingKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("personas:\n  - name: NoKey\n"), 0o644))

	_, err := NewFileSource(path)
	assert.Error(t, err)
}

func TestStaticSource_ReturnsConfiguredPersona(t *testing.T) {
	src := &StaticSource{
		Personas: map[string]*values.Agent{
			"assistant": {Key: "assistant", Name: "Assistant"},
		},
	}

	agent, err := src.BasePersona(context.Background(), "assistant")
	require.NoError(t, err)
	assert.Equal(t, "Assistant", agent.Name)

	_, err = src.BasePersona(context.Background(), "missing")
	assert.Error(t, err)
}
