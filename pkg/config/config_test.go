package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_SetDefaults(t *testing.T) {
	c := &Config{}
	c.SetDefaults()

	require.NotNil(t, c.Routes["default"])
	assert.Equal(t, 0.9, c.SpiritBeta)
	assert.Equal(t, 0.40, c.GovernanceWeight)
	assert.Equal(t, "assistant", c.DefaultAgentKey)
	assert.Equal(t, "memory", c.Persistence.Driver)
}

func TestConfig_Validate_RejectsOutOfRangeBeta(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	c.SpiritBeta = 1.5

	err := c.Validate()
	assert.ErrorContains(t, err, "spirit_beta")
}

func TestConfig_Route_FallsBackToDefault(t *testing.T) {
	c := &Config{Routes: map[string]*LLMConfig{
		"default": {Provider: LLMProviderOllama, Model: "llama3.2"},
	}}
	c.SetDefaults()

	route, ok := c.Route("intellect")
	require.True(t, ok)
	assert.Equal(t, "llama3.2", route.Model)
}

func TestLLMConfig_Validate_RequiresAPIKeyForOpenAI(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	c := &LLMConfig{Provider: LLMProviderOpenAI}
	err := c.Validate()
	assert.ErrorContains(t, err, "api_key")
}

func TestLLMConfig_Validate_RequiresAPIKeyForAnthropic(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	c := &LLMConfig{Provider: LLMProviderAnthropic}
	err := c.Validate()
	assert.ErrorContains(t, err, "api_key")
}

func TestLLMConfig_SetDefaults_AnthropicModelAndAPIKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	c := &LLMConfig{Provider: LLMProviderAnthropic}
	c.SetDefaults()

	assert.Equal(t, "claude-3-5-haiku-20241022", c.Model)
	assert.Equal(t, "sk-ant-env", c.APIKey)
}

func TestLLMConfig_SetDefaults_DetectsAnthropicWhenOnlyItsKeyIsSet(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	c := &LLMConfig{}
	c.SetDefaults()

	assert.Equal(t, LLMProviderAnthropic, c.Provider)
}
