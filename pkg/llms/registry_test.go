package llms

import (
	"testing"

	"github.com/kadirpekel/aegis/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DispatchesOnProvider(t *testing.T) {
	openai, err := New(&config.LLMConfig{Provider: config.LLMProviderOpenAI, APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", openai.ProviderName())

	ollama, err := New(&config.LLMConfig{Provider: config.LLMProviderOllama})
	require.NoError(t, err)
	assert.Equal(t, "ollama", ollama.ProviderName())

	anthropic, err := New(&config.LLMConfig{Provider: config.LLMProviderAnthropic, APIKey: "sk-ant-test"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", anthropic.ProviderName())
}

func TestNew_RejectsUnsupportedProvider(t *testing.T) {
	_, err := New(&config.LLMConfig{Provider: "bedrock"})
	assert.Error(t, err)
}

func TestRegistry_Resolve_FallsBackToDefaultRoute(t *testing.T) {
	cfg := &config.Config{
		Routes: map[string]*config.LLMConfig{
			"default": {Provider: config.LLMProviderOllama, Model: "llama3.2"},
		},
	}
	cfg.SetDefaults()

	reg := NewRegistry(cfg)

	p, err := reg.Resolve("intellect")
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", p.Model())

	// Resolving again for the same logical route returns the cached instance.
	p2, err := reg.Resolve("intellect")
	require.NoError(t, err)
	assert.Same(t, p.(*OllamaProvider), p2.(*OllamaProvider))
}

func TestRegistry_Resolve_NoRouteNoDefault(t *testing.T) {
	cfg := &config.Config{Routes: map[string]*config.LLMConfig{}}

	reg := NewRegistry(cfg)
	_, err := reg.Resolve("intellect")
	assert.Error(t, err)
}
