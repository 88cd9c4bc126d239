package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kadirpekel/aegis/pkg/config/provider"
	"github.com/stretchr/testify/require"
)

func TestLoader_Load_ExpandsEnvAndDecodes(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test-123")

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "aegis.yaml")
	configYAML := `
name: test-deployment
routes:
  intellect:
    provider: openai
    model: gpt-4o-mini
    api_key: ${TEST_OPENAI_KEY}
daily_prompt_limit: 50
`
	require.NoError(t, os.WriteFile(configFile, []byte(configYAML), 0644))

	p, err := provider.NewFileProvider(configFile)
	require.NoError(t, err)
	defer p.Close()

	loader := NewLoader(p)
	cfg, err := loader.Load(context.Background())
	require.NoError(t, err)

	require.Contains(t, cfg.Routes, "intellect")
	require.Equal(t, "sk-test-123", cfg.Routes["intellect"].APIKey)
	require.Equal(t, 50, cfg.DailyPromptLimit)
	require.Equal(t, "test-deployment", cfg.Name)
}
