// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"time"
)

// LLMProvider identifies the wire shape a route speaks.
type LLMProvider string

const (
	LLMProviderOpenAI    LLMProvider = "openai"
	LLMProviderOllama    LLMProvider = "ollama"
	LLMProviderAnthropic LLMProvider = "anthropic"
)

// LLMConfig configures one named LLM route. Intellect, Will and Conscience
// each reference a route by name; the same route may be shared by more than
// one faculty.
type LLMConfig struct {
	// Provider selects the wire shape (openai chat-completions, anthropic
	// messages, ollama generate).
	Provider LLMProvider `yaml:"provider,omitempty" json:"provider,omitempty"`

	// Model is the model identifier sent on the wire.
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// APIKey authenticates the route. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// Timeout bounds a single HTTP call made by this route's provider;
	// SetDefaults sets it to 60s when zero. The orchestrator bounds each
	// stage separately (intellect 60s, will 20s, conscience 60s,
	// suggestions 10s) whatever this value is.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Temperature is passed through to the provider when non-zero.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	// MaxTokens limits response length.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// SetDefaults applies default values, auto-detecting provider/key from the
// environment when not explicitly set.
func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = detectProviderFromEnv()
	}
	if c.Model == "" {
		switch c.Provider {
		case LLMProviderOllama:
			c.Model = "llama3.2"
		case LLMProviderAnthropic:
			c.Model = "claude-3-5-haiku-20241022"
		default:
			c.Model = "gpt-4o-mini"
		}
	}
	if c.APIKey == "" {
		c.APIKey = GetProviderAPIKey(string(c.Provider))
	}
	if c.Temperature == nil {
		temp := 0.2
		c.Temperature = &temp
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2048
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// Validate checks the LLM route for obvious misconfiguration.
func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case LLMProviderOpenAI, LLMProviderOllama, LLMProviderAnthropic, "":
	default:
		return fmt.Errorf("unsupported llm provider %q (supported: openai, ollama, anthropic)", c.Provider)
	}
	if (c.Provider == LLMProviderOpenAI || c.Provider == LLMProviderAnthropic) && c.APIKey == "" {
		return fmt.Errorf("api_key is required for provider %q", c.Provider)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

// detectProviderFromEnv detects the provider based on available API keys.
func detectProviderFromEnv() LLMProvider {
	if GetProviderAPIKey("openai") != "" {
		return LLMProviderOpenAI
	}
	if GetProviderAPIKey("anthropic") != "" {
		return LLMProviderAnthropic
	}
	return LLMProviderOllama
}
