// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llms

import (
	"fmt"

	"github.com/kadirpekel/aegis/pkg/config"
	"github.com/kadirpekel/aegis/pkg/registry"
)

// Registry resolves named LLM routes (intellect/will/conscience/...) to
// constructed Provider instances, building them lazily on first use.
type Registry struct {
	*registry.BaseRegistry[Provider]
	routes map[string]*config.LLMConfig
}

// NewRegistry builds a Registry from the routes declared in Config.
func NewRegistry(cfg *config.Config) *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Provider](),
		routes:       cfg.Routes,
	}
}

// Resolve returns the Provider backing a logical route name (e.g.
// "intellect"), falling back to the "default" route, constructing and
// caching it on first use.
func (r *Registry) Resolve(route string) (Provider, error) {
	if p, ok := r.Get(route); ok {
		return p, nil
	}

	llmCfg, ok := r.routes[route]
	if !ok {
		llmCfg, ok = r.routes["default"]
		if !ok {
			return nil, fmt.Errorf("no llm route configured for %q and no default route", route)
		}
		route = "default"
	}

	provider, err := New(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("building provider for route %q: %w", route, err)
	}

	if err := r.Register(route, provider); err != nil {
		// Already registered, by a racing goroutine or by an earlier route
		// that also fell back to "default"; use the existing provider.
		if existing, ok := r.Get(route); ok {
			return existing, nil
		}
		return nil, err
	}

	return provider, nil
}

// New constructs a Provider from an LLMConfig, dispatching on Provider type.
func New(cfg *config.LLMConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm config is nil")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid llm config: %w", err)
	}

	switch cfg.Provider {
	case config.LLMProviderOpenAI:
		return NewOpenAIProvider(cfg), nil
	case config.LLMProviderOllama:
		return NewOllamaProvider(cfg), nil
	case config.LLMProviderAnthropic:
		return NewAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
