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

// Package config provides configuration loading and management for the
// orchestrator daemon.
//
// The daemon is config-first: LLM routes, persona files, and runtime knobs
// are defined in YAML and the orchestrator builds agents from them.
//
// Example config:
//
//	routes:
//	  intellect:
//	    provider: openai
//	    model: gpt-4o-mini
//	    api_key: ${OPENAI_API_KEY}
//	  will:
//	    provider: ollama
//	    model: llama3.2
//	    base_url: http://localhost:11434
//
//	spirit_beta: 0.9
//	governance_weight: 0.40
//	instance_cache_ttl: 600s
//	daily_prompt_limit: 200
//	enable_profile_extraction: true
//	default_agent_key: assistant
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	// Version of the config schema.
	Version string `yaml:"version,omitempty"`

	// Name of this deployment (for logging/display).
	Name string `yaml:"name,omitempty"`

	// Routes defines the named LLM routes. Logical route names referenced
	// by the faculties are: intellect, will, conscience, summarizer,
	// suggestions. Unlisted logical routes fall back to "default".
	Routes map[string]*LLMConfig `yaml:"routes,omitempty"`

	// Persistence configures the storage backend.
	Persistence PersistenceConfig `yaml:"persistence,omitempty"`

	// ContextProvider configures retrieval-augmented context, if any.
	ContextProvider ContextProviderConfig `yaml:"context_provider,omitempty"`

	// SpiritBeta is the EMA smoothing factor for mu. Default 0.9.
	SpiritBeta float64 `yaml:"spirit_beta,omitempty"`

	// GovernanceWeight is the mass allocated to org governance values in a
	// compiled agent. Default 0.40.
	GovernanceWeight float64 `yaml:"governance_weight,omitempty"`

	// InstanceCacheTTL is the idle lifetime of cached orchestrators.
	InstanceCacheTTL time.Duration `yaml:"instance_cache_ttl,omitempty"`

	// DailyPromptLimit is the hard per-user per-day cap enforced before
	// Intellect runs. Zero disables the limit.
	DailyPromptLimit int `yaml:"daily_prompt_limit,omitempty"`

	// EnableProfileExtraction turns on the summarizer's long-term user
	// profile update.
	EnableProfileExtraction bool `yaml:"enable_profile_extraction,omitempty"`

	// DefaultAgentKey is selected when the caller has no preference.
	DefaultAgentKey string `yaml:"default_agent_key,omitempty"`

	// AuditQueueSize bounds the background audit worker pool's queue.
	AuditQueueSize int `yaml:"audit_queue_size,omitempty"`

	// AuditWorkers is the number of concurrent background audit workers.
	AuditWorkers int `yaml:"audit_workers,omitempty"`

	// Logger configures logging behavior.
	Logger *LoggerConfig `yaml:"logger,omitempty"`
}

// PersistenceConfig configures the storage backend behind the Persistence
// port.
type PersistenceConfig struct {
	// Driver selects the backing store. "sqlite" is the only reference
	// implementation shipped; "memory" is useful for tests.
	Driver string `yaml:"driver,omitempty"`

	// DSN is the data source name (file path for sqlite).
	DSN string `yaml:"dsn,omitempty"`
}

// SetDefaults applies default values.
func (c *PersistenceConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "memory"
	}
	if c.Driver == "sqlite" && c.DSN == "" {
		c.DSN = "aegis.db"
	}
}

// Validate checks the persistence configuration.
func (c *PersistenceConfig) Validate() error {
	switch c.Driver {
	case "memory", "sqlite", "":
		return nil
	default:
		return fmt.Errorf("unsupported persistence driver: %s (supported: memory, sqlite)", c.Driver)
	}
}

// ContextProviderConfig configures the RAG-backed context provider.
type ContextProviderConfig struct {
	// Enabled turns on context retrieval. When false, ProcessPrompt skips
	// straight to Intellect with no retrieved context.
	Enabled bool `yaml:"enabled,omitempty"`

	// Endpoint is the retrieval backend's address (implementation-defined).
	Endpoint string `yaml:"endpoint,omitempty"`

	// Timeout bounds a single retrieval call.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// TopK is the number of documents to retrieve.
	TopK int `yaml:"top_k,omitempty"`
}

// SetDefaults applies default values.
func (c *ContextProviderConfig) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
}

// Validate checks the context provider configuration.
func (c *ContextProviderConfig) Validate() error {
	if c.Enabled && c.Endpoint == "" {
		return fmt.Errorf("context_provider.endpoint is required when enabled")
	}
	return nil
}

// SetDefaults applies default values to the config and cascades into
// every nested section's own SetDefaults.
func (c *Config) SetDefaults() {
	if c.Routes == nil {
		c.Routes = make(map[string]*LLMConfig)
	}
	if len(c.Routes) == 0 {
		c.Routes["default"] = &LLMConfig{}
	}
	for name, route := range c.Routes {
		if route == nil {
			route = &LLMConfig{}
			c.Routes[name] = route
		}
		route.SetDefaults()
	}

	if c.SpiritBeta == 0 {
		c.SpiritBeta = 0.9
	}
	if c.GovernanceWeight == 0 {
		c.GovernanceWeight = 0.40
	}
	if c.InstanceCacheTTL == 0 {
		c.InstanceCacheTTL = 600 * time.Second
	}
	if c.AuditQueueSize == 0 {
		c.AuditQueueSize = 256
	}
	if c.AuditWorkers == 0 {
		c.AuditWorkers = 4
	}
	if c.DefaultAgentKey == "" {
		c.DefaultAgentKey = "assistant"
	}

	c.Persistence.SetDefaults()
	c.ContextProvider.SetDefaults()

	if c.Logger == nil {
		c.Logger = &LoggerConfig{}
	}
	c.Logger.SetDefaults()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	for name, route := range c.Routes {
		if route == nil {
			continue
		}
		if err := route.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("route %q: %v", name, err))
		}
	}

	if c.SpiritBeta <= 0 || c.SpiritBeta >= 1 {
		errs = append(errs, fmt.Sprintf("spirit_beta must be in (0,1), got %v", c.SpiritBeta))
	}
	if c.GovernanceWeight < 0 || c.GovernanceWeight > 1 {
		errs = append(errs, fmt.Sprintf("governance_weight must be in [0,1], got %v", c.GovernanceWeight))
	}
	if c.DailyPromptLimit < 0 {
		errs = append(errs, "daily_prompt_limit cannot be negative")
	}

	if err := c.Persistence.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("persistence: %v", err))
	}
	if err := c.ContextProvider.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("context_provider: %v", err))
	}
	if c.Logger != nil {
		if err := c.Logger.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("logger: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Route returns the named LLM route, falling back to "default" when the
// logical route (intellect/will/conscience/summarizer/suggestions) has no
// dedicated entry.
func (c *Config) Route(logical string) (*LLMConfig, bool) {
	if r, ok := c.Routes[logical]; ok && r != nil {
		return r, true
	}
	r, ok := c.Routes["default"]
	return r, ok
}
