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

// Package orchestrator drives one turn through Intellect, Will,
// Conscience and Spirit, and owns the instance cache, the background
// audit queue, and the ports (persistence, LLM routes, context,
// personas) those faculties run against.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kadirpekel/aegis/pkg/cache"
	"github.com/kadirpekel/aegis/pkg/compiler"
	"github.com/kadirpekel/aegis/pkg/config"
	"github.com/kadirpekel/aegis/pkg/contextprovider"
	"github.com/kadirpekel/aegis/pkg/faculty/will"
	"github.com/kadirpekel/aegis/pkg/ledger"
	"github.com/kadirpekel/aegis/pkg/llms"
	"github.com/kadirpekel/aegis/pkg/observability"
	"github.com/kadirpekel/aegis/pkg/persistence"
	"github.com/kadirpekel/aegis/pkg/persona"
	"github.com/kadirpekel/aegis/pkg/quota"
	"github.com/kadirpekel/aegis/pkg/values"
)

// auditResultCacheSize bounds the read-through cache in front of
// GetAuditResult's hot polling path. It is sized generously relative to
// AuditQueueSize since a client may keep polling long after an audit
// has completed and left the queue.
const auditResultCacheSize = 4096

// logicalRoutes are the named LLM routes the orchestrator resolves per
// compiled instance; unconfigured routes fall back to "default" inside
// the registry.
var logicalRoutes = [...]string{"intellect", "will", "conscience", "summarizer", "suggestions"}

// Core is the turn driver: it owns the instance cache, the ports the
// faculties run against, and the background audit queue. One Core
// typically lives for the lifetime of the process.
type Core struct {
	cfg             *config.Config
	cache           *cache.Cache
	store           persistence.Store
	llmRegistry     *llms.Registry
	contextProvider contextprovider.Provider
	ledgerWriter    *ledger.Writer
	quotaLimiter    *quota.Limiter
	personas        persona.Source
	obs             *observability.Manager
	logger          *slog.Logger

	spiritBeta              float64
	governanceWeight        float64
	defaultAgentKey         string
	enableProfileExtraction bool
	orgSettingsHash         string

	auditResultCache *lru.Cache[string, persistence.AuditRecord]

	audit *auditQueue
}

// instance is one compiled agent plus the resolved providers and
// faculty state the orchestrator runs a turn against. Instances are
// immutable after construction except for the Will faculty's internal
// verdict cache.
type instance struct {
	agent *values.Agent

	intellectProvider   llms.Provider
	willProvider        llms.Provider
	conscienceProvider  llms.Provider
	summarizerProvider  llms.Provider
	suggestionsProvider llms.Provider

	will *will.Faculty
}

// NewCore wires a Core from its ports. cfg must already have
// SetDefaults applied.
func NewCore(
	cfg *config.Config,
	store persistence.Store,
	llmRegistry *llms.Registry,
	contextProvider contextprovider.Provider,
	ledgerWriter *ledger.Writer,
	personas persona.Source,
	obs *observability.Manager,
	logger *slog.Logger,
) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}

	auditResultCache, err := lru.New[string, persistence.AuditRecord](auditResultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build audit result cache: %w", err)
	}

	c := &Core{
		cfg:                     cfg,
		cache:                   cache.New(cfg.InstanceCacheTTL),
		store:                   store,
		llmRegistry:             llmRegistry,
		contextProvider:         contextProvider,
		ledgerWriter:            ledgerWriter,
		quotaLimiter:            quota.NewLimiter(store, cfg.DailyPromptLimit, logger),
		personas:                personas,
		obs:                     obs,
		logger:                  logger,
		spiritBeta:              cfg.SpiritBeta,
		governanceWeight:        cfg.GovernanceWeight,
		defaultAgentKey:         cfg.DefaultAgentKey,
		enableProfileExtraction: cfg.EnableProfileExtraction,
		orgSettingsHash:         orgSettingsHash(cfg.GovernanceWeight, cfg.SpiritBeta),
		auditResultCache:        auditResultCache,
	}
	c.audit = newAuditQueue(c, cfg.AuditQueueSize, cfg.AuditWorkers, logger)

	return c, nil
}

// Close drains the background audit queue and releases the ledger
// writer's open file handles. It blocks until either the queue drains
// or the bounded shutdown timeout elapses.
func (c *Core) Close() error {
	c.audit.shutdown()
	return c.ledgerWriter.Close()
}

// InvalidateAgent drops every cached instance whose normalized key
// matches agentKey.
func (c *Core) InvalidateAgent(agentKey string) {
	c.cache.InvalidateAgent(agentKey)
	if m := c.obs.Metrics(); m != nil {
		m.SetCacheSize(c.cache.Len())
	}
}

// getOrCreateInstance resolves the compiled instance for agentKey,
// building one on a cache miss. policyID distinguishes instances
// compiled under different organizational policies.
func (c *Core) getOrCreateInstance(ctx context.Context, agentKey, policyID string) (*instance, error) {
	intellectCfg, _ := c.cfg.Route("intellect")
	willCfg, _ := c.cfg.Route("will")
	conscienceCfg, _ := c.cfg.Route("conscience")

	key := cache.Key(agentKey, modelOf(intellectCfg), modelOf(willCfg), modelOf(conscienceCfg), policyID, c.orgSettingsHash)

	v, err := c.cache.GetOrCreate(ctx, key, func(ctx context.Context) (any, error) {
		if m := c.obs.Metrics(); m != nil {
			m.RecordCacheMiss()
		}
		return c.buildInstance(ctx, agentKey, policyID)
	})
	if err != nil {
		return nil, err
	}

	inst, ok := v.(*instance)
	if !ok {
		return nil, fmt.Errorf("orchestrator: cache entry for %q has unexpected type %T", agentKey, v)
	}
	if m := c.obs.Metrics(); m != nil {
		m.SetCacheSize(c.cache.Len())
	}
	return inst, nil
}

// buildInstance resolves the base persona and governance overlay,
// compiles them, and resolves every logical LLM route. It is the
// instance cache's Constructor for a cache miss.
func (c *Core) buildInstance(ctx context.Context, agentKey, policyID string) (*instance, error) {
	base, err := c.personas.BasePersona(ctx, agentKey)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolve persona %q: %w", agentKey, err)
	}
	var governance *values.GovernancePolicy
	if base.Governed {
		governance, err = c.personas.GovernancePolicy(ctx)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: resolve governance policy: %w", err)
		}
	}

	compiled, err := compiler.Compile(base, governance, c.governanceWeight)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: compile agent %q: %w", agentKey, err)
	}
	compiled.PolicyID = policyID

	intellectProvider, err := c.llmRegistry.Resolve("intellect")
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolve intellect route: %w", err)
	}
	willProvider, err := c.llmRegistry.Resolve("will")
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolve will route: %w", err)
	}
	conscienceProvider, err := c.llmRegistry.Resolve("conscience")
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolve conscience route: %w", err)
	}

	summarizerProvider, err := c.llmRegistry.Resolve("summarizer")
	if err != nil {
		c.logger.Warn("orchestrator: summarizer route unavailable, conversation summaries disabled", "agent", agentKey, "error", err)
		summarizerProvider = nil
	}
	suggestionsProvider, err := c.llmRegistry.Resolve("suggestions")
	if err != nil {
		c.logger.Warn("orchestrator: suggestions route unavailable, follow-up suggestions disabled", "agent", agentKey, "error", err)
		suggestionsProvider = nil
	}

	return &instance{
		agent:               compiled,
		intellectProvider:   intellectProvider,
		willProvider:        willProvider,
		conscienceProvider:  conscienceProvider,
		summarizerProvider:  summarizerProvider,
		suggestionsProvider: suggestionsProvider,
		will:                will.New(),
	}, nil
}

// valueKeys returns agent's canonical value names, in compiled order,
// for Spirit memory's |mu|-vs-|values| alignment check.
func valueKeys(agent *values.Agent) []string {
	keys := make([]string, len(agent.Values))
	for i, v := range agent.Values {
		keys[i] = v.Name
	}
	return keys
}

func modelOf(cfg *config.LLMConfig) string {
	if cfg == nil {
		return ""
	}
	return cfg.Model
}

// orgSettingsHash hashes the organizational settings that distinguish
// one compiled instance from another beyond the model triple and
// policy: changing the governance weight or Spirit beta must not reuse
// a stale cached instance.
func orgSettingsHash(governanceWeight, spiritBeta float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%v|%v", governanceWeight, spiritBeta)
	return hex.EncodeToString(h.Sum(nil))
}
