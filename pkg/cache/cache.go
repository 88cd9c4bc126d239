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

// Package cache is the TTL-bounded instance cache that keeps compiled
// orchestrators alive across turns keyed by (agent, model triple,
// policy, org settings).
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kadirpekel/aegis/pkg/values"
)

// KeySeparator splits the normalized-agent-key prefix from the
// model/policy/org hash suffix, so InvalidateAgent can delete by
// prefix without decoding the rest of the key.
const KeySeparator = "::"

// Key builds a composite cache key: normalized agent name, then
// KeySeparator, then a hash of everything else that distinguishes one
// compiled instance from another.
func Key(agentName, intellectModel, willModel, conscienceModel, policyID, orgSettingsHash string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", intellectModel, willModel, conscienceModel, policyID, orgSettingsHash)
	return values.NormalizeName(agentName) + KeySeparator + hex.EncodeToString(h.Sum(nil))
}

// Entry is one cached orchestrator plus its access-time bookkeeping for
// lazy TTL eviction.
type Entry struct {
	Orchestrator any
	CreatedAt    time.Time
	LastUsed     time.Time
}

// Constructor builds a fresh orchestrator instance for a cache miss. It
// is expected to resolve the policy and organizational settings before
// compiling the agent.
type Constructor func(ctx context.Context) (any, error)

// Cache is a thread-safe, lazily-evicted TTL cache of compiled
// orchestrator instances. Eviction happens only as a side effect of
// lookups; there is no background sweeper.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	ttl     time.Duration
	group   singleflight.Group
}

// New constructs an empty Cache with the given idle TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{entries: make(map[string]*Entry), ttl: ttl}
}

// GetOrCreate returns the live entry for key, constructing one via
// construct on a miss. Concurrent misses for the same key collapse
// into a single construction via singleflight.
func (c *Cache) GetOrCreate(ctx context.Context, key string, construct Constructor) (any, error) {
	c.mu.Lock()
	c.evictExpiredLocked()
	if e, ok := c.entries[key]; ok {
		e.LastUsed = time.Now()
		c.mu.Unlock()
		return e.Orchestrator, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.Lock()
		if e, ok := c.entries[key]; ok {
			c.mu.Unlock()
			return e.Orchestrator, nil
		}
		c.mu.Unlock()

		orchestrator, err := construct(ctx)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		c.mu.Lock()
		c.entries[key] = &Entry{Orchestrator: orchestrator, CreatedAt: now, LastUsed: now}
		c.mu.Unlock()
		return orchestrator, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// InvalidateAgent removes every entry whose key's normalized-agent
// prefix matches agentName. Idempotent: invalidating an agent with no
// cached entries is a no-op.
func (c *Cache) InvalidateAgent(agentName string) {
	prefix := values.NormalizeName(agentName) + KeySeparator

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
}

// evictExpiredLocked drops entries idle longer than the TTL. Callers
// must hold c.mu.
func (c *Cache) evictExpiredLocked() {
	if c.ttl <= 0 {
		return
	}
	now := time.Now()
	for key, e := range c.entries {
		if now.Sub(e.LastUsed) > c.ttl {
			delete(c.entries, key)
		}
	}
}

// Len returns the current entry count, for tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
