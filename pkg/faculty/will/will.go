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

// Package will evaluates a draft answer against an agent's rules and
// caches verdicts per (prompt, draft, values) within one agent
// instance's lifetime.
package will

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/kadirpekel/aegis/pkg/llms"
	"github.com/kadirpekel/aegis/pkg/parsing"
	"github.com/kadirpekel/aegis/pkg/values"
)

// UnavailableReason substitutes as the violation reason when the
// provider call itself fails: Will fails closed on any ambiguity.
const UnavailableReason = "Will evaluation unavailable; failing closed."

// Verdict is one Will evaluation outcome.
type Verdict struct {
	Decision string
	Reason   string
	Cached   bool
}

// Faculty evaluates drafts and memoizes verdicts for the lifetime of
// one compiled agent instance. The TTL of the owning instance cache
// entry bounds this cache's effective lifetime.
type Faculty struct {
	mu    sync.RWMutex
	cache map[string]Verdict
}

// New constructs an empty Will faculty cache.
func New() *Faculty {
	return &Faculty{cache: make(map[string]Verdict)}
}

// Evaluate runs (or replays from cache) a Will verdict for
// (userPrompt, draft) against agent, with an optional conversation
// summary clause for trajectory awareness.
func (f *Faculty) Evaluate(ctx context.Context, provider llms.Provider, agent *values.Agent, userPrompt, draft, conversationSummary string) (Verdict, error) {
	key := cacheKey(userPrompt, draft, agent.Values)

	f.mu.RLock()
	if v, ok := f.cache[key]; ok {
		f.mu.RUnlock()
		v.Cached = true
		return v, nil
	}
	f.mu.RUnlock()

	system := assembleSystemPrompt(agent, conversationSummary)
	decision, reason, err := llms.RunWill(ctx, provider, system, userPrompt+"\n\nDraft answer:\n"+draft)
	if err != nil {
		// Not cached: a provider error is transient, and caching the
		// fail-closed verdict would turn one outage into a standing
		// denial for this (prompt, draft, values) key until the
		// instance itself expires.
		return Verdict{Decision: parsing.DecisionViolation, Reason: UnavailableReason}, nil
	}

	v := Verdict{Decision: decision, Reason: reason}
	f.store(key, v)
	return v, nil
}

func (f *Faculty) store(key string, v Verdict) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache[key] = v
}

// cacheKey computes sha256(normalized(prompt) || normalized(draft) ||
// serialized(values)) deterministically: the value list is serialized
// in its given (canonical) order, never re-sorted, since the faculties
// must assemble prompts deterministically for a given agent.
func cacheKey(prompt, draft string, vs []values.Value) string {
	h := sha256.New()
	h.Write([]byte(normalize(prompt)))
	h.Write([]byte{0})
	h.Write([]byte(normalize(draft)))
	h.Write([]byte{0})
	for _, v := range vs {
		fmt.Fprintf(h, "%s:%v;", values.NormalizeName(v.Name), v.Weight)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func assembleSystemPrompt(agent *values.Agent, conversationSummary string) string {
	var b strings.Builder

	b.WriteString("You are a policy-compliance evaluator. You do not generate answers; you judge one.\n")
	if agent.Name != "" {
		fmt.Fprintf(&b, "You are reviewing output on behalf of %s.\n", agent.Name)
	}

	if len(agent.WillRules) > 0 {
		b.WriteString("\nRules:\n")
		for _, r := range agent.WillRules {
			b.WriteString("- ")
			b.WriteString(r)
			b.WriteString("\n")
		}
	}

	if conversationSummary != "" {
		b.WriteString("\nThis conversation has history; weigh whether the draft is consistent with the arc of the conversation, not just this turn in isolation:\n")
		b.WriteString(conversationSummary)
		b.WriteString("\n")
	}

	b.WriteString("\nRespond with only a JSON object: {\"decision\": \"approve\"|\"violation\", \"reason\": \"<short explanation>\"}.")

	return b.String()
}
