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

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kadirpekel/aegis/internal/ids"
	"github.com/kadirpekel/aegis/pkg/contextprovider"
	"github.com/kadirpekel/aegis/pkg/faculty/intellect"
	"github.com/kadirpekel/aegis/pkg/parsing"
	"github.com/kadirpekel/aegis/pkg/persistence"
)

// Per-route call budgets (spec §5). These bound the orchestration-level
// call, independent of any transport-level timeout a provider's own
// LLMConfig.Timeout enforces.
const (
	intellectTimeout   = 60 * time.Second
	willTimeout        = 20 * time.Second
	conscienceTimeout  = 60 * time.Second
	suggestionsTimeout = 10 * time.Second
)

// newTitleMaxLen bounds the opportunistic first-turn title.
const newTitleMaxLen = 60

// ProcessResult is the wire shape ProcessPrompt returns to the caller
// (spec §6).
type ProcessResult struct {
	Answer       string
	MessageID    string
	WillDecision string
	WillReason   string
	NewTitle     string
}

// ProcessPrompt runs one turn: Resolve, Ingest, Intellect, Will, at most
// one reflexion retry, Respond, and a non-blocking audit submission. It
// never blocks on the background audit.
func (c *Core) ProcessPrompt(ctx context.Context, userID, conversationID, userPrompt, agentSelector string) (ProcessResult, error) {
	agentKey := agentSelector
	if agentKey == "" {
		agentKey = c.defaultAgentKey
	}

	if err := c.quotaLimiter.Check(ctx, agentKey, userID); err != nil {
		return ProcessResult{}, err
	}

	profile, err := c.store.LoadUserProfile(ctx, userID)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("orchestrator: load user profile: %w", err)
	}

	inst, err := c.getOrCreateInstance(ctx, agentKey, policyIDOf(profile))
	if err != nil {
		return ProcessResult{}, fmt.Errorf("orchestrator: resolve instance: %w", err)
	}

	isNewConversation := conversationID == ""
	if isNewConversation {
		conversationID, err = c.store.CreateConversation(ctx, agentKey, userID)
		if err != nil {
			return ProcessResult{}, fmt.Errorf("orchestrator: create conversation: %w", err)
		}
	}

	conversationSummary, err := c.store.GetConversationSummary(ctx, conversationID)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("orchestrator: load conversation summary: %w", err)
	}
	turnIndex, err := c.store.CountMessagesInConversation(ctx, conversationID)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("orchestrator: count conversation turns: %w", err)
	}

	muPrev, feedbackSeed, err := c.peekSpiritMemory(ctx, agentKey, inst)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("orchestrator: peek spirit memory: %w", err)
	}

	retrievedContext, pluginErr := splitContextText(c.contextProvider.GetContext(ctx, userPrompt, inst.agent.RAGFormat))

	in := intellect.Input{
		Agent:               inst.agent,
		UserName:            userID,
		UserProfileSummary:  profileSummary(profile),
		ConversationSummary: conversationSummary,
		SpiritFeedbackSeed:  feedbackSeed,
		RetrievedContext:    retrievedContext,
		PluginContextError:  pluginErr,
	}

	draft := c.runIntellect(ctx, inst, in, userPrompt)
	if draft.Failed {
		return ProcessResult{Answer: draft.Answer}, nil
	}

	verdict := c.runWill(ctx, inst, userPrompt, draft.Answer, conversationSummary)

	finalAnswer := draft.Answer
	finalReflection := draft.Reflection
	finalContextUsed := draft.ContextUsed

	if verdict.Decision == parsing.DecisionViolation {
		if m := c.obs.Metrics(); m != nil {
			m.RecordWillReflexion()
		}

		retryIn := in
		retryIn.CorrectiveDirective = verdict.Reason
		retryDraft := c.runIntellect(ctx, inst, retryIn, userPrompt)

		if retryDraft.Failed {
			finalAnswer = blockedAnswer(verdict.Reason)
		} else {
			finalAnswer = retryDraft.Answer
			finalReflection = retryDraft.Reflection
			finalContextUsed = retryDraft.ContextUsed

			verdict = c.runWill(ctx, inst, userPrompt, finalAnswer, conversationSummary)
			if verdict.Decision == parsing.DecisionViolation {
				finalAnswer = blockedAnswer(verdict.Reason)
			}
		}
	}

	messageID := ids.NewMessageID()
	msg := persistence.Message{
		ID:             messageID,
		ConversationID: conversationID,
		AgentKey:       agentKey,
		UserPrompt:     userPrompt,
		FinalOutput:    finalAnswer,
		TurnIndex:      turnIndex,
		AuditStatus:    persistence.AuditPending,
		CreatedAt:      time.Now(),
	}
	if err := c.store.SaveMessage(ctx, msg); err != nil {
		return ProcessResult{}, fmt.Errorf("orchestrator: save message: %w", err)
	}

	var newTitle string
	if isNewConversation {
		newTitle = truncate(userPrompt, newTitleMaxLen)
	}

	c.audit.submit(PendingAudit{
		MessageID:           messageID,
		ConversationID:      conversationID,
		UserID:              userID,
		Agent:               inst.agent,
		ConscienceProvider:  inst.conscienceProvider,
		SummarizerProvider:  inst.summarizerProvider,
		SuggestionsProvider: inst.suggestionsProvider,
		UserPrompt:          userPrompt,
		Reflection:          finalReflection,
		ContextUsed:         finalContextUsed,
		FinalOutput:         finalAnswer,
		TurnIndex:           turnIndex,
		WillDecision:        verdict.Decision,
		WillReason:          verdict.Reason,
		MuPrev:              muPrev,
	})

	return ProcessResult{
		Answer:       finalAnswer,
		MessageID:    messageID,
		WillDecision: verdict.Decision,
		WillReason:   verdict.Reason,
		NewTitle:     newTitle,
	}, nil
}

// peekSpiritMemory reads an agent's current mu and feedback seed
// without holding the Spirit-memory lock across any suspension point:
// it locks, copies what it needs, and immediately rolls back. The
// background audit task later acquires its own lock for the
// read-modify-write.
func (c *Core) peekSpiritMemory(ctx context.Context, agentKey string, inst *instance) (mu []float64, feedbackSeed string, err error) {
	txn, err := c.store.LockSpiritMemory(ctx, agentKey, valueKeys(inst.agent))
	if err != nil {
		return nil, "", err
	}
	memory := txn.Memory()
	if err := txn.Rollback(ctx); err != nil {
		c.logger.Warn("orchestrator: roll back spirit memory peek", "agent", agentKey, "error", err)
	}
	return memory.Mu, memory.FeedbackSeed, nil
}

func (c *Core) runIntellect(ctx context.Context, inst *instance, in intellect.Input, userPrompt string) intellect.Result {
	callCtx, cancel := context.WithTimeout(ctx, intellectTimeout)
	defer cancel()

	start := time.Now()
	res := intellect.Run(callCtx, inst.intellectProvider, in, userPrompt)
	c.recordFacultyCall("intellect", inst.agent.Key, time.Since(start), res.Failed)
	return res
}

func (c *Core) runWill(ctx context.Context, inst *instance, userPrompt, draft, conversationSummary string) willVerdict {
	callCtx, cancel := context.WithTimeout(ctx, willTimeout)
	defer cancel()

	start := time.Now()
	v, _ := inst.will.Evaluate(callCtx, inst.willProvider, inst.agent, userPrompt, draft, conversationSummary)
	c.recordFacultyCall("will", inst.agent.Key, time.Since(start), v.Reason == "" && v.Decision == parsing.DecisionViolation)
	return willVerdict{Decision: v.Decision, Reason: v.Reason}
}

// willVerdict decouples the orchestrator from will.Verdict's Cached
// bookkeeping field, which is internal to the faculty's own cache.
type willVerdict struct {
	Decision string
	Reason   string
}

func (c *Core) recordFacultyCall(faculty, agentKey string, d time.Duration, failed bool) {
	m := c.obs.Metrics()
	if m == nil {
		return
	}
	m.RecordFacultyCall(faculty, agentKey, d)
	if failed {
		m.RecordFacultyError(faculty, agentKey, "provider_failure")
	}
}

func blockedAnswer(reason string) string {
	return fmt.Sprintf("[Blocked: %s]", reason)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max])
}

// policyIDOf extracts the organizational policy a user's profile has
// been assigned, if any. Most profiles carry none, in which case the
// compiled agent gets no policy overlay beyond its own governance
// persona.
func policyIDOf(profile persistence.UserProfile) string {
	if profile.Data == nil {
		return ""
	}
	if v, ok := profile.Data["policyId"].(string); ok {
		return v
	}
	if v, ok := profile.Data["policy_id"].(string); ok {
		return v
	}
	return ""
}

// profileSummary renders a user profile's freeform data as a compact
// JSON blob for prompt injection, or "" when the profile is empty.
func profileSummary(profile persistence.UserProfile) string {
	if len(profile.Data) == 0 {
		return ""
	}
	b, err := json.Marshal(profile.Data)
	if err != nil {
		return ""
	}
	return string(b)
}

// splitContextText separates a contextprovider.Provider's output into
// retrieved-context text and a plugin-error reason: a failed retrieval
// is folded into the text with contextprovider.ErrorPrefix, which
// Intellect must surface as a disclosure directive rather than inert
// context.
func splitContextText(text string) (retrievedContext, pluginErr string) {
	if text == contextprovider.NoDocumentsFound {
		return "", ""
	}
	if strings.HasPrefix(text, contextprovider.ErrorPrefix) && strings.HasSuffix(text, "]") {
		reason := strings.TrimSuffix(strings.TrimPrefix(text, contextprovider.ErrorPrefix), "]")
		return "", reason
	}
	return text, ""
}
