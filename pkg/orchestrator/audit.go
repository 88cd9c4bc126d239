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
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/kadirpekel/aegis/pkg/faculty/conscience"
	"github.com/kadirpekel/aegis/pkg/faculty/spirit"
	"github.com/kadirpekel/aegis/pkg/ledger"
	"github.com/kadirpekel/aegis/pkg/llms"
	"github.com/kadirpekel/aegis/pkg/persistence"
	"github.com/kadirpekel/aegis/pkg/values"
)

// auditShutdownTimeout bounds how long Close waits for in-flight audits
// to drain before giving up.
const auditShutdownTimeout = 30 * time.Second

// recentMuTrendLimit is how far back FeedbackSeed's trend tags look.
const recentMuTrendLimit = 3

// PendingAudit is one turn's worth of state handed from ProcessPrompt
// to the background audit queue. It carries everything the audit needs
// so the background worker never has to re-resolve the instance.
type PendingAudit struct {
	MessageID      string
	ConversationID string
	UserID         string
	Agent          *values.Agent

	ConscienceProvider  llms.Provider
	SummarizerProvider  llms.Provider
	SuggestionsProvider llms.Provider

	UserPrompt  string
	Reflection  string
	ContextUsed string
	FinalOutput string
	TurnIndex   int

	WillDecision string
	WillReason   string

	MuPrev []float64
}

// auditQueue is a bounded, non-blocking submission channel drained by a
// fixed pool of long-running worker goroutines. Submissions past the
// queue's capacity are logged and dropped rather than retried (spec
// §9): a full queue means the system is already behind, and blocking
// the caller to wait for room would defeat the point of running audits
// in the background.
type auditQueue struct {
	core   *Core
	queue  chan PendingAudit
	wg     conc.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
}

func newAuditQueue(core *Core, queueSize, workers int, logger *slog.Logger) *auditQueue {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}

	q := &auditQueue{
		core:   core,
		queue:  make(chan PendingAudit, queueSize),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		q.wg.Go(q.drain)
	}
	return q
}

func (q *auditQueue) drain() {
	for pa := range q.queue {
		q.core.runAudit(context.Background(), pa)
	}
}

// submit enqueues an audit without blocking the caller. A full queue
// drops the audit: its message stays in audit_status=pending forever,
// matching the "no auto-retry" behavior a failed commit would also
// produce.
func (q *auditQueue) submit(pa PendingAudit) {
	select {
	case q.queue <- pa:
	default:
		q.logger.Warn("orchestrator: audit queue full, dropping audit", "messageId", pa.MessageID, "agent", pa.Agent.Key)
		if m := q.core.obs.Metrics(); m != nil {
			m.RecordAuditProcessed("dropped", 0)
		}
	}
	if m := q.core.obs.Metrics(); m != nil {
		m.SetAuditQueueDepth(len(q.queue))
	}
}

// shutdown closes the queue and waits for in-flight audits to finish,
// up to auditShutdownTimeout.
func (q *auditQueue) shutdown() {
	q.closeOnce.Do(func() {
		close(q.queue)
		done := make(chan struct{})
		go func() {
			q.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(auditShutdownTimeout):
			q.logger.Warn("orchestrator: audit queue shutdown timed out, workers may still be draining")
		}
	})
}

// runAudit executes the background audit (spec §4.11): lock the
// agent's Spirit memory, run Conscience tolerantly, update Spirit,
// build the feedback seed, optionally fetch suggestions, commit the new
// Spirit memory (mu, feedback seed, turn), save the audit record, mark
// the message complete, and append the ledger line. A failure up to and
// including marking the message complete leaves the message pending
// forever: there is no auto-retry. The commit is not undone when a later
// step fails, and a failed ledger append is only logged.
func (c *Core) runAudit(ctx context.Context, pa PendingAudit) {
	start := time.Now()
	outcome := "completed"
	defer func() {
		if m := c.obs.Metrics(); m != nil {
			m.RecordAuditProcessed(outcome, time.Since(start))
		}
	}()

	txn, err := c.store.LockSpiritMemory(ctx, pa.Agent.Key, valueKeys(pa.Agent))
	if err != nil {
		c.logger.Error("orchestrator: lock spirit memory for audit", "messageId", pa.MessageID, "agent", pa.Agent.Key, "error", err)
		outcome = "failed"
		return
	}

	memory := txn.Memory()
	if len(memory.Mu) != len(pa.Agent.Values) {
		// Persisted mu disagrees with the current agent's value count
		// (e.g. the persona's values changed since the last audit):
		// reset rather than index out of range or silently misalign.
		memory.Mu = make([]float64, len(pa.Agent.Values))
	}

	conscienceCtx, cancelConscience := context.WithTimeout(ctx, conscienceTimeout)
	ledgerEntries := conscience.Run(conscienceCtx, pa.ConscienceProvider, conscience.Input{
		Agent:       pa.Agent,
		UserPrompt:  pa.UserPrompt,
		Reflection:  pa.Reflection,
		ContextUsed: pa.ContextUsed,
		FinalOutput: pa.FinalOutput,
	})
	cancelConscience()
	if len(pa.UserPrompt) < conscience.ShortInteractionThreshold && len(pa.FinalOutput) < conscience.ShortInteractionThreshold {
		if m := c.obs.Metrics(); m != nil {
			m.RecordConscienceSkip()
		}
	}

	result := spirit.Compute(pa.Agent, ledgerEntries, memory.Mu, c.spiritBeta)

	var recentMu [][]float64
	if c.ledgerWriter != nil {
		recentMu, _ = c.ledgerWriter.RecentMu(pa.Agent.Key, recentMuTrendLimit)
	}
	feedbackSeed := spirit.FeedbackSeed(result.MuNew, valueKeys(pa.Agent), result.Drift, recentMu)

	suggestions := c.runSuggestions(ctx, pa)

	newTurn := memory.Turn + 1
	if err := txn.Commit(ctx, persistence.SpiritMemory{
		AgentKey:     pa.Agent.Key,
		Mu:           result.MuNew,
		ValueKeys:    valueKeys(pa.Agent),
		FeedbackSeed: feedbackSeed,
		Turn:         newTurn,
	}); err != nil {
		c.logger.Error("orchestrator: commit spirit memory", "messageId", pa.MessageID, "agent", pa.Agent.Key, "error", err)
		outcome = "failed"
		return
	}

	if err := c.store.SaveAuditRecord(ctx, persistence.AuditRecord{
		MessageID:   pa.MessageID,
		Ledger:      ledgerEntries,
		Summary:     result.Note,
		SpiritScore: result.SpiritScore,
		Suggestions: suggestions,
		Mu:          result.MuNew,
	}); err != nil {
		c.logger.Error("orchestrator: save audit record, message stays pending", "messageId", pa.MessageID, "error", err)
		outcome = "failed"
		return
	}

	if err := c.store.SetAuditStatus(ctx, pa.MessageID, persistence.AuditCompleted); err != nil {
		c.logger.Error("orchestrator: set audit status, message stays pending", "messageId", pa.MessageID, "error", err)
		outcome = "failed"
		return
	}

	if c.ledgerWriter != nil {
		if err := c.ledgerWriter.Append(pa.Agent.Key, ledger.TurnRecord{
			Timestamp:           time.Now(),
			TurnIndex:           newTurn,
			UserPrompt:          pa.UserPrompt,
			IntellectDraft:      pa.FinalOutput,
			IntellectReflection: pa.Reflection,
			RetrievedContext:    pa.ContextUsed,
			WillDecision:        pa.WillDecision,
			WillReason:          pa.WillReason,
			ConscienceLedger:    ledgerEntries,
			SpiritScore:         result.SpiritScore,
			SpiritNote:          result.Note,
			Drift:               result.Drift,
			Pt:                  result.Pt,
			MuAfter:             result.MuNew,
			SpiritFeedback:      feedbackSeed,
			FinalOutput:         pa.FinalOutput,
			PolicyID:            pa.Agent.PolicyID,
			UserID:              pa.UserID,
		}); err != nil {
			c.logger.Error("orchestrator: append ledger record", "messageId", pa.MessageID, "error", err)
		}
	}

	if m := c.obs.Metrics(); m != nil {
		m.RecordSpiritUpdate(result.SpiritScore, driftOrZero(result.Drift))
	}

	c.runSummarizer(pa)
}

// runSuggestions asks the suggestions route for two or three natural
// follow-up prompts. A missing route or a failed call yields no
// suggestions rather than aborting the audit.
func (c *Core) runSuggestions(ctx context.Context, pa PendingAudit) []string {
	if pa.SuggestionsProvider == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, suggestionsTimeout)
	defer cancel()

	system := "Suggest two or three natural follow-up prompts the user might ask next, one per line. No numbering, no extra commentary."
	body := fmt.Sprintf("User prompt:\n%s\n\nFinal output:\n%s\n", pa.UserPrompt, pa.FinalOutput)

	res, err := pa.SuggestionsProvider.Invoke(callCtx, system, body)
	if err != nil {
		c.logger.Warn("orchestrator: suggestions call failed, omitting follow-ups", "messageId", pa.MessageID, "error", err)
		return nil
	}
	return parseSuggestionLines(res.Text)
}

func parseSuggestionLines(text string) []string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(l), "-*0123456789. "))
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// runSummarizer is the separate fire-and-forget task described in spec
// §4.11: it updates the conversation's running summary and, when
// enabled, extracts durable user-profile facts. Both steps log and
// ignore their own failures; neither can affect the audit's own
// completion, since by the time it runs the audit has already
// committed.
func (c *Core) runSummarizer(pa PendingAudit) {
	if pa.SummarizerProvider == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), intellectTimeout)
		defer cancel()

		prior, err := c.store.GetConversationSummary(ctx, pa.ConversationID)
		if err != nil {
			c.logger.Warn("orchestrator: load prior summary for summarizer task", "conversationId", pa.ConversationID, "error", err)
			return
		}

		system := "Summarize this conversation so far in two or three sentences, folding in the prior summary where relevant."
		body := fmt.Sprintf("Prior summary:\n%s\n\nLatest turn:\nUser: %s\nAssistant: %s\n", prior, pa.UserPrompt, pa.FinalOutput)

		res, err := pa.SummarizerProvider.Invoke(ctx, system, body)
		if err != nil {
			c.logger.Warn("orchestrator: summarizer call failed, conversation summary unchanged", "conversationId", pa.ConversationID, "error", err)
			return
		}

		if err := c.store.SaveConversationSummary(ctx, pa.ConversationID, strings.TrimSpace(res.Text)); err != nil {
			c.logger.Warn("orchestrator: save conversation summary", "conversationId", pa.ConversationID, "error", err)
			return
		}

		if c.enableProfileExtraction {
			c.extractUserProfile(ctx, pa)
		}
	}()
}

// extractUserProfile asks the summarizer route for any durable facts
// about the user revealed in this turn and merges them into the user's
// profile. A malformed or empty response is treated as "nothing to
// extract", not an error.
func (c *Core) extractUserProfile(ctx context.Context, pa PendingAudit) {
	system := "Extract any durable facts about the user from this turn as a JSON object of short key/value pairs. Respond with {} if nothing durable was said."
	body := fmt.Sprintf("User: %s\nAssistant: %s\n", pa.UserPrompt, pa.FinalOutput)

	res, err := pa.SummarizerProvider.Invoke(ctx, system, body)
	if err != nil {
		c.logger.Warn("orchestrator: profile extraction call failed", "userId", pa.UserID, "error", err)
		return
	}

	var facts map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(res.Text)), &facts); err != nil || len(facts) == 0 {
		return
	}

	profile, err := c.store.LoadUserProfile(ctx, pa.UserID)
	if err != nil {
		c.logger.Warn("orchestrator: load user profile for extraction", "userId", pa.UserID, "error", err)
		return
	}
	if profile.Data == nil {
		profile.Data = make(map[string]any)
	}
	for k, v := range facts {
		profile.Data[k] = v
	}
	profile.UserID = pa.UserID

	if err := c.store.SaveUserProfile(ctx, profile); err != nil {
		c.logger.Warn("orchestrator: save user profile", "userId", pa.UserID, "error", err)
	}
}

func driftOrZero(d *float64) float64 {
	if d == nil {
		return 0
	}
	return *d
}
