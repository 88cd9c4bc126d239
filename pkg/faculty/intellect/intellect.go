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

// Package intellect assembles the generation prompt and produces the
// draft answer and its reflection.
package intellect

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirpekel/aegis/pkg/llms"
	"github.com/kadirpekel/aegis/pkg/values"
)

// GenericFailureMessage is the user-visible answer when the provider
// call itself fails; internal error detail never reaches the caller.
const GenericFailureMessage = "Sorry, I could not generate an answer."

// Input bundles everything the system prompt assembly needs. Assembly
// is deterministic given the same Input, since the Will cache key
// downstream depends on reproducible prompt text.
type Input struct {
	Agent              *values.Agent
	UserName           string
	UserProfileSummary string
	ConversationSummary string
	SpiritFeedbackSeed string
	RetrievedContext   string
	PluginContext      string
	PluginContextError string
	CorrectiveDirective string // set only on a reflexion retry
}

// Result is the outcome of one Intellect call.
type Result struct {
	Answer       string
	Reflection   string
	ContextUsed  string
	Failed       bool
}

// Run assembles the system prompt from in, calls provider, and parses
// the response. On provider failure it returns a Result with
// Failed=true and Answer=GenericFailureMessage; it never returns an
// error, matching the orchestrator's "abort the turn on Intellect
// failure" contract.
func Run(ctx context.Context, provider llms.Provider, in Input, userPrompt string) Result {
	contextUsed := assembleContextUsed(in)
	system := assembleSystemPrompt(in, contextUsed)

	answer, reflection, err := llms.RunIntellect(ctx, provider, system, userPrompt)
	if err != nil {
		return Result{Answer: GenericFailureMessage, ContextUsed: contextUsed, Failed: true}
	}
	return Result{Answer: answer, Reflection: reflection, ContextUsed: contextUsed}
}

// assembleContextUsed concatenates plugin-supplied context ahead of
// retrieved context, prepending a disclosure directive when the plugin
// reported an error. This text is preserved verbatim for Conscience.
func assembleContextUsed(in Input) string {
	var parts []string
	if in.PluginContextError != "" {
		parts = append(parts, fmt.Sprintf(
			"[Context retrieval failed: %s. Disclose to the user that supporting information could not be retrieved.]",
			in.PluginContextError))
	}
	if in.PluginContext != "" {
		parts = append(parts, in.PluginContext)
	}
	if in.RetrievedContext != "" {
		parts = append(parts, in.RetrievedContext)
	}
	return strings.Join(parts, "\n\n")
}

func assembleSystemPrompt(in Input, contextUsed string) string {
	var b strings.Builder

	worldview := in.Agent.Worldview
	if contextUsed != "" {
		worldview = strings.ReplaceAll(worldview, "{{context}}", contextUsed)
	}
	b.WriteString(worldview)

	if in.Agent.Style != "" {
		b.WriteString("\n\nStyle: ")
		b.WriteString(in.Agent.Style)
	}

	if in.UserName != "" {
		fmt.Fprintf(&b, "\n\nYou are speaking with %s.", in.UserName)
	}
	if in.UserProfileSummary != "" {
		b.WriteString("\n\nWhat you know about this user:\n")
		b.WriteString(in.UserProfileSummary)
	}
	if in.ConversationSummary != "" {
		b.WriteString("\n\nConversation so far:\n")
		b.WriteString(in.ConversationSummary)
	}
	if in.SpiritFeedbackSeed != "" {
		b.WriteString("\n\nInternal alignment notes from the previous turn:\n")
		b.WriteString(in.SpiritFeedbackSeed)
	}
	if contextUsed != "" {
		b.WriteString("\n\nRetrieved context:\n")
		b.WriteString(contextUsed)
	}
	if in.CorrectiveDirective != "" {
		b.WriteString("\n\nYour previous draft was rejected for this reason, revise accordingly: ")
		b.WriteString(in.CorrectiveDirective)
	}

	b.WriteString("\n\nRespond with your answer, then a line \"---REFLECTION---\" followed by a JSON object: {\"reflection\": \"<one sentence on your confidence and reasoning>\"}.")

	return b.String()
}
