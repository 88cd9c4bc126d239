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

// Package llms provides the LLM invocation surface shared by the
// Intellect, Will and Conscience faculties: a single free-form-text
// request/response shape, independent of which wire format the
// configured route actually speaks.
package llms

import (
	"context"
	"fmt"
)

// Result is the outcome of one Invoke call.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Provider generates free-form text from a system/user prompt pair.
// Every faculty (Intellect, Will, Conscience) talks to its configured
// route through this interface; none of them know which wire format
// backs it.
type Provider interface {
	// Invoke sends systemPrompt/userPrompt to the model and returns its
	// raw text response. Faculties parse that text themselves (see
	// pkg/parsing) rather than requiring the provider to structure it.
	Invoke(ctx context.Context, systemPrompt, userPrompt string) (Result, error)

	// Model returns the model identifier this provider was built for,
	// used for logging and metric labels.
	Model() string

	// ProviderName returns the wire-shape identifier ("openai", "anthropic",
	// "ollama").
	ProviderName() string
}

// ProviderError wraps a failure from a specific provider/model pair so
// callers can attribute errors metrics without string-matching.
type ProviderError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s(%s): %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
