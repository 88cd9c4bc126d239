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

// Package contextprovider supplies the optional RAG-style context block
// that Intellect's prompt assembly folds in ahead of the user's turn.
package contextprovider

import "context"

// NoDocumentsFound is returned verbatim as context text when a provider
// runs successfully but finds nothing relevant.
const NoDocumentsFound = "[NO DOCUMENTS FOUND]"

// ErrorPrefix prefixes the context text when a provider fails; the
// orchestrator treats this as a non-fatal degradation, not a turn error.
const ErrorPrefix = "[RAG ERROR: "

// Provider retrieves and formats context for a query. Implementations
// must never return an error from GetContext: failures are folded into
// the returned text via ErrorPrefix so a flaky retrieval backend never
// aborts a turn.
type Provider interface {
	GetContext(ctx context.Context, query, formatTemplate string) string
}

// Disabled is a Provider that always reports no documents, used when
// ContextProviderConfig.Enabled is false.
type Disabled struct{}

// NewDisabled returns a Provider that never retrieves anything.
func NewDisabled() Disabled { return Disabled{} }

// GetContext implements Provider.
func (Disabled) GetContext(_ context.Context, _, _ string) string {
	return NoDocumentsFound
}

// FormatError wraps a retrieval failure in the sentinel error shape.
func FormatError(reason string) string {
	return ErrorPrefix + reason + "]"
}
