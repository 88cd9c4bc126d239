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
	"context"

	"github.com/kadirpekel/aegis/pkg/parsing"
	"github.com/kadirpekel/aegis/pkg/values"
)

// RunIntellect invokes provider and parses the result into an
// (answer, reflection) pair via pkg/parsing.
func RunIntellect(ctx context.Context, provider Provider, systemPrompt, userPrompt string) (answer, reflection string, err error) {
	res, err := provider.Invoke(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", "", err
	}
	answer, reflection = parsing.ParseIntellect(res.Text)
	return answer, reflection, nil
}

// RunWill invokes provider and parses the result into a (decision,
// reason) pair via pkg/parsing. Decision is always "approve" or
// "violation": parse failures fail closed inside ParseWill itself.
func RunWill(ctx context.Context, provider Provider, systemPrompt, userPrompt string) (decision, reason string, err error) {
	res, err := provider.Invoke(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", "", err
	}
	decision, reason = parsing.ParseWill(res.Text)
	return decision, reason, nil
}

// RunConscience invokes provider and parses the result into a ledger
// via pkg/parsing.
func RunConscience(ctx context.Context, provider Provider, systemPrompt, userPrompt string) ([]values.LedgerEntry, error) {
	res, err := provider.Invoke(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	return parsing.ParseConscience(res.Text), nil
}
