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
	"errors"
	"fmt"

	"github.com/kadirpekel/aegis/pkg/persistence"
	"github.com/kadirpekel/aegis/pkg/values"
)

// AuditResultStatus is the coarse state GetAuditResult reports for a
// message's background audit (spec §6).
type AuditResultStatus string

const (
	AuditResultPending  AuditResultStatus = "pending"
	AuditResultComplete AuditResultStatus = "complete"
	AuditResultNotFound AuditResultStatus = "not_found"
)

// AuditResult is GetAuditResult's response shape. Ledger, SpiritScore,
// SpiritNote and SuggestedPrompts are only populated once Status is
// AuditResultComplete.
type AuditResult struct {
	Status           AuditResultStatus
	Ledger           []values.LedgerEntry
	SpiritScore      int
	SpiritNote       string
	SuggestedPrompts []string
}

// GetAuditResult is idempotent and safe to poll: repeated calls for the
// same messageID are side-effect free and return the same answer once
// the audit has completed. A completed result is served from the
// read-through cache on every call after the first.
func (c *Core) GetAuditResult(ctx context.Context, messageID string) (AuditResult, error) {
	if rec, ok := c.auditResultCache.Get(messageID); ok {
		return completedResult(rec), nil
	}

	msg, err := c.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return AuditResult{Status: AuditResultNotFound}, nil
		}
		return AuditResult{}, fmt.Errorf("orchestrator: get message %q: %w", messageID, err)
	}

	switch msg.AuditStatus {
	case persistence.AuditPending:
		return AuditResult{Status: AuditResultPending}, nil
	case persistence.AuditFailed:
		return AuditResult{Status: AuditResultPending}, nil
	}

	rec, err := c.store.GetAuditRecord(ctx, messageID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			// Status flipped to complete but the record hasn't landed
			// yet (a narrow window between the two persistence calls
			// in runAudit): report pending rather than erroring.
			return AuditResult{Status: AuditResultPending}, nil
		}
		return AuditResult{}, fmt.Errorf("orchestrator: get audit record %q: %w", messageID, err)
	}

	c.auditResultCache.Add(messageID, rec)
	return completedResult(rec), nil
}

func completedResult(rec persistence.AuditRecord) AuditResult {
	return AuditResult{
		Status:           AuditResultComplete,
		Ledger:           rec.Ledger,
		SpiritScore:      rec.SpiritScore,
		SpiritNote:       rec.Summary,
		SuggestedPrompts: rec.Suggestions,
	}
}
