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

// Package persistence defines the narrow storage port the orchestrator
// and faculties run against, plus reference in-memory and SQLite
// implementations.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/kadirpekel/aegis/pkg/values"
)

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("persistence: not found")

// AuditStatus tracks whether a turn's background audit has completed.
type AuditStatus string

const (
	AuditPending   AuditStatus = "pending"
	AuditCompleted AuditStatus = "completed"
	AuditFailed    AuditStatus = "failed"
)

// Message is one stored turn (user prompt + final output) pending or
// having completed its background audit.
type Message struct {
	ID             string
	ConversationID string
	AgentKey       string
	UserPrompt     string
	FinalOutput    string
	TurnIndex      int
	AuditStatus    AuditStatus
	CreatedAt      time.Time
}

// AuditRecord is the persisted result of a completed background audit
// for one message.
type AuditRecord struct {
	MessageID   string
	Ledger      []values.LedgerEntry
	Summary     string
	SpiritScore int
	Suggestions []string
	Mu          []float64
	CreatedAt   time.Time
}

// SpiritMemory is one agent's EMA value-alignment vector, plus the
// feedback seed text derived from it at the end of the last completed
// audit, carried forward as the next turn's Intellect input.
type SpiritMemory struct {
	AgentKey     string
	Mu           []float64
	ValueKeys    []string
	FeedbackSeed string
	Turn         int
	UpdatedAt    time.Time
}

// UserProfile is freeform per-user state accumulated across turns
// (preferences, running summaries) keyed by user ID.
type UserProfile struct {
	UserID    string
	Data      map[string]any
	UpdatedAt time.Time
}

// SpiritMemoryTxn is a load-and-lock handle on one agent's Spirit
// memory: the holder has exclusive write access until Commit or
// Rollback is called.
type SpiritMemoryTxn interface {
	Memory() SpiritMemory
	Commit(ctx context.Context, updated SpiritMemory) error
	Rollback(ctx context.Context) error
}

// Store is the persistence port. All methods are safe for concurrent
// use except where a returned transaction documents otherwise.
type Store interface {
	CreateConversation(ctx context.Context, agentKey, userID string) (conversationID string, err error)
	GetConversationSummary(ctx context.Context, conversationID string) (string, error)
	SaveConversationSummary(ctx context.Context, conversationID, summary string) error
	CountMessagesInConversation(ctx context.Context, conversationID string) (int, error)

	SaveMessage(ctx context.Context, msg Message) error
	GetMessage(ctx context.Context, messageID string) (Message, error)
	SetAuditStatus(ctx context.Context, messageID string, status AuditStatus) error
	CountMessagesForUserToday(ctx context.Context, agentKey, userID string) (int, error)
	ListRecentTurns(ctx context.Context, agentKey string, limit int) ([]Message, error)

	SaveAuditRecord(ctx context.Context, rec AuditRecord) error
	GetAuditRecord(ctx context.Context, messageID string) (AuditRecord, error)

	// LockSpiritMemory returns a transaction holding exclusive write
	// access to agentKey's Spirit memory, blocking until any concurrent
	// holder commits or rolls back. Callers must always Commit or
	// Rollback to release the lock.
	LockSpiritMemory(ctx context.Context, agentKey string, valueKeys []string) (SpiritMemoryTxn, error)

	LoadUserProfile(ctx context.Context, userID string) (UserProfile, error)
	SaveUserProfile(ctx context.Context, profile UserProfile) error

	Close() error
}
