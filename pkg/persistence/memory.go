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

package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kadirpekel/aegis/internal/ids"
)

// MemoryStore is a process-local Store, suitable for tests and for
// single-instance deployments that accept losing history on restart.
type MemoryStore struct {
	mu sync.Mutex

	conversations map[string]struct{ agentKey, userID string }
	summaries     map[string]string
	messages      map[string]Message
	audits        map[string]AuditRecord
	spirits       map[string]SpiritMemory
	spiritLocks   map[string]*sync.Mutex
	profiles      map[string]UserProfile
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]struct{ agentKey, userID string }),
		summaries:     make(map[string]string),
		messages:      make(map[string]Message),
		audits:        make(map[string]AuditRecord),
		spirits:       make(map[string]SpiritMemory),
		spiritLocks:   make(map[string]*sync.Mutex),
		profiles:      make(map[string]UserProfile),
	}
}

func (m *MemoryStore) CreateConversation(_ context.Context, agentKey, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := ids.NewConversationID()
	m.conversations[id] = struct{ agentKey, userID string }{agentKey, userID}
	return id, nil
}

func (m *MemoryStore) GetConversationSummary(_ context.Context, conversationID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaries[conversationID], nil
}

func (m *MemoryStore) SaveConversationSummary(_ context.Context, conversationID, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[conversationID] = summary
	return nil
}

func (m *MemoryStore) CountMessagesInConversation(_ context.Context, conversationID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) SaveMessage(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages[msg.ID] = msg
	return nil
}

func (m *MemoryStore) GetMessage(_ context.Context, messageID string) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[messageID]
	if !ok {
		return Message{}, ErrNotFound
	}
	return msg, nil
}

func (m *MemoryStore) SetAuditStatus(_ context.Context, messageID string, status AuditStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[messageID]
	if !ok {
		return ErrNotFound
	}
	msg.AuditStatus = status
	m.messages[messageID] = msg
	return nil
}

func (m *MemoryStore) CountMessagesForUserToday(_ context.Context, agentKey, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	now := time.Now()
	year, month, day := now.Date()
	startOfDay := time.Date(year, month, day, 0, 0, 0, 0, now.Location())

	for convID, conv := range m.conversations {
		if conv.agentKey != agentKey || conv.userID != userID {
			continue
		}
		for _, msg := range m.messages {
			if msg.ConversationID == convID && msg.CreatedAt.After(startOfDay) {
				count++
			}
		}
	}
	return count, nil
}

func (m *MemoryStore) ListRecentTurns(_ context.Context, agentKey string, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matches := make([]Message, 0)
	for _, msg := range m.messages {
		if msg.AgentKey == agentKey {
			matches = append(matches, msg)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (m *MemoryStore) SaveAuditRecord(_ context.Context, rec AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.audits[rec.MessageID] = rec
	return nil
}

func (m *MemoryStore) GetAuditRecord(_ context.Context, messageID string) (AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.audits[messageID]
	if !ok {
		return AuditRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) lockFor(agentKey string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.spiritLocks[agentKey]
	if !ok {
		lock = &sync.Mutex{}
		m.spiritLocks[agentKey] = lock
	}
	return lock
}

func (m *MemoryStore) LockSpiritMemory(ctx context.Context, agentKey string, valueKeys []string) (SpiritMemoryTxn, error) {
	lock := m.lockFor(agentKey)
	lock.Lock()

	m.mu.Lock()
	memory, ok := m.spirits[agentKey]
	m.mu.Unlock()
	if !ok {
		memory = SpiritMemory{
			AgentKey:  agentKey,
			Mu:        make([]float64, len(valueKeys)),
			ValueKeys: append([]string(nil), valueKeys...),
		}
	}

	return &memorySpiritTxn{store: m, lock: lock, memory: memory}, nil
}

type memorySpiritTxn struct {
	store    *MemoryStore
	lock     *sync.Mutex
	memory   SpiritMemory
	finished bool
}

func (t *memorySpiritTxn) Memory() SpiritMemory { return t.memory }

func (t *memorySpiritTxn) Commit(_ context.Context, updated SpiritMemory) error {
	if t.finished {
		return nil
	}
	t.finished = true
	defer t.lock.Unlock()

	t.store.mu.Lock()
	t.store.spirits[updated.AgentKey] = updated
	t.store.mu.Unlock()
	return nil
}

func (t *memorySpiritTxn) Rollback(_ context.Context) error {
	if t.finished {
		return nil
	}
	t.finished = true
	t.lock.Unlock()
	return nil
}

func (m *MemoryStore) LoadUserProfile(_ context.Context, userID string) (UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	profile, ok := m.profiles[userID]
	if !ok {
		return UserProfile{UserID: userID, Data: make(map[string]any)}, nil
	}
	return profile, nil
}

func (m *MemoryStore) SaveUserProfile(_ context.Context, profile UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.profiles[profile.UserID] = profile
	return nil
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
