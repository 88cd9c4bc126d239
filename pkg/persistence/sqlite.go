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
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kadirpekel/aegis/internal/ids"
)

const createSchemaSQL = `
CREATE TABLE IF NOT EXISTS conversations (
	id VARCHAR(64) PRIMARY KEY,
	agent_key VARCHAR(255) NOT NULL,
	user_id VARCHAR(255) NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id VARCHAR(64) PRIMARY KEY,
	conversation_id VARCHAR(64) NOT NULL,
	agent_key VARCHAR(255) NOT NULL,
	user_id VARCHAR(255) NOT NULL,
	user_prompt TEXT NOT NULL,
	final_output TEXT NOT NULL,
	turn_index INTEGER NOT NULL,
	audit_status VARCHAR(32) NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_agent_created ON messages(agent_key, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS audit_records (
	message_id VARCHAR(64) PRIMARY KEY,
	ledger_json TEXT NOT NULL,
	summary TEXT NOT NULL,
	spirit_score INTEGER NOT NULL DEFAULT 0,
	suggestions_json TEXT NOT NULL,
	mu_json TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS spirit_memory (
	agent_key VARCHAR(255) PRIMARY KEY,
	mu_json TEXT NOT NULL,
	value_keys_json TEXT NOT NULL,
	feedback_seed TEXT NOT NULL DEFAULT '',
	turn INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS user_profiles (
	user_id VARCHAR(255) PRIMARY KEY,
	data_json TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// SQLiteStore is a modernc.org/sqlite-backed Store. Spirit memory locks
// are serialized in-process via per-agent mutexes: sqlite's own
// single-writer semantics make cross-process races impossible, and the
// in-process mutex additionally orders concurrent background audits
// within one instance.
type SQLiteStore struct {
	db *sql.DB

	mu          sync.Mutex
	spiritLocks map[string]*sync.Mutex
}

// OpenSQLiteStore opens (creating if necessary) a SQLite database at
// dsn and ensures its schema exists.
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	s := &SQLiteStore{db: db, spiritLocks: make(map[string]*sync.Mutex)}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, agentKey, userID string) (string, error) {
	id := ids.NewConversationID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, agent_key, user_id, summary, created_at) VALUES (?, ?, ?, '', ?)`,
		id, agentKey, userID, time.Now())
	if err != nil {
		return "", fmt.Errorf("persistence: create conversation: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) GetConversationSummary(ctx context.Context, conversationID string) (string, error) {
	var summary string
	err := s.db.QueryRowContext(ctx, `SELECT summary FROM conversations WHERE id = ?`, conversationID).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("persistence: get conversation summary: %w", err)
	}
	return summary, nil
}

func (s *SQLiteStore) SaveConversationSummary(ctx context.Context, conversationID, summary string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET summary = ? WHERE id = ?`, summary, conversationID)
	if err != nil {
		return fmt.Errorf("persistence: save conversation summary: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountMessagesInConversation(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("persistence: count messages in conversation: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) SaveMessage(ctx context.Context, msg Message) error {
	conv, err := s.conversationOwner(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, agent_key, user_id, user_prompt, final_output, turn_index, audit_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET final_output=excluded.final_output, audit_status=excluded.audit_status`,
		msg.ID, msg.ConversationID, msg.AgentKey, conv, msg.UserPrompt, msg.FinalOutput, msg.TurnIndex, string(msg.AuditStatus), msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("persistence: save message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) conversationOwner(ctx context.Context, conversationID string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM conversations WHERE id = ?`, conversationID).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("persistence: lookup conversation: %w", err)
	}
	return userID, nil
}

func (s *SQLiteStore) GetMessage(ctx context.Context, messageID string) (Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, agent_key, user_prompt, final_output, turn_index, audit_status, created_at
		 FROM messages WHERE id = ?`, messageID)

	var msg Message
	var status string
	if err := row.Scan(&msg.ID, &msg.ConversationID, &msg.AgentKey, &msg.UserPrompt, &msg.FinalOutput, &msg.TurnIndex, &status, &msg.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Message{}, ErrNotFound
		}
		return Message{}, fmt.Errorf("persistence: get message: %w", err)
	}
	msg.AuditStatus = AuditStatus(status)
	return msg, nil
}

func (s *SQLiteStore) SetAuditStatus(ctx context.Context, messageID string, status AuditStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET audit_status = ? WHERE id = ?`, string(status), messageID)
	if err != nil {
		return fmt.Errorf("persistence: set audit status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CountMessagesForUserToday(ctx context.Context, agentKey, userID string) (int, error) {
	now := time.Now()
	year, month, day := now.Date()
	startOfDay := time.Date(year, month, day, 0, 0, 0, 0, now.Location())

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE m.agent_key = ? AND c.user_id = ? AND m.created_at >= ?`,
		agentKey, userID, startOfDay).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("persistence: count today's messages: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) ListRecentTurns(ctx context.Context, agentKey string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, agent_key, user_prompt, final_output, turn_index, audit_status, created_at
		 FROM messages WHERE agent_key = ? ORDER BY created_at DESC LIMIT ?`, agentKey, limit)
	if err != nil {
		return nil, fmt.Errorf("persistence: list recent turns: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var msg Message
		var status string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.AgentKey, &msg.UserPrompt, &msg.FinalOutput, &msg.TurnIndex, &status, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("persistence: scan turn: %w", err)
		}
		msg.AuditStatus = AuditStatus(status)
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveAuditRecord(ctx context.Context, rec AuditRecord) error {
	ledgerJSON, err := json.Marshal(rec.Ledger)
	if err != nil {
		return fmt.Errorf("persistence: marshal ledger: %w", err)
	}
	suggestionsJSON, err := json.Marshal(rec.Suggestions)
	if err != nil {
		return fmt.Errorf("persistence: marshal suggestions: %w", err)
	}
	muJSON, err := json.Marshal(rec.Mu)
	if err != nil {
		return fmt.Errorf("persistence: marshal mu: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_records (message_id, ledger_json, summary, spirit_score, suggestions_json, mu_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(message_id) DO UPDATE SET ledger_json=excluded.ledger_json, summary=excluded.summary,
			spirit_score=excluded.spirit_score, suggestions_json=excluded.suggestions_json, mu_json=excluded.mu_json`,
		rec.MessageID, string(ledgerJSON), rec.Summary, rec.SpiritScore, string(suggestionsJSON), string(muJSON), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("persistence: save audit record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAuditRecord(ctx context.Context, messageID string) (AuditRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT message_id, ledger_json, summary, spirit_score, suggestions_json, mu_json, created_at
		 FROM audit_records WHERE message_id = ?`, messageID)

	var rec AuditRecord
	var ledgerJSON, suggestionsJSON, muJSON string
	if err := row.Scan(&rec.MessageID, &ledgerJSON, &rec.Summary, &rec.SpiritScore, &suggestionsJSON, &muJSON, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return AuditRecord{}, ErrNotFound
		}
		return AuditRecord{}, fmt.Errorf("persistence: get audit record: %w", err)
	}
	if err := json.Unmarshal([]byte(ledgerJSON), &rec.Ledger); err != nil {
		return AuditRecord{}, fmt.Errorf("persistence: unmarshal ledger: %w", err)
	}
	if err := json.Unmarshal([]byte(suggestionsJSON), &rec.Suggestions); err != nil {
		return AuditRecord{}, fmt.Errorf("persistence: unmarshal suggestions: %w", err)
	}
	if err := json.Unmarshal([]byte(muJSON), &rec.Mu); err != nil {
		return AuditRecord{}, fmt.Errorf("persistence: unmarshal mu: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) lockFor(agentKey string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.spiritLocks[agentKey]
	if !ok {
		lock = &sync.Mutex{}
		s.spiritLocks[agentKey] = lock
	}
	return lock
}

func (s *SQLiteStore) LockSpiritMemory(ctx context.Context, agentKey string, valueKeys []string) (SpiritMemoryTxn, error) {
	lock := s.lockFor(agentKey)
	lock.Lock()

	memory, err := s.loadSpiritMemory(ctx, agentKey, valueKeys)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	return &sqliteSpiritTxn{store: s, lock: lock, memory: memory}, nil
}

func (s *SQLiteStore) loadSpiritMemory(ctx context.Context, agentKey string, valueKeys []string) (SpiritMemory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT mu_json, value_keys_json, feedback_seed, turn, updated_at FROM spirit_memory WHERE agent_key = ?`, agentKey)

	var muJSON, keysJSON, feedbackSeed string
	var turn int
	var updatedAt time.Time
	err := row.Scan(&muJSON, &keysJSON, &feedbackSeed, &turn, &updatedAt)
	if err == sql.ErrNoRows {
		return SpiritMemory{
			AgentKey:  agentKey,
			Mu:        make([]float64, len(valueKeys)),
			ValueKeys: append([]string(nil), valueKeys...),
		}, nil
	}
	if err != nil {
		return SpiritMemory{}, fmt.Errorf("persistence: load spirit memory: %w", err)
	}

	memory := SpiritMemory{AgentKey: agentKey, FeedbackSeed: feedbackSeed, Turn: turn, UpdatedAt: updatedAt}
	if err := json.Unmarshal([]byte(muJSON), &memory.Mu); err != nil {
		return SpiritMemory{}, fmt.Errorf("persistence: unmarshal mu: %w", err)
	}
	if err := json.Unmarshal([]byte(keysJSON), &memory.ValueKeys); err != nil {
		return SpiritMemory{}, fmt.Errorf("persistence: unmarshal value keys: %w", err)
	}
	return memory, nil
}

type sqliteSpiritTxn struct {
	store    *SQLiteStore
	lock     *sync.Mutex
	memory   SpiritMemory
	finished bool
}

func (t *sqliteSpiritTxn) Memory() SpiritMemory { return t.memory }

func (t *sqliteSpiritTxn) Commit(ctx context.Context, updated SpiritMemory) error {
	if t.finished {
		return nil
	}
	t.finished = true
	defer t.lock.Unlock()

	muJSON, err := json.Marshal(updated.Mu)
	if err != nil {
		return fmt.Errorf("persistence: marshal mu: %w", err)
	}
	keysJSON, err := json.Marshal(updated.ValueKeys)
	if err != nil {
		return fmt.Errorf("persistence: marshal value keys: %w", err)
	}

	_, err = t.store.db.ExecContext(ctx,
		`INSERT INTO spirit_memory (agent_key, mu_json, value_keys_json, feedback_seed, turn, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(agent_key) DO UPDATE SET mu_json=excluded.mu_json, value_keys_json=excluded.value_keys_json, feedback_seed=excluded.feedback_seed, turn=excluded.turn, updated_at=excluded.updated_at`,
		updated.AgentKey, string(muJSON), string(keysJSON), updated.FeedbackSeed, updated.Turn, time.Now())
	if err != nil {
		return fmt.Errorf("persistence: commit spirit memory: %w", err)
	}
	return nil
}

func (t *sqliteSpiritTxn) Rollback(_ context.Context) error {
	if t.finished {
		return nil
	}
	t.finished = true
	t.lock.Unlock()
	return nil
}

func (s *SQLiteStore) LoadUserProfile(ctx context.Context, userID string) (UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data_json, updated_at FROM user_profiles WHERE user_id = ?`, userID)

	var dataJSON string
	var updatedAt time.Time
	err := row.Scan(&dataJSON, &updatedAt)
	if err == sql.ErrNoRows {
		return UserProfile{UserID: userID, Data: make(map[string]any)}, nil
	}
	if err != nil {
		return UserProfile{}, fmt.Errorf("persistence: load user profile: %w", err)
	}

	profile := UserProfile{UserID: userID, UpdatedAt: updatedAt}
	if err := json.Unmarshal([]byte(dataJSON), &profile.Data); err != nil {
		return UserProfile{}, fmt.Errorf("persistence: unmarshal profile: %w", err)
	}
	return profile, nil
}

func (s *SQLiteStore) SaveUserProfile(ctx context.Context, profile UserProfile) error {
	dataJSON, err := json.Marshal(profile.Data)
	if err != nil {
		return fmt.Errorf("persistence: marshal profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, data_json, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET data_json=excluded.data_json, updated_at=excluded.updated_at`,
		profile.UserID, string(dataJSON), time.Now())
	if err != nil {
		return fmt.Errorf("persistence: save user profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ Store = (*SQLiteStore)(nil)
