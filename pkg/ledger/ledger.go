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

// Package ledger writes and reads the append-only, per-agent-per-day
// JSONL audit log: one line per completed turn.
package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kadirpekel/aegis/pkg/values"
)

// TurnRecord is one completed-turn log line. Entries are append-only
// and ordered by write-time, not by turnIndex.
type TurnRecord struct {
	Timestamp           time.Time            `json:"timestamp"`
	TurnIndex           int                  `json:"turnIndex"`
	UserPrompt          string               `json:"userPrompt"`
	IntellectDraft      string               `json:"intellectDraft"`
	IntellectReflection string               `json:"intellectReflection"`
	RetrievedContext    string               `json:"retrievedContext"`
	WillDecision        string               `json:"willDecision"`
	WillReason          string               `json:"willReason"`
	ConscienceLedger    []values.LedgerEntry `json:"conscienceLedger"`
	SpiritScore         int                  `json:"spiritScore"`
	SpiritNote          string               `json:"spiritNote"`
	Drift               *float64             `json:"drift"`
	Pt                  []float64            `json:"pt"`
	MuAfter             []float64            `json:"muAfter"`
	SpiritFeedback      string               `json:"spiritFeedback"`
	MemorySummary       string               `json:"memorySummary"`
	FinalOutput         string               `json:"finalOutput"`
	PolicyID            string               `json:"policyId,omitempty"`
	OrgID               string               `json:"orgId,omitempty"`
	UserID              string               `json:"userId"`
}

// Writer appends TurnRecords to one JSONL file per agent per day under
// dir, opening a fresh file as the date rolls over.
type Writer struct {
	dir string

	mu          sync.Mutex
	openFiles   map[string]*os.File
}

// NewWriter returns a Writer rooted at dir, creating it if necessary.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create log dir: %w", err)
	}
	return &Writer{dir: dir, openFiles: make(map[string]*os.File)}, nil
}

// Append writes one record for agentKey, routed to today's file.
func (w *Writer) Append(agentKey string, rec TurnRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	path := w.pathFor(agentKey, rec.Timestamp)
	f, ok := w.openFiles[path]
	if !ok {
		var err error
		f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("ledger: open log file: %w", err)
		}
		w.openFiles[path] = f
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger: marshal record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("ledger: write record: %w", err)
	}
	return nil
}

func (w *Writer) pathFor(agentKey string, ts time.Time) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl", values.NormalizeName(agentKey), ts.Format("2006-01-02")))
}

// RecentMu returns up to limit of the most recent MuAfter vectors
// logged for agentKey today, oldest first, for Spirit's trend tags.
// A missing log file (no turns logged yet today) is not an error: it
// simply means no trend history exists yet.
func (w *Writer) RecentMu(agentKey string, limit int) ([][]float64, error) {
	path := w.pathFor(agentKey, time.Now())
	records, err := ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	history := make([][]float64, len(records))
	for i, rec := range records {
		history[i] = rec.MuAfter
	}
	return history, nil
}

// Close releases all open file handles.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for path, f := range w.openFiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(w.openFiles, path)
	}
	return firstErr
}

// ReadFile reads every TurnRecord from one JSONL log file, in
// write-time order (the order lines appear in the file).
func ReadFile(path string) ([]TurnRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open log file: %w", err)
	}
	defer f.Close()

	var records []TurnRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec TurnRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("ledger: unmarshal record: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scan log file: %w", err)
	}
	return records, nil
}
