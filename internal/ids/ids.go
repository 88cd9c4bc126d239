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

// Package ids mints identifiers for messages, conversations and audit
// snapshots.
package ids

import "github.com/google/uuid"

// NewMessageID mints a unique identifier for a persisted user/assistant
// message pair, used as the poll key for GetAuditResult.
func NewMessageID() string {
	return "msg_" + uuid.NewString()
}

// NewConversationID mints a unique identifier for a new conversation.
func NewConversationID() string {
	return "conv_" + uuid.NewString()
}

// NewAuditSnapshotID mints a unique identifier for one PendingAudit
// submission, used only for log correlation (not persisted as a key).
func NewAuditSnapshotID() string {
	return "audit_" + uuid.NewString()
}
