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

package parsing

import (
	"encoding/json"
	"strings"
)

// ReflectionDelimiter separates the answer from the reflection payload in
// the canonical Intellect output shape.
const ReflectionDelimiter = "---REFLECTION---"

// SalvageReflectionNote is emitted when no reflection structure can be
// recovered from the model's raw output.
const SalvageReflectionNote = "reflection unavailable: could not be parsed from model output"

type reflectionPayload struct {
	Reflection string `json:"reflection"`
}

// AssembleIntellect serializes an (answer, reflection) pair into the
// canonical delimiter shape, the inverse of ParseIntellect for the
// round-trip law in spec §8.
func AssembleIntellect(answer, reflection string) string {
	payload, _ := json.Marshal(reflectionPayload{Reflection: reflection})
	return answer + ReflectionDelimiter + string(payload)
}

// ParseIntellect extracts (answer, reflection) from raw Intellect output.
// It never fails: malformed input falls back to treating the whole text
// as the answer with a sentinel reflection note.
func ParseIntellect(raw string) (answer, reflection string) {
	if a, r, ok := parseDelimited(raw); ok {
		return a, r
	}
	if a, r, ok := parseFencedOrInlineReflection(raw); ok {
		return a, r
	}
	if a, r, ok := parseReverseReflectionKey(raw); ok {
		return a, r
	}
	return strings.TrimSpace(raw), SalvageReflectionNote
}

// parseDelimited handles shape (a): "<answer>---REFLECTION---{json}".
func parseDelimited(raw string) (answer, reflection string, ok bool) {
	idx := strings.Index(raw, ReflectionDelimiter)
	if idx == -1 {
		return "", "", false
	}
	answer = strings.TrimSpace(raw[:idx])
	tail := raw[idx+len(ReflectionDelimiter):]

	if body, _, _, found := outermostObject(tail); found {
		var payload reflectionPayload
		if json.Unmarshal([]byte(repairAndNormalize(body)), &payload) == nil && payload.Reflection != "" {
			return answer, payload.Reflection, true
		}
	}
	// Delimiter present but no parsable JSON followed it: treat the
	// remaining tail itself as the reflection text.
	tail = strings.TrimSpace(tail)
	if tail != "" {
		return answer, tail, true
	}
	return answer, "", true
}

// parseFencedOrInlineReflection handles shape (b): free text followed by
// a JSON object containing a "reflection" key, optionally fenced.
func parseFencedOrInlineReflection(raw string) (answer, reflection string, ok bool) {
	if before, body, found := extractFencedJSON(raw); found {
		var payload reflectionPayload
		if json.Unmarshal([]byte(repairAndNormalize(body)), &payload) == nil && payload.Reflection != "" {
			return strings.TrimSpace(before), payload.Reflection, true
		}
	}

	if body, start, _, found := outermostObject(raw); found {
		var payload reflectionPayload
		if json.Unmarshal([]byte(repairAndNormalize(body)), &payload) == nil && payload.Reflection != "" {
			return strings.TrimSpace(raw[:start]), payload.Reflection, true
		}
	}

	return "", "", false
}

// parseReverseReflectionKey handles the degraded case where the JSON
// around the "reflection" key is too damaged for a full object parse:
// locate the key from the end of the text and lift its string value.
func parseReverseReflectionKey(raw string) (answer, reflection string, ok bool) {
	idx := strings.LastIndex(strings.ToLower(raw), `"reflection"`)
	if idx == -1 {
		return "", "", false
	}

	rest := raw[idx+len(`"reflection"`):]
	colon := strings.IndexByte(rest, ':')
	if colon == -1 {
		return "", "", false
	}
	rest = strings.TrimLeft(rest[colon+1:], " \t\n")
	rest = strings.TrimPrefix(rest, `"`)

	end := strings.IndexByte(rest, '"')
	if end == -1 {
		end = len(rest)
	}
	value := strings.TrimSpace(rest[:end])
	if value == "" {
		return "", "", false
	}

	// The answer is whatever text preceded the enclosing object/delimiter.
	prefix := raw[:idx]
	if braceIdx := strings.LastIndexByte(prefix, '{'); braceIdx != -1 {
		prefix = prefix[:braceIdx]
	}
	return strings.TrimSpace(prefix), value, true
}
