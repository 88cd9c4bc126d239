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

// Package parsing extracts structured faculty output (answer/reflection,
// decision/reason, evaluation ledgers) from free-form model text. Every
// function here is pure and never panics: malformed input degrades to a
// documented salvage value rather than propagating an error.
package parsing

import (
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractFencedJSON returns the last fenced ```json ... ``` (or bare ```
// ... ```) block in s that looks like a JSON object, along with the text
// preceding the fence.
func extractFencedJSON(s string) (before, jsonBody string, ok bool) {
	matches := fencedBlockPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return "", "", false
	}
	last := matches[len(matches)-1]
	before = s[:last[0]]
	jsonBody = s[last[2]:last[3]]
	return before, jsonBody, true
}

// outermostObject finds the first '{' and its matching closing '}',
// scanning for balanced braces and skipping braces inside quoted strings.
func outermostObject(s string) (jsonBody string, start, end int, ok bool) {
	start = strings.IndexByte(s, '{')
	if start == -1 {
		return "", 0, 0, false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], start, i + 1, true
			}
		}
	}
	return "", 0, 0, false
}

// repairAndNormalize runs jsonrepair over a candidate JSON body, falling
// back to the original text unchanged if repair itself fails (the
// subsequent json.Unmarshal will then surface the real error).
func repairAndNormalize(candidate string) string {
	candidate = strings.TrimSpace(candidate)
	fixed, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return candidate
	}
	return fixed
}

// stripFences removes surrounding ``` or ```json fences from a whole
// string, for callers that expect the entire payload to be one JSON
// value rather than embedded inside prose.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
