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

	"github.com/kadirpekel/aegis/pkg/values"
)

// ErrorLedgerValue names the single ledger entry synthesized when
// Conscience output could not be parsed at all.
const ErrorLedgerValue = "_parse_error"

// allowedScores is the rubric-fixed set of Conscience scores; any raw
// numeric score is clamped to its nearest member.
var allowedScores = []float64{-1, -0.5, 0, 0.5, 1}

type rawLedgerEntry struct {
	Value      string  `json:"value"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type rawLedgerEnvelope struct {
	Evaluations []rawLedgerEntry `json:"evaluations"`
}

// ParseConscience extracts a slice of value evaluations from raw
// Conscience faculty output. On total parse failure it returns a single
// synthetic error entry rather than an empty slice, so callers always
// have a ledger line to persist.
func ParseConscience(raw string) []values.LedgerEntry {
	candidate := stripFences(raw)

	entries, ok := parseLedgerEnvelope(candidate)
	if !ok {
		entries, ok = parseLedgerEnvelope(raw)
	}
	if !ok {
		return []values.LedgerEntry{{
			Value:      ErrorLedgerValue,
			Score:      0,
			Confidence: 0,
			Reason:     "conscience output could not be parsed",
		}}
	}

	out := make([]values.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, values.LedgerEntry{
			Value:      e.Value,
			Score:      clampToNearest(e.Score, allowedScores),
			Confidence: clampRange(e.Confidence, 0, 1),
			Reason:     e.Reason,
		})
	}
	return out
}

func parseLedgerEnvelope(s string) ([]rawLedgerEntry, bool) {
	if body, _, _, found := outermostObject(s); found {
		var env rawLedgerEnvelope
		if json.Unmarshal([]byte(repairAndNormalize(body)), &env) == nil && len(env.Evaluations) > 0 {
			return env.Evaluations, true
		}
	}

	if arr, ok := outermostArray(s); ok {
		var entries []rawLedgerEntry
		if json.Unmarshal([]byte(repairAndNormalize(arr)), &entries) == nil && len(entries) > 0 {
			return entries, true
		}
	}

	return nil, false
}

// outermostArray finds the first top-level '[' ... ']' span in s,
// mirroring outermostObject but for bare JSON arrays.
func outermostArray(s string) (string, bool) {
	start := strings.IndexByte(s, '[')
	if start == -1 {
		return "", false
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
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func clampToNearest(v float64, allowed []float64) float64 {
	best := allowed[0]
	bestDist := absFloat(v - best)
	for _, a := range allowed[1:] {
		if d := absFloat(v - a); d < bestDist {
			best, bestDist = a, d
		}
	}
	return best
}

func clampRange(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
