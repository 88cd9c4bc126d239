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

// Package spirit updates a per-agent EMA alignment vector from a
// Conscience ledger and produces the feedback seed fed into the next
// turn's Intellect prompt.
package spirit

import (
	"fmt"
	"math"
	"strings"

	"github.com/kadirpekel/aegis/pkg/values"
)

// trendWindow is the minimum number of recent mu samples required
// before trend tags are emitted; fewer samples and the trend is
// simply omitted rather than guessed at.
const trendWindow = 3

// Result is the outcome of one Spirit computation.
type Result struct {
	SpiritScore int
	Note        string
	MuNew       []float64
	Pt          []float64
	Drift       *float64
}

// Compute updates mu from ledger per the agent's canonical value order.
// If any canonical value has no matching ledger entry (including the
// degenerate case of an empty ledger from a skipped or failed
// Conscience call), memory is left untouched and a score of 1 is
// returned without mutating mu.
func Compute(agent *values.Agent, ledger []values.LedgerEntry, muPrev []float64, beta float64) Result {
	index := make(map[string]values.LedgerEntry, len(ledger))
	for _, e := range ledger {
		index[values.NormalizeName(e.Value)] = e
	}

	var missing []string
	scores := make([]float64, len(agent.Values))
	confidences := make([]float64, len(agent.Values))
	for i, v := range agent.Values {
		entry, ok := index[values.NormalizeName(v.Name)]
		if !ok {
			missing = append(missing, v.Name)
			continue
		}
		scores[i] = coerceNaN(entry.Score)
		confidences[i] = coerceNaN(entry.Confidence)
	}

	if len(missing) > 0 {
		return Result{
			SpiritScore: 1,
			Note:        fmt.Sprintf("Ledger missing: %s", strings.Join(missing, ", ")),
			MuNew:       append([]float64(nil), muPrev...),
			Pt:          make([]float64, len(agent.Values)),
			Drift:       nil,
		}
	}

	var raw float64
	pt := make([]float64, len(agent.Values))
	for i, v := range agent.Values {
		raw += v.Weight * scores[i] * confidences[i]
		pt[i] = v.Weight * scores[i]
	}
	raw = clip(raw, -1, 1)
	spiritScore := int(math.Round(((raw+1)/2)*9 + 1))

	muNew := make([]float64, len(muPrev))
	for i := range muNew {
		muNew[i] = beta*muPrev[i] + (1-beta)*pt[i]
	}

	var drift *float64
	if d, ok := cosineDistance(pt, muPrev); ok {
		drift = &d
	}

	note := fmt.Sprintf("Coherence %d/10", spiritScore)
	if drift != nil {
		note = fmt.Sprintf("%s, drift %.2f", note, *drift)
	}

	return Result{SpiritScore: spiritScore, Note: note, MuNew: muNew, Pt: pt, Drift: drift}
}

func coerceNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// cosineDistance returns 1-cos(a,b), false if either vector has zero
// norm (cosine is undefined).
func cosineDistance(a, b []float64) (float64, bool) {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - cos, true
}

// driftLabel classifies drift into a coarse textual bucket.
func driftLabel(drift *float64) string {
	if drift == nil {
		return "none"
	}
	switch {
	case *drift < 0.10:
		return "none"
	case *drift < 0.20:
		return "slight"
	case *drift < 0.40:
		return "moderate"
	default:
		return "high"
	}
}

// FeedbackSeed builds the two-line textual summary injected into the
// next turn's Intellect prompt: the strongest and weakest dimensions of
// mu, a drift label, and optional trend tags when enough history is
// available.
func FeedbackSeed(mu []float64, valueNames []string, drift *float64, recentMuHistory [][]float64) string {
	if len(mu) == 0 || len(mu) != len(valueNames) {
		return ""
	}

	strongIdx, weakIdx := 0, 0
	for i := range mu {
		if mu[i] > mu[strongIdx] {
			strongIdx = i
		}
		if mu[i] < mu[weakIdx] {
			weakIdx = i
		}
	}

	line1 := fmt.Sprintf("Alignment: strongest on %s (%.3f), weakest on %s (%.3f). Drift: %s.",
		valueNames[strongIdx], mu[strongIdx], valueNames[weakIdx], mu[weakIdx], driftLabel(drift))

	line2 := trendLine(valueNames, recentMuHistory)
	if line2 == "" {
		return line1
	}
	return line1 + "\n" + line2
}

// trendLine emits a rising/falling/flat tag per dimension using a
// simple sign-of-slope over the last trendWindow samples. Tags are omitted
// entirely when fewer than trendWindow samples exist, per the open
// question on recentMuHistory persistence: trend emission is
// best-effort, not a correctness requirement.
func trendLine(valueNames []string, recentMuHistory [][]float64) string {
	if len(recentMuHistory) < trendWindow {
		return ""
	}

	window := recentMuHistory[len(recentMuHistory)-trendWindow:]
	tags := make([]string, 0, len(valueNames))
	for i, name := range valueNames {
		first, last := window[0][i], window[len(window)-1][i]
		const flatEpsilon = 1e-6
		var tag string
		switch {
		case last-first > flatEpsilon:
			tag = "rising"
		case first-last > flatEpsilon:
			tag = "falling"
		default:
			tag = "flat"
		}
		tags = append(tags, fmt.Sprintf("%s:%s", name, tag))
	}
	return "Trend: " + strings.Join(tags, ", ") + "."
}
