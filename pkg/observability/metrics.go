// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics collection for the orchestrator.
type Metrics struct {
	config   *MetricsConfig
	registry *prometheus.Registry

	// Faculty metrics (intellect/will/conscience/spirit)
	facultyCalls        *prometheus.CounterVec
	facultyCallDuration  *prometheus.HistogramVec
	facultyErrors        *prometheus.CounterVec
	willReflexionsTotal  prometheus.Counter
	conscienceSkipsTotal prometheus.Counter
	spiritScore          prometheus.Histogram
	spiritDrift          prometheus.Histogram

	// LLM metrics
	llmCalls        *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmTokensInput  *prometheus.CounterVec
	llmTokensOutput *prometheus.CounterVec
	llmErrors       *prometheus.CounterVec

	// Instance cache metrics
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	cacheEvicted  prometheus.Counter
	cacheSize     prometheus.Gauge

	// Background audit metrics
	auditQueueDepth    prometheus.Gauge
	auditProcessedTotal *prometheus.CounterVec
	auditDuration      prometheus.Histogram

	// HTTP poll-surface metrics
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	httpResponseSize *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance from configuration.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	cfg.SetDefaults()

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}

	m.initFacultyMetrics()
	m.initLLMMetrics()
	m.initCacheMetrics()
	m.initAuditMetrics()
	m.initHTTPMetrics()

	return m, nil
}

func (m *Metrics) initFacultyMetrics() {
	m.facultyCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "faculty",
			Name:      "calls_total",
			Help:      "Total number of faculty stage invocations",
		},
		[]string{"faculty", "agent_key"},
	)

	m.facultyCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "faculty",
			Name:      "call_duration_seconds",
			Help:      "Faculty stage duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 15),
		},
		[]string{"faculty", "agent_key"},
	)

	m.facultyErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "faculty",
			Name:      "errors_total",
			Help:      "Total number of faculty stage errors",
		},
		[]string{"faculty", "agent_key", "error_type"},
	)

	m.willReflexionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.config.Namespace,
		Subsystem: "faculty",
		Name:      "will_reflexions_total",
		Help:      "Total number of Will-triggered Intellect reflexion retries",
	})

	m.conscienceSkipsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.config.Namespace,
		Subsystem: "faculty",
		Name:      "conscience_skips_total",
		Help:      "Total number of turns where Conscience scoring was skipped as too short",
	})

	m.spiritScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.config.Namespace,
		Subsystem: "faculty",
		Name:      "spirit_score",
		Help:      "Distribution of per-turn spirit scores (1-10)",
		Buckets:   prometheus.LinearBuckets(1, 1, 10),
	})

	m.spiritDrift = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.config.Namespace,
		Subsystem: "faculty",
		Name:      "spirit_drift",
		Help:      "Distribution of per-turn spirit mu drift (cosine distance, 0-2)",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 20),
	})

	m.registry.MustRegister(m.facultyCalls, m.facultyCallDuration, m.facultyErrors,
		m.willReflexionsTotal, m.conscienceSkipsTotal, m.spiritScore, m.spiritDrift)
}

func (m *Metrics) initLLMMetrics() {
	m.llmCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of LLM API calls",
		},
		[]string{"model", "provider", "route"},
	)

	m.llmCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM API call duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"model", "provider", "route"},
	)

	m.llmTokensInput = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "llm",
			Name:      "tokens_input_total",
			Help:      "Total number of input tokens consumed",
		},
		[]string{"model", "provider"},
	)

	m.llmTokensOutput = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "llm",
			Name:      "tokens_output_total",
			Help:      "Total number of output tokens generated",
		},
		[]string{"model", "provider"},
	)

	m.llmErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "llm",
			Name:      "errors_total",
			Help:      "Total number of LLM API errors",
		},
		[]string{"model", "provider", "error_type"},
	)

	m.registry.MustRegister(m.llmCalls, m.llmCallDuration, m.llmTokensInput, m.llmTokensOutput, m.llmErrors)
}

func (m *Metrics) initCacheMetrics() {
	m.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.config.Namespace,
		Subsystem: "instance_cache",
		Name:      "hits_total",
		Help:      "Total number of instance cache hits",
	})
	m.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.config.Namespace,
		Subsystem: "instance_cache",
		Name:      "misses_total",
		Help:      "Total number of instance cache misses",
	})
	m.cacheEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.config.Namespace,
		Subsystem: "instance_cache",
		Name:      "evicted_total",
		Help:      "Total number of instance cache entries evicted (TTL or invalidation)",
	})
	m.cacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: m.config.Namespace,
		Subsystem: "instance_cache",
		Name:      "size",
		Help:      "Current number of cached orchestrator instances",
	})

	m.registry.MustRegister(m.cacheHits, m.cacheMisses, m.cacheEvicted, m.cacheSize)
}

func (m *Metrics) initAuditMetrics() {
	m.auditQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: m.config.Namespace,
		Subsystem: "audit",
		Name:      "queue_depth",
		Help:      "Current number of pending background audit tasks",
	})

	m.auditProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "audit",
			Name:      "processed_total",
			Help:      "Total number of background audits processed",
		},
		[]string{"outcome"},
	)

	m.auditDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.config.Namespace,
		Subsystem: "audit",
		Name:      "duration_seconds",
		Help:      "Background audit task duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 15),
	})

	m.registry.MustRegister(m.auditQueueDepth, m.auditProcessedTotal, m.auditDuration)
}

// =============================================================================
// Faculty metrics
// =============================================================================

// RecordFacultyCall records one faculty stage invocation.
func (m *Metrics) RecordFacultyCall(faculty, agentKey string, duration time.Duration) {
	if m == nil {
		return
	}
	m.facultyCalls.WithLabelValues(faculty, agentKey).Inc()
	m.facultyCallDuration.WithLabelValues(faculty, agentKey).Observe(duration.Seconds())
}

// RecordFacultyError records a faculty stage error.
func (m *Metrics) RecordFacultyError(faculty, agentKey, errorType string) {
	if m == nil {
		return
	}
	m.facultyErrors.WithLabelValues(faculty, agentKey, errorType).Inc()
}

// RecordWillReflexion records a Will-triggered reflexion retry.
func (m *Metrics) RecordWillReflexion() {
	if m == nil {
		return
	}
	m.willReflexionsTotal.Inc()
}

// RecordConscienceSkip records a short-interaction Conscience skip.
func (m *Metrics) RecordConscienceSkip() {
	if m == nil {
		return
	}
	m.conscienceSkipsTotal.Inc()
}

// RecordSpiritUpdate records the spirit score and drift for a completed turn.
func (m *Metrics) RecordSpiritUpdate(score int, drift float64) {
	if m == nil {
		return
	}
	m.spiritScore.Observe(float64(score))
	m.spiritDrift.Observe(drift)
}

// =============================================================================
// LLM metrics
// =============================================================================

// RecordLLMCall records an LLM API call.
func (m *Metrics) RecordLLMCall(model, provider, route string, duration time.Duration) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(model, provider, route).Inc()
	m.llmCallDuration.WithLabelValues(model, provider, route).Observe(duration.Seconds())
}

// RecordLLMTokens records token usage.
func (m *Metrics) RecordLLMTokens(model, provider string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmTokensInput.WithLabelValues(model, provider).Add(float64(inputTokens))
	m.llmTokensOutput.WithLabelValues(model, provider).Add(float64(outputTokens))
}

// RecordLLMError records an LLM error.
func (m *Metrics) RecordLLMError(model, provider, errorType string) {
	if m == nil {
		return
	}
	m.llmErrors.WithLabelValues(model, provider, errorType).Inc()
}

// =============================================================================
// Instance cache metrics
// =============================================================================

// RecordCacheHit records an instance cache hit.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// RecordCacheMiss records an instance cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// RecordCacheEviction records a cache entry eviction (TTL or invalidation).
func (m *Metrics) RecordCacheEviction() {
	if m == nil {
		return
	}
	m.cacheEvicted.Inc()
}

// SetCacheSize sets the current cache size gauge.
func (m *Metrics) SetCacheSize(n int) {
	if m == nil {
		return
	}
	m.cacheSize.Set(float64(n))
}

// =============================================================================
// Background audit metrics
// =============================================================================

// SetAuditQueueDepth sets the current audit queue depth gauge.
func (m *Metrics) SetAuditQueueDepth(n int) {
	if m == nil {
		return
	}
	m.auditQueueDepth.Set(float64(n))
}

// RecordAuditProcessed records a completed background audit.
func (m *Metrics) RecordAuditProcessed(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.auditProcessedTotal.WithLabelValues(outcome).Inc()
	m.auditDuration.Observe(duration.Seconds())
}

func (m *Metrics) initHTTPMetrics() {
	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests against the poll surface",
		},
		[]string{"method", "path", "status"},
	)

	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 7),
		},
		[]string{"method", "path"},
	)

	m.registry.MustRegister(m.httpRequests, m.httpDuration, m.httpResponseSize)
}

// RecordHTTPRequest records a request against the thin HTTP poll surface.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	status := statusCodeLabel(statusCode)
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	if respSize > 0 {
		m.httpResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
	}
}

// statusCodeLabel converts a status code to a label string.
func statusCodeLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// =============================================================================
// HTTP handler
// =============================================================================

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
