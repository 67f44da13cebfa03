package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Metrics tracks operational counters for the analysis service.
type Metrics struct {
	// Run metrics
	RunsStarted atomic.Int64
	RunsDone    atomic.Int64
	RunsFailed  atomic.Int64
	RunsBlocked atomic.Int64
	RunsActive  atomic.Int32
	CacheHits   atomic.Int64

	// Upstream metrics
	ReviewsFetched atomic.Int64
	SearchCalls    atomic.Int64
	LLMCalls       atomic.Int64
	LLMErrors      atomic.Int64

	// Chat metrics
	ChatTurns  atomic.Int64
	ChatFailed atomic.Int64

	ReportsArchived atomic.Int64
	ArchiveErrors   atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

type metric struct {
	name  string
	help  string
	kind  string
	value int64
}

func (m *Metrics) metrics() []metric {
	return []metric{
		{"shopsense_runs_started_total", "Total analysis runs started", "counter", m.RunsStarted.Load()},
		{"shopsense_runs_done_total", "Total analysis runs completed", "counter", m.RunsDone.Load()},
		{"shopsense_runs_failed_total", "Total analysis runs failed", "counter", m.RunsFailed.Load()},
		{"shopsense_runs_blocked_total", "Total runs stopped by an anti-bot page", "counter", m.RunsBlocked.Load()},
		{"shopsense_runs_active", "Analysis runs in flight", "gauge", int64(m.RunsActive.Load())},
		{"shopsense_cache_hits_total", "Total analyses served from cache", "counter", m.CacheHits.Load()},
		{"shopsense_reviews_fetched_total", "Total review cards fetched", "counter", m.ReviewsFetched.Load()},
		{"shopsense_search_calls_total", "Total search API calls", "counter", m.SearchCalls.Load()},
		{"shopsense_llm_calls_total", "Total LLM completions requested", "counter", m.LLMCalls.Load()},
		{"shopsense_llm_errors_total", "Total LLM completions failed", "counter", m.LLMErrors.Load()},
		{"shopsense_chat_turns_total", "Total chat questions answered", "counter", m.ChatTurns.Load()},
		{"shopsense_chat_failed_total", "Total chat questions failed", "counter", m.ChatFailed.Load()},
		{"shopsense_reports_archived_total", "Total reports archived", "counter", m.ReportsArchived.Load()},
		{"shopsense_archive_errors_total", "Total archive failures", "counter", m.ArchiveErrors.Load()},
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	for _, metric := range m.metrics() {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", metric.name, metric.kind)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"runs_started":     m.RunsStarted.Load(),
		"runs_done":        m.RunsDone.Load(),
		"runs_failed":      m.RunsFailed.Load(),
		"runs_blocked":     m.RunsBlocked.Load(),
		"runs_active":      int64(m.RunsActive.Load()),
		"cache_hits":       m.CacheHits.Load(),
		"reviews_fetched":  m.ReviewsFetched.Load(),
		"search_calls":     m.SearchCalls.Load(),
		"llm_calls":        m.LLMCalls.Load(),
		"llm_errors":       m.LLMErrors.Load(),
		"chat_turns":       m.ChatTurns.Load(),
		"chat_failed":      m.ChatFailed.Load(),
		"reports_archived": m.ReportsArchived.Load(),
	}
}

// LogSummary writes the current counters at info level.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	m.logger.Info("metrics summary",
		"runs_started", s["runs_started"],
		"runs_done", s["runs_done"],
		"runs_failed", s["runs_failed"],
		"llm_calls", s["llm_calls"],
		"chat_turns", s["chat_turns"],
	)
}
