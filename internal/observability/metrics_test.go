package observability

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics(testLogger)
	m.RunsStarted.Add(4)
	m.RunsFailed.Add(1)
	m.RunsActive.Add(2)
	m.ChatTurns.Add(3)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"# TYPE shopsense_runs_started_total counter\nshopsense_runs_started_total 4\n",
		"shopsense_runs_failed_total 1\n",
		"# TYPE shopsense_runs_active gauge\nshopsense_runs_active 2\n",
		"shopsense_chat_turns_total 3\n",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestSnapshot(t *testing.T) {
	m := NewMetrics(testLogger)
	m.LLMCalls.Add(5)
	m.LLMErrors.Add(1)
	m.ReportsArchived.Add(2)

	s := m.Snapshot()
	if s["llm_calls"] != 5 || s["llm_errors"] != 1 || s["reports_archived"] != 2 || s["runs_done"] != 0 {
		t.Errorf("snapshot = %v", s)
	}
	m.LogSummary()
}
