package chatlog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "chat_logs", "history.csv"), testLogger)
	base := time.Date(2025, 7, 4, 10, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func TestAppendAndLastN(t *testing.T) {
	s := newTestStore(t)
	const a, b = "https://shop.example/a", "https://shop.example/b"

	if err := s.Append(a, "Is it waterproof?", "No, it is splash resistant.", 3); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(b, "Battery life?", "About 10 hours.", 3); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got := s.LastN(a, 3)
	want := "--- Conversation 1 (2025-07-04T10:00:01.000000Z) ---\nQuestion:\nIs it waterproof?\nAssistant Response:\nNo, it is splash resistant.\n"
	if got != want {
		t.Errorf("LastN = %q\nwant %q", got, want)
	}
	if strings.Contains(got, "Battery") {
		t.Error("history leaked across URLs")
	}
}

func TestAppendRetainsNewest(t *testing.T) {
	s := newTestStore(t)
	const url = "https://shop.example/a"
	const other = "https://shop.example/b"

	s.Append(other, "other question", "other answer", 3)
	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		if err := s.Append(url, q, "answer "+q, 3); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries := s.Entries(url)
	if len(entries) != 3 {
		t.Fatalf("kept %d entries, want 3", len(entries))
	}
	if entries[0].Question != "q2" || entries[2].Question != "q4" {
		t.Errorf("entries = %+v", entries)
	}
	if len(s.Entries(other)) != 1 {
		t.Error("other URL's history must be untouched")
	}

	history := s.LastN(url, 3)
	if strings.Contains(history, "q1") {
		t.Error("pruned entry still rendered")
	}
	if !strings.Contains(history, "--- Conversation 3") {
		t.Errorf("history = %q", history)
	}
	if n := strings.Count(history, "--- Conversation"); n != 3 {
		t.Errorf("rendered %d conversations", n)
	}
}

func TestLastNMessages(t *testing.T) {
	s := newTestStore(t)
	if got := s.LastN("", 3); got != "No URL provided." {
		t.Errorf("empty url = %q", got)
	}
	if got := s.LastN("https://shop.example/none", 3); got != "No previous history available for this product." {
		t.Errorf("no history = %q", got)
	}
}

func TestAppendEmptyURLIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.Append("", "q", "r", 3); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Errorf("log file should not exist, stat err = %v", err)
	}
}

func TestCorruptLogReadsAsEmpty(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing column", "timestamp,url,question\n2025-01-01T00:00:00Z,https://x,hi\n"},
		{"bad quoting", "timestamp,url,question,conversation_response\n\"unterminated,x,y,z\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			if err := os.MkdirAll(filepath.Dir(s.Path()), 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(s.Path(), []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			if got := s.LastN("https://x", 3); got != "No previous history available for this product." {
				t.Errorf("LastN = %q", got)
			}
			if err := s.Append("https://x", "new", "answer", 3); err != nil {
				t.Fatalf("Append: %v", err)
			}
			if entries := s.Entries("https://x"); len(entries) != 1 || entries[0].Question != "new" {
				t.Errorf("entries = %+v", entries)
			}
		})
	}
}

func TestMultilineResponsesSurviveRoundTrip(t *testing.T) {
	s := newTestStore(t)
	answer := "## Verdict\n\n- good, \"sharp\" lens\n- fair price"
	if err := s.Append("https://x", "Summary?", answer, 3); err != nil {
		t.Fatal(err)
	}
	entries := s.Entries("https://x")
	if len(entries) != 1 || entries[0].Response != answer {
		t.Errorf("entries = %+v", entries)
	}
}

func TestConcurrentAppends(t *testing.T) {
	s := newTestStore(t)
	const writers = 20
	const shared = "https://shop.example/shared"

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			url := fmt.Sprintf("https://shop.example/p%d", i)
			if err := s.Append(url, fmt.Sprintf("q%d", i), "r", 3); err != nil {
				t.Errorf("Append(%s): %v", url, err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := s.Append(shared, fmt.Sprintf("shared q%d", i), "r", 3); err != nil {
				t.Errorf("Append(shared): %v", err)
			}
			_ = s.LastN(shared, 3)
		}()
	}
	wg.Wait()

	for i := 0; i < writers; i++ {
		url := fmt.Sprintf("https://shop.example/p%d", i)
		entries := s.Entries(url)
		if len(entries) != 1 || entries[0].Question != fmt.Sprintf("q%d", i) {
			t.Errorf("%s entries = %+v", url, entries)
		}
	}
	if n := len(s.Entries(shared)); n != 3 {
		t.Errorf("shared url kept %d entries, want 3", n)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if rows := strings.Count(string(data), "\n"); rows != 1+writers+3 {
		t.Errorf("file has %d lines, want %d", rows, 1+writers+3)
	}
}
