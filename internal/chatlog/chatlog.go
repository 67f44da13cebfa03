// Package chatlog keeps a small CSV history of chat turns per product URL.
package chatlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/ShopSense/internal/types"
)

// TimestampFormat is RFC 3339 in UTC with microseconds, so rows sort
// lexically in time order.
const TimestampFormat = "2006-01-02T15:04:05.000000Z07:00"

const (
	noURL     = "No URL provided."
	noHistory = "No previous history available for this product."
)

var columns = []string{"timestamp", "url", "question", "conversation_response"}

// Store owns the CSV history file.
type Store struct {
	path   string
	mu     sync.Mutex
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Store backed by path. The file is created on first append.
func New(path string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		now:    time.Now,
		logger: logger.With("component", "chatlog"),
	}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Append records one turn and keeps only the newest retain turns for url.
// Turns for other URLs are left untouched.
func (s *Store) Append(url, question, response string, retain int) error {
	if url == "" {
		s.logger.Warn("no URL provided, skipping append")
		return nil
	}
	if retain < 1 {
		retain = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.read()
	entries = append(entries, types.ChatEntry{
		Timestamp: s.now().UTC().Format(TimestampFormat),
		URL:       url,
		Question:  question,
		Response:  response,
	})

	var others, mine []types.ChatEntry
	for _, e := range entries {
		if e.URL == url {
			mine = append(mine, e)
		} else {
			others = append(others, e)
		}
	}
	sortByTime(mine)
	if len(mine) > retain {
		mine = mine[len(mine)-retain:]
	}

	if err := s.write(append(others, mine...)); err != nil {
		s.logger.Error("failed to save chat history", "path", s.path, "error", err)
		return &types.StorageError{Backend: "chatlog", Err: err}
	}
	s.logger.Debug("chat turn recorded", "url", url, "retained", len(mine))
	return nil
}

// Entries returns the stored turns for url, oldest first.
func (s *Store) Entries(url string) []types.ChatEntry {
	s.mu.Lock()
	entries := s.read()
	s.mu.Unlock()

	var out []types.ChatEntry
	for _, e := range entries {
		if e.URL == url {
			out = append(out, e)
		}
	}
	sortByTime(out)
	return out
}

// LastN renders the newest n turns for url as a prompt block.
func (s *Store) LastN(url string, n int) string {
	if url == "" {
		return noURL
	}
	entries := s.Entries(url)
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	if len(entries) == 0 {
		return noHistory
	}

	blocks := make([]string, 0, len(entries))
	for i, e := range entries {
		blocks = append(blocks, fmt.Sprintf(
			"--- Conversation %d (%s) ---\nQuestion:\n%s\nAssistant Response:\n%s\n",
			i+1, e.Timestamp, strings.TrimSpace(e.Question), strings.TrimSpace(e.Response),
		))
	}
	return strings.Join(blocks, "\n")
}

// read loads every row. A missing, unreadable or malformed file reads as
// empty.
func (s *Store) read() []types.ChatEntry {
	f, err := os.Open(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to open chat history", "path", s.path, "error", err)
		}
		return nil
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		s.logger.Warn("failed to read chat history", "path", s.path, "error", err)
		return nil
	}
	if len(records) == 0 {
		return nil
	}

	index := map[string]int{}
	for i, name := range records[0] {
		index[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, col := range columns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		s.logger.Warn("chat history is missing columns, resetting", "path", s.path, "missing", missing)
		return nil
	}

	field := func(rec []string, col string) string {
		if i := index[col]; i < len(rec) {
			return rec[i]
		}
		return ""
	}
	entries := make([]types.ChatEntry, 0, len(records)-1)
	for _, rec := range records[1:] {
		entries = append(entries, types.ChatEntry{
			Timestamp: field(rec, "timestamp"),
			URL:       field(rec, "url"),
			Question:  field(rec, "question"),
			Response:  field(rec, "conversation_response"),
		})
	}
	return entries
}

// write replaces the file via a temp file and rename.
func (s *Store) write(entries []types.ChatEntry) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".history-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(columns); err != nil {
		tmp.Close()
		return err
	}
	for _, e := range entries {
		if err := w.Write([]string{e.Timestamp, e.URL, e.Question, e.Response}); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func sortByTime(entries []types.ChatEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp < entries[j].Timestamp
	})
}
