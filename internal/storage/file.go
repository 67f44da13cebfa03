package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/IshaanNene/ShopSense/internal/types"
)

// JSONLArchive appends reports as newline-delimited JSON.
type JSONLArchive struct {
	path   string
	file   *os.File
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLArchive opens outputPath for appending, creating it if needed.
func NewJSONLArchive(outputPath string, logger *slog.Logger) (*JSONLArchive, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return &JSONLArchive{
		path:   outputPath,
		file:   f,
		enc:    enc,
		logger: logger.With("component", "jsonl_archive"),
	}, nil
}

func (s *JSONLArchive) Name() string { return "jsonl" }

// Path returns the file being written.
func (s *JSONLArchive) Path() string { return s.path }

func (s *JSONLArchive) Save(_ context.Context, report *types.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(report); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("encode JSONL: %w", err)}
	}
	s.count++
	s.logger.Debug("report archived", "run_id", report.RunID, "path", s.path)
	return nil
}

func (s *JSONLArchive) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("JSONL archive closed", "path", s.path, "reports", s.count)
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
