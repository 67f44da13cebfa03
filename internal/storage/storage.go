// Package storage archives finished analysis reports.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/IshaanNene/ShopSense/internal/config"
	"github.com/IshaanNene/ShopSense/internal/types"
)

// Archive is the interface for all report backends.
type Archive interface {
	// Save persists one report.
	Save(ctx context.Context, report *types.Report) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the backend identifier.
	Name() string
}

// New builds the archive selected by cfg.Type. "none" returns a nil
// Archive and no error.
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Archive, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "none":
		return nil, nil
	case "jsonl":
		file, err := NewJSONLArchive(filepath.Join(cfg.OutputPath, "reports.jsonl"), logger)
		if err != nil {
			return nil, err
		}
		return file, nil
	case "mongodb":
		mongo, err := NewMongoArchive(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
		if err != nil {
			return nil, err
		}
		return mongo, nil
	case "multi":
		file, err := NewJSONLArchive(filepath.Join(cfg.OutputPath, "reports.jsonl"), logger)
		if err != nil {
			return nil, err
		}
		mongo, err := NewMongoArchive(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
		if err != nil {
			file.Close()
			return nil, err
		}
		return NewMultiArchive([]Archive{file, mongo}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
