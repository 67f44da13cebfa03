package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/ShopSense/internal/types"
)

// MongoArchive writes reports to a MongoDB collection keyed by run ID.
type MongoArchive struct {
	client     *mongo.Client
	collection *mongo.Collection
	mu         sync.Mutex
	count      int
	logger     *slog.Logger
}

// NewMongoArchive connects, pings and ensures a unique index on run_id.
func NewMongoArchive(ctx context.Context, uri, database, collection string, logger *slog.Logger) (*MongoArchive, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("connect: %w", err)}
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("ping: %w", err)}
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "run_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("create index: %w", err)}
	}

	return &MongoArchive{
		client:     client,
		collection: coll,
		logger:     logger.With("component", "mongo_archive"),
	}, nil
}

func (s *MongoArchive) Name() string { return "mongodb" }

func (s *MongoArchive) Save(ctx context.Context, report *types.Report) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.collection.InsertOne(ctx, report); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			s.logger.Debug("report already archived", "run_id", report.RunID)
			return nil
		}
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("insert: %w", err)}
	}

	s.mu.Lock()
	s.count++
	total := s.count
	s.mu.Unlock()
	s.logger.Debug("report stored in mongodb", "run_id", report.RunID, "total", total)
	return nil
}

func (s *MongoArchive) Close() error {
	s.logger.Info("mongodb archive closing", "total_reports", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// --- Multi-Archive Fan-Out ---

// MultiArchive writes each report to several backends.
type MultiArchive struct {
	backends []Archive
	logger   *slog.Logger
}

// NewMultiArchive creates an archive that fans out to backends.
func NewMultiArchive(backends []Archive, logger *slog.Logger) *MultiArchive {
	return &MultiArchive{
		backends: backends,
		logger:   logger.With("component", "multi_archive"),
	}
}

func (s *MultiArchive) Name() string { return "multi" }

// Save writes to every backend and joins their errors.
func (s *MultiArchive) Save(ctx context.Context, report *types.Report) error {
	var errs []error
	for _, backend := range s.backends {
		if err := backend.Save(ctx, report); err != nil {
			s.logger.Error("backend save failed", "backend", backend.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *MultiArchive) Close() error {
	var errs []error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
