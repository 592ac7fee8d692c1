// Package storage provides the persistent, deduplicating article store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/domain"
)

// ErrWriteFailure wraps any error that caused a batch to be rolled back.
var ErrWriteFailure = errors.New("store write failure")

// Store persists articles keyed by DOI.
//
// UpsertBatch commits a whole batch or nothing. Articles whose DOI is already
// stored (or appears earlier in the same batch) are left untouched and counted
// as skipped; articles without a DOI are always inserted.
type Store interface {
	Exists(doi string) (bool, error)
	UpsertBatch(articles []domain.Article) (UpsertResult, error)
	LoadAll() ([]domain.Article, error)
	Count() (int, error)
	Close() error
}

// UpsertResult reports the outcome of one batch.
type UpsertResult struct {
	Inserted int
	Skipped  int
	// Added holds the rows that were newly written, in batch order.
	Added []domain.Article
}

const (
	TypeBBolt   = "bbolt"
	TypeMemory  = "memory"
	TypeMongoDB = "mongodb"
)

// Options selects and configures a backend.
type Options struct {
	Type            string
	BBoltPath       string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
}

// NewStore creates the configured storage backend.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	typ := strings.TrimSpace(strings.ToLower(opts.Type))

	switch typ {
	case "", TypeBBolt:
		if strings.TrimSpace(opts.BBoltPath) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(opts.BBoltPath)
	case TypeMemory:
		return NewMemoryStore(), nil
	case TypeMongoDB:
		if strings.TrimSpace(opts.MongoURI) == "" {
			return nil, fmt.Errorf("mongodb storage requires a uri")
		}
		return openMongo(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func writeFailure(err error) error {
	return fmt.Errorf("%w: %v", ErrWriteFailure, err)
}
