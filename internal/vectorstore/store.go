// Package vectorstore provides the two embedded document collections and
// their SQLite and Milvus implementations.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rcliao/meeting-rag/internal/embedding"
	"github.com/rcliao/meeting-rag/internal/model"
)

var (
	// ErrEmptyFilter is returned when a destructive operation gets no constraints.
	// Use ClearCollection to empty a collection on purpose.
	ErrEmptyFilter = errors.New("refusing to run with an empty filter")

	// ErrUnknownCollection is returned for collection names other than chunks and subtopic.
	ErrUnknownCollection = errors.New("unknown collection")
)

// SearchParams holds parameters for a similarity search.
type SearchParams struct {
	Collection string
	Query      string
	K          int
	Filter     Filter
}

// Match is a search hit. Score is cosine similarity clamped to [0,1].
type Match struct {
	model.Document
	Score  float64          `json:"score"`
	Vector embedding.Vector `json:"-"`
}

// Store defines the dual-collection vector store. Implementations embed
// content on Upsert and the query on Search with the embedder they were
// built with.
//
// Callers must not write the same meeting concurrently: UpdateMetadata reads
// then writes whole metadata maps, so the last writer wins.
type Store interface {
	// Upsert stores documents, overwriting any with the same id.
	Upsert(ctx context.Context, collection string, docs []model.Document) error

	// Get returns all documents matching the filter, in no particular order.
	Get(ctx context.Context, collection string, f Filter) ([]model.Document, error)

	// Count returns the number of documents matching the filter. An empty filter counts all.
	Count(ctx context.Context, collection string, f Filter) (int, error)

	// UpdateMetadata sets one metadata field on every matching document,
	// writing the complete metadata map back. Returns the number updated.
	UpdateMetadata(ctx context.Context, collection string, f Filter, field string, value any) (int, error)

	// DeleteMatching removes matching documents. An empty filter returns ErrEmptyFilter.
	DeleteMatching(ctx context.Context, collection string, f Filter) (int, error)

	// ClearCollection removes every document of a collection.
	ClearCollection(ctx context.Context, collection string) error

	// Search returns up to K documents by descending similarity to the query.
	Search(ctx context.Context, p SearchParams) ([]Match, error)

	// Close releases the backend.
	Close() error
}

func checkCollection(name string) error {
	if !model.ValidCollection(name) {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return nil
}

// CollectionStats holds the document count of one collection.
type CollectionStats struct {
	Collection string `json:"collection"`
	Documents  int    `json:"documents"`
}

// Stats counts the documents of every collection.
func Stats(ctx context.Context, s Store) ([]CollectionStats, error) {
	var out []CollectionStats
	for _, c := range model.Collections {
		n, err := s.Count(ctx, c, nil)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", c, err)
		}
		out = append(out, CollectionStats{Collection: c, Documents: n})
	}
	return out, nil
}

func clampScore(s float64) float64 {
	if s < 0 || math.IsNaN(s) {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
