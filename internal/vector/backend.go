// Package vector abstracts the semantic index. The primary provider speaks a
// JSON-RPC framing to an embedding child process over a pipe; an embedded
// chromem-go provider exists for self-contained deployments.
//
// Distance convention across providers: cosine distance in [0, 2], where 0 is
// identical, 1 orthogonal, 2 opposite.
package vector

import (
	"context"
	"errors"
)

// Sentinel errors.
var (
	// ErrUnavailable is returned when the backend cannot be reached or a
	// query exceeded its deadline. Retrieval degrades to keyword-only.
	ErrUnavailable = errors.New("vector backend unavailable")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid vector configuration")
)

// Item is one document staged for upsert. A duplicate ID overwrites.
type Item struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// QueryResult carries parallel vectors, one entry per hit.
type QueryResult struct {
	IDs       []string            `json:"ids"`
	Documents []string            `json:"documents"`
	Metadatas []map[string]string `json:"metadatas"`
	Distances []float64           `json:"distances"`
}

// Stats describes a collection.
type Stats struct {
	Count int `json:"count"`
}

// Backend answers embedding and top-k similarity queries over a named
// collection.
type Backend interface {
	// EnsureCollection creates the collection if absent. Idempotent.
	EnsureCollection(ctx context.Context, name string) error

	// Upsert embeds and stores items. Callers batch at 100 items.
	Upsert(ctx context.Context, name string, items []Item) error

	// Query returns the k nearest items to text. where is a small equality
	// map over metadata (type, source_file).
	Query(ctx context.Context, name, text string, k int, where map[string]string) (*QueryResult, error)

	// CollectionStats returns at least the item count.
	CollectionStats(ctx context.Context, name string) (*Stats, error)

	// DeleteCollection drops the collection. Used only by re-index.
	DeleteCollection(ctx context.Context, name string) error

	// Close releases the provider (terminates the child process, flushes
	// persistence).
	Close() error
}
