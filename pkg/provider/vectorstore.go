package provider

import (
	"context"

	"github.com/spetr/dirvec/pkg/types"
)

// VectorStore persists embedding records and serves similarity queries.
//
// The store owns the dimension invariant: the first record ever written fixes
// the vector dimension, and every later insert or query whose vector length
// differs fails with a types.DimensionMismatchError. No other component may
// bypass the store to touch storage directly.
type VectorStore interface {
	// Name returns the store name.
	Name() string

	// Init opens the store at the given path. Calling Init again after a
	// successful open is a no-op.
	Init(path string) error

	// Close releases resources and closes connections.
	Close() error

	// AddEmbedding persists one item and returns its id. The very first
	// insert into an empty store establishes the vector dimension.
	AddEmbedding(item *types.EmbeddingItem) (string, error)

	// GetByPath returns all items recorded for a path, one per kind.
	GetByPath(path string) ([]*types.EmbeddingItem, error)

	// GetByID returns an item by id, or nil if it does not exist.
	GetByID(id string) (*types.EmbeddingItem, error)

	// Exists reports whether an item exists for (path, kind).
	Exists(path string, kind types.ItemKind) (bool, error)

	// DeleteEmbedding removes one item by id.
	DeleteEmbedding(id string) error

	// DeleteByPath removes all items recorded for a path.
	DeleteByPath(path string) error

	// DeleteByPathKind removes the item for (path, kind) if present.
	DeleteByPathKind(path string, kind types.ItemKind) error

	// ListByPrefix returns every item whose path is nested under prefix,
	// excluding items recorded for prefix itself.
	ListByPrefix(prefix string) ([]*types.EmbeddingItem, error)

	// SearchSimilar returns up to limit items ranked by cosine similarity,
	// clamped to [0,1]. The query vector's dimension must match the store's.
	SearchSimilar(ctx context.Context, query []float32, limit int) ([]*types.SearchResult, error)

	// GetAllItems returns up to limit records (0 = no limit) for browsing.
	GetAllItems(limit int) ([]*types.EmbeddingItem, error)

	// Count returns the number of stored items.
	Count() (int, error)

	// StorageSize returns the on-disk size in bytes.
	StorageSize() (int64, error)

	// Dimensions returns the established vector dimension, 0 if none yet.
	Dimensions() int

	// Clear drops all records and resets the dimension so a new embedding
	// model can be adopted.
	Clear() error
}

// VectorStoreConfig contains configuration for vector stores.
type VectorStoreConfig struct {
	Provider string // "sqlitevec"
	Path     string // Path to database file
}
