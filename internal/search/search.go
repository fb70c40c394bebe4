// Package search translates text queries into vector store lookups.
package search

import (
	"context"
	"fmt"

	"github.com/spetr/dirvec/pkg/provider"
	"github.com/spetr/dirvec/pkg/types"
)

// Service embeds query text and delegates to the vector store.
type Service struct {
	store        provider.VectorStore
	embedder     provider.EmbeddingProvider
	defaultLimit int
}

// New creates a search service.
func New(store provider.VectorStore, embedder provider.EmbeddingProvider, defaultLimit int) *Service {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &Service{
		store:        store,
		embedder:     embedder,
		defaultLimit: defaultLimit,
	}
}

// SearchSimilar embeds queryText and returns the nearest stored items.
// Provider failures and dimension mismatches propagate to the caller; an
// empty store yields an empty, non-error result.
func (s *Service) SearchSimilar(ctx context.Context, queryText string, limit int) ([]*types.SearchResult, error) {
	if queryText == "" {
		return nil, fmt.Errorf("%w: empty query", types.ErrInvalidConfig)
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}

	vectors, err := s.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingFailed, err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: provider returned no vector for query", types.ErrEmbeddingFailed)
	}

	return s.store.SearchSimilar(ctx, vectors[0], limit)
}

// Browse returns stored items without ranking; similarity is fixed at 1.0
// since there is no query to score against.
func (s *Service) Browse(limit int) ([]*types.SearchResult, error) {
	items, err := s.store.GetAllItems(limit)
	if err != nil {
		return nil, err
	}

	results := make([]*types.SearchResult, 0, len(items))
	for _, item := range items {
		results = append(results, &types.SearchResult{Item: item, Similarity: 1.0})
	}
	return results, nil
}

// Stats reports the store's size and dimension.
func (s *Service) Stats() (*types.StoreStats, error) {
	count, err := s.store.Count()
	if err != nil {
		return nil, err
	}
	size, err := s.store.StorageSize()
	if err != nil {
		return nil, err
	}
	return &types.StoreStats{
		TotalItems:  count,
		Dimensions:  s.store.Dimensions(),
		DBSizeBytes: size,
	}, nil
}
