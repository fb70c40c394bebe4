package vectorize

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spetr/dirvec/pkg/types"
)

// mockStore is an in-memory VectorStore with the same dimension invariant as
// the real engine. Creation order is preserved through strictly increasing
// CreatedAt timestamps.
type mockStore struct {
	mu          sync.Mutex
	items       map[string]*types.EmbeddingItem
	dims        int
	seq         int64
	initialized bool
}

func newMockStore() *mockStore {
	return &mockStore{items: make(map[string]*types.EmbeddingItem), initialized: true}
}

func (m *mockStore) Name() string { return "mock" }

func (m *mockStore) Init(path string) error { m.initialized = true; return nil }

func (m *mockStore) Close() error { return nil }

func (m *mockStore) AddEmbedding(item *types.EmbeddingItem) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item == nil || len(item.Vector) == 0 {
		return "", fmt.Errorf("%w: empty vector", types.ErrStoreFailed)
	}
	if m.dims == 0 {
		m.dims = len(item.Vector)
	} else if len(item.Vector) != m.dims {
		return "", &types.DimensionMismatchError{Expected: m.dims, Actual: len(item.Vector)}
	}

	m.seq++
	stored := *item
	if stored.ID == "" {
		stored.ID = fmt.Sprintf("item-%d", m.seq)
	}
	stored.CreatedAt = time.Unix(0, m.seq)
	m.items[stored.ID] = &stored
	return stored.ID, nil
}

func (m *mockStore) GetByPath(path string) ([]*types.EmbeddingItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*types.EmbeddingItem
	for _, item := range m.items {
		if item.Path == path {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockStore) GetByID(id string) (*types.EmbeddingItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id], nil
}

func (m *mockStore) Exists(path string, kind types.ItemKind) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range m.items {
		if item.Path == path && item.Kind == kind {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) DeleteEmbedding(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *mockStore) DeleteByPath(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, item := range m.items {
		if item.Path == path {
			delete(m.items, id)
		}
	}
	return nil
}

func (m *mockStore) DeleteByPathKind(path string, kind types.ItemKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, item := range m.items {
		if item.Path == path && item.Kind == kind {
			delete(m.items, id)
		}
	}
	return nil
}

func (m *mockStore) ListByPrefix(prefix string) ([]*types.EmbeddingItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sep := string(filepath.Separator)
	want := strings.TrimSuffix(prefix, sep) + sep
	var out []*types.EmbeddingItem
	for _, item := range m.items {
		if item.Path != prefix && strings.HasPrefix(item.Path, want) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *mockStore) SearchSimilar(ctx context.Context, query []float32, limit int) ([]*types.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dims == 0 {
		return nil, nil
	}
	if len(query) != m.dims {
		return nil, &types.DimensionMismatchError{Expected: m.dims, Actual: len(query)}
	}

	var results []*types.SearchResult
	for _, item := range m.items {
		results = append(results, &types.SearchResult{
			Item:       item,
			Similarity: cosineSimilarity(query, item.Vector),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *mockStore) GetAllItems(limit int) ([]*types.EmbeddingItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*types.EmbeddingItem
	for _, item := range m.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) Count() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), nil
}

func (m *mockStore) StorageSize() (int64, error) { return 0, nil }

func (m *mockStore) Dimensions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dims
}

func (m *mockStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*types.EmbeddingItem)
	m.dims = 0
	return nil
}

// itemFor returns the stored item for (path, kind), nil if absent.
func (m *mockStore) itemFor(path string, kind types.ItemKind) *types.EmbeddingItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range m.items {
		if item.Path == path && item.Kind == kind {
			return item
		}
	}
	return nil
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return float32(sim)
}

// mockEmbedder produces a deterministic vector per text: equal texts embed
// equally. Calls counts provider round-trips for skip assertions.
type mockEmbedder struct {
	mu    sync.Mutex
	dims  int
	calls int
	fail  bool
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims}
}

func (e *mockEmbedder) Name() string { return "mock" }

func (e *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls += len(texts)
	fail := e.fail
	e.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("embedder down")
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		h := fnv.New32a()
		h.Write([]byte(text))
		seed := h.Sum32()
		v := make([]float32, e.dims)
		for d := range v {
			seed = seed*1664525 + 1013904223
			v[d] = float32(seed%1000)/1000.0 + 0.001
		}
		out[i] = v
	}
	return out, nil
}

func (e *mockEmbedder) Dimensions() int { return e.dims }

func (e *mockEmbedder) MaxBatchSize() int { return 32 }

func (e *mockEmbedder) Warmup(ctx context.Context) error { return nil }

func (e *mockEmbedder) Close() error { return nil }

func (e *mockEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// mockSummarizer returns a deterministic summary, or fails on demand.
type mockSummarizer struct {
	fail bool
}

func (s *mockSummarizer) Name() string { return "mock" }

func (s *mockSummarizer) Summarize(ctx context.Context, text, prompt string) (string, error) {
	if s.fail {
		return "", fmt.Errorf("summarizer down")
	}
	if len(text) > 20 {
		text = text[:20]
	}
	return "summary: " + text, nil
}

func (s *mockSummarizer) Close() error { return nil }
