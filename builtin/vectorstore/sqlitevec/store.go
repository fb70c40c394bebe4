// Package sqlitevec implements VectorStore using sqlite-vec for persistence
// and exact cosine search, with an in-memory IVF index layered on top for
// approximate search once the corpus is large enough.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spetr/dirvec/pkg/provider"
	"github.com/spetr/dirvec/pkg/types"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// Ensure sqlite-vec Auto() is called exactly once before any db connection
	vecAutoOnce sync.Once
)

// SchemaVersion is incremented when schema changes require re-vectorizing.
const SchemaVersion = 1

// Index lifecycle thresholds. The approximate index is built once the record
// count passes indexMinRows and rebuilt when the count grows by
// indexRebuildRows since the last build, amortizing construction cost against
// steady ingestion.
const (
	indexMinRows       = 512
	indexRebuildRows   = 5000
	indexMaxPartitions = 256
)

// Store implements the VectorStore interface using sqlite-vec.
type Store struct {
	db          *sql.DB
	path        string
	initialized bool

	mu          sync.RWMutex // guards dimensions, index, rowsAtBuild
	dimensions  int
	index       *ivfIndex
	rowsAtBuild int

	indexBusy atomic.Bool
	indexWG   sync.WaitGroup // in-flight background builds; Close waits on it
}

// New creates a new sqlite-vec store.
func New() *Store {
	return &Store{}
}

// Name returns the store name.
func (s *Store) Name() string {
	return "sqlitevec"
}

// Init initializes the store at the given path. Calling Init again after a
// successful open is a no-op.
func (s *Store) Init(path string) error {
	if s.initialized {
		return nil
	}
	s.path = path

	// Register sqlite-vec extension before opening any database connection.
	// This must be called once before sql.Open() to ensure vec_* functions
	// are available.
	vecAutoOnce.Do(func() {
		sqlite_vec.Auto()
	})

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL mode for concurrent reads, busy_timeout to wait for locks instead
	// of failing immediately
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	if _, err := db.Exec("SELECT vec_version()"); err != nil {
		return fmt.Errorf("sqlite-vec extension not available: %w", err)
	}

	if err := s.createSchema(); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := s.checkSchemaVersion(); err != nil {
		return err
	}

	// Restore the dimension established by a previous run
	if v, err := s.getMeta("dimensions"); err == nil && v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			s.dimensions = d
		}
	}

	s.initialized = true
	return nil
}

// createSchema creates all necessary tables.
func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			item_type TEXT NOT NULL,
			parent_id TEXT,
			childs TEXT,
			path TEXT NOT NULL,
			kind TEXT NOT NULL,
			raw TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_items_path ON items(path)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_items_path_kind ON items(path, kind)`)
	if err != nil {
		return err
	}

	return nil
}

// checkSchemaVersion persists the schema version on first open and rejects a
// database written by an incompatible schema.
func (s *Store) checkSchemaVersion() error {
	v, err := s.getMeta("schema_version")
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if v == "" {
		return s.setMeta("schema_version", strconv.Itoa(SchemaVersion))
	}
	if stored, err := strconv.Atoi(v); err != nil || stored != SchemaVersion {
		return fmt.Errorf("%w: database schema version %s does not match %d, clear storage and vectorize again",
			types.ErrStoreFailed, v, SchemaVersion)
	}
	return nil
}

// Close releases resources and closes connections. A background index build
// still running is waited for first, so it never touches a closed handle.
func (s *Store) Close() error {
	s.indexWG.Wait()

	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.initialized = false
		return err
	}
	return nil
}

// Dimensions returns the established vector dimension, 0 if none yet.
func (s *Store) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions
}

// AddEmbedding persists one item and returns its id. The very first insert
// into an empty store establishes the store's vector dimension; every later
// insert whose vector length differs fails with a DimensionMismatchError.
func (s *Store) AddEmbedding(item *types.EmbeddingItem) (string, error) {
	if !s.initialized {
		return "", fmt.Errorf("%w: store not initialized", types.ErrStoreFailed)
	}
	if item == nil || len(item.Vector) == 0 {
		return "", fmt.Errorf("%w: empty vector", types.ErrStoreFailed)
	}
	if !types.ValidKind(string(item.Kind)) {
		return "", fmt.Errorf("%w: unknown kind %q", types.ErrStoreFailed, item.Kind)
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	if err := s.insert(item); err != nil {
		return "", err
	}

	s.maybeRefreshIndex()

	return item.ID, nil
}

// insert writes the item row and its embedding in one transaction. The first
// insert into an empty store also creates the vector table and persists the
// dimension within that same transaction, so a failed first insert leaves the
// dimension unestablished.
func (s *Store) insert(item *types.EmbeddingItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	firstInsert := s.dimensions == 0
	if !firstInsert && len(item.Vector) != s.dimensions {
		return &types.DimensionMismatchError{Expected: s.dimensions, Actual: len(item.Vector)}
	}

	childs := ""
	if len(item.Childs) > 0 {
		if data, err := json.Marshal(item.Childs); err == nil {
			childs = string(data)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if firstInsert {
		_, err = tx.Exec(fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS item_embeddings USING vec0(
				item_id TEXT PRIMARY KEY,
				embedding float[%d]
			)
		`, len(item.Vector)))
		if err != nil {
			return fmt.Errorf("failed to create vector table: %w", err)
		}
		_, err = tx.Exec(`INSERT OR REPLACE INTO metadata (key, value) VALUES ('dimensions', ?)`,
			strconv.Itoa(len(item.Vector)))
		if err != nil {
			return fmt.Errorf("failed to persist dimensions: %w", err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO items (id, item_type, parent_id, childs, path, kind, raw, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, string(item.Type), item.Parent, childs, item.Path, string(item.Kind), item.Raw, item.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store item %s: %w", item.ID, err)
	}

	_, err = tx.Exec(`
		INSERT INTO item_embeddings (item_id, embedding) VALUES (?, ?)
	`, item.ID, floatsToBytes(item.Vector))
	if err != nil {
		return fmt.Errorf("failed to store embedding for %s: %w", item.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if firstInsert {
		s.dimensions = len(item.Vector)
	}
	return nil
}

// GetByPath returns all items recorded for a path, one per kind.
func (s *Store) GetByPath(path string) ([]*types.EmbeddingItem, error) {
	return s.queryItems(`WHERE i.path = ?`, path)
}

// GetByID returns an item by id, or nil if it does not exist.
func (s *Store) GetByID(id string) (*types.EmbeddingItem, error) {
	items, err := s.queryItems(`WHERE i.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// Exists reports whether an item exists for (path, kind).
func (s *Store) Exists(path string, kind types.ItemKind) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM items WHERE path = ? AND kind = ?`, path, string(kind)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteEmbedding removes one item by id.
func (s *Store) DeleteEmbedding(id string) error {
	return s.deleteIDs([]string{id})
}

// DeleteByPath removes all items recorded for a path.
func (s *Store) DeleteByPath(path string) error {
	ids, err := s.collectIDs(`SELECT id FROM items WHERE path = ?`, path)
	if err != nil {
		return err
	}
	return s.deleteIDs(ids)
}

// DeleteByPathKind removes the item for (path, kind) if present.
func (s *Store) DeleteByPathKind(path string, kind types.ItemKind) error {
	ids, err := s.collectIDs(`SELECT id FROM items WHERE path = ? AND kind = ?`, path, string(kind))
	if err != nil {
		return err
	}
	return s.deleteIDs(ids)
}

// collectIDs runs a query that selects a single id column.
func (s *Store) collectIDs(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// deleteIDs removes items and their embeddings in one transaction.
func (s *Store) deleteIDs(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	hasVectors := s.Dimensions() > 0
	for _, id := range ids {
		if hasVectors {
			if _, err := tx.Exec(`DELETE FROM item_embeddings WHERE item_id = ?`, id); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(`DELETE FROM items WHERE id = ?`, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListByPrefix returns every item whose path is nested anywhere under prefix,
// excluding items recorded for prefix itself.
func (s *Store) ListByPrefix(prefix string) ([]*types.EmbeddingItem, error) {
	sep := string(filepath.Separator)
	pattern := strings.TrimSuffix(prefix, sep) + sep + "%"
	return s.queryItems(`WHERE i.path LIKE ? AND i.path != ?`, pattern, prefix)
}

// GetAllItems returns up to limit records (0 = no limit) for browsing.
func (s *Store) GetAllItems(limit int) ([]*types.EmbeddingItem, error) {
	if limit > 0 {
		return s.queryItems(`ORDER BY i.created_at LIMIT ?`, limit)
	}
	return s.queryItems(`ORDER BY i.created_at`)
}

// queryItems selects items joined with their embeddings. clause is appended
// to the base SELECT.
func (s *Store) queryItems(clause string, args ...any) ([]*types.EmbeddingItem, error) {
	if s.Dimensions() == 0 {
		// No vector table yet means no items were ever written.
		return nil, nil
	}

	query := `
		SELECT i.id, i.item_type, i.parent_id, i.childs, i.path, i.kind, i.raw, i.created_at, e.embedding
		FROM items i
		LEFT JOIN item_embeddings e ON e.item_id = i.id
	` + clause

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*types.EmbeddingItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// scanItem reads one joined row into an EmbeddingItem.
func scanItem(rows *sql.Rows) (*types.EmbeddingItem, error) {
	var (
		item      types.EmbeddingItem
		itemType  string
		kind      string
		parent    sql.NullString
		childs    sql.NullString
		createdAt int64
		embedding []byte
	)

	err := rows.Scan(&item.ID, &itemType, &parent, &childs, &item.Path, &kind, &item.Raw, &createdAt, &embedding)
	if err != nil {
		return nil, err
	}

	item.Type = types.ItemType(itemType)
	item.Kind = types.ItemKind(kind)
	item.Parent = parent.String
	item.CreatedAt = time.Unix(0, createdAt)
	if childs.Valid && childs.String != "" {
		_ = json.Unmarshal([]byte(childs.String), &item.Childs)
	}
	if len(embedding) > 0 {
		item.Vector = bytesToFloats(embedding)
	}

	return &item, nil
}

// SearchSimilar returns up to limit items ranked by cosine similarity.
//
// The approximate index is consulted when built; rows inserted after the
// index snapshot are covered by an exact scan of the tail, and any index
// failure falls back to the exact sqlite-vec scan. A missing index degrades
// latency, never correctness.
func (s *Store) SearchSimilar(ctx context.Context, query []float32, limit int) ([]*types.SearchResult, error) {
	if !s.initialized {
		return nil, fmt.Errorf("%w: store not initialized", types.ErrStoreFailed)
	}
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	dims := s.dimensions
	idx := s.index
	s.mu.RUnlock()

	if dims == 0 {
		// Empty store: a valid, non-error outcome.
		return nil, nil
	}
	if len(query) != dims {
		return nil, &types.DimensionMismatchError{Expected: dims, Actual: len(query)}
	}

	if idx != nil {
		results, err := s.indexSearch(ctx, idx, query, limit)
		if err == nil {
			return results, nil
		}
		slog.Warn("approximate index search failed, falling back to exact scan", "error", err)
	}

	return s.exactSearch(ctx, query, limit, 0)
}

// exactSearch runs a full cosine-distance scan through sqlite-vec. When
// afterNanos is non-zero only rows created after that instant are scanned.
func (s *Store) exactSearch(ctx context.Context, query []float32, limit int, afterNanos int64) ([]*types.SearchResult, error) {
	sqlQuery := `
		SELECT i.id, i.item_type, i.parent_id, i.childs, i.path, i.kind, i.raw, i.created_at, e.embedding,
			vec_distance_cosine(e.embedding, ?) AS distance
		FROM item_embeddings e
		JOIN items i ON e.item_id = i.id
	`
	args := []any{floatsToBytes(query)}

	if afterNanos > 0 {
		sqlQuery += ` WHERE i.created_at > ?`
		args = append(args, afterNanos)
	}

	sqlQuery += ` ORDER BY distance ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search failed: %v", types.ErrStoreFailed, err)
	}
	defer rows.Close()

	var results []*types.SearchResult
	for rows.Next() {
		var (
			item      types.EmbeddingItem
			itemType  string
			kind      string
			parent    sql.NullString
			childs    sql.NullString
			createdAt int64
			embedding []byte
			distance  float64
		)

		err := rows.Scan(&item.ID, &itemType, &parent, &childs, &item.Path, &kind, &item.Raw,
			&createdAt, &embedding, &distance)
		if err != nil {
			return nil, err
		}

		item.Type = types.ItemType(itemType)
		item.Kind = types.ItemKind(kind)
		item.Parent = parent.String
		item.CreatedAt = time.Unix(0, createdAt)
		if childs.Valid && childs.String != "" {
			_ = json.Unmarshal([]byte(childs.String), &item.Childs)
		}
		if len(embedding) > 0 {
			item.Vector = bytesToFloats(embedding)
		}

		results = append(results, &types.SearchResult{
			Item:       &item,
			Similarity: clampSimilarity(1.0 - distance),
		})
	}

	return results, rows.Err()
}

// indexSearch probes the IVF index and merges the hits with an exact scan of
// rows newer than the index snapshot.
func (s *Store) indexSearch(ctx context.Context, idx *ivfIndex, query []float32, limit int) ([]*types.SearchResult, error) {
	hits := idx.search(query, limit)

	results := make([]*types.SearchResult, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, hit := range hits {
		item, err := s.GetByID(hit.ID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			// Row deleted since the last build; the index is stale for it.
			continue
		}
		seen[item.ID] = true
		results = append(results, &types.SearchResult{
			Item:       item,
			Similarity: clampSimilarity(float64(hit.Score)),
		})
	}

	// Rows inserted after the snapshot are not in the index yet.
	tail, err := s.exactSearch(ctx, query, limit, idx.builtAt)
	if err != nil {
		return nil, err
	}
	for _, r := range tail {
		if !seen[r.Item.ID] {
			results = append(results, r)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// Count returns the number of stored items.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// StorageSize returns the on-disk size in bytes, including the WAL.
func (s *Store) StorageSize() (int64, error) {
	var size int64
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}
	size = info.Size()

	if wal, err := os.Stat(s.path + "-wal"); err == nil {
		size += wal.Size()
	}

	return size, nil
}

// Clear drops all records and resets the dimension so a new embedding model
// can be adopted.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM items`); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}
	if _, err := s.db.Exec(`DROP TABLE IF EXISTS item_embeddings`); err != nil {
		return fmt.Errorf("failed to drop vector table: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM metadata WHERE key = 'dimensions'`); err != nil {
		return err
	}

	s.dimensions = 0
	s.index = nil
	s.rowsAtBuild = 0
	return nil
}

// Metadata helpers

func (s *Store) getMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *Store) setMeta(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`, key, value)
	return err
}

// Index lifecycle

// maybeRefreshIndex builds or rebuilds the approximate index in the
// background when the row count crosses the build thresholds. Construction
// failures are swallowed and logged: a missing index degrades query latency,
// never correctness.
func (s *Store) maybeRefreshIndex() {
	count, err := s.Count()
	if err != nil {
		return
	}
	if count < indexMinRows {
		return
	}

	s.mu.RLock()
	built := s.index != nil
	rowsAtBuild := s.rowsAtBuild
	s.mu.RUnlock()

	if built && count-rowsAtBuild < indexRebuildRows {
		return
	}

	// Never two concurrent builds.
	if !s.indexBusy.CompareAndSwap(false, true) {
		return
	}

	s.indexWG.Add(1)
	go func() {
		defer s.indexWG.Done()
		defer s.indexBusy.Store(false)

		idx, rows, err := s.buildIndex()
		if err != nil {
			slog.Warn("approximate index build failed", "error", err)
			return
		}

		s.mu.Lock()
		s.index = idx
		s.rowsAtBuild = rows
		s.mu.Unlock()

		slog.Info("approximate index built",
			"rows", rows,
			"partitions", len(idx.centroids),
		)
	}()
}

// buildIndex reads all stored vectors and clusters them into an IVF index.
func (s *Store) buildIndex() (*ivfIndex, int, error) {
	rows, err := s.db.Query(`
		SELECT i.id, e.embedding, i.created_at
		FROM items i
		JOIN item_embeddings e ON e.item_id = i.id
	`)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		ids     []string
		vectors [][]float32
		builtAt int64
	)
	for rows.Next() {
		var (
			id        string
			embedding []byte
			createdAt int64
		)
		if err := rows.Scan(&id, &embedding, &createdAt); err != nil {
			return nil, 0, err
		}
		ids = append(ids, id)
		vectors = append(vectors, bytesToFloats(embedding))
		if createdAt > builtAt {
			builtAt = createdAt
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// A clustering algorithm cannot produce more clusters than points.
	partitions := numPartitions(len(ids))

	idx, err := buildIVF(s.Dimensions(), partitions, ids, vectors, builtAt)
	if err != nil {
		return nil, 0, err
	}

	return idx, len(ids), nil
}

// numPartitions scales the partition count with corpus size, capped at
// indexMaxPartitions and never exceeding the row count.
func numPartitions(count int) int {
	p := 1
	for p*p < count {
		p++
	}
	if p > indexMaxPartitions {
		p = indexMaxPartitions
	}
	if p > count {
		p = count
	}
	if p < 1 {
		p = 1
	}
	return p
}

// clampSimilarity maps a raw similarity into [0,1].
func clampSimilarity(v float64) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return float32(v)
}

// Ensure Store implements VectorStore interface
var _ provider.VectorStore = (*Store)(nil)
