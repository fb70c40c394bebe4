// Package vectorize walks a project tree and maintains its embedding records:
// per-file content and summary vectors, per-directory description vectors and
// aggregate vector sums over descendants.
package vectorize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/spetr/dirvec/pkg/provider"
	"github.com/spetr/dirvec/pkg/types"
)

// Options controls a vectorization pass.
type Options struct {
	Kinds             types.KindFlags
	SummarizePrompt   string // "" uses the summarizer's default
	MaxSummarizeChars int    // cap on text handed to the summarizer
	Exclude           []string
	MaxFileSize       int64 // bytes, 0 = unlimited
}

// StatusFunc receives per-node lifecycle notifications. It is a sink only;
// the orchestrator never reads back from it.
type StatusFunc func(types.NodeStatus)

// Orchestrator walks a tree deepest-first and dispatches each node to the
// file or directory vectorizer. Nodes are processed sequentially: every
// directory aggregate depends on records its descendants have just written.
type Orchestrator struct {
	store      provider.VectorStore
	embedder   provider.EmbeddingProvider
	summarizer provider.Summarizer // nil when no summarize kind is enabled
	opts       Options
	onStatus   StatusFunc

	// Guards against two overlapping full-tree runs.
	processing atomic.Bool
}

// New creates an orchestrator. summarizer may be nil when neither summarize
// kind is enabled.
func New(store provider.VectorStore, embedder provider.EmbeddingProvider, summarizer provider.Summarizer, opts Options) *Orchestrator {
	if opts.MaxSummarizeChars <= 0 {
		opts.MaxSummarizeChars = 8000
	}
	return &Orchestrator{
		store:      store,
		embedder:   embedder,
		summarizer: summarizer,
		opts:       opts,
	}
}

// SetStatusFunc installs the per-node status observer.
func (o *Orchestrator) SetStatusFunc(fn StatusFunc) {
	o.onStatus = fn
}

// VectorizeAll processes every unprocessed node under root, deepest first.
// Only one full-tree run may be in flight; a concurrent call fails with
// types.ErrBusy. Node failures are counted and never abort the walk.
func (o *Orchestrator) VectorizeAll(ctx context.Context, root string) (*types.VectorizeResult, error) {
	if !o.processing.CompareAndSwap(false, true) {
		return nil, types.ErrBusy
	}
	defer o.processing.Store(false)

	root = filepath.Clean(root)
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("%w: cannot access root: %v", types.ErrVectorizationFailed, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%w: root is not a directory: %s", types.ErrVectorizationFailed, root)
	}

	nodes, err := collectNodes(root, o.opts.Exclude, o.opts.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("%w: tree walk failed: %v", types.ErrVectorizationFailed, err)
	}

	// Deepest first: a directory aggregate needs every descendant's record
	// already written. The root itself (depth 0) is never embedded.
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].depth > nodes[j].depth
	})

	for _, n := range nodes {
		if n.depth > 0 {
			o.emit(n.path, n.typ, types.NodeQueued, nil)
		}
	}

	result := &types.VectorizeResult{}
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if n.depth == 0 {
			continue
		}

		o.emit(n.path, n.typ, types.NodeProcessing, nil)

		parentID := o.resolveParentID(n.parent)

		var nodeResult types.VectorizeResult
		if n.typ == types.ItemTypeFile {
			nodeResult = o.vectorizeFile(ctx, n.path, parentID)
		} else {
			nodeResult = o.vectorizeDirectory(ctx, n.path, parentID)
		}
		result.Merge(nodeResult)

		if nodeResult.Errors > 0 {
			o.emit(n.path, n.typ, types.NodeFailed, nil)
		} else {
			o.emit(n.path, n.typ, types.NodeDone, nil)
		}
	}

	slog.Info("vectorization pass complete",
		"root", root,
		"processed", result.Processed,
		"errors", result.Errors,
	)
	return result, nil
}

// VectorizeFile processes a single file on demand and returns the id of its
// origin record (or the first record written). Unlike the full-tree walk,
// errors propagate directly to the caller.
func (o *Orchestrator) VectorizeFile(ctx context.Context, path string) (string, error) {
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrVectorizationFailed, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", types.ErrVectorizationFailed, path)
	}

	parentID := o.resolveParentID(filepath.Dir(path))

	o.emit(path, types.ItemTypeFile, types.NodeProcessing, nil)
	result := o.vectorizeFile(ctx, path, parentID)
	if result.Errors > 0 && result.Processed == 0 {
		err := fmt.Errorf("%w: %s", types.ErrVectorizationFailed, path)
		o.emit(path, types.ItemTypeFile, types.NodeFailed, err)
		return "", err
	}
	o.emit(path, types.ItemTypeFile, types.NodeDone, nil)

	items, err := o.store.GetByPath(path)
	if err != nil {
		return "", err
	}
	for _, item := range items {
		if item.Kind == types.KindOrigin {
			return item.ID, nil
		}
	}
	if len(items) > 0 {
		return items[0].ID, nil
	}
	return "", fmt.Errorf("%w: no record produced for %s", types.ErrVectorizationFailed, path)
}

// resolveParentID looks up an existing record for the parent path, preferring
// the origin kind. Missing parents resolve to "" - the parent reference is a
// weak edge, never a dependency.
func (o *Orchestrator) resolveParentID(parentPath string) string {
	if parentPath == "" {
		return ""
	}
	items, err := o.store.GetByPath(parentPath)
	if err != nil || len(items) == 0 {
		return ""
	}
	for _, item := range items {
		if item.Kind == types.KindOrigin {
			return item.ID
		}
	}
	return items[0].ID
}

// emit delivers a status notification if an observer is installed.
func (o *Orchestrator) emit(path string, typ types.ItemType, phase types.NodePhase, err error) {
	if o.onStatus == nil {
		return
	}
	o.onStatus(types.NodeStatus{Path: path, Type: typ, Phase: phase, Err: err})
}

// embedOne embeds a single text and validates the provider result.
func (o *Orchestrator) embedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingFailed, err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: provider returned %d vectors", types.ErrEmbeddingFailed, len(vectors))
	}
	return vectors[0], nil
}

// replaceItem enforces the at-most-one-record-per-(path, kind) invariant by
// deleting before inserting. The two steps are not atomic; a crash in between
// leaves a missing record that the next pass re-creates.
func (o *Orchestrator) replaceItem(item *types.EmbeddingItem) error {
	if err := o.store.DeleteByPathKind(item.Path, item.Kind); err != nil {
		return err
	}
	_, err := o.store.AddEmbedding(item)
	return err
}

// cleanupKind deletes the stored record for (path, kind) when the kind was
// disabled in configuration. Pure cleanup: neither processed nor erred.
func (o *Orchestrator) cleanupKind(path string, kind types.ItemKind) {
	exists, err := o.store.Exists(path, kind)
	if err != nil || !exists {
		return
	}
	if err := o.store.DeleteByPathKind(path, kind); err != nil {
		slog.Warn("failed to delete disabled kind", "path", path, "kind", kind, "error", err)
		return
	}
	slog.Debug("deleted disabled kind", "path", path, "kind", kind)
}

// needsKind applies the diffing policy: needed = enabled && !exists.
func (o *Orchestrator) needsKind(path string, kind types.ItemKind, enabled bool) bool {
	if !enabled {
		return false
	}
	exists, err := o.store.Exists(path, kind)
	if err != nil {
		slog.Warn("existence check failed", "path", path, "kind", kind, "error", err)
		return false
	}
	return !exists
}
