package vectorize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spetr/dirvec/pkg/types"
)

// vectorizeDirectory maintains a directory's own description record (origin)
// and its aggregate records (vs_origin, vs_summarize). Aggregates sum the
// vectors of immediate children: files contribute their origin/summarize
// vector, subdirectories their already-computed vs_origin/vs_summarize.
// Deepest-first traversal guarantees those records exist by the time the
// directory is visited.
func (o *Orchestrator) vectorizeDirectory(ctx context.Context, path, parentID string) types.VectorizeResult {
	var result types.VectorizeResult

	if !o.opts.Kinds.Origin {
		o.cleanupKind(path, types.KindOrigin)
	}
	if !o.opts.Kinds.VsOrigin {
		o.cleanupKind(path, types.KindVsOrigin)
	}
	if !o.opts.Kinds.VsSummarize {
		o.cleanupKind(path, types.KindVsSummarize)
	}

	if o.needsKind(path, types.KindOrigin, o.opts.Kinds.Origin) {
		if err := o.storeDirOrigin(ctx, path, parentID); err != nil {
			slog.Warn("directory origin failed", "path", path, "error", err)
			result.Errors++
		} else {
			result.Processed++
		}
	}

	for _, kind := range []types.ItemKind{types.KindVsOrigin, types.KindVsSummarize} {
		enabled := o.opts.Kinds.VsOrigin
		if kind == types.KindVsSummarize {
			enabled = o.opts.Kinds.VsSummarize
		}
		if !o.needsKind(path, kind, enabled) {
			continue
		}
		stored, err := o.storeAggregate(path, parentID, kind)
		if err != nil {
			slog.Warn("directory aggregate failed", "path", path, "kind", kind, "error", err)
			result.Errors++
		} else if stored {
			result.Processed++
		}
		// Zero contributors: non-fatal skip, neither processed nor erred.
	}

	return result
}

// storeDirOrigin embeds a generated description of the directory's immediate
// files. The raw payload keeps both the description and the file list.
func (o *Orchestrator) storeDirOrigin(ctx context.Context, path, parentID string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrVectorizationFailed, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	description := fmt.Sprintf("Directory contains %d files: %s",
		len(files), strings.Join(files, ", "))

	vector, err := o.embedOne(ctx, description)
	if err != nil {
		return err
	}

	payload := types.DirectoryPayload{Description: description, Files: files}
	return o.replaceItem(&types.EmbeddingItem{
		Type:   types.ItemTypeDirectory,
		Parent: parentID,
		Path:   path,
		Kind:   types.KindOrigin,
		Raw:    payload.Encode(),
		Vector: vector,
		Childs: o.childIDs(path),
	})
}

// storeAggregate sums the contributing child vectors for one aggregate kind.
// Returns false without error when no contributors exist.
func (o *Orchestrator) storeAggregate(path, parentID string, kind types.ItemKind) (bool, error) {
	if !kind.IsAggregate() {
		return false, fmt.Errorf("%w: %s is not an aggregate kind", types.ErrVectorizationFailed, kind)
	}

	items, err := o.store.ListByPrefix(path)
	if err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrStoreFailed, err)
	}

	// Every contributor must carry the store's established dimension; an
	// individual mismatch is skipped, never fatal.
	dims := o.store.Dimensions()

	var (
		sum          []float32
		contributors int
		childs       []string
	)
	for _, item := range items {
		if filepath.Dir(item.Path) != path {
			continue
		}
		// One level of the desired kind: child files contribute their source
		// kind, child directories their own aggregate of the same kind.
		switch item.Type {
		case types.ItemTypeFile:
			if item.Kind != kind.Source() {
				continue
			}
		case types.ItemTypeDirectory:
			if item.Kind != kind {
				continue
			}
		default:
			continue
		}

		if dims > 0 && len(item.Vector) != dims {
			slog.Warn("skipping vector with mismatched length",
				"path", item.Path, "kind", item.Kind,
				"len", len(item.Vector), "want", dims)
			continue
		}
		if sum == nil {
			sum = make([]float32, len(item.Vector))
		}
		for i, v := range item.Vector {
			sum[i] += v
		}
		contributors++
		childs = append(childs, item.ID)
	}

	if contributors == 0 {
		slog.Debug("no contributing vectors for aggregate", "path", path, "kind", kind)
		return false, nil
	}

	err = o.replaceItem(&types.EmbeddingItem{
		Type:   types.ItemTypeDirectory,
		Parent: parentID,
		Path:   path,
		Kind:   kind,
		Raw:    fmt.Sprintf("vector sum of %d child records (%s)", contributors, kind.Source()),
		Vector: sum,
		Childs: childs,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// childIDs collects the ids of immediate children records, ordered by path.
func (o *Orchestrator) childIDs(path string) []string {
	items, err := o.store.ListByPrefix(path)
	if err != nil {
		return nil
	}

	var children []*types.EmbeddingItem
	for _, item := range items {
		if filepath.Dir(item.Path) == path {
			children = append(children, item)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		if children[i].Path != children[j].Path {
			return children[i].Path < children[j].Path
		}
		return children[i].Kind < children[j].Kind
	})

	ids := make([]string, 0, len(children))
	for _, c := range children {
		ids = append(ids, c.ID)
	}
	return ids
}
