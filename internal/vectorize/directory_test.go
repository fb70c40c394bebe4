package vectorize

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spetr/dirvec/pkg/types"
)

func TestDirectoryOriginDescription(t *testing.T) {
	root := writeTree(t, map[string]string{
		"docs/readme.md": "r",
		"docs/guide.md":  "g",
		"docs/sub/x.md":  "x",
	})

	store := newMockStore()
	orch := newTestOrchestrator(store, newMockEmbedder(4), nil,
		types.KindFlags{Origin: true})

	if _, err := orch.VectorizeAll(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	item := store.itemFor(filepath.Join(root, "docs"), types.KindOrigin)
	if item == nil {
		t.Fatal("directory origin record missing")
	}
	if item.Type != types.ItemTypeDirectory {
		t.Errorf("type = %s", item.Type)
	}

	var payload types.DirectoryPayload
	if err := json.Unmarshal([]byte(item.Raw), &payload); err != nil {
		t.Fatalf("raw is not a directory payload: %v", err)
	}
	// Immediate files only; the subdirectory is not a file.
	if len(payload.Files) != 2 {
		t.Fatalf("files = %v, want the two markdown files", payload.Files)
	}
	if payload.Files[0] != "guide.md" || payload.Files[1] != "readme.md" {
		t.Errorf("files = %v, want sorted names", payload.Files)
	}
	if !strings.HasPrefix(payload.Description, "Directory contains 2 files:") {
		t.Errorf("description = %q", payload.Description)
	}
}

func TestAggregateSkippedWithoutContributors(t *testing.T) {
	// An empty directory has nothing to sum.
	root := t.TempDir()
	sub := filepath.Join(root, "empty")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	store := newMockStore()
	orch := newTestOrchestrator(store, newMockEmbedder(4), nil,
		types.KindFlags{VsOrigin: true, VsSummarize: true})

	result, err := orch.VectorizeAll(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	// Non-fatal skip: neither processed nor erred.
	if result.Processed != 0 || result.Errors != 0 {
		t.Errorf("result = %+v, want all zero", result)
	}
	if store.itemFor(sub, types.KindVsOrigin) != nil {
		t.Error("aggregate created with zero contributors")
	}
}

func TestAggregateSkipsMismatchedVector(t *testing.T) {
	root := writeTree(t, map[string]string{
		"dir/a.txt": "alpha",
		"dir/b.txt": "beta",
	})
	dir := filepath.Join(root, "dir")

	store := newMockStore()
	orch := newTestOrchestrator(store, newMockEmbedder(4), nil,
		types.KindFlags{Origin: true, VsOrigin: true})

	if _, err := orch.VectorizeAll(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	a := store.itemFor(filepath.Join(dir, "a.txt"), types.KindOrigin)
	b := store.itemFor(filepath.Join(dir, "b.txt"), types.KindOrigin)
	agg := store.itemFor(dir, types.KindVsOrigin)
	if a == nil || b == nil || agg == nil {
		t.Fatal("records missing")
	}

	// Corrupt one contributor's vector length, drop the aggregate, re-run.
	store.mu.Lock()
	for _, item := range store.items {
		if item.ID == b.ID {
			item.Vector = item.Vector[:2]
		}
	}
	store.mu.Unlock()
	if err := store.DeleteByPathKind(dir, types.KindVsOrigin); err != nil {
		t.Fatal(err)
	}

	if _, err := orch.VectorizeAll(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	agg = store.itemFor(dir, types.KindVsOrigin)
	if agg == nil {
		t.Fatal("aggregate not recreated")
	}
	// Only the intact vector contributed.
	for i := range agg.Vector {
		if agg.Vector[i] != a.Vector[i] {
			t.Fatalf("aggregate[%d] = %f, want %f", i, agg.Vector[i], a.Vector[i])
		}
	}
}

func TestAggregateIgnoresGrandchildren(t *testing.T) {
	root := writeTree(t, map[string]string{
		"dir/f.txt":     "f",
		"dir/sub/g.txt": "g",
	})
	dir := filepath.Join(root, "dir")
	sub := filepath.Join(dir, "sub")

	store := newMockStore()
	orch := newTestOrchestrator(store, newMockEmbedder(4), nil,
		types.KindFlags{Origin: true, VsOrigin: true})

	if _, err := orch.VectorizeAll(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	f := store.itemFor(filepath.Join(dir, "f.txt"), types.KindOrigin)
	subAgg := store.itemFor(sub, types.KindVsOrigin)
	dirAgg := store.itemFor(dir, types.KindVsOrigin)
	if f == nil || subAgg == nil || dirAgg == nil {
		t.Fatal("records missing")
	}

	// dir aggregates f.txt's origin plus sub's aggregate - never g.txt's
	// origin directly (it is already inside sub's aggregate).
	for i := range dirAgg.Vector {
		want := f.Vector[i] + subAgg.Vector[i]
		if diff := dirAgg.Vector[i] - want; diff > 1e-5 || diff < -1e-5 {
			t.Fatalf("aggregate[%d] = %f, want %f", i, dirAgg.Vector[i], want)
		}
	}
}

func TestAggregateRequiresAggregateKind(t *testing.T) {
	store := newMockStore()
	orch := newTestOrchestrator(store, newMockEmbedder(4), nil, allKinds())

	_, err := orch.storeAggregate("/project/dir", "", types.KindOrigin)
	if err == nil {
		t.Fatal("expected error for a non-aggregate kind")
	}
	if !errors.Is(err, types.ErrVectorizationFailed) {
		t.Fatalf("error = %v, want ErrVectorizationFailed", err)
	}
}
