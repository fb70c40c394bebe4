// Package types defines the shared data model for dirvec.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ItemType identifies what kind of filesystem node an embedding describes.
type ItemType string

const (
	ItemTypeFile      ItemType = "file"
	ItemTypeDirectory ItemType = "directory"
)

// ItemKind identifies which embedding of a node a record holds.
//
// origin and summarize apply to files and to a directory's own description.
// vs_origin and vs_summarize apply only to directories and hold the vector sum
// of descendants' origin/summarize (files) and vs_origin/vs_summarize
// (subdirectories) vectors.
type ItemKind string

const (
	KindOrigin      ItemKind = "origin"
	KindSummarize   ItemKind = "summarize"
	KindVsOrigin    ItemKind = "vs_origin"
	KindVsSummarize ItemKind = "vs_summarize"
)

// IsAggregate reports whether the kind is a directory aggregate (vector sum).
func (k ItemKind) IsAggregate() bool {
	return k == KindVsOrigin || k == KindVsSummarize
}

// Source returns the kind that feeds this aggregate from child files:
// vs_origin sums origin vectors, vs_summarize sums summarize vectors.
// For non-aggregate kinds it returns the kind itself.
func (k ItemKind) Source() ItemKind {
	switch k {
	case KindVsOrigin:
		return KindOrigin
	case KindVsSummarize:
		return KindSummarize
	default:
		return k
	}
}

// ValidKind reports whether s names a known embedding kind.
func ValidKind(s string) bool {
	switch ItemKind(s) {
	case KindOrigin, KindSummarize, KindVsOrigin, KindVsSummarize:
		return true
	}
	return false
}

// EmbeddingItem is one embedding record in the vector store.
//
// Path is not unique: one path may own several items distinguished by Kind.
// Parent is a weak reference (lookup only) - deleting a child never cascades
// to the parent and vice versa.
type EmbeddingItem struct {
	ID        string    `json:"id"`
	Type      ItemType  `json:"type"`
	Parent    string    `json:"parent,omitempty"`
	Childs    []string  `json:"childs,omitempty"`
	Path      string    `json:"path"`
	Kind      ItemKind  `json:"kind"`
	Raw       string    `json:"raw"`
	Vector    []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// DirectoryPayload is the structured raw payload stored for a directory's
// origin record.
type DirectoryPayload struct {
	Description string   `json:"description"`
	Files       []string `json:"files"`
}

// Encode marshals the payload for storage in EmbeddingItem.Raw.
func (p *DirectoryPayload) Encode() string {
	data, err := json.Marshal(p)
	if err != nil {
		return p.Description
	}
	return string(data)
}

// KindFlags selects which embedding kinds the vectorizers maintain.
// A disabled kind with a stored record is deleted on the next pass.
type KindFlags struct {
	Origin      bool
	Summarize   bool
	VsOrigin    bool
	VsSummarize bool
}

// VectorizeResult aggregates the outcome of a vectorization pass.
// Failures are counted, not enumerated - details go to the log.
type VectorizeResult struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// Merge adds another result into r.
func (r *VectorizeResult) Merge(other VectorizeResult) {
	r.Processed += other.Processed
	r.Errors += other.Errors
}

// SearchResult is one similarity search hit.
type SearchResult struct {
	Item       *EmbeddingItem `json:"item"`
	Similarity float32        `json:"similarity"`
}

// StoreStats describes the state of the vector store.
type StoreStats struct {
	TotalItems  int   `json:"total_items"`
	Dimensions  int   `json:"dimensions"`
	DBSizeBytes int64 `json:"db_size_bytes"`
}

// NodePhase is a lifecycle phase reported to the status observer.
type NodePhase string

const (
	NodeQueued     NodePhase = "queued"
	NodeProcessing NodePhase = "processing"
	NodeDone       NodePhase = "done"
	NodeFailed     NodePhase = "failed"
)

// NodeStatus is a per-node lifecycle notification emitted by the orchestrator.
// It is a notification sink only; the core never reads state back from it.
type NodeStatus struct {
	Path  string
	Type  ItemType
	Phase NodePhase
	Err   error
}

func (s NodeStatus) String() string {
	if s.Err != nil {
		return fmt.Sprintf("%s %s: %v", s.Phase, s.Path, s.Err)
	}
	return fmt.Sprintf("%s %s", s.Phase, s.Path)
}
