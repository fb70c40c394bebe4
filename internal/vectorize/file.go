package vectorize

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/spetr/dirvec/pkg/types"
)

const binarySniffLen = 8000

// vectorizeFile maintains the origin and summarize records of one file.
// Each kind fails independently; a read failure yields one error and no
// records, without aborting the caller's walk.
func (o *Orchestrator) vectorizeFile(ctx context.Context, path, parentID string) types.VectorizeResult {
	var result types.VectorizeResult

	if !o.opts.Kinds.Origin {
		o.cleanupKind(path, types.KindOrigin)
	}
	if !o.opts.Kinds.Summarize {
		o.cleanupKind(path, types.KindSummarize)
	}

	needOrigin := o.needsKind(path, types.KindOrigin, o.opts.Kinds.Origin)
	needSummarize := o.needsKind(path, types.KindSummarize, o.opts.Kinds.Summarize)

	if !needOrigin && !needSummarize {
		// Up to date: no provider calls.
		return result
	}

	// Content is read exactly once and shared by both kinds.
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("failed to read file", "path", path, "error", err)
		result.Errors++
		return result
	}
	if isBinary(data) {
		slog.Debug("skipping binary file", "path", path)
		result.Errors++
		return result
	}
	content := string(data)

	if needOrigin {
		if err := o.storeOrigin(ctx, path, parentID, content); err != nil {
			slog.Warn("origin vectorization failed", "path", path, "error", err)
			result.Errors++
		} else {
			result.Processed++
		}
	}

	if needSummarize {
		if err := o.storeSummarize(ctx, path, parentID, content); err != nil {
			slog.Warn("summarize vectorization failed", "path", path, "error", err)
			result.Errors++
		} else {
			result.Processed++
		}
	}

	return result
}

// storeOrigin embeds the raw content verbatim.
func (o *Orchestrator) storeOrigin(ctx context.Context, path, parentID, content string) error {
	vector, err := o.embedOne(ctx, content)
	if err != nil {
		return err
	}
	return o.replaceItem(&types.EmbeddingItem{
		Type:   types.ItemTypeFile,
		Parent: parentID,
		Path:   path,
		Kind:   types.KindOrigin,
		Raw:    content,
		Vector: vector,
	})
}

// storeSummarize summarizes the content and embeds the summary. A summarizer
// failure degrades to embedding the truncated raw text, so an unavailable
// summarizer still produces a usable vector.
func (o *Orchestrator) storeSummarize(ctx context.Context, path, parentID, content string) error {
	text := truncate(content, o.opts.MaxSummarizeChars)

	summary := ""
	if o.summarizer != nil {
		s, err := o.summarizer.Summarize(ctx, text, o.opts.SummarizePrompt)
		if err != nil {
			slog.Warn("summarizer failed, embedding truncated content instead",
				"path", path, "error", err)
		} else {
			summary = s
		}
	}
	if summary == "" {
		summary = text
	}

	vector, err := o.embedOne(ctx, summary)
	if err != nil {
		return err
	}
	return o.replaceItem(&types.EmbeddingItem{
		Type:   types.ItemTypeFile,
		Parent: parentID,
		Path:   path,
		Kind:   types.KindSummarize,
		Raw:    summary,
		Vector: vector,
	})
}

// truncate caps text at max bytes, flagging the cut in the text itself so
// the summarizer sees it is working with a fragment. The cut backs off to a
// rune boundary so the result is always valid UTF-8.
func truncate(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "\n[content truncated]"
}

// isBinary reports whether content looks like binary data: a NUL byte or
// invalid UTF-8 within the sniff window.
func isBinary(data []byte) bool {
	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return true
	}
	if utf8.Valid(sniff) {
		return false
	}
	// A rune cut by the window edge is not binary.
	if len(sniff) < len(data) {
		for i := 1; i < utf8.UTFMax && i < len(sniff); i++ {
			if utf8.Valid(sniff[:len(sniff)-i]) {
				return false
			}
		}
	}
	return true
}
