package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("default embedding provider = %s", cfg.Embedding.Provider)
	}
	if cfg.VectorStore.Provider != "sqlitevec" {
		t.Errorf("default vectorstore provider = %s", cfg.VectorStore.Provider)
	}
	if !cfg.Vectorize.EnableOrigin || !cfg.Vectorize.EnableVsOrigin {
		t.Error("origin kinds should be enabled by default")
	}
	if errs := Validate(cfg); len(errs) > 0 {
		t.Errorf("default config does not validate: %v", errs)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	root := t.TempDir()

	cfg, warnings, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) == 0 {
		t.Error("expected a warning about missing config file")
	}
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("provider = %s, want default", cfg.Embedding.Provider)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()

	cfg := DefaultConfig()
	cfg.Embedding.Provider = "openai"
	cfg.Embedding.Model = "text-embedding-3-small"
	cfg.Vectorize.EnableSummarize = false
	cfg.Search.DefaultLimit = 25

	if err := Save(root, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(ConfigPath(root)); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	loaded, _, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Embedding.Provider != "openai" {
		t.Errorf("provider = %s, want openai", loaded.Embedding.Provider)
	}
	if loaded.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("model = %s", loaded.Embedding.Model)
	}
	if loaded.Vectorize.EnableSummarize {
		t.Error("EnableSummarize should stay false")
	}
	if loaded.Search.DefaultLimit != 25 {
		t.Errorf("default limit = %d, want 25", loaded.Search.DefaultLimit)
	}
}

func TestLoadFillsMissingValues(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(ConfigDir(root), 0755); err != nil {
		t.Fatal(err)
	}
	partial := "embedding:\n  provider: openai\n"
	if err := os.WriteFile(ConfigPath(root), []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Embedding.BatchSize != 32 {
		t.Errorf("batch size = %d, want default 32", cfg.Embedding.BatchSize)
	}
	// Summarizer follows the embedding provider when unset.
	if cfg.Summarizer.Provider != "openai" {
		t.Errorf("summarizer provider = %s, want openai", cfg.Summarizer.Provider)
	}
	if cfg.Search.DefaultLimit != 10 {
		t.Errorf("default limit = %d, want 10", cfg.Search.DefaultLimit)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.Provider = "bogus"
	if errs := Validate(cfg); len(errs) == 0 {
		t.Error("expected error for unknown embedding provider")
	}

	cfg = DefaultConfig()
	cfg.Vectorize.EnableOrigin = false
	cfg.Vectorize.EnableSummarize = false
	if errs := Validate(cfg); len(errs) == 0 {
		t.Error("expected error when all file kinds are disabled")
	}

	cfg = DefaultConfig()
	cfg.Vectorize.EnableSummarize = false
	cfg.Vectorize.EnableVsSummarize = false
	cfg.Summarizer.Provider = "bogus"
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("summarizer provider should be ignored when summarize kinds are off: %v", errs)
	}
}

func TestHashChangesWithModel(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	if a.Hash() != b.Hash() {
		t.Error("identical configs produced different hashes")
	}

	b.Embedding.Model = "other-model"
	if a.Hash() == b.Hash() {
		t.Error("hash did not change with embedding model")
	}
}

func TestSavedHashRoundTrip(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()

	if got := SavedHash(root); got != "" {
		t.Errorf("SavedHash on fresh root = %q, want empty", got)
	}

	if err := WriteSavedHash(root, cfg); err != nil {
		t.Fatalf("WriteSavedHash: %v", err)
	}
	if got := SavedHash(root); got != cfg.Hash() {
		t.Errorf("SavedHash = %q, want %q", got, cfg.Hash())
	}

	// A model change is detectable against the recorded hash.
	changed := DefaultConfig()
	changed.Embedding.Model = "other-model"
	if SavedHash(root) == changed.Hash() {
		t.Error("recorded hash matches a different model configuration")
	}
}

func TestPaths(t *testing.T) {
	root := "/tmp/project"
	if got := ConfigDir(root); got != filepath.Join(root, ".dirvec") {
		t.Errorf("ConfigDir = %s", got)
	}
	if got := DBPath(root); got != filepath.Join(root, ".dirvec", "vectors.db") {
		t.Errorf("DBPath = %s", got)
	}
}
