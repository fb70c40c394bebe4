package provider

import (
	"context"
)

// Summarizer condenses text through an LLM call before embedding.
//
// Callers treat summarizer failures as non-fatal: the file vectorizer
// degrades to embedding the truncated original text instead.
type Summarizer interface {
	// Name returns the summarizer name (e.g., "ollama", "openai").
	Name() string

	// Summarize produces a shorter version of text. prompt overrides the
	// configured default instruction when non-empty.
	Summarize(ctx context.Context, text, prompt string) (string, error)

	// Close releases any resources.
	Close() error
}

// SummarizerConfig contains configuration for summarizers.
type SummarizerConfig struct {
	Provider string // "ollama", "openai"
	Model    string // Model name
	Endpoint string // API endpoint (for Ollama)
	APIKey   string // API key (for OpenAI)
}
