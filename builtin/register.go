// Package builtin registers all built-in providers with the default registry.
package builtin

import (
	ollamaEmbed "github.com/spetr/dirvec/builtin/embedding/ollama"
	openaiEmbed "github.com/spetr/dirvec/builtin/embedding/openai"
	ollamaSum "github.com/spetr/dirvec/builtin/summarizer/ollama"
	openaiSum "github.com/spetr/dirvec/builtin/summarizer/openai"
	"github.com/spetr/dirvec/builtin/vectorstore/sqlitevec"
	"github.com/spetr/dirvec/pkg/provider"
)

func init() {
	// Register embedding providers
	provider.RegisterEmbedding("ollama", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return ollamaEmbed.New(ollamaEmbed.Config{
			Endpoint:  cfg.Endpoint,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
		}), nil
	})

	provider.RegisterEmbedding("openai", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return openaiEmbed.New(openaiEmbed.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
		}), nil
	})

	// Register summarizers
	provider.RegisterSummarizer("ollama", func(cfg provider.SummarizerConfig) (provider.Summarizer, error) {
		return ollamaSum.New(ollamaSum.Config{
			Endpoint: cfg.Endpoint,
			Model:    cfg.Model,
		}), nil
	})

	provider.RegisterSummarizer("openai", func(cfg provider.SummarizerConfig) (provider.Summarizer, error) {
		return openaiSum.New(openaiSum.Config{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
		}), nil
	})

	// Register vector stores
	provider.RegisterVectorStore("sqlitevec", func() (provider.VectorStore, error) {
		return sqlitevec.New(), nil
	})
}
