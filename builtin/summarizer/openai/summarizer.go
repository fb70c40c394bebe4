// Package openai implements Summarizer using OpenAI's chat completions API.
package openai

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/spetr/dirvec/pkg/provider"
)

// Default values
const (
	DefaultModel  = openai.GPT4oMini
	DefaultPrompt = "Summarize the following file content in a few sentences, focusing on its purpose and main elements:"
)

// Config contains OpenAI summarizer configuration.
type Config struct {
	Model   string
	APIKey  string // If empty, uses OPENAI_API_KEY env var
	BaseURL string // Optional: custom API endpoint
}

// Summarizer implements the Summarizer interface using OpenAI.
type Summarizer struct {
	config Config
	client *openai.Client
}

// New creates a new OpenAI summarizer.
func New(cfg Config) *Summarizer {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Summarizer{
		config: cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

// Name returns the summarizer name.
func (s *Summarizer) Name() string {
	return "openai"
}

// Summarize produces a summary of text using the configured model.
func (s *Summarizer) Summarize(ctx context.Context, text, prompt string) (string, error) {
	if prompt == "" {
		prompt = DefaultPrompt
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: prompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("openai summarization failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("openai returned an empty summary")
	}

	return summary, nil
}

// Close releases resources.
func (s *Summarizer) Close() error {
	return nil
}

// Ensure Summarizer implements the Summarizer interface
var _ provider.Summarizer = (*Summarizer)(nil)
