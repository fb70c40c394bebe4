// Package ollama implements Summarizer using Ollama's generate API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spetr/dirvec/pkg/provider"
)

// Default values
const (
	DefaultModel    = "llama3.2"
	DefaultEndpoint = "http://localhost:11434"
	DefaultPrompt   = "Summarize the following file content in a few sentences, focusing on its purpose and main elements:"
)

// Config contains Ollama summarizer configuration.
type Config struct {
	Model    string
	Endpoint string
}

// Summarizer implements the Summarizer interface using Ollama.
type Summarizer struct {
	config Config
	client *http.Client
}

// New creates a new Ollama summarizer.
func New(cfg Config) *Summarizer {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}

	return &Summarizer{
		config: cfg,
		client: &http.Client{
			Timeout: 120 * time.Second, // LLM generation can be slow
		},
	}
}

// Name returns the summarizer name.
func (s *Summarizer) Name() string {
	return "ollama"
}

// Summarize produces a summary of text using the configured model.
func (s *Summarizer) Summarize(ctx context.Context, text, prompt string) (string, error) {
	if prompt == "" {
		prompt = DefaultPrompt
	}

	reqBody := map[string]any{
		"model":  s.config.Model,
		"prompt": prompt + "\n\n" + text,
		"stream": false,
		"options": map[string]any{
			"temperature": 0,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.Endpoint+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Response string `json:"response"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	summary := strings.TrimSpace(result.Response)
	if summary == "" {
		return "", fmt.Errorf("ollama returned an empty summary")
	}

	return summary, nil
}

// Close releases resources.
func (s *Summarizer) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Ensure Summarizer implements the Summarizer interface
var _ provider.Summarizer = (*Summarizer)(nil)
