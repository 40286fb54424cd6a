package openai

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"courserag/internal/provider"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	api   *provider.Client
	model string

	mu        sync.Mutex
	dimension int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	api, err := provider.NewClient(provider.Config{
		BaseURL:        cfg.BaseURL,
		APIKeyEnv:      cfg.APIKeyEnv,
		Timeout:        cfg.Timeout,
		AllowAnonymous: cfg.BaseURL != "" && cfg.BaseURL != "https://api.openai.com/v1",
	}, log)
	if err != nil {
		return nil, err
	}
	return &Client{api: api, model: cfg.Model}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension returns the vector size, known after the first Embed call.
func (c *Client) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dimension
}

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	type reqBody struct {
		Input  string `json:"input,omitempty"`
		Prompt string `json:"prompt,omitempty"`
		Model  string `json:"model"`
	}
	payload, err := c.api.PostJSON(ctx, "/embeddings", reqBody{Input: text, Prompt: text, Model: c.model})
	if err != nil {
		return nil, err
	}

	var v []float32
	// OpenAI shape first, then the Ollama-native { "embedding": [...] }.
	var openaiOut struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil && len(openaiOut.Data) > 0 {
		v = openaiOut.Data[0].Embedding
	}
	if len(v) == 0 {
		var ollamaOut struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(payload, &ollamaOut); err == nil {
			v = ollamaOut.Embedding
		}
	}
	if len(v) == 0 {
		return nil, errors.New("no embedding returned")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension == 0 {
		c.dimension = len(v)
	} else if c.dimension != len(v) {
		return nil, errors.New("embedding dimension changed between calls")
	}
	return v, nil
}
