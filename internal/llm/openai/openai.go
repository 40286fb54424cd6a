// Package openai implements domain.Completer against an OpenAI-compatible
// chat completions endpoint.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"courserag/internal/domain"
	"courserag/internal/provider"
)

const (
	// DefaultBaseURL is the OpenAI API base URL.
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-mini"
)

// Config configures the chat client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client sends chat completion requests.
type Client struct {
	api         *provider.Client
	model       string
	temperature float64
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []domain.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewClient creates a chat client.
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	api, err := provider.NewClient(provider.Config{
		BaseURL:        cfg.BaseURL,
		APIKeyEnv:      cfg.APIKeyEnv,
		Timeout:        cfg.Timeout,
		AllowAnonymous: cfg.BaseURL != DefaultBaseURL,
	}, log)
	if err != nil {
		return nil, err
	}
	return &Client{api: api, model: cfg.Model, temperature: cfg.Temperature}, nil
}

// Complete returns the content of the first choice.
func (c *Client) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	payload, err := c.api.PostJSON(ctx, "/chat/completions", chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", err
	}
	var resp chatResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("completion error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
