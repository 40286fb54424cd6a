// Package provider is the HTTP transport shared by the OpenAI-compatible
// embedding and chat clients. It retries 429 and 5xx responses with
// exponential backoff and honours Retry-After.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"courserag/internal/logger"
)

// Config configures an OpenAI-compatible endpoint.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Timeout    time.Duration
	MaxRetries int
	// AllowAnonymous permits an empty API key, as local Ollama servers need none.
	AllowAnonymous bool
}

// Client posts JSON to an OpenAI-compatible API.
type Client struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	maxRetries int
	log        *zap.Logger
	sleep      func(context.Context, time.Duration) error
}

// NewClient creates a client. The API key is read from the env var named by cfg.APIKeyEnv.
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" && !cfg.AllowAnonymous {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 5
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     key,
		client:     &http.Client{Timeout: t},
		maxRetries: retries,
		log:        logger.OrNop(log),
		sleep:      sleepCtx,
	}, nil
}

// StatusError is returned when the endpoint answers with a non-retryable status,
// or keeps failing after all retries.
type StatusError struct {
	Status string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: %s", e.Status, e.Body)
	}
	return e.Status
}

// PostJSON sends body to path and returns the raw response payload.
func (c *Client) PostJSON(ctx context.Context, path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := c.baseURL + path
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.log.Debug("retrying provider request", zap.String("url", url), zap.Int("attempt", attempt), zap.Error(lastErr))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if err := c.sleep(ctx, retryDelay(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &StatusError{Status: resp.Status, Code: resp.StatusCode, Body: snippet(payload)}
			wait := retryDelay(attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					wait = time.Duration(secs) * time.Second
				}
			}
			if attempt < c.maxRetries {
				if err := c.sleep(ctx, wait); err != nil {
					return nil, err
				}
			}
			continue
		}
		if resp.StatusCode >= 300 {
			return nil, &StatusError{Status: resp.Status, Code: resp.StatusCode, Body: snippet(payload)}
		}
		if readErr != nil {
			lastErr = readErr
			if err := c.sleep(ctx, retryDelay(attempt)); err != nil {
				return nil, err
			}
			continue
		}
		return payload, nil
	}
	return nil, lastErr
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
