package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbed_OpenAIShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "UNSET_EMBED_KEY", Model: "m"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Dimension())

	v, err := c.Embed(context.Background(), "hola")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
	assert.Equal(t, 3, c.Dimension())
	assert.Equal(t, "openai:m", c.Name())
}

func TestEmbed_OllamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[1,0]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "UNSET_EMBED_KEY"}, nil)
	require.NoError(t, err)
	v, err := c.Embed(context.Background(), "hola")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, v)
}

func TestEmbed_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "UNSET_EMBED_KEY"}, nil)
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), "hola")
	assert.EqualError(t, err, "no embedding returned")
}

func TestNewClient_RequiresKeyForOpenAI(t *testing.T) {
	t.Setenv("UNSET_EMBED_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "UNSET_EMBED_KEY"}, nil)
	assert.Error(t, err)
}
