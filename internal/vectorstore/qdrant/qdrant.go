package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"courserag/internal/domain"
	"courserag/internal/vectorstore"
)

// pointNamespace derives stable Qdrant point IDs from chunk IDs.
var pointNamespace = uuid.MustParse("6f1c3a4e-2d0b-4c57-9a53-0c8e2f7d9b11")

// Storage is a minimal REST client to Qdrant.
// It uses cosine distance and creates the collection on first write.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu      sync.Mutex
	created bool
}

var _ vectorstore.Storage = (*Storage)(nil)

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID returns the Qdrant point ID used for a chunk.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return nil
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	if status == http.StatusNotFound {
		body := map[string]any{
			"vectors": map[string]any{"size": dimension, "distance": "Cosine"},
		}
		if _, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
			return err
		}
	}
	s.created = true
	return nil
}

// Count returns the exact number of points; a missing collection counts as empty.
func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp)
	if status == http.StatusNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}
	points := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		points[i] = map[string]any{
			"id":     PointID(ch.ID),
			"vector": vectors[i],
			"payload": map[string]any{
				"chunk_id":    ch.ID,
				"source":      ch.Source,
				"path":        ch.Path,
				"page":        ch.Page,
				"index":       ch.Index,
				"start":       ch.Start,
				"end":         ch.End,
				"size":        ch.Size,
				"mod_time":    ch.ModTime.Unix(),
				"ingested_at": ch.IngestedAt.Unix(),
				"text":        ch.Text,
			},
		}
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
	return err
}

// Search asks Qdrant for the topK nearest points. Qdrant does not guarantee
// tie order, so results are re-sorted stably by score then chunk ID, which
// is a ULID and therefore follows insertion order.
func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{Chunk: chunkFromPayload(r.Payload), Score: r.Score})
	}
	sortResults(results)
	return results, nil
}

func sortResults(results []domain.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
}

func chunkFromPayload(p map[string]any) domain.Chunk {
	str := func(k string) string {
		v, _ := p[k].(string)
		return v
	}
	num := func(k string) int64 {
		v, _ := p[k].(float64)
		return int64(v)
	}
	ch := domain.Chunk{
		ID:     str("chunk_id"),
		Text:   str("text"),
		Source: str("source"),
		Path:   str("path"),
		Page:   int(num("page")),
		Index:  int(num("index")),
		Start:  int(num("start")),
		End:    int(num("end")),
		Size:   int(num("size")),
	}
	if t := num("mod_time"); t > 0 {
		ch.ModTime = time.Unix(t, 0)
	}
	if t := num("ingested_at"); t > 0 {
		ch.IngestedAt = time.Unix(t, 0)
	}
	return ch
}

// DeleteSource removes every point whose payload source matches.
func (s *Storage) DeleteSource(ctx context.Context, source string) (int, error) {
	filter := map[string]any{
		"must": []map[string]any{{"key": "source", "match": map[string]any{"value": source}}},
	}
	var before struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true, "filter": filter}, &before)
	if status == http.StatusNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), map[string]any{"filter": filter}, nil); err != nil {
		return 0, err
	}
	return before.Result.Count, nil
}

// Clear drops the collection; it is recreated on the next write.
func (s *Storage) Clear(ctx context.Context) error {
	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	s.mu.Lock()
	s.created = false
	s.mu.Unlock()
	return nil
}

func (s *Storage) Close() error { return nil }

// do sends a JSON request and decodes the response into out. It returns the
// HTTP status alongside any error so callers can treat 404 specially.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
