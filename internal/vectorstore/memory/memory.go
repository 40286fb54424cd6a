package memory

import (
	"context"
	"errors"
	"sync"

	"courserag/internal/domain"
	"courserag/internal/vectorstore"
)

// Storage is a process-local vector store using brute-force cosine similarity.
// Contents are lost on exit; use it for tests and throwaway sessions.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	chunks    []domain.Chunk
}

var _ vectorstore.Storage = (*Storage)(nil)

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dim := s.dimension
	for _, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return errors.New("vector dimension mismatch")
		}
	}
	s.dimension = dim
	pos := make(map[string]int, len(s.chunks))
	for i, ch := range s.chunks {
		pos[ch.ID] = i
	}
	for i, ch := range chunks {
		if j, ok := pos[ch.ID]; ok {
			s.chunks[j] = ch
			s.vectors[j] = vectors[i]
			continue
		}
		s.chunks = append(s.chunks, ch)
		s.vectors = append(s.vectors, vectors[i])
	}
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		return nil, nil
	}
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		scores[i] = vectorstore.Cosine(s.vectors[i], vector)
	}
	idxs := vectorstore.TopK(scores, topK)
	results := make([]domain.SearchResult, 0, len(idxs))
	for _, j := range idxs {
		results = append(results, domain.SearchResult{Chunk: s.chunks[j], Score: scores[j]})
	}
	return results, nil
}

func (s *Storage) DeleteSource(_ context.Context, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keptC := s.chunks[:0]
	keptV := s.vectors[:0]
	removed := 0
	for i, ch := range s.chunks {
		if ch.Source == source {
			removed++
			continue
		}
		keptC = append(keptC, ch)
		keptV = append(keptV, s.vectors[i])
	}
	s.chunks, s.vectors = keptC, keptV
	return removed, nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.chunks = nil
	s.dimension = 0
	return nil
}

func (s *Storage) Close() error { return nil }
