// Package index couples an embedder with a vector store and classifies
// failures: store faults become STORAGE errors, embedding faults RETRIEVAL.
package index

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"courserag/internal/domain"
	apperr "courserag/internal/errors"
	"courserag/internal/logger"
	"courserag/internal/vectorstore"
)

// DefaultK is the number of passages returned when k is not positive.
const DefaultK = 4

// Index is the searchable passage collection.
type Index struct {
	embedder domain.Embedder
	store    vectorstore.Storage
	log      *zap.Logger
}

// New creates an index.
func New(embedder domain.Embedder, store vectorstore.Storage, log *zap.Logger) *Index {
	return &Index{embedder: embedder, store: store, log: logger.OrNop(log)}
}

// Count returns the number of stored chunks. A zero count with a nil error
// means the store is empty, never that it is unavailable.
func (x *Index) Count(ctx context.Context) (int, error) {
	n, err := x.store.Count(ctx)
	if err != nil {
		return 0, apperr.NewStorage("count", err)
	}
	return n, nil
}

// Add embeds each chunk and persists the batch.
func (x *Index) Add(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	vectors := make([][]float32, len(chunks))
	for i, ch := range chunks {
		vec, err := x.embedder.Embed(ctx, ch.Text)
		if err != nil {
			return apperr.NewRetrieval("embed", fmt.Errorf("chunk %s of %s: %w", ch.ID, ch.Source, err))
		}
		vectors[i] = vec
	}
	if err := x.store.Upsert(ctx, chunks, vectors); err != nil {
		return apperr.NewStorage("add", err)
	}
	x.log.Debug("indexed chunks", zap.Int("count", len(chunks)), zap.String("embedder", x.embedder.Name()))
	return nil
}

// SimilaritySearch returns at most k chunks ranked by cosine similarity to
// query, most similar first, ties in insertion order.
func (x *Index) SimilaritySearch(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		k = DefaultK
	}
	vec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, apperr.NewRetrieval("embed query", err)
	}
	res, err := x.store.Search(ctx, vec, k)
	if err != nil {
		return nil, apperr.NewStorage("search", err)
	}
	if len(res) > k {
		res = res[:k]
	}
	return res, nil
}

// DeleteSource removes the chunks of one source file.
func (x *Index) DeleteSource(ctx context.Context, source string) (int, error) {
	n, err := x.store.DeleteSource(ctx, source)
	if err != nil {
		return 0, apperr.NewStorage("delete source", err)
	}
	return n, nil
}

// Reset empties the collection.
func (x *Index) Reset(ctx context.Context) error {
	if err := x.store.Clear(ctx); err != nil {
		return apperr.NewStorage("reset", err)
	}
	return nil
}
