package vectorstore

import (
	"context"
	"math"
	"sort"

	"courserag/internal/domain"
)

// Storage persists chunk vectors of one collection and supports similarity search.
type Storage interface {
	Count(ctx context.Context) (int, error)
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	// Search returns at most topK results, most similar first, ties in insertion order.
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	DeleteSource(ctx context.Context, source string) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero vector.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK returns the indexes of the k highest scores in descending order.
// Equal scores keep their original (insertion) order.
func TopK(scores []float64, k int) []int {
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(i, j int) bool { return scores[idxs[i]] > scores[idxs[j]] })
	if k < len(idxs) {
		idxs = idxs[:k]
	}
	return idxs
}
