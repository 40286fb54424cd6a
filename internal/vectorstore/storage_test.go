package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestTopK_StableOnTies(t *testing.T) {
	scores := []float64{0.5, 0.9, 0.5, 0.9, 0.1}
	assert.Equal(t, []int{1, 3, 0}, TopK(scores, 3))
	assert.Equal(t, []int{1, 3, 0, 2, 4}, TopK(scores, 10))
	assert.Empty(t, TopK(nil, 4))
	assert.Empty(t, TopK(scores, 0))
}
