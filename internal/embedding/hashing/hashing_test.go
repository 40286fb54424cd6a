package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestEmbed_DeterministicAndNormalised(t *testing.T) {
	e := NewEmbedder(256)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Examen parcial de Macroeconomía")
	require.NoError(t, err)
	b, err := NewEmbedder(256).Embed(ctx, "Examen parcial de Macroeconomía")
	require.NoError(t, err)

	assert.Len(t, a, 256)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, cosine(a, a), 1e-5)
}

func TestEmbed_AccentFoldingAndStopwords(t *testing.T) {
	e := NewEmbedder(0)
	ctx := context.Background()
	assert.Equal(t, DefaultDimension, e.Dimension())

	a, err := e.Embed(ctx, "la evaluación")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "EVALUACION")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cosine(a, b), 1e-5)
}

func TestEmbed_RelatedTextScoresHigher(t *testing.T) {
	e := NewEmbedder(512)
	ctx := context.Background()

	q, _ := e.Embed(ctx, "fecha del examen final")
	related, _ := e.Embed(ctx, "El examen final se rendirá en la fecha indicada")
	unrelated, _ := e.Embed(ctx, "Bibliografía recomendada para el curso")

	assert.Greater(t, cosine(q, related), cosine(q, unrelated))
}

func TestEmbed_NoTokensGivesZeroVector(t *testing.T) {
	v, err := NewEmbedder(64).Embed(context.Background(), "de la y el ...")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestFold(t *testing.T) {
	assert.Equal(t, "Practica Calificada nº", Fold("Práctica Calificada nº"))
	assert.Equal(t, "senal", Fold("señal"))
}
