package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/domain"
	apperr "courserag/internal/errors"
)

func lima(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Lima")
	if err != nil {
		return time.FixedZone("America/Lima", -5*3600)
	}
	return loc
}

func TestParseDate(t *testing.T) {
	loc := lima(t)
	want := time.Date(2025, time.March, 15, 0, 0, 0, 0, loc)

	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"slashes", "15/03/2025", true},
		{"dashes", "15-03-2025", true},
		{"spanish long form with del", "15 de marzo del 2025", true},
		{"spanish long form with de", "el 15 de Marzo de 2025", true},
		{"iso", "2025-03-15", true},
		{"no date", "pronto", false},
		{"impossible day", "31/02/2025", false},
		{"unknown month", "15 de brumario de 2025", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input, loc)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, want.Equal(got), "got %v", got)
			}
		})
	}
}

func TestParseDate_Setiembre(t *testing.T) {
	got, ok := ParseDate("2 de setiembre del 2025", time.UTC)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.September, 2, 0, 0, 0, 0, time.UTC), got)
}

func TestParseDate_SkipsInvalidThenFindsValid(t *testing.T) {
	got, ok := ParseDate("31/02/2025 o 01/03/2025", time.UTC)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestExtractText_FullCandidate(t *testing.T) {
	loc := lima(t)
	e := New(nil, Options{Location: loc}, nil)

	got := e.ExtractText("Macroeconomía", "Examen Parcial: 15/04/2025, 20%, virtual", "silabo.pdf", 3)
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, "Macroeconomía", c.Course)
	assert.Equal(t, "Examen", c.Type)
	require.NotNil(t, c.Date)
	assert.True(t, time.Date(2025, time.April, 15, 0, 0, 0, 0, loc).Equal(*c.Date))
	require.NotNil(t, c.Weight)
	assert.Equal(t, 20, *c.Weight)
	assert.Equal(t, "Virtual", c.Modality)
	assert.Equal(t, "silabo.pdf", c.Source)
	assert.Equal(t, 3, c.Page)
}

func TestExtractText_Schedule(t *testing.T) {
	e := New(nil, Options{Location: time.UTC}, nil)
	text := "Cronograma de evaluaciones\n" +
		"Práctica Calificada 1: 10/04/2025 (15%)\n" +
		"Examen Parcial: 15 de abril del 2025, 25%\n" +
		"Examen Final: 2025-07-01, 30%, escrito\n" +
		"\n" +
		"Bibliografía: Mankiw, Macroeconomía, 2014.\n" +
		"\n" +
		"Trabajo grupal: fecha por definir"

	got := e.ExtractText("Macroeconomía", text, "silabo.pdf", 2)
	require.Len(t, got, 3)

	assert.Equal(t, "Práctica", got[0].Type)
	assert.Equal(t, "2025-04-10", got[0].Date.Format("2006-01-02"))
	assert.Equal(t, 15, *got[0].Weight)

	assert.Equal(t, "Examen", got[1].Type)
	assert.Equal(t, "2025-04-15", got[1].Date.Format("2006-01-02"))
	assert.Equal(t, 25, *got[1].Weight)
	assert.Empty(t, got[1].Modality)

	assert.Equal(t, "Examen", got[2].Type)
	assert.Equal(t, "2025-07-01", got[2].Date.Format("2006-01-02"))
	assert.Equal(t, 30, *got[2].Weight)
	assert.Equal(t, "Escrito", got[2].Modality)
}

func TestExtractText_OptionalFields(t *testing.T) {
	e := New(nil, Options{Location: time.UTC}, nil)
	got := e.ExtractText("Finanzas", "Exposición: 03/06/2025", "guia.pdf", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "Exposición", got[0].Type)
	assert.Nil(t, got[0].Weight)
	assert.Empty(t, got[0].Modality)
}

func TestExtractText_StandaloneParcialAndFinal(t *testing.T) {
	e := New(nil, Options{Location: time.UTC}, nil)

	got := e.ExtractText("Macro", "Final: 20/07/2025, 30%, presencial", "silabo.pdf", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "Final", got[0].Type)
	assert.Equal(t, "2025-07-20", got[0].Date.Format("2006-01-02"))
	require.NotNil(t, got[0].Weight)
	assert.Equal(t, 30, *got[0].Weight)
	assert.Equal(t, "Presencial", got[0].Modality)

	got = e.ExtractText("Macro", "Parcial 15/04/2025 20%", "silabo.pdf", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "Parcial", got[0].Type)
	assert.Equal(t, "2025-04-15", got[0].Date.Format("2006-01-02"))
	require.NotNil(t, got[0].Weight)
	assert.Equal(t, 20, *got[0].Weight)
}

func TestExtractText_SharedDate(t *testing.T) {
	e := New(nil, Options{Location: time.UTC}, nil)
	got := e.ExtractText("Macro", "Examen parcial y práctica calificada: 15/04/2025, virtual", "silabo.pdf", 1)
	require.Len(t, got, 2)
	for i, typ := range []string{"Examen", "Práctica"} {
		assert.Equal(t, typ, got[i].Type)
		assert.Equal(t, "2025-04-15", got[i].Date.Format("2006-01-02"))
		assert.Equal(t, "Virtual", got[i].Modality)
	}
}

func TestExtractText_HeaderDoesNotBorrowNextLineDate(t *testing.T) {
	e := New(nil, Options{Location: time.UTC}, nil)
	got := e.ExtractText("Macro", "Cronograma de evaluaciones\nPráctica 1: 10/04/2025", "silabo.pdf", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "Práctica", got[0].Type)
}

func TestExtractText_NoDateNoCandidate(t *testing.T) {
	e := New(nil, Options{Location: time.UTC}, nil)
	assert.Empty(t, e.ExtractText("Finanzas", "Examen parcial: pronto", "guia.pdf", 1))
	assert.Empty(t, e.ExtractText("Finanzas", "Examen parcial: 31/02/2025", "guia.pdf", 1))
	assert.Empty(t, e.ExtractText("Finanzas", "Reunión el 03/06/2025", "guia.pdf", 1))
}

type stubSearcher struct {
	results []domain.SearchResult
	err     error
	query   string
	k       int
}

func (s *stubSearcher) SimilaritySearch(_ context.Context, q string, k int) ([]domain.SearchResult, error) {
	s.query, s.k = q, k
	return s.results, s.err
}

func TestExtract_SearchesIndex(t *testing.T) {
	s := &stubSearcher{results: []domain.SearchResult{
		{Chunk: domain.Chunk{Source: "silabo.pdf", Page: 4, Text: "Examen Parcial: 15/04/2025, 20%, virtual"}},
		{Chunk: domain.Chunk{Source: "silabo.pdf", Page: 5, Text: "Examen Parcial: 15/04/2025"}},
	}}
	e := New(s, Options{Location: time.UTC}, nil)

	got, err := e.Extract(context.Background(), "Macroeconomía")
	require.NoError(t, err)
	assert.Contains(t, s.query, "Macroeconomía")
	assert.Equal(t, DefaultTopK, s.k)
	assert.Len(t, got, 2)
	assert.Len(t, Dedupe(got), 1)
	assert.Equal(t, 4, Dedupe(got)[0].Page)
}

func TestExtract_Errors(t *testing.T) {
	e := New(&stubSearcher{err: apperr.NewStorage("search", errors.New("locked"))}, Options{}, nil)
	_, err := e.Extract(context.Background(), "Macroeconomía")
	assert.True(t, apperr.Is(err, apperr.KindStorage))

	_, err = e.Extract(context.Background(), "  ")
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))
}

func TestDedupe_KeepsDistinctDates(t *testing.T) {
	d1 := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	in := []domain.Candidate{
		{Course: "M", Type: "Examen", Date: &d1},
		{Course: "M", Type: "Examen", Date: &d2},
		{Course: "M", Type: "Práctica", Date: &d1},
		{Course: "m", Type: "Examen", Date: &d1},
	}
	assert.Len(t, Dedupe(in), 3)
}
