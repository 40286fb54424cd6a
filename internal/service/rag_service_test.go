package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/conversation"
	"courserag/internal/domain"
	"courserag/internal/embedding/hashing"
	apperr "courserag/internal/errors"
	"courserag/internal/index"
	"courserag/internal/vectorstore/memory"
)

type fakeCompleter struct {
	calls    [][]domain.Message
	response string
	err      error
}

func (f *fakeCompleter) Complete(_ context.Context, msgs []domain.Message) (string, error) {
	f.calls = append(f.calls, msgs)
	return f.response, f.err
}

type failingRetriever struct{ count int }

func (r failingRetriever) Count(context.Context) (int, error) { return r.count, nil }
func (failingRetriever) SimilaritySearch(context.Context, string, int) ([]domain.SearchResult, error) {
	return nil, apperr.NewStorage("search", errors.New("disk I/O error"))
}

func populatedIndex(t *testing.T) *index.Index {
	t.Helper()
	idx := index.New(hashing.NewEmbedder(256), memory.NewStorage(), nil)
	require.NoError(t, idx.Add(context.Background(), []domain.Chunk{
		{ID: "1", Source: "silabo.pdf", Page: 3, Text: "La nota mínima aprobatoria del curso es once."},
		{ID: "2", Source: "silabo.pdf", Page: 4, Text: "El examen parcial se rinde el 15/04/2025."},
		{ID: "3", Source: "guia.pdf", Page: 1, Text: "Bibliografía básica del curso."},
	}))
	return idx
}

func TestAnswer_EmptyIndexSkipsModel(t *testing.T) {
	llm := &fakeCompleter{response: "unused"}
	c := NewComposer(index.New(hashing.NewEmbedder(64), memory.NewStorage(), nil), llm, Options{}, nil)
	sess := conversation.New()

	reply := c.Answer(context.Background(), sess, "¿cuál es la nota mínima?")
	assert.Equal(t, StatusNoDocuments, reply.Status)
	assert.Equal(t, NoDocumentsMessage, reply.Text)
	assert.Empty(t, llm.calls)
	assert.Zero(t, sess.Len())
}

func TestAnswer_ComposesPromptAndRecordsExchange(t *testing.T) {
	llm := &fakeCompleter{response: "La nota mínima es 11 [Source: silabo.pdf, Page: 3]."}
	c := NewComposer(populatedIndex(t), llm, Options{TopK: 2, Persona: "persona"}, nil)
	sess := conversation.New()
	sess.AppendExchange("hola", "¡Hola!")

	reply := c.Answer(context.Background(), sess, "¿cuál es la nota mínima aprobatoria?")
	require.Equal(t, StatusOK, reply.Status)
	assert.Equal(t, llm.response, reply.Text)
	assert.NoError(t, reply.Err)
	require.Len(t, reply.Sources, 2)
	assert.Equal(t, "1", reply.Sources[0].Chunk.ID)

	require.Len(t, llm.calls, 1)
	msgs := llm.calls[0]
	require.Len(t, msgs, 4)
	assert.Equal(t, domain.Message{Role: domain.RoleSystem, Content: "persona"}, msgs[0])
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: "hola"}, msgs[1])
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Content: "¡Hola!"}, msgs[2])
	final := msgs[3]
	assert.Equal(t, domain.RoleUser, final.Role)
	assert.Contains(t, final.Content, "[Source: silabo.pdf, Page: 3]\nLa nota mínima aprobatoria del curso es once.")
	assert.Contains(t, final.Content, "¿cuál es la nota mínima aprobatoria?")

	h := sess.History()
	require.Len(t, h, 4)
	assert.Equal(t, "¿cuál es la nota mínima aprobatoria?", h[2].Text)
	assert.Equal(t, llm.response, h[3].Text)
}

func TestAnswer_ModelFailureLeavesHistory(t *testing.T) {
	llm := &fakeCompleter{err: errors.New("503 service unavailable")}
	c := NewComposer(populatedIndex(t), llm, Options{}, nil)
	sess := conversation.New()
	sess.AppendExchange("hola", "¡Hola!")

	reply := c.Answer(context.Background(), sess, "¿cuándo es el parcial?")
	assert.Equal(t, StatusFailed, reply.Status)
	assert.Equal(t, ApologyMessage, reply.Text)
	assert.True(t, apperr.Is(reply.Err, apperr.KindRetrieval))
	assert.Equal(t, 2, sess.Len())
}

func TestAnswer_StorageFailureIsRetrievalFailure(t *testing.T) {
	llm := &fakeCompleter{response: "unused"}
	c := NewComposer(failingRetriever{count: 3}, llm, Options{}, nil)

	reply := c.Answer(context.Background(), conversation.New(), "¿cuándo es el parcial?")
	assert.Equal(t, StatusFailed, reply.Status)
	assert.True(t, apperr.Is(reply.Err, apperr.KindRetrieval))
	assert.True(t, apperr.Is(reply.Err, apperr.KindStorage))
	assert.Empty(t, llm.calls)
}

func TestFormatContext(t *testing.T) {
	out := FormatContext([]domain.SearchResult{
		{Chunk: domain.Chunk{Source: "b.pdf", Page: 2, Text: "segundo"}},
		{Chunk: domain.Chunk{Source: "a.pdf", Page: 1, Text: "primero"}},
	})
	assert.Equal(t, "[Source: b.pdf, Page: 2]\nsegundo\n\n[Source: a.pdf, Page: 1]\nprimero", out)
	assert.Empty(t, FormatContext(nil))
}

func TestBuildMessages_NoHistory(t *testing.T) {
	msgs := BuildMessages("p", nil, "ctx", "q")
	require.Len(t, msgs, 2)
	assert.True(t, strings.HasPrefix(msgs[1].Content, "Contexto:\nctx"))
}
