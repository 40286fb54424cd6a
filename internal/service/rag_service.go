// Package service composes grounded, cited answers from retrieved passages,
// the conversation history and a chat model.
package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"courserag/internal/conversation"
	"courserag/internal/domain"
	apperr "courserag/internal/errors"
	"courserag/internal/logger"
)

const (
	// NoDocumentsMessage is returned without a model call when the index is empty.
	NoDocumentsMessage = "No hay documentos cargados. Agrega archivos PDF a la carpeta del curso y ejecuta la ingesta antes de hacer preguntas."
	// ApologyMessage is returned when retrieval or the model call fails.
	ApologyMessage = "Lo siento, ocurrió un error al procesar tu pregunta. Inténtalo de nuevo en unos momentos."

	// DefaultTopK is the number of passages placed in the prompt.
	DefaultTopK = 4

	defaultPersona = "Eres un asistente académico. Responde solo con el contexto proporcionado y cita siempre las fuentes."
)

// ReplyStatus classifies the outcome of Answer.
type ReplyStatus string

const (
	StatusOK          ReplyStatus = "ok"
	StatusNoDocuments ReplyStatus = "no_documents"
	StatusFailed      ReplyStatus = "failed"
)

// Reply is the user-visible result of one question.
type Reply struct {
	Text    string
	Status  ReplyStatus
	Sources []domain.SearchResult
	// Err is set when Status is StatusFailed.
	Err error
}

// Retriever is the read side of the index.
type Retriever interface {
	Count(ctx context.Context) (int, error)
	SimilaritySearch(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
}

// Options configures a Composer.
type Options struct {
	TopK    int
	Persona string
}

// Composer answers questions from the indexed corpus.
type Composer struct {
	index   Retriever
	llm     domain.Completer
	topK    int
	persona string
	log     *zap.Logger
}

// NewComposer creates a composer.
func NewComposer(idx Retriever, llm domain.Completer, opts Options, log *zap.Logger) *Composer {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if strings.TrimSpace(opts.Persona) == "" {
		opts.Persona = defaultPersona
	}
	return &Composer{index: idx, llm: llm, topK: opts.TopK, persona: opts.Persona, log: logger.OrNop(log)}
}

// Answer retrieves passages for query, asks the model with the session
// history and records the exchange on success. On failure the session is
// left untouched and a fixed apology is returned.
func (c *Composer) Answer(ctx context.Context, sess *conversation.Session, query string) Reply {
	log := c.log.With(zap.String("query", query))

	n, err := c.index.Count(ctx)
	if err != nil {
		return c.fail(log, err)
	}
	if n == 0 {
		log.Info("index is empty, skipping model call")
		return Reply{Text: NoDocumentsMessage, Status: StatusNoDocuments}
	}

	results, err := c.index.SimilaritySearch(ctx, query, c.topK)
	if err != nil {
		return c.fail(log, err)
	}

	var history []domain.Turn
	if sess != nil {
		history = sess.History()
	}
	messages := BuildMessages(c.persona, history, FormatContext(results), query)

	answer, err := c.llm.Complete(ctx, messages)
	if err != nil {
		return c.fail(log, err)
	}
	if sess != nil {
		sess.AppendExchange(query, answer)
	}
	log.Debug("answered", zap.Int("passages", len(results)), zap.Int("history", len(history)))
	return Reply{Text: answer, Status: StatusOK, Sources: results}
}

func (c *Composer) fail(log *zap.Logger, err error) Reply {
	if !apperr.Is(err, apperr.KindRetrieval) {
		err = apperr.NewRetrieval("answer", err)
	}
	log.Error("answer failed", zap.Error(err))
	return Reply{Text: ApologyMessage, Status: StatusFailed, Err: err}
}

// FormatContext renders results in rank order, each headed by its citation.
func FormatContext(results []domain.SearchResult) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[Source: %s, Page: %d]\n%s", r.Chunk.Source, r.Chunk.Page, r.Chunk.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// BuildMessages orders the prompt as persona, prior turns, then the final
// user turn carrying the context and the question.
func BuildMessages(persona string, history []domain.Turn, contextBlock, question string) []domain.Message {
	msgs := make([]domain.Message, 0, len(history)+2)
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: persona})
	for _, t := range history {
		msgs = append(msgs, domain.Message{Role: t.Role, Content: t.Text})
	}
	var b strings.Builder
	b.WriteString("Contexto:\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\nPregunta: ")
	b.WriteString(question)
	b.WriteString("\n\nResponde usando solo el contexto y cita cada fuente como [Source: archivo, Page: n].")
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: b.String()})
	return msgs
}
