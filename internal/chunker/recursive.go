// Package chunker splits page text into overlapping passages.
package chunker

import (
	"strings"
	"unicode"

	"github.com/oklog/ulid/v2"

	"courserag/internal/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// separators are tried in order; every entry of a level has equal priority.
var separators = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "? ", "! "},
	{" "},
}

// Span is a half-open rune range [Start, End) of the split text.
type Span struct {
	Start int
	End   int
	Text  string
}

// RecursiveChunker cuts text at the largest semantic boundary that fits the
// window: paragraph, then line, then sentence, then word, then a raw cut.
type RecursiveChunker struct {
	size    int
	overlap int
}

// Option configures the chunker.
type Option func(*RecursiveChunker)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *RecursiveChunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *RecursiveChunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *RecursiveChunker {
	c := &RecursiveChunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// Split returns the ordered spans of text. Whitespace-only text yields nil;
// text no longer than the chunk size yields a single span equal to it.
func (c *RecursiveChunker) Split(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)
	if n <= c.size {
		return []Span{{Start: 0, End: n, Text: text}}
	}

	var spans []Span
	start := 0
	for {
		if n-start <= c.size {
			spans = append(spans, Span{Start: start, End: n, Text: string(runes[start:n])})
			return spans
		}
		end := c.cut(runes, start)
		spans = append(spans, Span{Start: start, End: end, Text: string(runes[start:end])})

		next := end - c.overlap
		for p := next; p < end; p++ {
			if p > 0 && unicode.IsSpace(runes[p-1]) && !unicode.IsSpace(runes[p]) {
				next = p
				break
			}
		}
		start = next
	}
}

// cut picks the end of the window beginning at start. The end always lies
// past start+overlap so the next window makes progress.
func (c *RecursiveChunker) cut(runes []rune, start int) int {
	limit := start + c.size
	floor := start + c.overlap
	window := runes[start:limit]
	for _, level := range separators {
		best := -1
		for _, sep := range level {
			sr := []rune(sep)
			idx := lastIndex(window, sr)
			if idx < 0 {
				continue
			}
			end := start + idx + len(sr)
			if end > floor && end > best {
				best = end
			}
		}
		if best > 0 {
			return best
		}
	}
	return limit
}

func lastIndex(hay, needle []rune) int {
outer:
	for i := len(hay) - len(needle); i >= 0; i-- {
		for j := range needle {
			if hay[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// Chunk splits every page of document independently so each chunk carries a
// single page number. Chunks get monotonic ULIDs in document order.
func (c *RecursiveChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	idx := 0
	for _, page := range document.Pages {
		for _, sp := range c.Split(page.Text) {
			if strings.TrimSpace(sp.Text) == "" {
				continue
			}
			chunks = append(chunks, domain.Chunk{
				ID:      ulid.Make().String(),
				Text:    sp.Text,
				Source:  document.Filename,
				Path:    document.Path,
				Page:    page.Number,
				Index:   idx,
				Start:   sp.Start,
				End:     sp.End,
				Size:    len(sp.Text),
				ModTime: document.ModTime,
			})
			idx++
		}
	}
	return chunks, nil
}

// Reassemble concatenates spans dropping each span's overlap with its
// predecessor.
func Reassemble(spans []Span) string {
	var b strings.Builder
	prevEnd := 0
	for i, sp := range spans {
		r := []rune(sp.Text)
		if i > 0 {
			r = r[prevEnd-sp.Start:]
		}
		b.WriteString(string(r))
		prevEnd = sp.End
	}
	return b.String()
}
