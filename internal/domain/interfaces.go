package domain

import (
	"context"
	"time"
)

// Page is the extracted text of one page of a source document. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Document is a source file loaded from the corpus directory. Filename is
// its stable identity and the name used in citations.
type Document struct {
	Filename string
	Path     string
	Size     int64
	ModTime  time.Time
	Pages    []Page
}

// Text returns the pages joined by blank lines.
func (d Document) Text() string {
	n := 0
	for _, p := range d.Pages {
		n += len(p.Text) + 2
	}
	buf := make([]byte, 0, n)
	for i, p := range d.Pages {
		if i > 0 {
			buf = append(buf, '\n', '\n')
		}
		buf = append(buf, p.Text...)
	}
	return string(buf)
}

// Chunk is a contiguous span of one page, the unit of retrieval.
// Start and End are rune offsets into the page text.
type Chunk struct {
	ID         string
	Text       string
	Source     string
	Path       string
	Page       int
	Index      int
	Start      int
	End        int
	Size       int
	ModTime    time.Time
	IngestedAt time.Time
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Role is the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a conversation log.
type Turn struct {
	Role Role
	Text string
	At   time.Time
}

// Message is a single chat message handed to the model provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Candidate is an evaluation mention extracted from syllabus text.
// Weight and Date are nil when absent; Modality is empty when unspecified.
type Candidate struct {
	Course   string
	Type     string
	Date     *time.Time
	Weight   *int
	Modality string
	Source   string
	Page     int
}

// EventRequest is a calendar entry derived from a dated Candidate.
type EventRequest struct {
	Title       string
	Description string
	Start       time.Time
	Duration    time.Duration
}

// CalendarEvent is an event read back from the calendar provider.
type CalendarEvent struct {
	ID          string
	Title       string
	Start       time.Time
	End         time.Time
	Link        string
	AllDay      bool
	Description string
}

// DocumentRecord is the catalog entry kept for every ingested file.
type DocumentRecord struct {
	Filename   string
	Path       string
	Size       int64
	ModTime    time.Time
	Pages      int
	Chunks     int
	Summary    string
	IngestedAt time.Time
}

// Embedder converts free text into a fixed-dimension vector.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Completer produces the model reply for an ordered message sequence.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Calendar is the calendar provider the scheduler writes to.
type Calendar interface {
	Authenticate(ctx context.Context) error
	CreateEvent(ctx context.Context, req EventRequest) (link string, err error)
	Upcoming(ctx context.Context, from time.Time, limit int) ([]CalendarEvent, error)
}

// Fetcher downloads course files into the corpus directory and returns how
// many new files were written.
type Fetcher interface {
	Fetch(ctx context.Context) (int, error)
}

// Catalog records which source files have been ingested.
type Catalog interface {
	PutDocument(ctx context.Context, rec DocumentRecord) error
	GetDocument(ctx context.Context, filename string) (*DocumentRecord, error)
	ListDocuments(ctx context.Context) ([]DocumentRecord, error)
	DeleteDocument(ctx context.Context, filename string) error
}
