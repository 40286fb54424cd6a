// Package assistant routes user messages to question answering, ingestion
// and evaluation scheduling. All pipeline calls are serialised because the
// index assumes a single writer.
package assistant

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"courserag/internal/conversation"
	"courserag/internal/domain"
	apperr "courserag/internal/errors"
	"courserag/internal/extract"
	"courserag/internal/ingest"
	"courserag/internal/logger"
	"courserag/internal/schedule"
	"courserag/internal/service"
)

// scheduleIntent matches "agenda las evaluaciones de <curso>" and
// "schedule evaluations for <course>" style requests.
var scheduleIntent = regexp.MustCompile(`(?i)^\s*(?:agend[ae]r?|program[ae]r?|schedule)\s+(?:las\s+|the\s+|my\s+)?(?:evaluaciones|evaluations|ex[aá]menes|exams)\s+(?:del?\s+(?:curso\s+)?|for\s+(?:the\s+)?(?:course\s+)?)(.+?)[\s.!?]*$`)

// ParseScheduleIntent returns the course name when message asks to
// schedule a course's evaluations.
func ParseScheduleIntent(message string) (string, bool) {
	m := scheduleIntent.FindStringSubmatch(message)
	if m == nil {
		return "", false
	}
	course := strings.Trim(strings.TrimSpace(m[1]), `"'«»`)
	return course, course != ""
}

// Answerer composes grounded replies.
type Answerer interface {
	Answer(ctx context.Context, sess *conversation.Session, query string) service.Reply
}

// Library manages the indexed corpus.
type Library interface {
	Ingest(ctx context.Context, dir string) (ingest.Result, error)
	Import(ctx context.Context, src, dir string) (ingest.Result, error)
	Remove(ctx context.Context, name, dir string) (int, error)
	Reset(ctx context.Context) error
	Documents(ctx context.Context) ([]domain.DocumentRecord, error)
}

// Extractor finds evaluation candidates for a course.
type Extractor interface {
	Extract(ctx context.Context, course string) ([]domain.Candidate, error)
}

// Scheduler turns candidates into calendar events.
type Scheduler interface {
	Schedule(ctx context.Context, course string, cands []domain.Candidate) schedule.Report
	Plan(course string, cands []domain.Candidate) []domain.EventRequest
}

// Deps are the collaborators of an Assistant. Scheduler, Calendar and
// Fetcher may be nil when not configured.
type Deps struct {
	Answerer  Answerer
	Library   Library
	Extractor Extractor
	Scheduler Scheduler
	Calendar  domain.Calendar
	Fetcher   domain.Fetcher
}

// Options configures an Assistant.
type Options struct {
	CorpusDir string
	// Dedupe collapses repeated (course, type, date) candidates before scheduling.
	Dedupe bool
}

// Kind tells which route handled a message.
type Kind string

const (
	KindAnswer   Kind = "answer"
	KindSchedule Kind = "schedule"
)

// Response is the outcome of Handle.
type Response struct {
	Kind   Kind
	Text   string
	Reply  *service.Reply
	Report *schedule.Report
}

// Assistant is the single entry point used by the CLI, TUI and HTTP API.
type Assistant struct {
	mu   sync.Mutex
	deps Deps
	opts Options
	log  *zap.Logger
}

// New creates an assistant.
func New(deps Deps, opts Options, log *zap.Logger) *Assistant {
	return &Assistant{deps: deps, opts: opts, log: logger.OrNop(log)}
}

// Handle routes a chat message: scheduling requests go to the extractor
// and scheduler, everything else is answered from the corpus.
func (a *Assistant) Handle(ctx context.Context, sess *conversation.Session, message string) Response {
	if course, ok := ParseScheduleIntent(message); ok {
		rep, err := a.Schedule(ctx, course)
		if err != nil {
			return Response{Kind: KindSchedule, Text: "❌ No se pudieron programar las evaluaciones: " + err.Error()}
		}
		return Response{Kind: KindSchedule, Text: rep.String(), Report: &rep}
	}
	reply := a.Ask(ctx, sess, message)
	return Response{Kind: KindAnswer, Text: reply.Text, Reply: &reply}
}

// Ask answers a free-text question.
func (a *Assistant) Ask(ctx context.Context, sess *conversation.Session, question string) service.Reply {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deps.Answerer.Answer(ctx, sess, question)
}

// Schedule extracts the course's evaluations and creates calendar events.
// The returned error covers failures before scheduling starts; per-event
// failures are inside the report.
func (a *Assistant) Schedule(ctx context.Context, course string) (schedule.Report, error) {
	if a.deps.Scheduler == nil {
		return schedule.Report{Course: course}, apperr.NewInvalidRequest("calendar is not configured")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	cands, err := a.candidates(ctx, course)
	if err != nil {
		return schedule.Report{Course: course}, err
	}
	return a.deps.Scheduler.Schedule(ctx, course, cands), nil
}

// Plan returns the events Schedule would create, without calling the calendar.
func (a *Assistant) Plan(ctx context.Context, course string) ([]domain.EventRequest, error) {
	if a.deps.Scheduler == nil {
		return nil, apperr.NewInvalidRequest("calendar is not configured")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	cands, err := a.candidates(ctx, course)
	if err != nil {
		return nil, err
	}
	return a.deps.Scheduler.Plan(course, cands), nil
}

func (a *Assistant) candidates(ctx context.Context, course string) ([]domain.Candidate, error) {
	cands, err := a.deps.Extractor.Extract(ctx, course)
	if err != nil {
		a.log.Error("evaluation extraction failed", zap.String("course", course), zap.Error(err))
		return nil, err
	}
	if a.opts.Dedupe {
		before := len(cands)
		cands = extract.Dedupe(cands)
		if removed := before - len(cands); removed > 0 {
			a.log.Debug("dropped duplicate candidates", zap.String("course", course), zap.Int("removed", removed))
		}
	}
	return cands, nil
}

// Ingest indexes the corpus directory, honouring the ingestion gate.
func (a *Assistant) Ingest(ctx context.Context) (ingest.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deps.Library.Ingest(ctx, a.opts.CorpusDir)
}

// Reingest clears the index and ingests the corpus from scratch.
func (a *Assistant) Reingest(ctx context.Context) (ingest.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.deps.Library.Reset(ctx); err != nil {
		return ingest.Result{}, err
	}
	return a.deps.Library.Ingest(ctx, a.opts.CorpusDir)
}

// ResetIndex clears the index and the catalog.
func (a *Assistant) ResetIndex(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deps.Library.Reset(ctx)
}

// AddDocument copies a file into the corpus and indexes it.
func (a *Assistant) AddDocument(ctx context.Context, path string) (ingest.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deps.Library.Import(ctx, path, a.opts.CorpusDir)
}

// RemoveDocument deletes a file and its chunks.
func (a *Assistant) RemoveDocument(ctx context.Context, filename string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deps.Library.Remove(ctx, filename, a.opts.CorpusDir)
}

// Documents lists the ingested files.
func (a *Assistant) Documents(ctx context.Context) ([]domain.DocumentRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deps.Library.Documents(ctx)
}

// Upcoming lists calendar events from now on.
func (a *Assistant) Upcoming(ctx context.Context, limit int) ([]domain.CalendarEvent, error) {
	if a.deps.Calendar == nil {
		return nil, apperr.NewInvalidRequest("calendar is not configured")
	}
	if err := a.deps.Calendar.Authenticate(ctx); err != nil {
		return nil, err
	}
	return a.deps.Calendar.Upcoming(ctx, time.Now(), limit)
}

// Fetch runs the course-file downloader and, when new files arrived and
// reingest is set, indexes them. A populated index that gates ingestion is
// rebuilt so the new files are not left out.
func (a *Assistant) Fetch(ctx context.Context, reingest bool) (int, ingest.Result, error) {
	if a.deps.Fetcher == nil {
		return 0, ingest.Result{}, apperr.NewInvalidRequest("fetcher is not configured")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	n, err := a.deps.Fetcher.Fetch(ctx)
	if err != nil || n == 0 || !reingest {
		return n, ingest.Result{}, err
	}
	res, err := a.deps.Library.Ingest(ctx, a.opts.CorpusDir)
	if err != nil || !res.Gated {
		return n, res, err
	}
	a.log.Info("index is gated, rebuilding it for fetched files", zap.Int("new_files", n))
	if err := a.deps.Library.Reset(ctx); err != nil {
		return n, ingest.Result{}, err
	}
	res, err = a.deps.Library.Ingest(ctx, a.opts.CorpusDir)
	return n, res, err
}
