// Package schedule turns evaluation candidates into calendar events and
// reports the outcome of each one.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"courserag/internal/domain"
	apperr "courserag/internal/errors"
	"courserag/internal/logger"
)

// NoEvaluationsMessage is the report text when nothing could be scheduled.
const NoEvaluationsMessage = "No se encontraron fechas de evaluación en los documentos del curso."

const (
	DefaultStartHour = 10
	DefaultDuration  = 2 * time.Hour
)

// Options configures event times.
type Options struct {
	StartHour int
	Duration  time.Duration
	// Location overrides the zone of candidate dates.
	Location *time.Location
}

// Outcome is the result of scheduling one candidate.
type Outcome struct {
	Candidate domain.Candidate
	Request   domain.EventRequest
	Link      string
	Err       error
}

// Line renders the outcome as a report line.
func (o Outcome) Line() string {
	label := fmt.Sprintf("%s (%s)", o.Candidate.Type, o.Candidate.Date.Format("02/01/2006"))
	if o.Err != nil {
		return fmt.Sprintf("❌ %s: %s", label, causeText(o.Err))
	}
	return fmt.Sprintf("✅ %s: %s", label, o.Link)
}

// Report aggregates a scheduling batch.
type Report struct {
	Course   string
	Outcomes []Outcome
	// Err is set when the batch was aborted before any event was created.
	Err error
}

// Created counts successful events.
func (r Report) Created() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Lines returns one line per outcome.
func (r Report) Lines() []string {
	lines := make([]string, len(r.Outcomes))
	for i, o := range r.Outcomes {
		lines[i] = o.Line()
	}
	return lines
}

// String renders the report for display.
func (r Report) String() string {
	if r.Err != nil {
		return "❌ No se pudo acceder al calendario: " + causeText(r.Err)
	}
	if len(r.Outcomes) == 0 {
		return NoEvaluationsMessage
	}
	return strings.Join(r.Lines(), "\n")
}

// Scheduler creates calendar events for evaluation candidates.
type Scheduler struct {
	calendar domain.Calendar
	opts     Options
	log      *zap.Logger
}

// New creates a scheduler.
func New(cal domain.Calendar, opts Options, log *zap.Logger) *Scheduler {
	if opts.StartHour <= 0 || opts.StartHour > 23 {
		opts.StartHour = DefaultStartHour
	}
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	return &Scheduler{calendar: cal, opts: opts, log: logger.OrNop(log)}
}

// Plan builds the event requests for the dated candidates without calling
// the calendar.
func (s *Scheduler) Plan(course string, cands []domain.Candidate) []domain.EventRequest {
	var out []domain.EventRequest
	for _, c := range cands {
		if c.Date == nil {
			continue
		}
		out = append(out, s.request(course, c))
	}
	return out
}

// Schedule creates one event per dated candidate. A failed event is
// reported inline and does not stop the batch; a failed authentication
// aborts before any event is created.
func (s *Scheduler) Schedule(ctx context.Context, course string, cands []domain.Candidate) Report {
	rep := Report{Course: course}
	dated := make([]domain.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Date != nil {
			dated = append(dated, c)
		}
	}
	if len(dated) == 0 {
		s.log.Info("no evaluation dates to schedule", zap.String("course", course))
		return rep
	}

	if err := s.calendar.Authenticate(ctx); err != nil {
		if !apperr.Is(err, apperr.KindAuthentication) {
			err = apperr.NewAuthentication("calendar", err)
		}
		s.log.Error("calendar authentication failed", zap.String("course", course), zap.Error(err))
		rep.Err = err
		return rep
	}

	for _, c := range dated {
		req := s.request(course, c)
		out := Outcome{Candidate: c, Request: req}
		link, err := s.calendar.CreateEvent(ctx, req)
		if err != nil {
			out.Err = apperr.NewScheduling(req.Title, err)
			s.log.Warn("event creation failed",
				zap.String("title", req.Title),
				zap.Time("start", req.Start),
				zap.Error(err),
			)
		} else {
			out.Link = link
			s.log.Info("event created", zap.String("title", req.Title), zap.String("link", link))
		}
		rep.Outcomes = append(rep.Outcomes, out)
	}
	return rep
}

func (s *Scheduler) request(course string, c domain.Candidate) domain.EventRequest {
	loc := s.opts.Location
	if loc == nil {
		loc = c.Date.Location()
	}
	y, m, d := c.Date.Date()
	return domain.EventRequest{
		Title:       Title(course, c),
		Description: Description(c),
		Start:       time.Date(y, m, d, s.opts.StartHour, 0, 0, 0, loc),
		Duration:    s.opts.Duration,
	}
}

// Title renders "<course> - <type>" with " (<weight>%)" when known.
func Title(course string, c domain.Candidate) string {
	title := course + " - " + c.Type
	if c.Weight != nil {
		title += fmt.Sprintf(" (%d%%)", *c.Weight)
	}
	return title
}

// Description lists the known attributes of the candidate, one per line.
func Description(c domain.Candidate) string {
	var lines []string
	if c.Type != "" {
		lines = append(lines, "Tipo: "+c.Type)
	}
	if c.Modality != "" {
		lines = append(lines, "Modalidad: "+c.Modality)
	}
	if c.Weight != nil {
		lines = append(lines, fmt.Sprintf("Peso: %d%%", *c.Weight))
	}
	switch {
	case c.Source != "" && c.Page > 0:
		lines = append(lines, fmt.Sprintf("Fuente: %s, página %d", c.Source, c.Page))
	case c.Source != "":
		lines = append(lines, "Fuente: "+c.Source)
	}
	return strings.Join(lines, "\n")
}

// causeText strips the kind prefixes so the report shows the
// collaborator's own message.
func causeText(err error) string {
	for {
		ae, ok := err.(*apperr.Error)
		if !ok || ae.Err == nil {
			return err.Error()
		}
		err = ae.Err
	}
}
