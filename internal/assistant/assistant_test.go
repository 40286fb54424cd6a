package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/conversation"
	"courserag/internal/domain"
	apperr "courserag/internal/errors"
	"courserag/internal/ingest"
	"courserag/internal/schedule"
	"courserag/internal/service"
)

func TestParseScheduleIntent(t *testing.T) {
	tests := []struct {
		msg    string
		course string
		ok     bool
	}{
		{"agenda las evaluaciones de Macroeconomía", "Macroeconomía", true},
		{"Programa las evaluaciones del curso Finanzas Corporativas.", "Finanzas Corporativas", true},
		{"agendar exámenes de Cálculo II", "Cálculo II", true},
		{"schedule evaluations for Microeconomics", "Microeconomics", true},
		{"Schedule the exams for the course Statistics!", "Statistics", true},
		{"¿cuándo es el examen de Macroeconomía?", "", false},
		{"agenda", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			course, ok := ParseScheduleIntent(tt.msg)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.course, course)
		})
	}
}

type fakeAnswerer struct{ questions []string }

func (f *fakeAnswerer) Answer(_ context.Context, sess *conversation.Session, q string) service.Reply {
	f.questions = append(f.questions, q)
	sess.AppendExchange(q, "respuesta")
	return service.Reply{Text: "respuesta", Status: service.StatusOK}
}

type fakeLibrary struct {
	calls []string
	dir   string
	gated bool
}

func (f *fakeLibrary) Ingest(_ context.Context, dir string) (ingest.Result, error) {
	f.calls = append(f.calls, "ingest")
	f.dir = dir
	if f.gated {
		return ingest.Result{Gated: true}, nil
	}
	return ingest.Result{Added: 3, Files: 1}, nil
}
func (f *fakeLibrary) Import(context.Context, string, string) (ingest.Result, error) {
	f.calls = append(f.calls, "import")
	return ingest.Result{Added: 1, Files: 1}, nil
}
func (f *fakeLibrary) Remove(context.Context, string, string) (int, error) {
	f.calls = append(f.calls, "remove")
	return 2, nil
}
func (f *fakeLibrary) Reset(context.Context) error {
	f.calls = append(f.calls, "reset")
	f.gated = false
	return nil
}
func (f *fakeLibrary) Documents(context.Context) ([]domain.DocumentRecord, error) {
	return []domain.DocumentRecord{{Filename: "silabo.pdf"}}, nil
}

type fakeExtractor struct {
	cands []domain.Candidate
	err   error
}

func (f fakeExtractor) Extract(context.Context, string) ([]domain.Candidate, error) {
	return f.cands, f.err
}

type recordingScheduler struct{ got []domain.Candidate }

func (r *recordingScheduler) Schedule(_ context.Context, course string, cands []domain.Candidate) schedule.Report {
	r.got = cands
	rep := schedule.Report{Course: course}
	for _, c := range cands {
		rep.Outcomes = append(rep.Outcomes, schedule.Outcome{Candidate: c, Link: "https://l"})
	}
	return rep
}

func (r *recordingScheduler) Plan(course string, cands []domain.Candidate) []domain.EventRequest {
	return make([]domain.EventRequest, len(cands))
}

func candidates() []domain.Candidate {
	d := time.Date(2025, time.April, 15, 0, 0, 0, 0, time.UTC)
	return []domain.Candidate{
		{Course: "Macroeconomía", Type: "Examen", Date: &d},
		{Course: "Macroeconomía", Type: "Examen", Date: &d},
	}
}

func TestHandle_RoutesQuestion(t *testing.T) {
	ans := &fakeAnswerer{}
	a := New(Deps{Answerer: ans}, Options{}, nil)
	sess := conversation.New()

	resp := a.Handle(context.Background(), sess, "¿cuál es la nota mínima?")
	assert.Equal(t, KindAnswer, resp.Kind)
	assert.Equal(t, "respuesta", resp.Text)
	require.NotNil(t, resp.Reply)
	assert.Equal(t, []string{"¿cuál es la nota mínima?"}, ans.questions)
	assert.Equal(t, 2, sess.Len())
}

func TestHandle_RoutesSchedule(t *testing.T) {
	sched := &recordingScheduler{}
	ans := &fakeAnswerer{}
	a := New(Deps{
		Answerer:  ans,
		Extractor: fakeExtractor{cands: candidates()},
		Scheduler: sched,
	}, Options{Dedupe: true}, nil)

	resp := a.Handle(context.Background(), conversation.New(), "agenda las evaluaciones de Macroeconomía")
	assert.Equal(t, KindSchedule, resp.Kind)
	require.NotNil(t, resp.Report)
	assert.Len(t, sched.got, 1)
	assert.Contains(t, resp.Text, "✅ Examen (15/04/2025)")
	assert.Empty(t, ans.questions)
}

func TestSchedule_WithoutDedupe(t *testing.T) {
	sched := &recordingScheduler{}
	a := New(Deps{Extractor: fakeExtractor{cands: candidates()}, Scheduler: sched}, Options{}, nil)
	rep, err := a.Schedule(context.Background(), "Macroeconomía")
	require.NoError(t, err)
	assert.Len(t, rep.Outcomes, 2)

	plan, err := a.Plan(context.Background(), "Macroeconomía")
	require.NoError(t, err)
	assert.Len(t, plan, 2)
}

func TestSchedule_Errors(t *testing.T) {
	a := New(Deps{Extractor: fakeExtractor{}}, Options{}, nil)
	_, err := a.Schedule(context.Background(), "Finanzas")
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))

	storage := apperr.NewStorage("search", errors.New("locked"))
	a = New(Deps{Extractor: fakeExtractor{err: storage}, Scheduler: &recordingScheduler{}}, Options{}, nil)
	resp := a.Handle(context.Background(), conversation.New(), "schedule evaluations for Finanzas")
	assert.Equal(t, KindSchedule, resp.Kind)
	assert.Contains(t, resp.Text, "locked")
	assert.Nil(t, resp.Report)
}

func TestLibraryOperations(t *testing.T) {
	lib := &fakeLibrary{}
	a := New(Deps{Library: lib}, Options{CorpusDir: "pdfs"}, nil)
	ctx := context.Background()

	res, err := a.Ingest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Added)
	assert.Equal(t, "pdfs", lib.dir)

	_, err = a.Reingest(ctx)
	require.NoError(t, err)
	_, err = a.AddDocument(ctx, "/tmp/guia.pdf")
	require.NoError(t, err)
	n, err := a.RemoveDocument(ctx, "guia.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, a.ResetIndex(ctx))

	assert.Equal(t, []string{"ingest", "reset", "ingest", "import", "remove", "reset"}, lib.calls)

	docs, err := a.Documents(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

type countingFetcher struct{ n int }

func (f countingFetcher) Fetch(context.Context) (int, error) { return f.n, nil }

func TestFetch(t *testing.T) {
	lib := &fakeLibrary{}
	a := New(Deps{Library: lib, Fetcher: countingFetcher{n: 2}}, Options{CorpusDir: "pdfs"}, nil)

	n, res, err := a.Fetch(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, res.Added)

	a = New(Deps{Library: lib, Fetcher: countingFetcher{}}, Options{}, nil)
	lib.calls = nil
	_, _, err = a.Fetch(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, lib.calls)

	_, _, err = New(Deps{}, Options{}, nil).Fetch(context.Background(), false)
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))
}

func TestFetch_RebuildsGatedIndex(t *testing.T) {
	lib := &fakeLibrary{gated: true}
	a := New(Deps{Library: lib, Fetcher: countingFetcher{n: 1}}, Options{CorpusDir: "pdfs"}, nil)

	n, res, err := a.Fetch(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, res.Gated)
	assert.Equal(t, 3, res.Added)
	assert.Equal(t, []string{"ingest", "reset", "ingest"}, lib.calls)
}

func TestUpcoming_NotConfigured(t *testing.T) {
	_, err := New(Deps{}, Options{}, nil).Upcoming(context.Background(), 5)
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))
}
