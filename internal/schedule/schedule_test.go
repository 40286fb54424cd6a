package schedule

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/domain"
	apperr "courserag/internal/errors"
)

type fakeCalendar struct {
	authErr  error
	failFor  map[string]error
	requests []domain.EventRequest
	authed   int
}

func (f *fakeCalendar) Authenticate(context.Context) error {
	f.authed++
	return f.authErr
}

func (f *fakeCalendar) CreateEvent(_ context.Context, req domain.EventRequest) (string, error) {
	f.requests = append(f.requests, req)
	if err, ok := f.failFor[req.Title]; ok {
		return "", err
	}
	return "https://calendar.example/e/" + req.Start.Format("20060102"), nil
}

func (f *fakeCalendar) Upcoming(context.Context, time.Time, int) ([]domain.CalendarEvent, error) {
	return nil, nil
}

func intPtr(n int) *int { return &n }

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestSchedule_CreatesEvent(t *testing.T) {
	cal := &fakeCalendar{}
	s := New(cal, Options{}, nil)
	c := domain.Candidate{
		Course: "Macroeconomía", Type: "Examen", Date: datePtr(2025, time.April, 15),
		Weight: intPtr(20), Modality: "Virtual", Source: "silabo.pdf", Page: 3,
	}

	rep := s.Schedule(context.Background(), "Macroeconomía", []domain.Candidate{c})
	require.NoError(t, rep.Err)
	require.Len(t, cal.requests, 1)

	req := cal.requests[0]
	assert.Equal(t, "Macroeconomía - Examen (20%)", req.Title)
	assert.Equal(t, time.Date(2025, time.April, 15, 10, 0, 0, 0, time.UTC), req.Start)
	assert.Equal(t, 2*time.Hour, req.Duration)
	assert.Equal(t, "Tipo: Examen\nModalidad: Virtual\nPeso: 20%\nFuente: silabo.pdf, página 3", req.Description)

	assert.Equal(t, 1, rep.Created())
	assert.Contains(t, rep.String(), "✅ Examen (15/04/2025): https://calendar.example/e/20250415")
}

func TestSchedule_FailuresDoNotAbort(t *testing.T) {
	cal := &fakeCalendar{failFor: map[string]error{
		"Finanzas - Práctica": errors.New("Calendar API error: 403 rate limit"),
	}}
	s := New(cal, Options{StartHour: 9, Duration: time.Hour}, nil)
	cands := []domain.Candidate{
		{Type: "Práctica", Date: datePtr(2025, time.May, 2)},
		{Type: "Examen", Date: datePtr(2025, time.June, 20)},
		{Type: "Tarea"},
	}

	rep := s.Schedule(context.Background(), "Finanzas", cands)
	require.Len(t, rep.Outcomes, 2)
	assert.Len(t, cal.requests, 2)
	assert.True(t, apperr.Is(rep.Outcomes[0].Err, apperr.KindScheduling))
	assert.Equal(t, 1, rep.Created())

	lines := rep.Lines()
	assert.Equal(t, "❌ Práctica (02/05/2025): Calendar API error: 403 rate limit", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "✅ Examen (20/06/2025): "))
	assert.Equal(t, 9, cal.requests[1].Start.Hour())
	assert.Equal(t, time.Hour, cal.requests[1].Duration)
}

func TestSchedule_NoCandidates(t *testing.T) {
	cal := &fakeCalendar{}
	s := New(cal, Options{}, nil)

	rep := s.Schedule(context.Background(), "Finanzas", nil)
	assert.Equal(t, NoEvaluationsMessage, rep.String())
	assert.Zero(t, cal.authed)

	rep = s.Schedule(context.Background(), "Finanzas", []domain.Candidate{{Type: "Examen"}})
	assert.Equal(t, NoEvaluationsMessage, rep.String())
	assert.Empty(t, cal.requests)
}

func TestSchedule_AuthenticationAborts(t *testing.T) {
	cal := &fakeCalendar{authErr: errors.New("token.json: no such file")}
	s := New(cal, Options{}, nil)

	rep := s.Schedule(context.Background(), "Finanzas", []domain.Candidate{{Type: "Examen", Date: datePtr(2025, 1, 1)}})
	require.Error(t, rep.Err)
	assert.True(t, apperr.Is(rep.Err, apperr.KindAuthentication))
	assert.Empty(t, cal.requests)
	assert.Contains(t, rep.String(), "token.json: no such file")
}

func TestPlanAndDescription(t *testing.T) {
	loc := time.FixedZone("PET", -5*3600)
	s := New(nil, Options{Location: loc}, nil)
	reqs := s.Plan("Finanzas", []domain.Candidate{
		{Type: "Exposición", Date: datePtr(2025, time.March, 3), Source: "guia.pdf"},
		{Type: "Tarea"},
	})
	require.Len(t, reqs, 1)
	assert.Equal(t, "Finanzas - Exposición", reqs[0].Title)
	assert.Equal(t, "Tipo: Exposición\nFuente: guia.pdf", reqs[0].Description)
	assert.Equal(t, loc, reqs[0].Start.Location())
	assert.Equal(t, 3, reqs[0].Start.Day())
	assert.Equal(t, 10, reqs[0].Start.Hour())
}
