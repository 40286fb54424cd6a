package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"courserag/internal/domain"
	apperr "courserag/internal/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		CalendarID:    "primary",
		TimeZone:      "UTC",
		EmailReminder: 1440,
		PopupReminder: 60,
		HTTPClient:    srv.Client(),
		Endpoint:      srv.URL + "/",
	}, nil)
}

func TestCreateEvent(t *testing.T) {
	var got calendar.Event
	var raw map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/calendars/primary/events"), r.URL.Path)
		body := json.NewDecoder(r.Body)
		require.NoError(t, body.Decode(&raw))
		data, _ := json.Marshal(raw)
		require.NoError(t, json.Unmarshal(data, &got))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "e1", "htmlLink": "https://calendar.google.com/event?eid=e1"})
	})

	link, err := c.CreateEvent(context.Background(), domain.EventRequest{
		Title:       "Macroeconomía - Examen (20%)",
		Description: "Tipo: Examen",
		Start:       time.Date(2025, time.April, 15, 10, 0, 0, 0, time.UTC),
		Duration:    2 * time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://calendar.google.com/event?eid=e1", link)

	assert.Equal(t, "Macroeconomía - Examen (20%)", got.Summary)
	assert.Equal(t, "2025-04-15T10:00:00Z", got.Start.DateTime)
	assert.Equal(t, "2025-04-15T12:00:00Z", got.End.DateTime)
	assert.Equal(t, "UTC", got.Start.TimeZone)
	require.NotNil(t, got.Reminders)
	require.Len(t, got.Reminders.Overrides, 2)
	assert.Equal(t, "email", got.Reminders.Overrides[0].Method)
	assert.EqualValues(t, 1440, got.Reminders.Overrides[0].Minutes)

	reminders := raw["reminders"].(map[string]any)
	assert.Equal(t, false, reminders["useDefault"])
}

func TestCreateEvent_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
	})
	_, err := c.CreateEvent(context.Background(), domain.EventRequest{Title: "x", Start: time.Now(), Duration: time.Hour})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpcoming(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "5", q.Get("maxResults"))
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "startTime", q.Get("orderBy"))
		assert.Equal(t, "2025-04-01T00:00:00Z", q.Get("timeMin"))
		_, _ = w.Write([]byte(`{"items":[
			{"id":"a","summary":"Finanzas - Práctica","htmlLink":"https://l/a",
			 "start":{"dateTime":"2025-04-10T10:00:00-05:00"},"end":{"dateTime":"2025-04-10T12:00:00-05:00"}},
			{"id":"b","summary":"Feriado","start":{"date":"2025-05-01"},"end":{"date":"2025-05-02"}}
		]}`))
	})

	events, err := c.Upcoming(context.Background(), time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), 5)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Finanzas - Práctica", events[0].Title)
	assert.False(t, events[0].AllDay)
	assert.Equal(t, 15, events[0].Start.UTC().Hour())
	assert.True(t, events[1].AllDay)
	assert.Equal(t, time.May, events[1].Start.Month())
}

func TestAuthenticate_MissingCredentials(t *testing.T) {
	dir := t.TempDir()
	c := New(Config{
		CredentialsFile: filepath.Join(dir, "credentials.json"),
		TokenFile:       filepath.Join(dir, "token.json"),
	}, nil)
	err := c.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuthentication))
}

func TestAuthenticate_MissingToken(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(creds, []byte(`{"installed":{
		"client_id":"id.apps.googleusercontent.com","client_secret":"secret",
		"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",
		"redirect_uris":["http://localhost"]}}`), 0o600))
	c := New(Config{CredentialsFile: creds, TokenFile: filepath.Join(dir, "token.json")}, nil)

	err := c.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuthentication))
	assert.ErrorIs(t, err, ErrNoToken)

	url, err := c.AuthCodeURL("state")
	require.NoError(t, err)
	assert.Contains(t, url, "access_type=offline")
	assert.Contains(t, url, "client_id=id.apps.googleusercontent.com")
}

func TestTokenRoundTripAndSavingSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	tok := &oauth2.Token{AccessToken: "a1", RefreshToken: "r", TokenType: "Bearer"}
	require.NoError(t, saveToken(path, tok))
	loaded, err := loadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "a1", loaded.AccessToken)

	refreshed := &oauth2.Token{AccessToken: "a2", RefreshToken: "r", TokenType: "Bearer"}
	ts := newSavingTokenSource(oauth2.StaticTokenSource(refreshed), path, tok)
	_, err = ts.Token()
	require.NoError(t, err)
	loaded, err = loadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "a2", loaded.AccessToken)
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil))

	plain := errors.New("dial tcp: refused")
	assert.Equal(t, plain, WrapError(plain))

	unauth := WrapError(&googleapi.Error{Code: http.StatusUnauthorized})
	assert.True(t, apperr.Is(unauth, apperr.KindAuthentication))
	assert.ErrorIs(t, unauth, ErrUnauthorized)

	limited := &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}}
	assert.True(t, IsRateLimited(limited))
	assert.ErrorIs(t, WrapError(limited), ErrRateLimited)

	assert.ErrorIs(t, WrapError(&googleapi.Error{Code: http.StatusForbidden}), ErrForbidden)
	assert.Contains(t, WrapError(&googleapi.Error{Code: 500, Message: "backend"}).Error(), "calendar API error")
}

func TestRateLimiter_Backoff(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 100, BurstSize: 1})
	require.NoError(t, r.Wait(context.Background()))

	r.RecordRateLimitError(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}
