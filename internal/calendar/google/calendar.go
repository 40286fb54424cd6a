// Package google implements the calendar provider on the Google Calendar API.
package google

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"courserag/internal/domain"
	apperr "courserag/internal/errors"
	"courserag/internal/logger"
)

// Scope grants read and write access to the user's calendars.
const Scope = calendar.CalendarScope

// Config configures the client.
type Config struct {
	CredentialsFile string
	TokenFile       string
	CalendarID      string
	TimeZone        string
	// Reminder lead times in minutes. Zero disables the reminder.
	EmailReminder int
	PopupReminder int
	RateLimit     RateLimitConfig

	// HTTPClient and Endpoint bypass OAuth; used by tests and proxies.
	HTTPClient *http.Client
	Endpoint   string
}

// Client is a domain.Calendar backed by Google Calendar.
type Client struct {
	cfg     Config
	limiter *RateLimiter
	log     *zap.Logger

	mu  sync.Mutex
	svc *calendar.Service
}

// New creates a client. No network call is made until Authenticate.
func New(cfg Config, log *zap.Logger) *Client {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	return &Client{cfg: cfg, limiter: NewRateLimiter(cfg.RateLimit), log: logger.OrNop(log)}
}

// Authenticate loads the saved token, refreshing it if needed, and builds
// the API service. It is safe to call repeatedly.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.service(ctx)
	return err
}

func (c *Client) service(ctx context.Context) (*calendar.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.svc != nil {
		return c.svc, nil
	}

	var opts []option.ClientOption
	if c.cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(c.cfg.HTTPClient))
	} else {
		oc, err := c.oauthConfig()
		if err != nil {
			return nil, apperr.NewAuthentication("load credentials", err)
		}
		tok, err := loadToken(c.cfg.TokenFile)
		if err != nil {
			return nil, apperr.NewAuthentication("load token", err)
		}
		ts := newSavingTokenSource(oc.TokenSource(context.Background(), tok), c.cfg.TokenFile, tok)
		if _, err := ts.Token(); err != nil {
			return nil, apperr.NewAuthentication("refresh token", err)
		}
		opts = append(opts, option.WithTokenSource(ts))
	}
	if c.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.cfg.Endpoint))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, apperr.NewAuthentication("calendar service", err)
	}
	c.svc = svc
	c.log.Debug("calendar client ready", zap.String("calendar_id", c.cfg.CalendarID))
	return svc, nil
}

func (c *Client) oauthConfig() (*oauth2.Config, error) {
	data, err := os.ReadFile(c.cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading OAuth client credentials: %w", err)
	}
	oc, err := oauthgoogle.ConfigFromJSON(data, Scope)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", c.cfg.CredentialsFile, err)
	}
	return oc, nil
}

// AuthCodeURL returns the consent page URL for the installed-app flow.
func (c *Client) AuthCodeURL(state string) (string, error) {
	oc, err := c.oauthConfig()
	if err != nil {
		return "", apperr.NewAuthentication("load credentials", err)
	}
	return oc.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange trades an authorization code for a token and saves it.
func (c *Client) Exchange(ctx context.Context, code string) error {
	oc, err := c.oauthConfig()
	if err != nil {
		return apperr.NewAuthentication("load credentials", err)
	}
	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return apperr.NewAuthentication("exchange code", err)
	}
	if err := saveToken(c.cfg.TokenFile, tok); err != nil {
		return err
	}
	c.mu.Lock()
	c.svc = nil
	c.mu.Unlock()
	c.log.Info("calendar token saved", zap.String("path", c.cfg.TokenFile))
	return nil
}

// CreateEvent inserts a timed event and returns its web link.
func (c *Client) CreateEvent(ctx context.Context, req domain.EventRequest) (string, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return "", err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	created, err := svc.Events.Insert(c.cfg.CalendarID, c.event(req)).Context(ctx).Do()
	if err != nil {
		if IsRateLimited(err) {
			c.limiter.RecordRateLimitError(0)
		}
		return "", WrapError(err)
	}
	return created.HtmlLink, nil
}

func (c *Client) event(req domain.EventRequest) *calendar.Event {
	start := req.Start
	if loc, err := time.LoadLocation(c.cfg.TimeZone); c.cfg.TimeZone != "" && err == nil {
		start = time.Date(start.Year(), start.Month(), start.Day(), start.Hour(), start.Minute(), 0, 0, loc)
	}
	end := start.Add(req.Duration)

	var overrides []*calendar.EventReminder
	if c.cfg.EmailReminder > 0 {
		overrides = append(overrides, &calendar.EventReminder{Method: "email", Minutes: int64(c.cfg.EmailReminder)})
	}
	if c.cfg.PopupReminder > 0 {
		overrides = append(overrides, &calendar.EventReminder{Method: "popup", Minutes: int64(c.cfg.PopupReminder)})
	}

	return &calendar.Event{
		Summary:     req.Title,
		Description: req.Description,
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: c.cfg.TimeZone},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: c.cfg.TimeZone},
		Reminders: &calendar.EventReminders{
			UseDefault:      false,
			Overrides:       overrides,
			ForceSendFields: []string{"UseDefault"},
		},
	}
}

// Upcoming lists up to limit events starting at or after from, soonest first.
func (c *Client) Upcoming(ctx context.Context, from time.Time, limit int) ([]domain.CalendarEvent, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	list, err := svc.Events.List(c.cfg.CalendarID).
		TimeMin(from.Format(time.RFC3339)).
		MaxResults(int64(limit)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, WrapError(err)
	}

	out := make([]domain.CalendarEvent, 0, len(list.Items))
	for _, item := range list.Items {
		out = append(out, toDomainEvent(item))
	}
	return out, nil
}

func toDomainEvent(e *calendar.Event) domain.CalendarEvent {
	ev := domain.CalendarEvent{
		ID:          e.Id,
		Title:       e.Summary,
		Link:        e.HtmlLink,
		Description: e.Description,
	}
	ev.Start, ev.AllDay = parseEventTime(e.Start)
	ev.End, _ = parseEventTime(e.End)
	return ev
}

// parseEventTime reads either a timed or an all-day boundary.
func parseEventTime(dt *calendar.EventDateTime) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, _ := time.Parse(time.RFC3339, dt.DateTime)
		return t, false
	}
	t, _ := time.Parse("2006-01-02", dt.Date)
	return t, true
}
