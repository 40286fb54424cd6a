package httpapi

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"courserag/internal/assistant"
	"courserag/internal/conversation"
	"courserag/internal/domain"
	apperr "courserag/internal/errors"
	"courserag/internal/ingest"
	"courserag/internal/schedule"
)

const defaultEventLimit = 10

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
}

type scheduleRequest struct {
	Course string `json:"course" binding:"required"`
	DryRun bool   `json:"dry_run"`
}

type sourceDTO struct {
	Source string  `json:"source"`
	Page   int     `json:"page"`
	Score  float64 `json:"score"`
}

type chatResponse struct {
	SessionID string      `json:"session_id"`
	Kind      string      `json:"kind"`
	Text      string      `json:"text"`
	Status    string      `json:"status,omitempty"`
	Sources   []sourceDTO `json:"sources,omitempty"`
}

type turnDTO struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type ingestDTO struct {
	Added     int       `json:"added"`
	Files     int       `json:"files"`
	Unchanged int       `json:"unchanged"`
	Gated     bool      `json:"gated"`
	Skipped   []skipDTO `json:"skipped,omitempty"`
}

type skipDTO struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

type documentDTO struct {
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	Pages      int       `json:"pages"`
	Chunks     int       `json:"chunks"`
	Summary    string    `json:"summary,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

type eventDTO struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Link        string    `json:"link,omitempty"`
	AllDay      bool      `json:"all_day,omitempty"`
}

type outcomeDTO struct {
	Type  string `json:"type"`
	Date  string `json:"date,omitempty"`
	Title string `json:"title"`
	Link  string `json:"link,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handler serves the assistant over HTTP.
type Handler struct {
	assistant *assistant.Assistant
	sessions  *conversation.Registry
	uploadDir string
	log       *zap.Logger
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, gin.H{
		"code":    status,
		"message": err.Error(),
		"data":    nil,
	})
}

// statusFor maps error kinds to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ingest.ErrDuplicate):
		return http.StatusConflict
	case apperr.Is(err, apperr.KindInvalidRequest):
		return http.StatusBadRequest
	case apperr.Is(err, apperr.KindAuthentication):
		return http.StatusUnauthorized
	case apperr.Is(err, apperr.KindIngestion):
		return http.StatusUnprocessableEntity
	case apperr.Is(err, apperr.KindStorage):
		return http.StatusServiceUnavailable
	case apperr.Is(err, apperr.KindRetrieval), apperr.Is(err, apperr.KindScheduling):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CreateSession starts a conversation.
func (h *Handler) CreateSession(c *gin.Context) {
	sess := h.sessions.Create()
	ok(c, gin.H{"session_id": sess.ID(), "created_at": sess.CreatedAt()})
}

// SessionHistory returns the turns of a conversation.
func (h *Handler) SessionHistory(c *gin.Context) {
	sess, found := h.sessions.Get(c.Param("id"))
	if !found {
		fail(c, http.StatusNotFound, errors.New("session not found"))
		return
	}
	history := sess.History()
	turns := make([]turnDTO, 0, len(history))
	for _, t := range history {
		turns = append(turns, turnDTO{Role: string(t.Role), Text: t.Text, At: t.At})
	}
	ok(c, turns)
}

// ResetSession clears a conversation's history and keeps its id.
func (h *Handler) ResetSession(c *gin.Context) {
	sess, found := h.sessions.Get(c.Param("id"))
	if !found {
		fail(c, http.StatusNotFound, errors.New("session not found"))
		return
	}
	sess.Reset()
	ok(c, gin.H{"session_id": sess.ID()})
}

// DeleteSession drops a conversation.
func (h *Handler) DeleteSession(c *gin.Context) {
	if !h.sessions.Delete(c.Param("id")) {
		fail(c, http.StatusNotFound, errors.New("session not found"))
		return
	}
	ok(c, nil)
}

// Chat routes one message. A missing session_id starts a new session.
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	var sess *conversation.Session
	if req.SessionID == "" {
		sess = h.sessions.Create()
	} else {
		var found bool
		if sess, found = h.sessions.Get(req.SessionID); !found {
			fail(c, http.StatusNotFound, errors.New("session not found"))
			return
		}
	}

	resp := h.assistant.Handle(c.Request.Context(), sess, req.Message)
	out := chatResponse{SessionID: sess.ID(), Kind: string(resp.Kind), Text: resp.Text}
	if resp.Reply != nil {
		out.Status = string(resp.Reply.Status)
		for _, r := range resp.Reply.Sources {
			out.Sources = append(out.Sources, sourceDTO{Source: r.Chunk.Source, Page: r.Chunk.Page, Score: r.Score})
		}
	}
	ok(c, out)
}

// Ingest indexes the corpus. ?reset=true clears the index first.
func (h *Handler) Ingest(c *gin.Context) {
	reset, _ := strconv.ParseBool(c.DefaultQuery("reset", "false"))
	var (
		res ingest.Result
		err error
	)
	if reset {
		res, err = h.assistant.Reingest(c.Request.Context())
	} else {
		res, err = h.assistant.Ingest(c.Request.Context())
	}
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	ok(c, toIngestDTO(res))
}

// ResetIndex clears the index and the catalog.
func (h *Handler) ResetIndex(c *gin.Context) {
	if err := h.assistant.ResetIndex(c.Request.Context()); err != nil {
		fail(c, statusFor(err), err)
		return
	}
	ok(c, nil)
}

// ListDocuments returns the catalog.
func (h *Handler) ListDocuments(c *gin.Context) {
	docs, err := h.assistant.Documents(c.Request.Context())
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	out := make([]documentDTO, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentDTO{
			Filename:   d.Filename,
			Size:       d.Size,
			Pages:      d.Pages,
			Chunks:     d.Chunks,
			Summary:    d.Summary,
			IngestedAt: d.IngestedAt,
		})
	}
	ok(c, out)
}

// UploadDocument stores a multipart "file" in the corpus and indexes it.
func (h *Handler) UploadDocument(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, errors.New("missing form file \"file\""))
		return
	}
	name := filepath.Base(file.Filename)
	if name == "." || name == string(filepath.Separator) {
		fail(c, http.StatusBadRequest, errors.New("invalid file name"))
		return
	}

	tmpDir, err := os.MkdirTemp(h.uploadDir, "upload-*")
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	defer os.RemoveAll(tmpDir)

	tmp := filepath.Join(tmpDir, name)
	if err := c.SaveUploadedFile(file, tmp); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	res, err := h.assistant.AddDocument(c.Request.Context(), tmp)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	h.log.Info("document uploaded", zap.String("file", name), zap.Int("chunks", res.Added))
	ok(c, toIngestDTO(res))
}

// DeleteDocument removes a file and its chunks.
func (h *Handler) DeleteDocument(c *gin.Context) {
	n, err := h.assistant.RemoveDocument(c.Request.Context(), c.Param("filename"))
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	ok(c, gin.H{"removed_chunks": n})
}

// Schedule creates calendar events for a course, or lists them when dry_run is set.
func (h *Handler) Schedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	ctx := c.Request.Context()

	if req.DryRun {
		plan, err := h.assistant.Plan(ctx, req.Course)
		if err != nil {
			fail(c, statusFor(err), err)
			return
		}
		events := make([]eventDTO, 0, len(plan))
		for _, p := range plan {
			events = append(events, eventDTO{Title: p.Title, Description: p.Description, Start: p.Start, End: p.Start.Add(p.Duration)})
		}
		ok(c, gin.H{"course": req.Course, "events": events})
		return
	}

	rep, err := h.assistant.Schedule(ctx, req.Course)
	if err == nil {
		err = rep.Err
	}
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	ok(c, gin.H{
		"course":   rep.Course,
		"created":  rep.Created(),
		"outcomes": toOutcomeDTOs(rep),
		"report":   rep.String(),
	})
}

// Events lists upcoming calendar events. ?max bounds the count.
func (h *Handler) Events(c *gin.Context) {
	limit := defaultEventLimit
	if v := c.Query("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			fail(c, http.StatusBadRequest, errors.New("max must be a positive integer"))
			return
		}
		limit = n
	}
	events, err := h.assistant.Upcoming(c.Request.Context(), limit)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	ok(c, toEventDTOs(events))
}

func toIngestDTO(res ingest.Result) ingestDTO {
	out := ingestDTO{Added: res.Added, Files: res.Files, Unchanged: res.Unchanged, Gated: res.Gated}
	for _, s := range res.Skipped {
		out.Skipped = append(out.Skipped, skipDTO{File: s.File, Error: s.Err.Error()})
	}
	return out
}

func toEventDTOs(events []domain.CalendarEvent) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, eventDTO{
			Title:       e.Title,
			Description: e.Description,
			Start:       e.Start,
			End:         e.End,
			Link:        e.Link,
			AllDay:      e.AllDay,
		})
	}
	return out
}

func toOutcomeDTOs(rep schedule.Report) []outcomeDTO {
	out := make([]outcomeDTO, 0, len(rep.Outcomes))
	for _, o := range rep.Outcomes {
		dto := outcomeDTO{Type: o.Candidate.Type, Title: o.Request.Title, Link: o.Link}
		if o.Candidate.Date != nil {
			dto.Date = o.Candidate.Date.Format("2006-01-02")
		}
		if o.Err != nil {
			dto.Error = o.Err.Error()
		}
		out = append(out, dto)
	}
	return out
}
