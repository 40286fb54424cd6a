// Package httpapi exposes the assistant as a JSON API on gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"courserag/internal/assistant"
	"courserag/internal/conversation"
	"courserag/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Config configures the HTTP server.
type Config struct {
	Addr string
	// Mode is the gin mode: "release", "debug" or "test".
	Mode string
	// UploadDir holds uploads until they are imported. Empty uses the OS temp dir.
	UploadDir string
}

// Server wraps the gin engine and its http.Server.
type Server struct {
	cfg    Config
	engine *gin.Engine
	log    *zap.Logger
}

// New builds the router.
func New(a *assistant.Assistant, sessions *conversation.Registry, cfg Config, log *zap.Logger) *Server {
	log = logger.OrNop(log)
	if cfg.Mode == "" {
		cfg.Mode = gin.ReleaseMode
	}
	gin.SetMode(cfg.Mode)
	if sessions == nil {
		sessions = conversation.NewRegistry()
	}

	h := &Handler{assistant: a, sessions: sessions, uploadDir: cfg.UploadDir, log: log}

	r := gin.New()
	r.Use(RequestLogger(log), gin.Recovery())
	r.GET("/healthz", h.Health)

	api := r.Group("/api/v1")
	{
		api.POST("/chat", h.Chat)

		sessionRoutes := api.Group("/sessions")
		sessionRoutes.POST("", h.CreateSession)
		sessionRoutes.GET("/:id", h.SessionHistory)
		sessionRoutes.POST("/:id/reset", h.ResetSession)
		sessionRoutes.DELETE("/:id", h.DeleteSession)

		api.POST("/ingest", h.Ingest)
		api.POST("/index/reset", h.ResetIndex)

		documentRoutes := api.Group("/documents")
		documentRoutes.GET("", h.ListDocuments)
		documentRoutes.POST("", h.UploadDocument)
		documentRoutes.DELETE("/:filename", h.DeleteDocument)

		api.POST("/schedule", h.Schedule)
		api.GET("/events", h.Events)
	}

	return &Server{cfg: cfg, engine: r, log: log}
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
