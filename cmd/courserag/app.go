package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"courserag/internal/assistant"
	gcal "courserag/internal/calendar/google"
	"courserag/internal/chunker"
	"courserag/internal/config"
	"courserag/internal/domain"
	"courserag/internal/embedding/hashing"
	embopenai "courserag/internal/embedding/openai"
	"courserag/internal/extract"
	"courserag/internal/fetcher"
	"courserag/internal/index"
	"courserag/internal/ingest"
	llmopenai "courserag/internal/llm/openai"
	"courserag/internal/loader"
	"courserag/internal/schedule"
	"courserag/internal/service"
	"courserag/internal/summarizer"
	"courserag/internal/vectorstore"
	"courserag/internal/vectorstore/memory"
	"courserag/internal/vectorstore/qdrant"
	"courserag/internal/vectorstore/sqlite"
)

// application holds the wired components for one command invocation.
type application struct {
	cfg       *config.AppConfig
	log       *zap.Logger
	store     vectorstore.Storage
	catalog   *sqlite.Store
	pipeline  *ingest.Pipeline
	calendar  *gcal.Client
	assistant *assistant.Assistant
}

// unavailableCompleter defers a model configuration error to the first
// question so commands that never ask still run.
type unavailableCompleter struct{ err error }

func (u unavailableCompleter) Complete(context.Context, []domain.Message) (string, error) {
	return "", u.err
}

func newApplication(cfg *config.AppConfig, log *zap.Logger) (*application, error) {
	emb, err := newEmbedder(cfg, log)
	if err != nil {
		return nil, err
	}

	catalog, err := sqlite.NewStore(cfg.DataDir, cfg.VectorStore.Collection)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	var store vectorstore.Storage
	switch cfg.VectorStore.Type {
	case "sqlite", "":
		store = catalog
	case "memory":
		store = memory.NewStorage()
	case "qdrant":
		store = qdrant.NewStorage(qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			Collection: cfg.VectorStore.Collection,
			Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		})
	default:
		catalog.Close()
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	loc, err := time.LoadLocation(cfg.Calendar.TimeZone)
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("calendar.time_zone: %w", err)
	}

	idx := index.New(emb, store, log.Named("index"))
	pipeline := ingest.New(idx, loader.New(),
		chunker.New(chunker.WithChunkSize(cfg.Chunker.Size), chunker.WithOverlap(cfg.Chunker.Overlap)),
		catalog, summarizer.NewFrequencySummarizer(),
		ingest.Options{
			Extensions:       cfg.Corpus.Extensions,
			Mode:             ingest.Mode(cfg.Ingest.Mode),
			SummarySentences: cfg.Ingest.SummarySentences,
		}, log.Named("ingest"))

	var llm domain.Completer
	client, err := llmopenai.NewClient(llmopenai.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKeyEnv:   cfg.LLM.APIKeyEnv,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	}, log.Named("llm"))
	if err != nil {
		log.Warn("chat model unavailable; questions will fail until it is configured", zap.Error(err))
		llm = unavailableCompleter{err: err}
	} else {
		llm = client
	}

	cal := gcal.New(gcal.Config{
		CredentialsFile: cfg.Calendar.CredentialsFile,
		TokenFile:       cfg.Calendar.TokenFile,
		CalendarID:      cfg.Calendar.CalendarID,
		TimeZone:        cfg.Calendar.TimeZone,
		EmailReminder:   cfg.Calendar.EmailReminder,
		PopupReminder:   cfg.Calendar.PopupReminder,
		RateLimit:       gcal.DefaultRateLimit,
	}, log.Named("calendar"))

	a := assistant.New(assistant.Deps{
		Answerer: service.NewComposer(idx, llm, service.Options{
			TopK:    cfg.Retrieval.TopK,
			Persona: cfg.Retrieval.Persona,
		}, log.Named("composer")),
		Library: pipeline,
		Extractor: extract.New(idx, extract.Options{
			TopK:     cfg.Extraction.TopK,
			Window:   cfg.Extraction.Window,
			Location: loc,
		}, log.Named("extract")),
		Scheduler: schedule.New(cal, schedule.Options{
			StartHour: cfg.Calendar.StartHour,
			Duration:  time.Duration(cfg.Calendar.DurationHours) * time.Hour,
			Location:  loc,
		}, log.Named("schedule")),
		Calendar: cal,
		Fetcher: fetcher.New(nil, fetcher.Config{
			Command:    cfg.Fetcher.Command,
			Args:       cfg.Fetcher.Args,
			Dir:        cfg.Corpus.Dir,
			Extensions: cfg.Corpus.Extensions,
		}, log.Named("fetcher")),
	}, assistant.Options{
		CorpusDir: cfg.Corpus.Dir,
		Dedupe:    cfg.DedupeCandidates(),
	}, log)

	return &application{
		cfg:       cfg,
		log:       log,
		store:     store,
		catalog:   catalog,
		pipeline:  pipeline,
		calendar:  cal,
		assistant: a,
	}, nil
}

func newEmbedder(cfg *config.AppConfig, log *zap.Logger) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "hashing", "":
		return hashing.NewEmbedder(cfg.Embedder.Dimension), nil
	case "openai":
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		}, log.Named("embedder"))
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

// Close releases the stores.
func (a *application) Close() error {
	var err error
	if a.store != vectorstore.Storage(a.catalog) {
		err = a.store.Close()
	}
	if cerr := a.catalog.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// withApp builds the application for a command and closes it afterwards.
func withApp(fn func(*application) error) error {
	app, err := newApplication(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			log.Warn("closing stores", zap.Error(cerr))
		}
	}()
	return fn(app)
}
