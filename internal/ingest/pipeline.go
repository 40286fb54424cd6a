// Package ingest loads corpus files, chunks them and commits the chunks to
// the index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"courserag/internal/domain"
	apperr "courserag/internal/errors"
	"courserag/internal/loader"
	"courserag/internal/logger"
)

// Mode selects when ingestion runs.
type Mode string

const (
	// ModePresence ingests only while the collection is empty. Adding files
	// to a populated collection requires a reset.
	ModePresence Mode = "presence"
	// ModeIncremental ingests files the catalog has not seen, and re-ingests
	// files whose size or modification time changed.
	ModeIncremental Mode = "incremental"
)

// ErrDuplicate is returned by Import when the corpus already has the file.
var ErrDuplicate = errors.New("file already exists in corpus")

// Indexer is the part of the index the pipeline writes to.
type Indexer interface {
	Count(ctx context.Context) (int, error)
	Add(ctx context.Context, chunks []domain.Chunk) error
	DeleteSource(ctx context.Context, source string) (int, error)
	Reset(ctx context.Context) error
}

// DocumentLoader reads one file into a document.
type DocumentLoader interface {
	Load(ctx context.Context, path string) (domain.Document, error)
}

// Options configures the pipeline.
type Options struct {
	Extensions       []string
	Mode             Mode
	SummarySentences int
}

// FileError records a file that was skipped.
type FileError struct {
	File string
	Err  error
}

// Result summarises one ingestion run.
type Result struct {
	// Added is the number of chunks committed.
	Added int
	// Files is the number of files ingested.
	Files int
	// Unchanged counts files skipped because the catalog already had them.
	Unchanged int
	// Gated is true when the run was skipped because the collection was not empty.
	Gated   bool
	Skipped []FileError
}

// Pipeline discovers, loads, chunks and indexes corpus files.
type Pipeline struct {
	index      Indexer
	loader     DocumentLoader
	chunker    domain.Chunker
	catalog    domain.Catalog
	summarizer domain.Summarizer
	opts       Options
	log        *zap.Logger
	now        func() time.Time
}

// New creates a pipeline. catalog and summarizer may be nil; without a
// catalog the incremental mode is unavailable and presence mode is used.
func New(idx Indexer, ld DocumentLoader, ch domain.Chunker, catalog domain.Catalog, sum domain.Summarizer, opts Options, log *zap.Logger) *Pipeline {
	log = logger.OrNop(log)
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".pdf"}
	}
	if opts.Mode == "" {
		opts.Mode = ModePresence
	}
	if opts.Mode == ModeIncremental && catalog == nil {
		log.Warn("incremental ingestion needs a catalog, falling back to presence mode")
		opts.Mode = ModePresence
	}
	if opts.SummarySentences <= 0 {
		opts.SummarySentences = 3
	}
	return &Pipeline{
		index:      idx,
		loader:     ld,
		chunker:    ch,
		catalog:    catalog,
		summarizer: sum,
		opts:       opts,
		log:        log,
		now:        time.Now,
	}
}

// Mode returns the effective ingestion mode.
func (p *Pipeline) Mode() Mode { return p.opts.Mode }

// Ingest indexes the supported files of dir. In presence mode nothing is
// done when the collection already holds chunks. A file that fails to load
// or chunk is logged and skipped; store failures abort the run.
func (p *Pipeline) Ingest(ctx context.Context, dir string) (Result, error) {
	var res Result
	count, err := p.index.Count(ctx)
	if err != nil {
		return res, err
	}
	if p.opts.Mode == ModePresence && count > 0 {
		p.log.Info("collection already populated, skipping ingestion", zap.Int("chunks", count))
		res.Gated = true
		return res, nil
	}

	files, err := p.listFiles(dir)
	if err != nil {
		return res, apperr.NewIngestion(dir, err)
	}
	if len(files) == 0 {
		p.log.Warn("no supported files in corpus directory", zap.String("dir", dir), zap.Strings("extensions", p.opts.Extensions))
	}

	// An empty collection cannot hold the chunks the catalog remembers, so
	// every file is indexed again.
	trustCatalog := count > 0
	if p.opts.Mode == ModeIncremental && !trustCatalog {
		p.log.Info("collection is empty, ignoring catalog for this run")
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := p.ingestFile(ctx, path, trustCatalog, &res); err != nil {
			return res, err
		}
	}
	p.log.Info("ingestion finished",
		zap.String("dir", dir),
		zap.Int("files", res.Files),
		zap.Int("chunks", res.Added),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}

// ingestFile indexes one file. Only infrastructure failures are returned;
// per-file problems are appended to res.Skipped. A changed file keeps its
// old chunks until the new version has been loaded and chunked.
func (p *Pipeline) ingestFile(ctx context.Context, path string, trustCatalog bool, res *Result) error {
	name := filepath.Base(path)
	log := p.log.With(zap.String("file", name))

	replace := false
	if p.opts.Mode == ModeIncremental && trustCatalog {
		info, err := os.Stat(path)
		if err != nil {
			p.skip(res, name, err)
			return nil
		}
		rec, err := p.catalog.GetDocument(ctx, name)
		if err != nil {
			return apperr.NewStorage("catalog lookup", err)
		}
		if rec != nil && rec.Size == info.Size() && rec.ModTime.Equal(info.ModTime()) {
			res.Unchanged++
			return nil
		}
		replace = rec != nil
	}

	doc, err := p.loader.Load(ctx, path)
	if err != nil {
		if errors.Is(err, loader.ErrPDFToolNotFound) {
			return apperr.NewIngestion(name, err)
		}
		p.skip(res, name, err)
		return nil
	}
	chunks, err := p.chunker.Chunk(doc)
	if err != nil {
		p.skip(res, name, err)
		return nil
	}
	if len(chunks) == 0 {
		p.skip(res, name, loader.ErrNoText)
		return nil
	}
	now := p.now()
	for i := range chunks {
		chunks[i].IngestedAt = now
	}

	if replace {
		n, err := p.index.DeleteSource(ctx, name)
		if err != nil {
			return err
		}
		log.Info("file changed, replacing chunks", zap.Int("removed", n))
	}
	if err := p.index.Add(ctx, chunks); err != nil {
		if apperr.Is(err, apperr.KindStorage) {
			return err
		}
		p.skip(res, name, err)
		return nil
	}

	if p.catalog != nil {
		rec := domain.DocumentRecord{
			Filename:   doc.Filename,
			Path:       doc.Path,
			Size:       doc.Size,
			ModTime:    doc.ModTime,
			Pages:      len(doc.Pages),
			Chunks:     len(chunks),
			Summary:    p.summarize(doc),
			IngestedAt: now,
		}
		if err := p.catalog.PutDocument(ctx, rec); err != nil {
			return apperr.NewStorage("catalog save", err)
		}
	}
	res.Added += len(chunks)
	res.Files++
	log.Info("ingested file", zap.Int("pages", len(doc.Pages)), zap.Int("chunks", len(chunks)))
	return nil
}

func (p *Pipeline) skip(res *Result, name string, err error) {
	ierr := apperr.NewIngestion(name, err)
	p.log.Warn("skipping file", zap.String("file", name), zap.Error(err))
	res.Skipped = append(res.Skipped, FileError{File: name, Err: ierr})
}

func (p *Pipeline) summarize(doc domain.Document) string {
	if p.summarizer == nil {
		return ""
	}
	text := doc.Text()
	if r := []rune(text); len(r) > 20000 {
		text = string(r[:20000])
	}
	s, err := p.summarizer.Summarize(text, p.opts.SummarySentences)
	if err != nil {
		p.log.Debug("summary failed", zap.String("file", doc.Filename), zap.Error(err))
		return ""
	}
	return s
}

func (p *Pipeline) listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !loader.Supported(e.Name(), p.opts.Extensions) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Import copies src into the corpus directory and indexes it immediately,
// regardless of the ingestion gate. An existing file with the same name is
// rejected with ErrDuplicate.
func (p *Pipeline) Import(ctx context.Context, src, dir string) (Result, error) {
	var res Result
	name := filepath.Base(src)
	if !loader.Supported(name, p.opts.Extensions) {
		return res, apperr.NewInvalidRequest(fmt.Sprintf("%s: %v", name, loader.ErrUnsupported))
	}
	dst := filepath.Join(dir, name)
	if _, err := os.Stat(dst); err == nil {
		return res, fmt.Errorf("%s: %w", name, ErrDuplicate)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, apperr.NewIngestion(name, err)
	}
	if err := copyFile(src, dst); err != nil {
		return res, apperr.NewIngestion(name, err)
	}
	if err := p.ingestFile(ctx, dst, true, &res); err != nil {
		return res, err
	}
	if len(res.Skipped) > 0 {
		_ = os.Remove(dst)
		return res, res.Skipped[0].Err
	}
	return res, nil
}

// Remove deletes a file from the corpus directory, the index and the catalog.
func (p *Pipeline) Remove(ctx context.Context, name, dir string) (int, error) {
	n, err := p.index.DeleteSource(ctx, name)
	if err != nil {
		return 0, err
	}
	if p.catalog != nil {
		if err := p.catalog.DeleteDocument(ctx, name); err != nil {
			return n, apperr.NewStorage("catalog delete", err)
		}
	}
	if err := os.Remove(filepath.Join(dir, filepath.Base(name))); err != nil && !errors.Is(err, os.ErrNotExist) {
		return n, apperr.NewIngestion(name, err)
	}
	p.log.Info("removed document", zap.String("file", name), zap.Int("chunks", n))
	return n, nil
}

// Reset empties the index and the catalog so the next Ingest starts fresh.
func (p *Pipeline) Reset(ctx context.Context) error {
	if err := p.index.Reset(ctx); err != nil {
		return err
	}
	if p.catalog == nil {
		return nil
	}
	docs, err := p.catalog.ListDocuments(ctx)
	if err != nil {
		return apperr.NewStorage("catalog list", err)
	}
	for _, d := range docs {
		if err := p.catalog.DeleteDocument(ctx, d.Filename); err != nil {
			return apperr.NewStorage("catalog delete", err)
		}
	}
	return nil
}

// Documents lists the catalog.
func (p *Pipeline) Documents(ctx context.Context) ([]domain.DocumentRecord, error) {
	if p.catalog == nil {
		return nil, nil
	}
	docs, err := p.catalog.ListDocuments(ctx)
	if err != nil {
		return nil, apperr.NewStorage("catalog list", err)
	}
	return docs, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
