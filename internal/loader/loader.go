// Package loader reads corpus files into page-bearing documents.
// PDFs go through pdftotext; plain text files become a single page.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"courserag/internal/domain"
	"courserag/internal/runner"
)

var (
	// ErrPDFToolNotFound means pdftotext (poppler-utils) is not installed.
	ErrPDFToolNotFound = errors.New("pdftotext not found: install poppler-utils")
	// ErrNoText means the file yielded no readable text.
	ErrNoText = errors.New("no extractable text")
	// ErrUnsupported means the extension has no loader.
	ErrUnsupported = errors.New("unsupported file type")
)

// Loader converts files into documents.
type Loader struct {
	runner runner.CommandRunner
}

// New creates a loader that shells out to pdftotext.
func New() *Loader {
	return &Loader{runner: runner.Exec{}}
}

// NewWithRunner creates a loader with a custom command runner.
func NewWithRunner(r runner.CommandRunner) *Loader {
	return &Loader{runner: r}
}

// CheckAvailable verifies pdftotext can be executed.
func (l *Loader) CheckAvailable(ctx context.Context) error {
	if _, err := l.runner.Run(ctx, "pdftotext", "-v"); err != nil && errors.Is(err, runner.ErrNotFound) {
		return ErrPDFToolNotFound
	}
	return nil
}

// Load reads path. Pages are numbered from 1 and blank pages are kept so
// page numbers match the original file.
func (l *Loader) Load(ctx context.Context, path string) (domain.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.Document{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return domain.Document{}, err
	}
	doc := domain.Document{
		Filename: filepath.Base(abs),
		Path:     abs,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}

	var pages []string
	switch strings.ToLower(filepath.Ext(abs)) {
	case ".pdf":
		out, err := l.runner.Run(ctx, "pdftotext", "-enc", "UTF-8", "-layout", abs, "-")
		if err != nil {
			if errors.Is(err, runner.ErrNotFound) {
				return doc, ErrPDFToolNotFound
			}
			return doc, fmt.Errorf("extracting text: %w", err)
		}
		pages = SplitPages(string(out))
	case ".txt", ".md":
		data, err := os.ReadFile(abs)
		if err != nil {
			return doc, err
		}
		if !utf8.Valid(data) {
			return doc, fmt.Errorf("%s is not valid UTF-8", doc.Filename)
		}
		pages = []string{string(data)}
	default:
		return doc, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(abs))
	}

	hasText := false
	for i, p := range pages {
		doc.Pages = append(doc.Pages, domain.Page{Number: i + 1, Text: p})
		if strings.TrimSpace(p) != "" {
			hasText = true
		}
	}
	if !hasText {
		return doc, ErrNoText
	}
	return doc, nil
}

// SplitPages splits pdftotext output on form feeds. The empty segment after
// the final form feed is dropped.
func SplitPages(out string) []string {
	out = strings.ReplaceAll(out, "\r\n", "\n")
	pages := strings.Split(out, "\f")
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}

// Supported reports whether path has one of the given extensions.
func Supported(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
