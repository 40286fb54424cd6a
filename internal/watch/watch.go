// Package watch reports batches of corpus file changes using fsnotify.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"courserag/internal/loader"
	"courserag/internal/logger"
)

// DefaultDebounce is how long the directory must stay quiet before a batch
// is delivered. Large PDFs are written in several chunks.
const DefaultDebounce = 2 * time.Second

// ChangeType classifies one file event.
type ChangeType int

const (
	ChangeUpdated ChangeType = iota + 1
	ChangeDeleted
)

// Batch is the set of files touched during one quiet period. A file
// appears in at most one list, according to its last event.
type Batch struct {
	Updated []string
	Deleted []string
}

// Empty reports whether the batch holds no changes.
func (b Batch) Empty() bool { return len(b.Updated) == 0 && len(b.Deleted) == 0 }

// Handler processes one batch. Errors are logged and watching continues.
type Handler func(ctx context.Context, b Batch) error

// Watcher watches a single corpus directory, non-recursively.
type Watcher struct {
	dir        string
	extensions []string
	debounce   time.Duration
	log        *zap.Logger
}

// New creates a watcher for dir. Only files with the given extensions are reported.
func New(dir string, extensions []string, debounce time.Duration, log *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if len(extensions) == 0 {
		extensions = []string{".pdf"}
	}
	return &Watcher{dir: dir, extensions: extensions, debounce: debounce, log: logger.OrNop(log)}
}

// Run blocks until ctx is cancelled, calling handle once per quiet period.
// Batches are handled sequentially on the calling goroutine.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Info("watching corpus directory", zap.String("dir", w.dir))

	pending := map[string]ChangeType{}
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ct, relevant := w.classify(ev); relevant {
				pending[filepath.Base(ev.Name)] = ct
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", zap.Error(err))
		case <-timer.C:
			b := toBatch(pending)
			pending = map[string]ChangeType{}
			if b.Empty() {
				continue
			}
			w.log.Info("corpus changed", zap.Strings("updated", b.Updated), zap.Strings("deleted", b.Deleted))
			if err := handle(ctx, b); err != nil {
				w.log.Error("handling corpus change failed", zap.Error(err))
			}
		}
	}
}

// classify maps an fsnotify event to a change. Chmod events, directories,
// hidden files and unsupported extensions are ignored.
func (w *Watcher) classify(ev fsnotify.Event) (ChangeType, bool) {
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") || !loader.Supported(name, w.extensions) {
		return 0, false
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return ChangeDeleted, true
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			return 0, false
		}
		return ChangeUpdated, true
	default:
		return 0, false
	}
}

func toBatch(pending map[string]ChangeType) Batch {
	var b Batch
	for name, ct := range pending {
		if ct == ChangeDeleted {
			b.Deleted = append(b.Deleted, name)
		} else {
			b.Updated = append(b.Updated, name)
		}
	}
	sort.Strings(b.Updated)
	sort.Strings(b.Deleted)
	return b
}
