// Package fetcher runs the external course-file downloader and reports how
// many new corpus files it produced.
package fetcher

import (
	"context"
	"errors"
	"os"
	"os/exec"

	"go.uber.org/zap"

	apperr "courserag/internal/errors"
	"courserag/internal/loader"
	"courserag/internal/logger"
	"courserag/internal/runner"
)

// ExitLoginFailed is the exit status a downloader uses to report rejected
// credentials (EX_NOPERM).
const ExitLoginFailed = 77

// Config configures the downloader command.
type Config struct {
	Command    string
	Args       []string
	Dir        string
	Extensions []string
}

// CommandFetcher is a domain.Fetcher that shells out to a downloader.
type CommandFetcher struct {
	runner runner.CommandRunner
	cfg    Config
	log    *zap.Logger
}

// New creates a fetcher. A nil runner uses os/exec.
func New(r runner.CommandRunner, cfg Config, log *zap.Logger) *CommandFetcher {
	if r == nil {
		r = runner.Exec{}
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".pdf"}
	}
	return &CommandFetcher{runner: r, cfg: cfg, log: logger.OrNop(log)}
}

// Fetch runs the downloader and returns the number of corpus files that
// appeared in the directory while it ran.
func (f *CommandFetcher) Fetch(ctx context.Context) (int, error) {
	if f.cfg.Command == "" {
		return 0, apperr.NewInvalidRequest("fetcher.command is not configured")
	}
	if err := os.MkdirAll(f.cfg.Dir, 0o755); err != nil {
		return 0, err
	}
	before, err := f.snapshot()
	if err != nil {
		return 0, err
	}

	f.log.Info("running course-file fetcher", zap.String("command", f.cfg.Command), zap.String("dir", f.cfg.Dir))
	out, err := f.runner.Run(ctx, f.cfg.Command, f.cfg.Args...)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == ExitLoginFailed {
			return 0, apperr.NewAuthentication("fetch", err)
		}
		return 0, err
	}
	if len(out) > 0 {
		f.log.Debug("fetcher output", zap.ByteString("stdout", out))
	}

	after, err := f.snapshot()
	if err != nil {
		return 0, err
	}
	added := 0
	for name := range after {
		if _, ok := before[name]; !ok {
			added++
		}
	}
	f.log.Info("fetch finished", zap.Int("new_files", added))
	return added, nil
}

func (f *CommandFetcher) snapshot() (map[string]struct{}, error) {
	entries, err := os.ReadDir(f.cfg.Dir)
	if err != nil {
		return nil, err
	}
	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if !e.IsDir() && loader.Supported(e.Name(), f.cfg.Extensions) {
			names[e.Name()] = struct{}{}
		}
	}
	return names, nil
}
