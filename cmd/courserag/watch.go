package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"courserag/internal/ingest"
	"courserag/internal/watch"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-index the corpus whenever its files change",
	Long: `Ingests the corpus, then watches the corpus directory. Deleted files are
removed from the index. New or modified files are ingested; in presence
mode this rebuilds the whole index, in incremental mode only the changed
files are re-read.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(app *application) error {
			ctx := cmd.Context()
			res, err := app.assistant.Ingest(ctx)
			if err != nil {
				return err
			}
			printIngest(cmd, res)

			w := watch.New(cfg.Corpus.Dir, cfg.Corpus.Extensions, watchDebounce, log.Named("watch"))
			return w.Run(ctx, func(ctx context.Context, b watch.Batch) error {
				return applyBatch(ctx, cmd, app, b)
			})
		})
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before re-indexing")
	rootCmd.AddCommand(watchCmd)
}

func applyBatch(ctx context.Context, cmd *cobra.Command, app *application, b watch.Batch) error {
	for _, name := range b.Deleted {
		n, err := app.assistant.RemoveDocument(ctx, name)
		if err != nil {
			return err
		}
		log.Info("removed deleted file from index", zap.String("file", name), zap.Int("chunks", n))
	}
	if len(b.Updated) == 0 {
		return nil
	}

	var (
		res ingest.Result
		err error
	)
	if app.pipeline.Mode() == ingest.ModeIncremental {
		res, err = app.assistant.Ingest(ctx)
	} else {
		res, err = app.assistant.Reingest(ctx)
	}
	if err != nil {
		return err
	}
	printIngest(cmd, res)
	return nil
}
