package main

import (
	"strings"

	"github.com/spf13/cobra"

	"courserag/internal/conversation"
	"courserag/internal/ingest"
)

var ingestReset bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question from the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index the corpus directory",
	Long: `Loads, chunks and indexes the files in the corpus directory.

In the default presence mode nothing happens when the index already holds
documents; pass --reset to rebuild it from scratch.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Empty the index and the document catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(app *application) error {
			if err := app.assistant.ResetIndex(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Índice vacío.")
			return nil
		})
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "clear the index before ingesting")
	rootCmd.AddCommand(askCmd, ingestCmd, resetCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	return withApp(func(app *application) error {
		resp := app.assistant.Handle(cmd.Context(), conversation.New(), question)
		cmd.Println(resp.Text)
		if resp.Reply != nil && resp.Reply.Err != nil {
			return resp.Reply.Err
		}
		if resp.Reply != nil && len(resp.Reply.Sources) > 0 {
			cmd.Println()
			cmd.Println("Fuentes:")
			for _, r := range resp.Reply.Sources {
				cmd.Printf("  %s, página %d (%.3f)\n", r.Chunk.Source, r.Chunk.Page, r.Score)
			}
		}
		return nil
	})
}

func runIngest(cmd *cobra.Command, _ []string) error {
	return withApp(func(app *application) error {
		var (
			res ingest.Result
			err error
		)
		if ingestReset {
			res, err = app.assistant.Reingest(cmd.Context())
		} else {
			res, err = app.assistant.Ingest(cmd.Context())
		}
		if err != nil {
			return err
		}
		printIngest(cmd, res)
		return nil
	})
}

func printIngest(cmd *cobra.Command, res ingest.Result) {
	if res.Gated {
		cmd.Println("El índice ya tiene documentos; usa --reset para reconstruirlo.")
		return
	}
	cmd.Printf("Ingesta completa: %d archivos, %d fragmentos, %d sin cambios.\n", res.Files, res.Added, res.Unchanged)
	for _, s := range res.Skipped {
		cmd.Printf("  omitido %s: %v\n", s.File, s.Err)
	}
}
