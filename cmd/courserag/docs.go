package main

import (
	"github.com/spf13/cobra"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage the document library",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents with their summaries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(app *application) error {
			docs, err := app.assistant.Documents(cmd.Context())
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				cmd.Println("No hay documentos en el catálogo.")
				return nil
			}
			for _, d := range docs {
				cmd.Printf("%s  %d páginas, %d fragmentos, ingestado %s\n",
					d.Filename, d.Pages, d.Chunks, d.IngestedAt.Format("02/01/2006 15:04"))
				if d.Summary != "" {
					cmd.Printf("    %s\n", d.Summary)
				}
			}
			return nil
		})
	},
}

var docsAddCmd = &cobra.Command{
	Use:   "add <file>...",
	Short: "Copy files into the corpus and index them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *application) error {
			for _, path := range args {
				res, err := app.assistant.AddDocument(cmd.Context(), path)
				if err != nil {
					return err
				}
				cmd.Printf("Agregado %s (%d fragmentos).\n", path, res.Added)
			}
			return nil
		})
	},
}

var docsRmCmd = &cobra.Command{
	Use:   "rm <filename>...",
	Short: "Delete files from the corpus and the index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(app *application) error {
			for _, name := range args {
				n, err := app.assistant.RemoveDocument(cmd.Context(), name)
				if err != nil {
					return err
				}
				cmd.Printf("Eliminado %s (%d fragmentos).\n", name, n)
			}
			return nil
		})
	},
}

func init() {
	docsCmd.AddCommand(docsListCmd, docsAddCmd, docsRmCmd)
	rootCmd.AddCommand(docsCmd)
}
