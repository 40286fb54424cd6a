package main

import (
	"github.com/spf13/cobra"
)

var fetchIngest bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download course files with the configured fetcher command",
	Long: `Runs fetcher.command in the corpus directory and reports how many new
course files it produced. An exit status of 77 means the login was rejected.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(app *application) error {
			n, res, err := app.assistant.Fetch(cmd.Context(), fetchIngest)
			if err != nil {
				return err
			}
			cmd.Printf("%d archivos nuevos.\n", n)
			if fetchIngest && n > 0 {
				printIngest(cmd, res)
			}
			return nil
		})
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchIngest, "ingest", false, "ingest the corpus when new files arrive")
	rootCmd.AddCommand(fetchCmd)
}
