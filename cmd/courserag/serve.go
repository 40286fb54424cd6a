package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"courserag/internal/conversation"
	"courserag/internal/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(app *application) error {
			ctx := cmd.Context()
			if res, err := app.assistant.Ingest(ctx); err != nil {
				log.Error("startup ingestion failed", zap.Error(err))
			} else if !res.Gated {
				log.Info("startup ingestion finished", zap.Int("files", res.Files), zap.Int("chunks", res.Added))
			}

			addr := cfg.Server.Addr
			if serveAddr != "" {
				addr = serveAddr
			}
			srv := httpapi.New(app.assistant, conversation.NewRegistry(), httpapi.Config{
				Addr:      addr,
				Mode:      cfg.Server.Mode,
				UploadDir: cfg.Server.UploadDir,
			}, log.Named("http"))
			return srv.Run(ctx)
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
