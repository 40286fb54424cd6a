package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"courserag/internal/conversation"
	"courserag/internal/logger"
	"courserag/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat",
	Long: `Ingests the corpus (honouring the ingestion gate) and opens a chat window.

Questions are answered from the indexed documents with [Source, Page]
citations. "agenda las evaluaciones de <curso>" schedules that course's
evaluations in Google Calendar.

Commands: /reset, /ingest, /reingest, /docs, /help, /quit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	// Log lines would tear the full-screen UI, so only the log file is kept.
	quiet := cfg.Log
	quiet.Quiet = true
	if verbose {
		quiet.Level = "debug"
	}
	chatLog, err := logger.New(quiet)
	if err != nil {
		return err
	}
	defer func() { _ = chatLog.Sync() }()

	app, err := newApplication(cfg, chatLog)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	banner := ""
	res, err := app.assistant.Ingest(ctx)
	switch {
	case err != nil:
		chatLog.Error("startup ingestion failed", zap.Error(err))
		banner = "No se pudo ingestar la carpeta: " + err.Error()
	case res.Gated:
		banner = "Usando el índice existente."
	default:
		banner = fmt.Sprintf("Ingestados %d archivos (%d fragmentos).", res.Files, res.Added)
	}

	m := tui.New(ctx, app.assistant, conversation.New(), banner)
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
