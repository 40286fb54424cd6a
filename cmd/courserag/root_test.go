package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"chat", "ask", "ingest", "reset", "schedule", "events", "calendar-auth", "fetch", "watch", "serve", "docs"} {
		assert.True(t, names[want], "missing command %q", want)
	}

	docs := map[string]bool{}
	for _, c := range docsCmd.Commands() {
		docs[c.Name()] = true
	}
	assert.Equal(t, map[string]bool{"list": true, "add": true, "rm": true}, docs)
}

func writeConfig(t *testing.T) (cfgFile, corpus string) {
	t.Helper()
	root := t.TempDir()
	corpus = filepath.Join(root, "pdfs")
	require.NoError(t, os.MkdirAll(corpus, 0o755))
	cfgFile = filepath.Join(root, "config.yaml")
	yaml := `data_dir: ` + filepath.Join(root, "data") + `
log:
  level: error
  format: json
corpus:
  dir: ` + corpus + `
  extensions: [".txt"]
chunker:
  size: 400
  overlap: 50
embedder:
  type: hashing
  dimension: 256
vector_store:
  type: sqlite
  collection: test_docs
llm:
  base_url: http://127.0.0.1:9/v1
calendar:
  time_zone: UTC
  credentials_file: ` + filepath.Join(root, "credentials.json") + `
  token_file: ` + filepath.Join(root, "token.json") + `
`
	require.NoError(t, os.WriteFile(cfgFile, []byte(yaml), 0o644))
	return cfgFile, corpus
}

func run(t *testing.T, cfgFile string, args ...string) (string, error) {
	t.Helper()
	ingestReset, scheduleDryRun, fetchIngest = false, false, false
	eventsMax = 10

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append([]string{"--config", cfgFile}, args...))
	defer rootCmd.SetArgs(nil)

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

const syllabus = `Curso: Finanzas Corporativas

Cronograma de evaluaciones
Examen Parcial: 15/04/2025, 20%, presencial
`

func TestIngestAndDocs(t *testing.T) {
	cfgFile, corpus := writeConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "silabo.txt"), []byte(syllabus), 0o644))

	out, err := run(t, cfgFile, "ingest")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Ingesta completa: 1 archivos")

	out, err = run(t, cfgFile, "ingest")
	require.NoError(t, err, out)
	assert.Contains(t, out, "--reset")

	out, err = run(t, cfgFile, "ingest", "--reset")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Ingesta completa: 1 archivos")

	out, err = run(t, cfgFile, "docs", "list")
	require.NoError(t, err, out)
	assert.Contains(t, out, "silabo.txt")

	extra := filepath.Join(t.TempDir(), "guia.txt")
	require.NoError(t, os.WriteFile(extra, []byte("Guía de prácticas del curso de Finanzas."), 0o644))
	out, err = run(t, cfgFile, "docs", "add", extra)
	require.NoError(t, err, out)
	assert.FileExists(t, filepath.Join(corpus, "guia.txt"))

	_, err = run(t, cfgFile, "docs", "add", extra)
	assert.Error(t, err)

	out, err = run(t, cfgFile, "docs", "rm", "guia.txt", "silabo.txt")
	require.NoError(t, err, out)
	assert.NoFileExists(t, filepath.Join(corpus, "silabo.txt"))

	out, err = run(t, cfgFile, "docs", "list")
	require.NoError(t, err, out)
	assert.Contains(t, out, "No hay documentos")
}

func TestScheduleDryRun(t *testing.T) {
	cfgFile, corpus := writeConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "silabo.txt"), []byte(syllabus), 0o644))
	_, err := run(t, cfgFile, "ingest")
	require.NoError(t, err)

	out, err := run(t, cfgFile, "schedule", "--dry-run", "Finanzas", "Corporativas")
	require.NoError(t, err, out)
	assert.Contains(t, out, "15/04/2025 10:00  Finanzas Corporativas - Examen (20%)")
}

func TestAsk_EmptyIndex(t *testing.T) {
	cfgFile, _ := writeConfig(t)
	out, err := run(t, cfgFile, "ask", "¿cuándo", "es", "el", "examen?")
	require.NoError(t, err, out)
	assert.Contains(t, out, "No hay documentos cargados")
}

func TestEvents_RequiresPositiveMax(t *testing.T) {
	cfgFile, _ := writeConfig(t)
	_, err := run(t, cfgFile, "events", "--max", "0")
	assert.Error(t, err)
}

func TestFetch_NotConfigured(t *testing.T) {
	cfgFile, _ := writeConfig(t)
	_, err := run(t, cfgFile, "fetch")
	assert.Error(t, err)
}
