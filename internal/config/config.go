package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"courserag/internal/logger"
)

// CorpusConfig points at the directory of course files.
type CorpusConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
}

// ChunkerConfig configures how pages are split into chunks.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// OpenAIConfig holds connection settings for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string        `yaml:"type"`
	Dimension int           `yaml:"dimension"`
	OpenAI    *OpenAIConfig `yaml:"openai,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string        `yaml:"type"`
	Collection string        `yaml:"collection"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty"`
}

// IngestConfig selects the ingestion gate: "presence" or "incremental".
type IngestConfig struct {
	Mode             string `yaml:"mode"`
	SummarySentences int    `yaml:"summary_sentences"`
}

// RetrievalConfig configures answer composition.
type RetrievalConfig struct {
	TopK    int    `yaml:"top_k"`
	Persona string `yaml:"persona"`
}

// LLMConfig configures the chat completion provider.
type LLMConfig struct {
	OpenAIConfig `yaml:",inline"`
	Temperature  float64 `yaml:"temperature"`
}

// ExtractionConfig configures evaluation-date extraction.
type ExtractionConfig struct {
	TopK   int `yaml:"top_k"`
	Window int `yaml:"window"`
}

// CalendarConfig configures the calendar provider and event conventions.
type CalendarConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	CalendarID      string `yaml:"calendar_id"`
	TimeZone        string `yaml:"time_zone"`
	StartHour       int    `yaml:"start_hour"`
	DurationHours   int    `yaml:"duration_hours"`
	EmailReminder   int    `yaml:"email_reminder_minutes"`
	PopupReminder   int    `yaml:"popup_reminder_minutes"`
	Dedupe          *bool  `yaml:"dedupe,omitempty"`
}

// FetcherConfig names the external command that downloads course files.
type FetcherConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	Mode      string `yaml:"mode"`
	UploadDir string `yaml:"upload_dir"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	DataDir     string            `yaml:"data_dir"`
	Log         logger.Config     `yaml:"log"`
	Corpus      CorpusConfig      `yaml:"corpus"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	LLM         LLMConfig         `yaml:"llm"`
	Extraction  ExtractionConfig  `yaml:"extraction"`
	Calendar    CalendarConfig    `yaml:"calendar"`
	Fetcher     FetcherConfig     `yaml:"fetcher"`
	Server      ServerConfig      `yaml:"server"`
}

// DedupeCandidates reports whether duplicate evaluation candidates are
// collapsed before scheduling. Defaults to true.
func (c *AppConfig) DedupeCandidates() bool {
	return c.Calendar.Dedupe == nil || *c.Calendar.Dedupe
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/courserag/config.yaml.
// If neither exists, it writes defaults to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "courserag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

const defaultPersona = `Eres un asistente académico que responde preguntas sobre los documentos del curso.
Responde únicamente con la información del contexto proporcionado.
Cita siempre la fuente de cada dato con el formato [Source: archivo, Page: n].
Si el contexto no contiene la respuesta, dilo claramente en lugar de inventarla.`

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Corpus.Dir == "" {
		cfg.Corpus.Dir = "pdfs"
	}
	if len(cfg.Corpus.Extensions) == 0 {
		cfg.Corpus.Extensions = []string{".pdf"}
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 1000
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 200
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 1024
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Embedder.OpenAI, "text-embedding-3-small")
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "course_docs"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.Ingest.Mode == "" {
		cfg.Ingest.Mode = "presence"
	}
	if cfg.Ingest.SummarySentences == 0 {
		cfg.Ingest.SummarySentences = 3
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Retrieval.Persona == "" {
		cfg.Retrieval.Persona = defaultPersona
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}
	applyOpenAIDefaults(&cfg.LLM.OpenAIConfig, "gpt-4o-mini")
	if cfg.Extraction.TopK == 0 {
		cfg.Extraction.TopK = 5
	}
	if cfg.Extraction.Window == 0 {
		cfg.Extraction.Window = 100
	}
	if cfg.Calendar.CredentialsFile == "" {
		cfg.Calendar.CredentialsFile = "credentials.json"
	}
	if cfg.Calendar.TokenFile == "" {
		cfg.Calendar.TokenFile = "token.json"
	}
	if cfg.Calendar.CalendarID == "" {
		cfg.Calendar.CalendarID = "primary"
	}
	if cfg.Calendar.TimeZone == "" {
		cfg.Calendar.TimeZone = "America/Lima"
	}
	if cfg.Calendar.StartHour == 0 {
		cfg.Calendar.StartHour = 10
	}
	if cfg.Calendar.DurationHours == 0 {
		cfg.Calendar.DurationHours = 2
	}
	if cfg.Calendar.EmailReminder == 0 {
		cfg.Calendar.EmailReminder = 24 * 60
	}
	if cfg.Calendar.PopupReminder == 0 {
		cfg.Calendar.PopupReminder = 60
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
}

func applyOpenAIDefaults(c *OpenAIConfig, model string) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 30
	}
}
