package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP API and the MCP SSE listener.
type ServerConfig struct {
	Addr               string   `yaml:"addr"`
	MCPAddr            string   `yaml:"mcp_addr"`
	CORSOrigins        []string `yaml:"cors_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs"`
	MaxUploadMB        int      `yaml:"max_upload_mb"`
}

// StorageConfig locates the SQLite database holding document metadata.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	// SQLitePath defaults to <data_dir>/docqa.db. ":memory:" disables persistence.
	SQLitePath string `yaml:"sqlite_path"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type      string `yaml:"type"`
	ChunkSize int    `yaml:"chunk_size"`
	Overlap   int    `yaml:"overlap"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the vector index implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
	Chroma *ChromaConfig `yaml:"chroma,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL              string `yaml:"url"`
	APIKey           string `yaml:"api_key"`
	CollectionPrefix string `yaml:"collection_prefix"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
}

// ChromaConfig contains connection details for a Chroma server.
type ChromaConfig struct {
	BaseURL          string `yaml:"base_url"`
	CollectionPrefix string `yaml:"collection_prefix"`
}

// GeneratorConfig selects the generative model. Type "none" answers
// extractively.
type GeneratorConfig struct {
	Type              string  `yaml:"type"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// AnswerConfig tunes answer synthesis.
type AnswerConfig struct {
	TopK                int    `yaml:"top_k"`
	Locale              string `yaml:"locale"`
	MinAnswerChars      int    `yaml:"min_answer_chars"`
	HistoryTurns        int    `yaml:"history_turns"`
	UpstreamTimeoutSecs int    `yaml:"upstream_timeout_secs"`
}

// RedisConfig points the quiz session store at a Redis server.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// QuizConfig configures quiz generation and session storage.
type QuizConfig struct {
	Grading           string       `yaml:"grading"`
	DefaultQuestions  int          `yaml:"default_questions"`
	SessionTTLMins    int          `yaml:"session_ttl_mins"`
	SweepIntervalSecs int          `yaml:"sweep_interval_secs"`
	Store             string       `yaml:"store"`
	Redis             *RedisConfig `yaml:"redis,omitempty"`
}

// WatcherConfig enables uploading files dropped into an inbox directory.
type WatcherConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Inbox      string `yaml:"inbox"`
	DebounceMs int    `yaml:"debounce_ms"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File receives logs instead of stderr when set.
	File string `yaml:"file"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Answer      AnswerConfig      `yaml:"answer"`
	Quiz        QuizConfig        `yaml:"quiz"`
	Watcher     WatcherConfig     `yaml:"watcher"`
	Log         LogConfig         `yaml:"log"`
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
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/docqa/config.yaml and returns them.
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

// Validate rejects unknown implementation types.
func (c *AppConfig) Validate() error {
	checks := []struct {
		field string
		value string
		allow []string
	}{
		{"chunker.type", c.Chunker.Type, []string{"paragraph"}},
		{"embedder.type", c.Embedder.Type, []string{"hashing", "openai"}},
		{"vector_store.type", c.VectorStore.Type, []string{"memory", "sqlite", "chroma", "qdrant"}},
		{"generator.type", c.Generator.Type, []string{"none", "openai"}},
		{"summarizer.type", c.Summarizer.Type, []string{"frequency", "generative"}},
		{"quiz.grading", c.Quiz.Grading, []string{"mcq", "free_text"}},
		{"quiz.store", c.Quiz.Store, []string{"memory", "redis"}},
		{"log.format", c.Log.Format, []string{"json", "text"}},
	}
	for _, ch := range checks {
		if !contains(ch.allow, ch.value) {
			return fmt.Errorf("unknown %s %q (want one of %v)", ch.field, ch.value, ch.allow)
		}
	}
	if c.Chunker.Overlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("chunker.overlap %d must be smaller than chunk_size %d", c.Chunker.Overlap, c.Chunker.ChunkSize)
	}
	if c.Summarizer.Type == "generative" && c.Generator.Type == "none" {
		return errors.New("summarizer.type generative needs a generator")
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// SQLitePath resolves the metadata database location.
func (c *AppConfig) SQLitePath() string {
	if c.Storage.SQLitePath != "" {
		return c.Storage.SQLitePath
	}
	return filepath.Join(c.Storage.DataDir, "docqa.db")
}

func (c *AppConfig) SessionTTL() time.Duration {
	return time.Duration(c.Quiz.SessionTTLMins) * time.Minute
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docqa", "config.yaml"), nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docqa"
	}
	return filepath.Join(home, ".local", "share", "docqa")
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "localhost:8000"
	}
	if cfg.Server.MCPAddr == "" {
		cfg.Server.MCPAddr = "localhost:8001"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 60
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = defaultDataDir()
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "paragraph"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = cfg.Chunker.ChunkSize / 5
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 384
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
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
	if cfg.VectorStore.Type == "chroma" {
		if cfg.VectorStore.Chroma == nil {
			cfg.VectorStore.Chroma = &ChromaConfig{}
		}
		if cfg.VectorStore.Chroma.BaseURL == "" {
			cfg.VectorStore.Chroma.BaseURL = "http://localhost:8000"
		}
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "none"
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.BaseURL == "" {
			cfg.Generator.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Generator.Model == "" {
			cfg.Generator.Model = "gpt-3.5-turbo"
		}
		if cfg.Generator.TimeoutSecs == 0 {
			cfg.Generator.TimeoutSecs = 30
		}
		if cfg.Generator.RequestsPerMinute == 0 {
			cfg.Generator.RequestsPerMinute = 60
		}
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 5
	}
	if cfg.Answer.TopK == 0 {
		cfg.Answer.TopK = 5
	}
	if cfg.Answer.Locale == "" {
		cfg.Answer.Locale = "en"
	}
	if cfg.Answer.UpstreamTimeoutSecs == 0 {
		cfg.Answer.UpstreamTimeoutSecs = 30
	}
	if cfg.Quiz.Grading == "" {
		cfg.Quiz.Grading = "mcq"
	}
	if cfg.Quiz.DefaultQuestions == 0 {
		cfg.Quiz.DefaultQuestions = 3
	}
	if cfg.Quiz.SessionTTLMins == 0 {
		cfg.Quiz.SessionTTLMins = 120
	}
	if cfg.Quiz.SweepIntervalSecs == 0 {
		cfg.Quiz.SweepIntervalSecs = 60
	}
	if cfg.Quiz.Store == "" {
		cfg.Quiz.Store = "memory"
	}
	if cfg.Quiz.Store == "redis" {
		if cfg.Quiz.Redis == nil {
			cfg.Quiz.Redis = &RedisConfig{}
		}
		if cfg.Quiz.Redis.Addr == "" {
			cfg.Quiz.Redis.Addr = "localhost:6379"
		}
	}
	if cfg.Watcher.Inbox == "" {
		cfg.Watcher.Inbox = filepath.Join(cfg.Storage.DataDir, "inbox")
	}
	if cfg.Watcher.DebounceMs == 0 {
		cfg.Watcher.DebounceMs = 500
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
