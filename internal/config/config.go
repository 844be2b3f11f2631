package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the blograg API configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	LLM         LLMConfig         `yaml:"llm"`
	Indexing    IndexingConfig    `yaml:"indexing"`
	Images      ImagesConfig      `yaml:"images"`
	Uploads     UploadsConfig     `yaml:"uploads"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// PostgresConfig holds the blog database connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN builds a lib/pq connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// VectorStoreConfig holds the Redis vector index settings.
type VectorStoreConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	IndexName        string   `yaml:"index_name"`
	Dimensions       int      `yaml:"dimensions"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	UpsertBatchSize  int      `yaml:"upsert_batch_size"`
	MinScore         float64  `yaml:"min_score"`
	HNSWM            int      `yaml:"hnsw_m"`
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
}

// LLMConfig holds the OpenAI-compatible embedding and generation settings.
type LLMConfig struct {
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	EmbeddingModel string  `yaml:"embedding_model"`
	ChatModel      string  `yaml:"chat_model"`
	EmbedMaxChars  int     `yaml:"embed_max_chars"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
}

// IndexingConfig holds chunking and reindex settings.
type IndexingConfig struct {
	ChunkSize        int `yaml:"chunk_size"`
	ChunkOverlap     int `yaml:"chunk_overlap"`
	MinContentLen    int `yaml:"min_content_len"`
	DefaultLimit     int `yaml:"default_limit"`
	WarmStartLimit   int `yaml:"warm_start_limit"`
	RefreshLimit     int `yaml:"refresh_limit"`
	RefreshSettleSec int `yaml:"refresh_settle_sec"`
}

// ImagesConfig holds image generation provider settings.
type ImagesConfig struct {
	BaseURL       string   `yaml:"base_url"`
	Models        []string `yaml:"models"`
	Retries       int      `yaml:"retries"`
	RetryDelaySec int      `yaml:"retry_delay_sec"`
	TimeoutSec    int      `yaml:"timeout_sec"`
}

// UploadsConfig holds uploaded and generated file storage settings.
type UploadsConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Image generation waits on slow upstream providers.
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Postgres.Port <= 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.VectorStore.IndexName == "" {
		c.VectorStore.IndexName = "rag-index-v1"
	}
	if c.VectorStore.Dimensions <= 0 {
		c.VectorStore.Dimensions = 768
	}
	if c.VectorStore.ReadinessTimeout <= 0 {
		c.VectorStore.ReadinessTimeout = 10
	}
	if c.VectorStore.UpsertBatchSize <= 0 {
		c.VectorStore.UpsertBatchSize = 50
	}
	if c.VectorStore.MinScore <= 0 {
		c.VectorStore.MinScore = 0.1
	}
	if c.VectorStore.HNSWM <= 0 {
		c.VectorStore.HNSWM = 16
	}
	if c.VectorStore.HNSWEFConstruct <= 0 {
		c.VectorStore.HNSWEFConstruct = 200
	}
	if c.LLM.EmbedMaxChars <= 0 {
		c.LLM.EmbedMaxChars = 8000
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 2048
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = 0.2
	}
	if c.Indexing.ChunkSize <= 0 {
		c.Indexing.ChunkSize = 1000
	}
	if c.Indexing.ChunkOverlap <= 0 {
		c.Indexing.ChunkOverlap = 200
	}
	if c.Indexing.MinContentLen <= 0 {
		c.Indexing.MinContentLen = 50
	}
	if c.Indexing.DefaultLimit <= 0 {
		c.Indexing.DefaultLimit = 50
	}
	if c.Indexing.WarmStartLimit <= 0 {
		c.Indexing.WarmStartLimit = 20
	}
	if c.Indexing.RefreshLimit <= 0 {
		c.Indexing.RefreshLimit = 1000
	}
	if c.Indexing.RefreshSettleSec <= 0 {
		c.Indexing.RefreshSettleSec = 2
	}
	if c.Images.BaseURL == "" {
		c.Images.BaseURL = "https://image.pollinations.ai"
	}
	if len(c.Images.Models) == 0 {
		c.Images.Models = []string{"turbo", "flux", "kontext"}
	}
	if c.Images.Retries <= 0 {
		c.Images.Retries = 5
	}
	if c.Images.RetryDelaySec <= 0 {
		c.Images.RetryDelaySec = 2
	}
	if c.Images.TimeoutSec <= 0 {
		c.Images.TimeoutSec = 30
	}
	if c.Uploads.Dir == "" {
		c.Uploads.Dir = "uploads"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Postgres.Host == "" {
		return fmt.Errorf("postgres.host is required")
	}
	if c.Postgres.Database == "" {
		return fmt.Errorf("postgres.database is required")
	}
	if len(c.VectorStore.Addrs) == 0 {
		return fmt.Errorf("vector_store.addrs is required")
	}
	if c.Indexing.ChunkOverlap >= c.Indexing.ChunkSize {
		return fmt.Errorf("indexing.chunk_overlap (%d) must be smaller than indexing.chunk_size (%d)",
			c.Indexing.ChunkOverlap, c.Indexing.ChunkSize)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
