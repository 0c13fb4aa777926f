// Package config loads service configuration from built-in defaults, an
// optional TOML file and the environment, in increasing order of priority.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config is the complete service configuration. Every API key is optional.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Qdrant    QdrantConfig    `toml:"qdrant"`
	Anthropic AnthropicConfig `toml:"anthropic"`
	YouTube   YouTubeConfig   `toml:"youtube"`
	Store     StoreConfig     `toml:"store"`
	Timeouts  TimeoutsConfig  `toml:"timeouts"`
	Logging   LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	// UserHeader carries the authenticated user id, set by the auth proxy.
	UserHeader string `toml:"user_header"`
}

type EmbeddingConfig struct {
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	Model             string  `toml:"model"`
	Dimension         int     `toml:"dimension"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

type QdrantConfig struct {
	Host       string `toml:"host"` // empty disables the vector index
	Port       int    `toml:"port"`
	APIKey     string `toml:"api_key"`
	UseTLS     bool   `toml:"use_tls"`
	Collection string `toml:"collection"`
	BatchSize  int    `toml:"batch_size"`
}

type AnthropicConfig struct {
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
	MaxRetries  int     `toml:"max_retries"`
}

type YouTubeConfig struct {
	APIKey   string `toml:"api_key"` // Data API key, used for titles only
	Language string `toml:"language"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

// TimeoutsConfig holds durations in time.ParseDuration syntax, e.g. "15s".
type TimeoutsConfig struct {
	Embedding string `toml:"embedding"`
	Vector    string `toml:"vector"`
	LLM       string `toml:"llm"`
	Captions  string `toml:"captions"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// NewDefaultConfig returns the configuration used when nothing is set.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       8080,
			UserHeader: "X-User-ID",
		},
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
		Qdrant: QdrantConfig{
			Port:       6334,
			Collection: "transcripts",
			BatchSize:  10,
		},
		Anthropic: AnthropicConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   1024,
			Temperature: 0.7,
			MaxRetries:  2,
		},
		YouTube: YouTubeConfig{
			Language: "en",
		},
		Store: StoreConfig{
			Path: "./data",
		},
		Timeouts: TimeoutsConfig{
			Embedding: "15s",
			Vector:    "10s",
			LLM:       "120s",
			Captions:  "15s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads .env if present, then the TOML file named by CONFIG_FILE (or
// path, when given), then applies environment overrides.
func Load(path string) (*Config, error) {
	// .env is a development convenience; production sets real variables.
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}

	cfg := NewDefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Host = getEnv("HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	cfg.Server.UserHeader = getEnv("USER_HEADER", cfg.Server.UserHeader)

	cfg.Embedding.APIKey = getEnv("OPENAI_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.BaseURL = getEnv("OPENAI_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.Model = getEnv("EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimension = getEnvInt("EMBEDDING_DIMENSION", cfg.Embedding.Dimension)
	cfg.Embedding.RequestsPerSecond = getEnvFloat("EMBEDDING_RPS", cfg.Embedding.RequestsPerSecond)

	cfg.Qdrant.Host = getEnv("QDRANT_HOST", cfg.Qdrant.Host)
	cfg.Qdrant.Port = getEnvInt("QDRANT_PORT", cfg.Qdrant.Port)
	cfg.Qdrant.APIKey = getEnv("QDRANT_API_KEY", cfg.Qdrant.APIKey)
	cfg.Qdrant.UseTLS = getEnvBool("QDRANT_USE_TLS", cfg.Qdrant.UseTLS)
	cfg.Qdrant.Collection = getEnv("QDRANT_COLLECTION", cfg.Qdrant.Collection)

	cfg.Anthropic.APIKey = getEnv("ANTHROPIC_API_KEY", cfg.Anthropic.APIKey)
	cfg.Anthropic.BaseURL = getEnv("ANTHROPIC_BASE_URL", cfg.Anthropic.BaseURL)
	cfg.Anthropic.Model = getEnv("ANTHROPIC_MODEL", cfg.Anthropic.Model)
	cfg.Anthropic.MaxTokens = getEnvInt("ANTHROPIC_MAX_TOKENS", cfg.Anthropic.MaxTokens)
	cfg.Anthropic.Temperature = getEnvFloat("ANTHROPIC_TEMPERATURE", cfg.Anthropic.Temperature)

	cfg.YouTube.APIKey = getEnv("YOUTUBE_API_KEY", cfg.YouTube.APIKey)
	cfg.YouTube.Language = getEnv("YOUTUBE_LANGUAGE", cfg.YouTube.Language)

	cfg.Store.Path = getEnv("DATA_DIR", cfg.Store.Path)

	cfg.Timeouts.Embedding = getEnv("EMBEDDING_TIMEOUT", cfg.Timeouts.Embedding)
	cfg.Timeouts.Vector = getEnv("VECTOR_TIMEOUT", cfg.Timeouts.Vector)
	cfg.Timeouts.LLM = getEnv("LLM_TIMEOUT", cfg.Timeouts.LLM)
	cfg.Timeouts.Captions = getEnv("CAPTIONS_TIMEOUT", cfg.Timeouts.Captions)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	for name, value := range map[string]string{
		"embedding": c.Timeouts.Embedding,
		"vector":    c.Timeouts.Vector,
		"llm":       c.Timeouts.LLM,
		"captions":  c.Timeouts.Captions,
	} {
		if _, err := parseTimeout(value); err != nil {
			return fmt.Errorf("invalid %s timeout %q: %w", name, value, err)
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// EmbeddingTimeout returns the parsed embedding timeout.
func (c *Config) EmbeddingTimeout() time.Duration { return mustTimeout(c.Timeouts.Embedding) }

// VectorTimeout returns the parsed vector index timeout.
func (c *Config) VectorTimeout() time.Duration { return mustTimeout(c.Timeouts.Vector) }

// LLMTimeout returns the parsed LLM stream timeout.
func (c *Config) LLMTimeout() time.Duration { return mustTimeout(c.Timeouts.LLM) }

// CaptionsTimeout returns the parsed caption download timeout.
func (c *Config) CaptionsTimeout() time.Duration { return mustTimeout(c.Timeouts.Captions) }

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func parseTimeout(value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return d, nil
}

// mustTimeout is only called on validated values; zero lets callers fall
// back to their own default.
func mustTimeout(value string) time.Duration {
	d, err := parseTimeout(value)
	if err != nil {
		return 0
	}
	return d
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
