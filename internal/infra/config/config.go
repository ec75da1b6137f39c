package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP        HTTPConfig     `yaml:"http"`
	LLM         LLMConfig      `yaml:"llm"`
	Dedup       DedupConfig    `yaml:"dedup"`
	RecordStore PostgresConfig `yaml:"recordStore"`
	VectorIndex PostgresConfig `yaml:"vectorIndex"`
	Valkey      ValkeyConfig   `yaml:"valkey"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address      string          `yaml:"address"`
	ReadTimeout  time.Duration   `yaml:"readTimeout"`
	WriteTimeout time.Duration   `yaml:"writeTimeout"`
	RateLimit    RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// LLMConfig contains OpenAI-compatible provider settings.
type LLMConfig struct {
	APIKey           string  `yaml:"apiKey"`
	BaseURL          string  `yaml:"baseUrl"`
	Model            string  `yaml:"model"`
	EmbeddingModel   string  `yaml:"embeddingModel"`
	EmbeddingDim     int     `yaml:"embeddingDim"`
	Temperature      float32 `yaml:"temperature"`
	MaxContextTokens int     `yaml:"maxContextTokens"`
}

// DedupConfig tunes the duplicate-detection engine.
type DedupConfig struct {
	GlobalThreshold float64 `yaml:"globalThreshold"`
	LessonThreshold float64 `yaml:"lessonThreshold"`
	GlobalTopK      int     `yaml:"globalTopK"`
	LessonTopK      int     `yaml:"lessonTopK"`
	OrphanScanLimit int     `yaml:"orphanScanLimit"`
	TopTrending     int     `yaml:"topTrending"`
}

// PostgresConfig contains DSN and pooling settings. The record store and the
// vector index are configured independently so each can fail on its own.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// ValkeyConfig contains connection information for the trending store.
type ValkeyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_EMBEDDING_MODEL"); v != "" {
		cfg.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("LLM_EMBEDDING_DIM"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.LLM.EmbeddingDim = parsed
		}
	}
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.LLM.Temperature = float32(parsed)
		}
	}
	if v := os.Getenv("DEDUP_GLOBAL_THRESHOLD"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Dedup.GlobalThreshold = parsed
		}
	}
	if v := os.Getenv("DEDUP_LESSON_THRESHOLD"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Dedup.LessonThreshold = parsed
		}
	}
	if v := os.Getenv("DEDUP_ORPHAN_SCAN_LIMIT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Dedup.OrphanScanLimit = parsed
		}
	}
	if v := os.Getenv("RECORD_STORE_DSN"); v != "" {
		cfg.RecordStore.DSN = v
	}
	if v := os.Getenv("VECTOR_INDEX_DSN"); v != "" {
		cfg.VectorIndex.DSN = v
	}
	if v := os.Getenv("VALKEY_ENABLED"); v != "" {
		cfg.Valkey.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("VALKEY_ADDR"); v != "" {
		cfg.Valkey.Addr = v
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_ENABLED"); v != "" {
		cfg.HTTP.RateLimit.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_RPM"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.RequestsPerMinute = parsed
		}
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_BURST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.Burst = parsed
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             20,
			},
		},
		LLM: LLMConfig{
			Model:            "gpt-4o-mini",
			EmbeddingModel:   "text-embedding-3-small",
			EmbeddingDim:     768,
			Temperature:      0.2,
			MaxContextTokens: 2048,
		},
		Dedup: DedupConfig{
			GlobalThreshold: 0.85,
			LessonThreshold: 0.82,
			GlobalTopK:      5,
			LessonTopK:      3,
			OrphanScanLimit: 50,
			TopTrending:     10,
		},
	}
}

// Validate checks invariants the rest of the service depends on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Address) == "" {
		return errors.New("http address cannot be empty")
	}
	if c.LLM.EmbeddingDim <= 0 {
		return errors.New("embedding dimension must be positive")
	}
	if c.Dedup.GlobalThreshold <= 0 || c.Dedup.GlobalThreshold > 1 {
		return errors.New("global similarity threshold must be in (0, 1]")
	}
	if c.Dedup.LessonThreshold <= 0 || c.Dedup.LessonThreshold > 1 {
		return errors.New("lesson similarity threshold must be in (0, 1]")
	}
	if c.Dedup.GlobalTopK <= 0 || c.Dedup.LessonTopK <= 0 {
		return errors.New("topK values must be positive")
	}
	return nil
}
