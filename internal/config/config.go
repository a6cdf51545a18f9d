package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DatabaseConfig struct {
	URL string `toml:"url"`
}

type RedisConfig struct {
	URL string `toml:"url"`
	// EventTTLSeconds is the TTL for the daily event cache; it is reset on
	// every merge. Aggregate caches use a fixed 1 hour regardless.
	EventTTLSeconds int `toml:"event_ttl_seconds"`
}

type EmbeddingConfig struct {
	Provider  string `toml:"provider"` // openai | gemini
	Model     string `toml:"model"`
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	Dimension int    `toml:"dimension"`
}

type SimilarityConfig struct {
	// Backend selects the vector search implementation: "pgvector" for the
	// store's native operator, "qdrant" for the external index.
	Backend       string  `toml:"backend"`
	MinSimilarity float64 `toml:"min_similarity"`
	CandidateCap  int     `toml:"candidate_cap"`
}

type QdrantConfig struct {
	URL        string `toml:"url"`
	APIKey     string `toml:"api_key"`
	Collection string `toml:"collection"`
}

type FeedConfig struct {
	Token          string `toml:"token"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type ETLConfig struct {
	BatchSize      int  `toml:"batch_size"`
	HourlySchedule bool `toml:"hourly_schedule"`
	IndexSync      bool `toml:"index_sync"`
}

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Similarity SimilarityConfig `toml:"similarity"`
	Qdrant     QdrantConfig     `toml:"qdrant"`
	Feed       FeedConfig       `toml:"feed"`
	ETL        ETLConfig        `toml:"etl"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8000"},
		Redis:  RedisConfig{EventTTLSeconds: 24 * 60 * 60},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
		Similarity: SimilarityConfig{
			Backend:       "pgvector",
			MinSimilarity: 0.7,
			CandidateCap:  500,
		},
		Feed: FeedConfig{
			BaseURL:        "https://api.predicthq.com/v1",
			TimeoutSeconds: 30,
		},
		ETL: ETLConfig{BatchSize: 50},
	}
}

// Load reads the TOML config at path (optional), applies environment
// variable overrides on top, and validates the result. A missing file is
// not an error; missing required values after overrides are.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setStr(&cfg.Server.Addr, "SERVER_ADDR")
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setInt(&cfg.Redis.EventTTLSeconds, "REDIS_CACHE_TTL_SECONDS")
	setStr(&cfg.Embedding.Provider, "EMBEDDING_PROVIDER")
	setStr(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	setStr(&cfg.Embedding.APIKey, "EMBEDDING_API_KEY")
	setStr(&cfg.Embedding.BaseURL, "EMBEDDING_BASE_URL")
	setInt(&cfg.Embedding.Dimension, "EMBEDDING_DIMENSION")
	setStr(&cfg.Similarity.Backend, "SIMILARITY_BACKEND")
	setStr(&cfg.Qdrant.URL, "QDRANT_URL")
	setStr(&cfg.Qdrant.APIKey, "QDRANT_API_KEY")
	setStr(&cfg.Qdrant.Collection, "QDRANT_COLLECTION")
	setStr(&cfg.Feed.Token, "PREDICTHQ_TOKEN")
	setStr(&cfg.Feed.BaseURL, "PREDICTHQ_BASE_URL")
	setInt(&cfg.ETL.BatchSize, "ETL_BATCH_SIZE")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate fails fast on configuration the service cannot run without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required (set DATABASE_URL)")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis url is required (set REDIS_URL)")
	}
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding api key is required (set EMBEDDING_API_KEY)")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	switch c.Similarity.Backend {
	case "pgvector", "qdrant":
	default:
		return fmt.Errorf("unsupported similarity backend: %s", c.Similarity.Backend)
	}
	if c.Similarity.Backend == "qdrant" && c.Qdrant.URL == "" {
		return fmt.Errorf("qdrant url is required when similarity backend is qdrant")
	}
	return nil
}
