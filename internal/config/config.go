// Package config provides configuration loading for tenantrag.
//
// Values come from (highest precedence first) RAGD_* environment variables,
// a YAML file, and the defaults in Default. A .env file in the working
// directory is loaded into the environment before anything else.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete tenantrag configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Catalog     CatalogConfig     `koanf:"catalog"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	LLM         LLMConfig         `koanf:"llm"`
	Chunker     ChunkerConfig     `koanf:"chunker"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Timeouts    TimeoutsConfig    `koanf:"timeouts"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	BodyLimit       string   `koanf:"body_limit"` // echo BodyLimit syntax, e.g. "32M"
}

// LoggingConfig holds the subset of logging settings exposed to operators.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"`
	Protocol     string  `koanf:"protocol"` // grpc | http/protobuf
	Insecure     bool    `koanf:"insecure"`
	ServiceName  string  `koanf:"service_name"`
	SamplingRate float64 `koanf:"sampling_rate"`
}

// VectorStoreConfig selects and configures the vector database.
type VectorStoreConfig struct {
	Provider string        `koanf:"provider"` // chromem | qdrant
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	Path     string `koanf:"path"` // empty keeps the store in memory
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the Qdrant gRPC client.
type QdrantConfig struct {
	Host       string   `koanf:"host"`
	Port       int      `koanf:"port"`
	UseTLS     bool     `koanf:"use_tls"`
	APIKey     Secret   `koanf:"api_key"`
	MaxRetries int      `koanf:"max_retries"`
	Backoff    Duration `koanf:"backoff"`
}

// CatalogConfig configures the document catalog database.
type CatalogConfig struct {
	Path      string `koanf:"path"` // sqlite file, ":memory:" for ephemeral
	ListLimit int    `koanf:"list_limit"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider    string      `koanf:"provider"` // fastembed | tei | openai
	Model       string      `koanf:"model"`
	BaseURL     string      `koanf:"base_url"`
	APIKey      Secret      `koanf:"api_key"`
	Dimension   int         `koanf:"dimension"`
	CacheDir    string      `koanf:"cache_dir"`
	BatchSize   int         `koanf:"batch_size"`
	Concurrency int         `koanf:"concurrency"`
	Cache       CacheConfig `koanf:"cache"`
}

// CacheConfig configures the query-embedding cache.
type CacheConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Size     int      `koanf:"size"`      // in-process LRU entries
	RedisURL Secret   `koanf:"redis_url"` // when set, Redis replaces the LRU
	TTL      Duration `koanf:"ttl"`
}

// LLMConfig configures the generative model.
type LLMConfig struct {
	Provider    string  `koanf:"provider"` // openai | gemini
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	APIKey      Secret  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`
	RPM         int     `koanf:"rpm"` // requests per minute, 0 disables limiting
}

// ChunkerConfig configures document splitting.
type ChunkerConfig struct {
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`
}

// RetrievalConfig configures similarity search.
type RetrievalConfig struct {
	DefaultTopK int `koanf:"default_top_k"`
	MaxTopK     int `koanf:"max_top_k"`
}

// TimeoutsConfig bounds every call that leaves the process.
type TimeoutsConfig struct {
	Embedding Duration `koanf:"embedding"`
	Store     Duration `koanf:"store"`
	LLM       Duration `koanf:"llm"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: Duration(10 * time.Second),
			BodyLimit:       "32M",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Endpoint:     "localhost:4317",
			Protocol:     "grpc",
			Insecure:     true,
			ServiceName:  "ragd",
			SamplingRate: 1.0,
		},
		VectorStore: VectorStoreConfig{
			Provider: "chromem",
			Chromem: ChromemConfig{
				Path:     "data/vectorstore",
				Compress: true,
			},
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				MaxRetries: 3,
				Backoff:    Duration(100 * time.Millisecond),
			},
		},
		Catalog: CatalogConfig{
			Path:      "data/catalog.db",
			ListLimit: 1000,
		},
		Embeddings: EmbeddingsConfig{
			Provider:    "fastembed",
			Model:       "BAAI/bge-small-en-v1.5",
			BatchSize:   64,
			Concurrency: 4,
			Cache: CacheConfig{
				Enabled: true,
				Size:    1024,
				TTL:     Duration(24 * time.Hour),
			},
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.4,
			RPM:         60,
		},
		Chunker: ChunkerConfig{
			ChunkSize:    300,
			ChunkOverlap: 30,
		},
		Retrieval: RetrievalConfig{
			DefaultTopK: 5,
			MaxTopK:     100,
		},
		Timeouts: TimeoutsConfig{
			Embedding: Duration(60 * time.Second),
			Store:     Duration(15 * time.Second),
			LLM:       Duration(90 * time.Second),
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	switch c.VectorStore.Provider {
	case "chromem":
	case "qdrant":
		if c.VectorStore.Qdrant.Host == "" {
			errs = append(errs, errors.New("vectorstore.qdrant.host is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("vectorstore.provider must be chromem or qdrant, got %q", c.VectorStore.Provider))
	}

	if c.Catalog.Path == "" {
		errs = append(errs, errors.New("catalog.path is required"))
	}

	switch c.Embeddings.Provider {
	case "fastembed", "tei", "openai":
	default:
		errs = append(errs, fmt.Errorf("embeddings.provider must be fastembed, tei or openai, got %q", c.Embeddings.Provider))
	}
	if c.Embeddings.BatchSize < 1 {
		errs = append(errs, errors.New("embeddings.batch_size must be positive"))
	}

	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be openai or gemini, got %q", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be within [0, 2], got %v", c.LLM.Temperature))
	}

	if c.Chunker.ChunkSize < 1 {
		errs = append(errs, errors.New("chunker.chunk_size must be positive"))
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		errs = append(errs, fmt.Errorf("chunker.chunk_overlap must be within [0, chunk_size), got %d", c.Chunker.ChunkOverlap))
	}

	if c.Retrieval.DefaultTopK < 1 || c.Retrieval.DefaultTopK > c.Retrieval.MaxTopK {
		errs = append(errs, fmt.Errorf("retrieval.default_top_k must be within [1, max_top_k], got %d", c.Retrieval.DefaultTopK))
	}

	for name, d := range map[string]Duration{
		"timeouts.embedding": c.Timeouts.Embedding,
		"timeouts.store":     c.Timeouts.Store,
		"timeouts.llm":       c.Timeouts.LLM,
	} {
		if d.Duration() <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	return errors.Join(errs...)
}
