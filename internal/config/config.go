// Package config provides configuration loading for designd.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the complete designd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	LLM         LLMConfig         `koanf:"llm"`
	WebSearch   WebSearchConfig   `koanf:"websearch"`
	Search      SearchConfig      `koanf:"search"`
	Assets      AssetsConfig      `koanf:"assets"`
	Session     SessionConfig     `koanf:"session"`
	Events      EventsConfig      `koanf:"events"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	UploadDir       string   `koanf:"upload_dir"`
	MaxUploadBytes  int64    `koanf:"max_upload_bytes"`
}

// LoggingConfig holds the subset of logging options exposed to operators.
// internal/logging turns it into a full logging.Config.
type LoggingConfig struct {
	Level    string            `koanf:"level"`
	Format   string            `koanf:"format"`
	Sampling bool              `koanf:"sampling"`
	OTEL     bool              `koanf:"otel"`
	File     LogFileConfig     `koanf:"file"`
	Fields   map[string]string `koanf:"fields"`
}

// LogFileConfig enables a rotated log file next to stdout.
type LogFileConfig struct {
	Path       string `koanf:"path"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"`
	Insecure       bool     `koanf:"insecure"`
	ServiceName    string   `koanf:"service_name"`
	ServiceVersion string   `koanf:"service_version"`
	SampleRate     float64  `koanf:"sample_rate"`
	ExportInterval Duration `koanf:"export_interval"`
}

// VectorStoreConfig selects and configures the design index backend.
type VectorStoreConfig struct {
	Provider string        `koanf:"provider"` // "chromem" or "qdrant"
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go index.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
}

// QdrantConfig configures the Qdrant gRPC index.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	APIKey     Secret `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
	Collection string `koanf:"collection"`
}

// EmbeddingsConfig configures the CLIP inference service.
type EmbeddingsConfig struct {
	BaseURL         string   `koanf:"base_url"`
	Model           string   `koanf:"model"`
	Dimension       int      `koanf:"dimension"`
	Timeout         Duration `koanf:"timeout"`
	SkipTranslation bool     `koanf:"skip_translation"`
}

// LLMConfig configures the OpenAI-compatible language model endpoint.
type LLMConfig struct {
	BaseURL         string   `koanf:"base_url"`
	APIKey          Secret   `koanf:"api_key"`
	Model           string   `koanf:"model"`
	TranslatorModel string   `koanf:"translator_model"`
	Temperature     float64  `koanf:"temperature"`
	Timeout         Duration `koanf:"timeout"`
	RateLimit       float64  `koanf:"rate_limit"` // requests per second
	Burst           int      `koanf:"burst"`
	MaxRetries      int      `koanf:"max_retries"`
}

// WebSearchConfig configures the Tavily web search tool.
type WebSearchConfig struct {
	BaseURL    string   `koanf:"base_url"`
	APIKey     Secret   `koanf:"api_key"`
	MaxResults int      `koanf:"max_results"`
	Timeout    Duration `koanf:"timeout"`
}

// SearchConfig holds result counts for the two search entry points.
type SearchConfig struct {
	ImageResults int `koanf:"image_results"`
	TextResults  int `koanf:"text_results"`
}

// AssetsConfig locates the local drawing images.
type AssetsConfig struct {
	ImagesDir string `koanf:"images_dir"`
}

// SessionConfig configures the session checkpoint store.
type SessionConfig struct {
	Store           string      `koanf:"store"` // "memory" or "redis"
	TTL             Duration    `koanf:"ttl"`
	CleanupInterval Duration    `koanf:"cleanup_interval"`
	Redis           RedisConfig `koanf:"redis"`
}

// RedisConfig configures the Redis session store.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password Secret `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// EventsConfig configures session lifecycle publishing.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero values.
func applyDefaults(cfg *Config) {
	setString(&cfg.Server.Host, "0.0.0.0")
	setInt(&cfg.Server.Port, 8000)
	setDuration(&cfg.Server.ShutdownTimeout, 10*time.Second)
	setString(&cfg.Server.UploadDir, "./temp_uploads")
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 20 << 20
	}

	setString(&cfg.Logging.Level, "info")
	setString(&cfg.Logging.Format, "json")

	setString(&cfg.Telemetry.Endpoint, "localhost:4317")
	setString(&cfg.Telemetry.Protocol, "grpc")
	setString(&cfg.Telemetry.ServiceName, "designd")
	setString(&cfg.Telemetry.ServiceVersion, "0.1.0")
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	setDuration(&cfg.Telemetry.ExportInterval, 15*time.Second)

	setString(&cfg.VectorStore.Provider, "chromem")
	setString(&cfg.VectorStore.Chromem.Path, "./chroma_db")
	setString(&cfg.VectorStore.Chromem.Collection, "design")
	setString(&cfg.VectorStore.Qdrant.Host, "localhost")
	setInt(&cfg.VectorStore.Qdrant.Port, 6334)
	setString(&cfg.VectorStore.Qdrant.Collection, "design")

	setString(&cfg.Embeddings.BaseURL, "http://localhost:51000")
	setString(&cfg.Embeddings.Model, "ViT-B/32")
	setInt(&cfg.Embeddings.Dimension, 512)
	setDuration(&cfg.Embeddings.Timeout, 30*time.Second)

	setString(&cfg.LLM.BaseURL, "https://api.openai.com/v1")
	setString(&cfg.LLM.Model, "gpt-4o")
	setString(&cfg.LLM.TranslatorModel, "gpt-4o-mini")
	setDuration(&cfg.LLM.Timeout, 120*time.Second)
	if cfg.LLM.RateLimit == 0 {
		cfg.LLM.RateLimit = 2
	}
	setInt(&cfg.LLM.Burst, 4)

	setString(&cfg.WebSearch.BaseURL, "https://api.tavily.com")
	setInt(&cfg.WebSearch.MaxResults, 3)
	setDuration(&cfg.WebSearch.Timeout, 20*time.Second)

	setInt(&cfg.Search.ImageResults, 10)
	setInt(&cfg.Search.TextResults, 5)

	setString(&cfg.Assets.ImagesDir, "./data/images")

	setString(&cfg.Session.Store, "memory")
	setDuration(&cfg.Session.TTL, time.Hour)
	setDuration(&cfg.Session.CleanupInterval, 10*time.Minute)
	setString(&cfg.Session.Redis.Addr, "localhost:6379")
	setString(&cfg.Session.Redis.Prefix, "designd:session:")

	setString(&cfg.Events.NATSURL, "nats://localhost:4222")
	setString(&cfg.Events.SubjectPrefix, "designd.sessions")
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setDuration(dst *Duration, def time.Duration) {
	if *dst == 0 {
		*dst = Duration(def)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be positive"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}

	switch c.VectorStore.Provider {
	case "chromem":
		if c.VectorStore.Chromem.Collection == "" {
			errs = append(errs, fmt.Errorf("vectorstore.chromem.collection is required"))
		}
	case "qdrant":
		if c.VectorStore.Qdrant.Collection == "" {
			errs = append(errs, fmt.Errorf("vectorstore.qdrant.collection is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("vectorstore.provider must be 'chromem' or 'qdrant', got %q", c.VectorStore.Provider))
	}

	if c.Embeddings.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embeddings.dimension must be positive"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("llm.max_retries cannot be negative"))
	}
	if c.Search.ImageResults <= 0 || c.Search.TextResults <= 0 {
		errs = append(errs, fmt.Errorf("search result counts must be positive"))
	}

	switch c.Session.Store {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("session.store must be 'memory' or 'redis', got %q", c.Session.Store))
	}
	if c.Session.TTL.Duration() <= 0 {
		errs = append(errs, fmt.Errorf("session.ttl must be positive"))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %v", c.Telemetry.SampleRate))
	}

	return errors.Join(errs...)
}
