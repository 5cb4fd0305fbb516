// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level ragd configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Index     IndexConfig     `mapstructure:"index"`
	Chunker   ChunkerConfig   `mapstructure:"chunker"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Answer    AnswerConfig    `mapstructure:"answer"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Guard     GuardConfig     `mapstructure:"guard"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Listen       string          `mapstructure:"listen"`
	CORSOrigins  []string        `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig is a per-client token bucket. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// StorageConfig selects the metadata store backend.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	DataDir     string `mapstructure:"data_dir"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// IndexConfig selects the vector index backend and its similarity metric.
type IndexConfig struct {
	Backend string `mapstructure:"backend"`
	Metric  string `mapstructure:"metric"`
}

// ChunkerConfig sizes the chunk windows, in tokens.
type ChunkerConfig struct {
	MaxTokens     int `mapstructure:"max_tokens"`
	OverlapTokens int `mapstructure:"overlap_tokens"`
}

// EmbeddingConfig selects and tunes the embedding backend.
type EmbeddingConfig struct {
	Provider          string  `mapstructure:"provider"`
	Model             string  `mapstructure:"model"`
	Dimensions        int     `mapstructure:"dimensions"`
	BatchSize         int     `mapstructure:"batch_size"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	MaxAttempts       int     `mapstructure:"max_attempts"`
	APIKey            string  `mapstructure:"api_key"`
	BaseURL           string  `mapstructure:"base_url"`
}

// RetrievalConfig controls similarity search.
type RetrievalConfig struct {
	TopK     int     `mapstructure:"top_k"`
	MinScore float64 `mapstructure:"min_score"`
}

// GeneratorConfig selects and tunes the text generation backend.
type GeneratorConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Temperature       float64       `mapstructure:"temperature"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	HealthCooldown    time.Duration `mapstructure:"health_cooldown"`
}

// AnswerConfig controls prompt assembly and generator retries.
type AnswerConfig struct {
	MaxAttempts         int           `mapstructure:"max_attempts"`
	InitialBackoff      time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff          time.Duration `mapstructure:"max_backoff"`
	Multiplier          float64       `mapstructure:"multiplier"`
	Jitter              float64       `mapstructure:"jitter"`
	ContextBudgetTokens int           `mapstructure:"context_budget_tokens"`
	SystemPrompt        string        `mapstructure:"system_prompt"`
}

// ReconcileConfig controls background index/metadata reconciliation.
// A zero interval disables the periodic run.
type ReconcileConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	PendingTTL time.Duration `mapstructure:"pending_ttl"`
}

// IngestConfig bounds document ingestion.
type IngestConfig struct {
	MaxDocumentBytes int64 `mapstructure:"max_document_bytes"`
}

// GuardConfig selects how credentials and planted instructions are handled
// at each stage: block, flag or redact.
type GuardConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Document string `mapstructure:"document"`
	Passage  string `mapstructure:"passage"`
	Answer   string `mapstructure:"answer"`
}

// SetDefaults registers every default on v. Defaults are also the set of
// keys that environment variables can override.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:8088")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.rate_limit.requests_per_second", 10.0)
	v.SetDefault("server.rate_limit.burst", 20)

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.postgres_dsn", "")

	v.SetDefault("index.backend", "sqlite")
	v.SetDefault("index.metric", "cosine")

	v.SetDefault("chunker.max_tokens", 256)
	v.SetDefault("chunker.overlap_tokens", 32)

	v.SetDefault("embedding.provider", "hashing")
	v.SetDefault("embedding.model", "hashing-v1")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.max_concurrent", 4)
	v.SetDefault("embedding.requests_per_second", 0.0)
	v.SetDefault("embedding.max_attempts", 3)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")

	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.min_score", 0.1)

	v.SetDefault("generator.provider", "google")
	v.SetDefault("generator.model", "gemini-2.5-flash")
	v.SetDefault("generator.api_key", "")
	v.SetDefault("generator.base_url", "")
	v.SetDefault("generator.max_tokens", 1024)
	v.SetDefault("generator.temperature", 0.2)
	v.SetDefault("generator.timeout", 30*time.Second)
	v.SetDefault("generator.requests_per_second", 0.0)
	v.SetDefault("generator.health_cooldown", 30*time.Second)

	v.SetDefault("answer.max_attempts", 3)
	v.SetDefault("answer.initial_backoff", 500*time.Millisecond)
	v.SetDefault("answer.max_backoff", 8*time.Second)
	v.SetDefault("answer.multiplier", 2.0)
	v.SetDefault("answer.jitter", 0.1)
	v.SetDefault("answer.context_budget_tokens", 3000)
	v.SetDefault("answer.system_prompt", "")

	v.SetDefault("reconcile.interval", 10*time.Minute)
	v.SetDefault("reconcile.pending_ttl", 15*time.Minute)

	v.SetDefault("ingest.max_document_bytes", int64(32<<20))

	v.SetDefault("guard.enabled", true)
	v.SetDefault("guard.document", "redact")
	v.SetDefault("guard.passage", "redact")
	v.SetDefault("guard.answer", "redact")
}

// SetupEnv binds RAGD_* environment variables, e.g. RAGD_GENERATOR_API_KEY
// for generator.api_key.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("RAGD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults only when path
// is empty) with RAGD_ environment overrides, and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, ragerr.Errorf(ragerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ragerr.Errorf(ragerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ragerr.Errorf(ragerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors, collecting every
// problem rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateChunker()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateRetrieval()...)
	errs = append(errs, c.validateGenerator()...)
	errs = append(errs, c.validateAnswer()...)
	errs = append(errs, c.validateGuard()...)

	if c.Reconcile.Interval < 0 || c.Reconcile.PendingTTL <= 0 {
		errs = append(errs, invalid("reconcile.interval must be >= 0 and reconcile.pending_ttl > 0, got %s and %s",
			c.Reconcile.Interval, c.Reconcile.PendingTTL))
	}
	if c.Ingest.MaxDocumentBytes <= 0 {
		errs = append(errs, invalid("ingest.max_document_bytes must be greater than 0, got %d", c.Ingest.MaxDocumentBytes))
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		return append(errs, invalid("server.listen must not be empty"))
	}

	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		errs = append(errs, ragerr.Errorf(ragerr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err))
	} else if port, err := strconv.Atoi(portStr); err != nil || port < 1 || port > 65535 {
		errs = append(errs, invalid("server.listen port must be a number between 1 and 65535, got %q", portStr))
	}

	if c.Server.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, invalid("server.rate_limit.requests_per_second must not be negative"))
	}
	if c.Server.RateLimit.RequestsPerSecond > 0 && c.Server.RateLimit.Burst <= 0 {
		errs = append(errs, invalid("server.rate_limit.burst must be greater than 0 when rate limiting is enabled"))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	if !oneOf(c.Storage.Backend, "memory", "sqlite", "postgres") {
		errs = append(errs, invalid("storage.backend must be one of [memory, sqlite, postgres], got %q", c.Storage.Backend))
	}
	if !oneOf(c.Index.Backend, "memory", "sqlite", "pgvector") {
		errs = append(errs, invalid("index.backend must be one of [memory, sqlite, pgvector], got %q", c.Index.Backend))
	}
	if !oneOf(c.Index.Metric, "cosine", "dot") {
		errs = append(errs, invalid("index.metric must be one of [cosine, dot], got %q", c.Index.Metric))
	}
	if (c.Storage.Backend == "sqlite" || c.Index.Backend == "sqlite") && c.Storage.DataDir == "" {
		errs = append(errs, invalid("storage.data_dir must not be empty for sqlite backends"))
	}
	if (c.Storage.Backend == "postgres" || c.Index.Backend == "pgvector") && c.Storage.PostgresDSN == "" {
		errs = append(errs, invalid("storage.postgres_dsn is required for postgres and pgvector backends"))
	}
	// A persistent index over a volatile store would never reconcile.
	if c.Storage.Backend == "memory" && c.Index.Backend != "memory" {
		errs = append(errs, invalid("index.backend must be memory when storage.backend is memory, got %q", c.Index.Backend))
	}

	return errs
}

func (c *Config) validateChunker() []error {
	var errs []error

	if c.Chunker.MaxTokens <= 0 {
		errs = append(errs, invalid("chunker.max_tokens must be greater than 0, got %d", c.Chunker.MaxTokens))
	}
	if c.Chunker.OverlapTokens < 0 || c.Chunker.OverlapTokens >= c.Chunker.MaxTokens {
		errs = append(errs, invalid("chunker.overlap_tokens must be in [0, max_tokens), got %d", c.Chunker.OverlapTokens))
	}

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error
	e := c.Embedding

	if !oneOf(e.Provider, "hashing", "google", "openai") {
		errs = append(errs, invalid("embedding.provider must be one of [hashing, google, openai], got %q", e.Provider))
	}
	if e.Model == "" {
		errs = append(errs, invalid("embedding.model must not be empty"))
	}
	if e.Dimensions <= 0 {
		errs = append(errs, invalid("embedding.dimensions must be greater than 0, got %d", e.Dimensions))
	}
	if e.BatchSize <= 0 {
		errs = append(errs, invalid("embedding.batch_size must be greater than 0, got %d", e.BatchSize))
	}
	if e.MaxConcurrent <= 0 {
		errs = append(errs, invalid("embedding.max_concurrent must be greater than 0, got %d", e.MaxConcurrent))
	}
	if e.MaxAttempts <= 0 {
		errs = append(errs, invalid("embedding.max_attempts must be greater than 0, got %d", e.MaxAttempts))
	}
	if e.RequestsPerSecond < 0 {
		errs = append(errs, invalid("embedding.requests_per_second must not be negative"))
	}

	return errs
}

func (c *Config) validateRetrieval() []error {
	var errs []error

	if c.Retrieval.TopK <= 0 {
		errs = append(errs, invalid("retrieval.top_k must be greater than 0, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.MinScore < -1 || c.Retrieval.MinScore > 1 {
		errs = append(errs, invalid("retrieval.min_score must be in [-1, 1], got %g", c.Retrieval.MinScore))
	}

	return errs
}

func (c *Config) validateGenerator() []error {
	var errs []error
	g := c.Generator

	if !oneOf(g.Provider, "google", "openai", "anthropic") {
		errs = append(errs, invalid("generator.provider must be one of [google, openai, anthropic], got %q", g.Provider))
	}
	if g.Model == "" {
		errs = append(errs, invalid("generator.model must not be empty"))
	}
	if g.MaxTokens <= 0 {
		errs = append(errs, invalid("generator.max_tokens must be greater than 0, got %d", g.MaxTokens))
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		errs = append(errs, invalid("generator.temperature must be in [0, 2], got %g", g.Temperature))
	}
	if g.Timeout <= 0 {
		errs = append(errs, invalid("generator.timeout must be positive, got %s", g.Timeout))
	}
	if g.HealthCooldown <= 0 {
		errs = append(errs, invalid("generator.health_cooldown must be positive, got %s", g.HealthCooldown))
	}
	if g.RequestsPerSecond < 0 {
		errs = append(errs, invalid("generator.requests_per_second must not be negative"))
	}

	return errs
}

func (c *Config) validateAnswer() []error {
	var errs []error
	a := c.Answer

	if a.MaxAttempts <= 0 {
		errs = append(errs, invalid("answer.max_attempts must be greater than 0, got %d", a.MaxAttempts))
	}
	if a.InitialBackoff < 0 || a.MaxBackoff < a.InitialBackoff {
		errs = append(errs, invalid("answer backoff must satisfy 0 <= initial_backoff <= max_backoff, got %s and %s",
			a.InitialBackoff, a.MaxBackoff))
	}
	if a.Multiplier < 1 {
		errs = append(errs, invalid("answer.multiplier must be at least 1, got %g", a.Multiplier))
	}
	if a.Jitter < 0 || a.Jitter >= 1 {
		errs = append(errs, invalid("answer.jitter must be in [0, 1), got %g", a.Jitter))
	}
	if a.ContextBudgetTokens <= 0 {
		errs = append(errs, invalid("answer.context_budget_tokens must be greater than 0, got %d", a.ContextBudgetTokens))
	}

	return errs
}

func (c *Config) validateGuard() []error {
	if !c.Guard.Enabled {
		return nil
	}
	var errs []error
	for _, f := range []struct{ key, mode string }{
		{"guard.document", c.Guard.Document},
		{"guard.passage", c.Guard.Passage},
		{"guard.answer", c.Guard.Answer},
	} {
		if !oneOf(strings.ToLower(f.mode), "block", "flag", "redact") {
			errs = append(errs, invalid("%s must be one of [block, flag, redact], got %q", f.key, f.mode))
		}
	}
	return errs
}

func invalid(format string, args ...any) error {
	return ragerr.Errorf(ragerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
