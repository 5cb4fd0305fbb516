// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sigil-dev/ragd/internal/config"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8088", cfg.Server.Listen)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "cosine", cfg.Index.Metric)
	assert.Equal(t, 256, cfg.Chunker.MaxTokens)
	assert.Equal(t, 32, cfg.Chunker.OverlapTokens)
	assert.Equal(t, "hashing", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, 3, cfg.Answer.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Answer.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.Generator.Timeout)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
}

func TestLoad_FromFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "ragd.yaml")
	content := `
server:
  listen: "0.0.0.0:9999"
chunker:
  max_tokens: 64
  overlap_tokens: 8
answer:
  initial_backoff: 2s
  max_backoff: 10s
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.Listen)
	assert.Equal(t, 64, cfg.Chunker.MaxTokens)
	assert.Equal(t, 2*time.Second, cfg.Answer.InitialBackoff)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RAGD_SERVER_LISTEN", "10.0.0.1:8080")
	t.Setenv("RAGD_GENERATOR_TIMEOUT", "5s")
	t.Setenv("RAGD_EMBEDDING_DIMENSIONS", "768")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, 5*time.Second, cfg.Generator.Timeout)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, ragerr.HasCode(err, ragerr.CodeConfigLoadReadFailure))
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "ragd.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("chunker:\n  max_tokens: 4\n  overlap_tokens: 4\n"), 0o600))

	_, err := config.Load(cfgPath)
	require.Error(t, err)
	assert.True(t, ragerr.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "chunker.overlap_tokens")
}

func TestDefaultYAMLMatchesDefaults(t *testing.T) {
	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(config.DefaultConfigYAML, &raw))
	assert.Contains(t, raw, "embedding")
	assert.Contains(t, raw, "generator")

	cfgPath := filepath.Join(t.TempDir(), "ragd.yaml")
	require.NoError(t, config.WriteDefault(cfgPath, false))

	fromFile, err := config.Load(cfgPath)
	require.NoError(t, err)
	defaults := validConfig(t)
	assert.Equal(t, defaults.Chunker, fromFile.Chunker)
	assert.Equal(t, defaults.Embedding, fromFile.Embedding)
	assert.Equal(t, defaults.Retrieval, fromFile.Retrieval)
	assert.Equal(t, defaults.Answer, fromFile.Answer)
	assert.Equal(t, defaults.Reconcile, fromFile.Reconcile)
	assert.Equal(t, defaults.Ingest, fromFile.Ingest)
	assert.Equal(t, defaults.Guard, fromFile.Guard)
}

func TestWriteDefault_RefusesOverwrite(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "ragd.yaml")
	require.NoError(t, config.WriteDefault(cfgPath, false))
	require.Error(t, config.WriteDefault(cfgPath, false))
	require.NoError(t, config.WriteDefault(cfgPath, true))

	info, err := os.Stat(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFromViper_UsesSharedInstance(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("retrieval.top_k", 9)

	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Retrieval.TopK)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{"defaults are valid", func(*config.Config) {}, ""},
		{"bad listen", func(c *config.Config) { c.Server.Listen = "nope" }, "server.listen"},
		{"port out of range", func(c *config.Config) { c.Server.Listen = "127.0.0.1:70000" }, "server.listen port"},
		{"unknown storage", func(c *config.Config) { c.Storage.Backend = "mongo" }, "storage.backend"},
		{"unknown index", func(c *config.Config) { c.Index.Backend = "faiss" }, "index.backend"},
		{"unknown metric", func(c *config.Config) { c.Index.Metric = "l2" }, "index.metric"},
		{"postgres without dsn", func(c *config.Config) { c.Storage.Backend = "postgres" }, "postgres_dsn"},
		{"pgvector without dsn", func(c *config.Config) { c.Index.Backend = "pgvector" }, "postgres_dsn"},
		{"memory store persistent index", func(c *config.Config) { c.Storage.Backend = "memory" }, "index.backend must be memory"},
		{"zero max tokens", func(c *config.Config) { c.Chunker.MaxTokens = 0 }, "chunker.max_tokens"},
		{"overlap equals max", func(c *config.Config) { c.Chunker.OverlapTokens = c.Chunker.MaxTokens }, "chunker.overlap_tokens"},
		{"negative overlap", func(c *config.Config) { c.Chunker.OverlapTokens = -1 }, "chunker.overlap_tokens"},
		{"unknown embedder", func(c *config.Config) { c.Embedding.Provider = "cohere" }, "embedding.provider"},
		{"zero dimensions", func(c *config.Config) { c.Embedding.Dimensions = 0 }, "embedding.dimensions"},
		{"zero batch", func(c *config.Config) { c.Embedding.BatchSize = 0 }, "embedding.batch_size"},
		{"zero top_k", func(c *config.Config) { c.Retrieval.TopK = 0 }, "retrieval.top_k"},
		{"min_score above one", func(c *config.Config) { c.Retrieval.MinScore = 1.5 }, "retrieval.min_score"},
		{"unknown generator", func(c *config.Config) { c.Generator.Provider = "ollama" }, "generator.provider"},
		{"zero timeout", func(c *config.Config) { c.Generator.Timeout = 0 }, "generator.timeout"},
		{"zero attempts", func(c *config.Config) { c.Answer.MaxAttempts = 0 }, "answer.max_attempts"},
		{"backoff inverted", func(c *config.Config) { c.Answer.MaxBackoff = time.Millisecond }, "backoff"},
		{"multiplier below one", func(c *config.Config) { c.Answer.Multiplier = 0.5 }, "answer.multiplier"},
		{"zero context budget", func(c *config.Config) { c.Answer.ContextBudgetTokens = 0 }, "context_budget_tokens"},
		{"zero document bytes", func(c *config.Config) { c.Ingest.MaxDocumentBytes = 0 }, "max_document_bytes"},
		{"unknown guard mode", func(c *config.Config) { c.Guard.Passage = "drop" }, "guard.passage"},
		{"guard mode is case-insensitive", func(c *config.Config) { c.Guard.Answer = "BLOCK" }, ""},
		{"disabled guard skips modes", func(c *config.Config) { c.Guard.Enabled = false; c.Guard.Document = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			errs := cfg.Validate()
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.NotEmpty(t, errs)
			var msgs []string
			for _, err := range errs {
				assert.True(t, ragerr.HasCode(err, ragerr.CodeConfigValidateInvalidValue))
				msgs = append(msgs, err.Error())
			}
			assert.Contains(t, strings.Join(msgs, "\n"), tt.wantErr)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig(t)
	cfg.Chunker.MaxTokens = 0
	cfg.Embedding.Dimensions = 0
	cfg.Answer.MaxAttempts = 0

	assert.GreaterOrEqual(t, len(cfg.Validate()), 3)
}
