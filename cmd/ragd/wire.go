// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sigil-dev/ragd/internal/answer"
	"github.com/sigil-dev/ragd/internal/chunker"
	"github.com/sigil-dev/ragd/internal/config"
	"github.com/sigil-dev/ragd/internal/embedding"
	googleemb "github.com/sigil-dev/ragd/internal/embedding/google"
	"github.com/sigil-dev/ragd/internal/embedding/hashing"
	openaiemb "github.com/sigil-dev/ragd/internal/embedding/openai"
	"github.com/sigil-dev/ragd/internal/generator"
	_ "github.com/sigil-dev/ragd/internal/generator/anthropic" // register anthropic generator
	_ "github.com/sigil-dev/ragd/internal/generator/google"    // register google generator
	_ "github.com/sigil-dev/ragd/internal/generator/openai"    // register openai generator
	"github.com/sigil-dev/ragd/internal/guard"
	"github.com/sigil-dev/ragd/internal/index"
	_ "github.com/sigil-dev/ragd/internal/index/pgvector" // register pgvector index
	_ "github.com/sigil-dev/ragd/internal/index/sqlite"   // register sqlite-vec index
	"github.com/sigil-dev/ragd/internal/ingest"
	"github.com/sigil-dev/ragd/internal/parse"
	"github.com/sigil-dev/ragd/internal/retrieval"
	"github.com/sigil-dev/ragd/internal/server"
	"github.com/sigil-dev/ragd/internal/store"
	_ "github.com/sigil-dev/ragd/internal/store/postgres" // register postgres store
	_ "github.com/sigil-dev/ragd/internal/store/sqlite"   // register sqlite store
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/spf13/cobra"
)

// App holds the wired subsystems and manages their lifecycle.
type App struct {
	Config    *config.Config
	Store     store.MetadataStore
	Index     index.Index
	Embedder  embedding.Embedder
	Ingest    *ingest.Service
	Retriever *retrieval.Retriever
	// Guard is nil when guard.enabled is false.
	Guard *guard.Guard

	// Set by WithGenerator.
	Generator *generator.Managed
	Composer  *answer.Composer

	logger *slog.Logger
}

// Wire opens storage, the index and the embedder and builds the ingest and
// retrieval services on top. The generator is opened separately by
// WithGenerator so commands that never call it need no API key.
func Wire(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	app := &App{Config: cfg, logger: slog.Default()}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	st, err := store.Open(ctx, store.Options{
		Backend:     cfg.Storage.Backend,
		DataDir:     cfg.Storage.DataDir,
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
	if err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeCLISetupFailure, "opening %s metadata store", cfg.Storage.Backend)
	}
	app.Store = st

	backend, err := openEmbedder(ctx, cfg.Embedding)
	if err != nil {
		return nil, err
	}
	bcfg := embedding.DefaultBatcherConfig()
	bcfg.BatchSize = cfg.Embedding.BatchSize
	bcfg.MaxConcurrent = cfg.Embedding.MaxConcurrent
	bcfg.MaxAttempts = cfg.Embedding.MaxAttempts
	bcfg.RequestsPerSecond = cfg.Embedding.RequestsPerSecond
	batcher, err := embedding.NewBatcher(backend, bcfg, app.logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	app.Embedder = batcher

	metric, err := index.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, err
	}
	idx, err := index.Open(ctx, index.Options{
		Backend:     cfg.Index.Backend,
		DataDir:     cfg.Storage.DataDir,
		PostgresDSN: cfg.Storage.PostgresDSN,
		Dimensions:  app.Embedder.Dimensions(),
		Metric:      metric,
	})
	if err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeCLISetupFailure, "opening %s index", cfg.Index.Backend)
	}
	app.Index = idx

	ch, err := chunker.New(cfg.Chunker.MaxTokens, cfg.Chunker.OverlapTokens)
	if err != nil {
		return nil, err
	}
	if app.Guard, err = openGuard(cfg.Guard, app.logger); err != nil {
		return nil, err
	}
	app.Ingest, err = ingest.New(ingest.Deps{
		Store:    app.Store,
		Index:    app.Index,
		Embedder: app.Embedder,
		Chunker:  ch,
		Parsers:  parse.NewRegistry(),
		Logger:   app.logger,
		Guard:    app.Guard,
	}, ingest.Config{
		MaxDocumentBytes: cfg.Ingest.MaxDocumentBytes,
		PendingTTL:       cfg.Reconcile.PendingTTL,
	})
	if err != nil {
		return nil, err
	}

	app.Retriever, err = retrieval.New(app.Embedder, app.Index, app.Store, retrieval.Config{
		TopK:     cfg.Retrieval.TopK,
		MinScore: float32(cfg.Retrieval.MinScore),
	}, retrieval.WithReporter(app.Ingest), retrieval.WithLogger(app.logger))
	if err != nil {
		return nil, err
	}
	return app, nil
}

// WithGenerator opens the configured generator and the answer composer.
func (a *App) WithGenerator(ctx context.Context) error {
	gcfg := a.Config.Generator
	backend, err := generator.Open(ctx, generator.Config{
		Provider: gcfg.Provider,
		Model:    gcfg.Model,
		APIKey:   gcfg.APIKey,
		BaseURL:  gcfg.BaseURL,
	})
	if err != nil {
		return ragerr.Wrapf(err, ragerr.CodeCLISetupFailure, "opening %s generator", gcfg.Provider)
	}
	managed, err := generator.NewManaged(backend, generator.ManagedOptions{
		RequestsPerSecond: gcfg.RequestsPerSecond,
		HealthCooldown:    gcfg.HealthCooldown,
		Logger:            a.logger,
	})
	if err != nil {
		_ = backend.Close()
		return err
	}

	acfg := a.Config.Answer
	composer, err := answer.New(a.Retriever, managed, answer.Config{
		SystemPrompt:        acfg.SystemPrompt,
		ContextBudgetTokens: acfg.ContextBudgetTokens,
		MaxTokens:           gcfg.MaxTokens,
		Temperature:         float32(gcfg.Temperature),
		Timeout:             gcfg.Timeout,
		MaxAttempts:         acfg.MaxAttempts,
		InitialBackoff:      acfg.InitialBackoff,
		MaxBackoff:          acfg.MaxBackoff,
		Multiplier:          acfg.Multiplier,
		Jitter:              acfg.Jitter,
	}, answer.WithLogger(a.logger), answer.WithGuard(a.Guard))
	if err != nil {
		_ = managed.Close()
		return err
	}

	a.Generator = managed
	a.Composer = composer
	return nil
}

// Server builds the HTTP server over the wired services. WithGenerator
// must have been called.
func (a *App) Server() (*server.Server, error) {
	if a.Composer == nil {
		return nil, ragerr.New(ragerr.CodeCLISetupFailure, "generator is not wired")
	}
	services, err := server.NewServices(a.Ingest, a.Store, a.Index, a.Retriever, a.Composer, a.Generator)
	if err != nil {
		return nil, err
	}

	scfg := a.Config.Server
	// base64 inflates uploads by a third; leave room for the JSON envelope.
	maxBody := a.Config.Ingest.MaxDocumentBytes*4/3 + 64<<10
	return server.New(server.Config{
		ListenAddr:   scfg.Listen,
		CORSOrigins:  scfg.CORSOrigins,
		ReadTimeout:  scfg.ReadTimeout,
		WriteTimeout: scfg.WriteTimeout,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: scfg.RateLimit.RequestsPerSecond,
			Burst:             scfg.RateLimit.Burst,
		},
		MaxBodyBytes: maxBody,
		Logger:       a.logger,
	}, services)
}

// Close releases all resources held by the app.
func (a *App) Close() error {
	type closer interface{ Close() error }
	var closers []closer
	if a.Generator != nil {
		closers = append(closers, a.Generator)
	}
	if a.Index != nil {
		closers = append(closers, a.Index)
	}
	if a.Embedder != nil {
		closers = append(closers, a.Embedder)
	}
	if a.Store != nil {
		closers = append(closers, a.Store)
	}

	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	var (
		e   embedding.Embedder
		err error
	)
	switch cfg.Provider {
	case "hashing":
		e, err = hashing.New(cfg.Dimensions)
	case "google":
		e, err = googleemb.New(ctx, googleemb.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BaseURL:    cfg.BaseURL,
		})
	case "openai":
		e, err = openaiemb.New(openaiemb.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BaseURL:    cfg.BaseURL,
		})
	default:
		return nil, ragerr.New(ragerr.CodeEmbeddingConfigInvalid, "unknown embedding provider",
			ragerr.FieldProvider(cfg.Provider))
	}
	if err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeCLISetupFailure, "opening %s embedder", cfg.Provider)
	}
	return e, nil
}

func openGuard(cfg config.GuardConfig, logger *slog.Logger) (*guard.Guard, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	var (
		policy guard.Policy
		err    error
	)
	if policy.Document, err = guard.ParseMode(cfg.Document); err != nil {
		return nil, err
	}
	if policy.Passage, err = guard.ParseMode(cfg.Passage); err != nil {
		return nil, err
	}
	if policy.Answer, err = guard.ParseMode(cfg.Answer); err != nil {
		return nil, err
	}
	return guard.New(policy, guard.WithLogger(logger))
}

// openApp loads the configuration and wires the app for a one-shot command.
// The caller closes the returned app.
func openApp(cmd *cobra.Command, withGenerator bool) (*App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	app, err := Wire(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	if withGenerator {
		if err := app.WithGenerator(cmd.Context()); err != nil {
			_ = app.Close()
			return nil, err
		}
	}
	return app, nil
}
