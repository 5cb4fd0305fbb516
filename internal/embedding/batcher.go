// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"context"
	"log/slog"
	"time"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// BatcherConfig tunes how a Batcher drives its backend.
type BatcherConfig struct {
	BatchSize     int
	MaxConcurrent int
	MaxAttempts   int
	// RequestsPerSecond throttles backend calls; zero means unlimited.
	RequestsPerSecond float64
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

// DefaultBatcherConfig matches the configuration defaults.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		BatchSize:      32,
		MaxConcurrent:  4,
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// Batcher is an Embedder that splits large inputs into batches, embeds up to
// MaxConcurrent batches at once, and retries transient backend failures.
type Batcher struct {
	backend Embedder
	cfg     BatcherConfig
	limiter *rate.Limiter
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

var (
	_ Embedder      = (*Batcher)(nil)
	_ QueryEmbedder = (*Batcher)(nil)
)

// NewBatcher wraps backend. A nil logger uses slog.Default().
func NewBatcher(backend Embedder, cfg BatcherConfig, logger *slog.Logger) (*Batcher, error) {
	if backend == nil {
		return nil, ragerr.New(ragerr.CodeEmbeddingConfigInvalid, "embedding: backend is nil")
	}
	if cfg.BatchSize <= 0 || cfg.MaxConcurrent <= 0 || cfg.MaxAttempts <= 0 {
		return nil, ragerr.New(ragerr.CodeEmbeddingConfigInvalid,
			"embedding: batch_size, max_concurrent and max_attempts must be positive",
			ragerr.Field("batch_size", cfg.BatchSize),
			ragerr.Field("max_concurrent", cfg.MaxConcurrent),
			ragerr.Field("max_attempts", cfg.MaxAttempts),
		)
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, ragerr.New(ragerr.CodeEmbeddingConfigInvalid, "embedding: requests_per_second must not be negative")
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Batcher{
		backend: backend,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.MaxConcurrent),
		logger:  logger,
		sleep:   sleepCtx,
	}, nil
}

func (b *Batcher) Dimensions() int   { return b.backend.Dimensions() }
func (b *Batcher) ModelName() string { return b.backend.ModelName() }
func (b *Batcher) Close() error      { return b.backend.Close() }

// Embed returns one vector per text, in input order.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := CheckInput(texts); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.MaxConcurrent)

	for start := 0; start < len(texts); start += b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, len(texts))
		g.Go(func() error {
			vecs, err := b.embedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedQuery embeds one query text with the same retry policy as Embed.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := CheckInput([]string{text}); err != nil {
		return nil, err
	}

	var vec []float32
	err := b.withRetry(ctx, func(ctx context.Context) error {
		var err error
		if q, ok := b.backend.(QueryEmbedder); ok {
			vec, err = q.EmbedQuery(ctx, text)
			if err == nil {
				err = CheckOutput([][]float32{vec}, 1, b.backend.Dimensions())
			}
			return err
		}
		vecs, err := b.backend.Embed(ctx, []string{text})
		if err == nil {
			err = CheckOutput(vecs, 1, b.backend.Dimensions())
		}
		if err == nil {
			vec = vecs[0]
		}
		return err
	})
	return vec, err
}

func (b *Batcher) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var vecs [][]float32
	err := b.withRetry(ctx, func(ctx context.Context) error {
		var err error
		vecs, err = b.backend.Embed(ctx, batch)
		if err != nil {
			return err
		}
		return CheckOutput(vecs, len(batch), b.backend.Dimensions())
	})
	return vecs, err
}

func (b *Batcher) withRetry(ctx context.Context, call func(context.Context) error) error {
	backoff := b.cfg.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		if err := b.limiter.Wait(ctx); err != nil {
			return ragerr.Wrap(err, ragerr.CodeEmbeddingBackendUnavailable, "embedding: waiting for rate limiter",
				ragerr.FieldAttempts(attempt-1))
		}

		lastErr = call(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(lastErr) {
			break
		}
		if attempt == b.cfg.MaxAttempts {
			break
		}

		b.logger.Warn("embedding call failed, retrying",
			"model", b.backend.ModelName(),
			"attempt", attempt,
			"backoff", backoff,
			"error", lastErr,
		)
		if err := b.sleep(ctx, backoff); err != nil {
			break
		}
		backoff = min(backoff*2, b.cfg.MaxBackoff)
	}

	if ragerr.CodeOf(lastErr) == "" {
		return ragerr.Wrap(lastErr, ragerr.CodeEmbeddingBackendUnavailable, "embedding: backend call failed",
			ragerr.FieldProvider(b.backend.ModelName()))
	}
	return lastErr
}

// retryable reports failures that may succeed on a later attempt. Validation
// errors and dimension mismatches never do.
func retryable(err error) bool {
	if ragerr.CodeOf(err) == "" {
		return true
	}
	return ragerr.IsUnavailable(err) || ragerr.IsRateLimited(err) || ragerr.IsTimeout(err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
