// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package generator

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sigil-dev/ragd/pkg/health"
	"golang.org/x/time/rate"
)

// ManagedOptions tune a Managed generator.
type ManagedOptions struct {
	// RequestsPerSecond throttles calls; zero means unlimited.
	RequestsPerSecond float64
	HealthCooldown    time.Duration
	Logger            *slog.Logger
}

// Managed wraps a backend with client-side throttling and health tracking.
// It does not retry; retry policy belongs to the caller.
type Managed struct {
	Generator
	limiter *rate.Limiter
	health  *HealthTracker
	logger  *slog.Logger
}

var _ Generator = (*Managed)(nil)

// NewManaged wraps g.
func NewManaged(g Generator, opts ManagedOptions) (*Managed, error) {
	if opts.HealthCooldown <= 0 {
		opts.HealthCooldown = DefaultHealthCooldown
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ht, err := NewHealthTracker(g.Name(), opts.HealthCooldown)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &Managed{
		Generator: g,
		limiter:   rate.NewLimiter(limit, 1),
		health:    ht,
		logger:    opts.Logger.With("generator", g.Name()),
	}, nil
}

// Generate waits for a rate-limit token, then calls the backend. Transient
// failures mark the backend unhealthy; permanent ones are the caller's
// fault and leave health untouched.
func (m *Managed) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := m.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ClassifyStatus(m.Name(), 0, ctxErr)
		}
		// The deadline would pass before a token frees up.
		return nil, ClassifyStatus(m.Name(), http.StatusTooManyRequests, err)
	}

	start := time.Now()
	resp, err := m.Generator.Generate(ctx, req)
	if err != nil {
		if KindOf(err) == KindTransient {
			m.health.RecordFailure(err)
		}
		m.logger.Debug("generation failed", "kind", KindOf(err), "elapsed", time.Since(start), "error", err)
		return nil, err
	}
	m.health.RecordSuccess()
	m.logger.Debug("generation finished", "finish_reason", resp.FinishReason,
		"input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens,
		"elapsed", time.Since(start))
	return resp, nil
}

// Available reports whether the backend is outside its failure cooldown.
func (m *Managed) Available() bool { return m.health.IsHealthy() }

// Health returns a snapshot of the backend's health.
func (m *Managed) Health() health.Metrics { return m.health.Metrics() }

// Tracker exposes the health tracker (for tests and status reporting).
func (m *Managed) Tracker() *HealthTracker { return m.health }
