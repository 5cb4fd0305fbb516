// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package answer

import (
	"context"
	"time"

	"github.com/sigil-dev/ragd/internal/retrieval"
)

// SetSleep replaces the backoff sleep.
func (c *Composer) SetSleep(fn func(ctx context.Context, d time.Duration) error) { c.sleep = fn }

// SetRandom replaces the jitter source.
func (c *Composer) SetRandom(fn func() float64) { c.random = fn }

// Backoff exposes the delay before retrying after attempt.
func (c *Composer) Backoff(attempt int) time.Duration { return c.backoff(attempt) }

var (
	SelectPassages   = selectPassages
	BuildPrompt      = buildPrompt
	ExtractCitations = func(text string, sent []retrieval.Hit) []Citation { return extractCitations(text, sent) }
)
