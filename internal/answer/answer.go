// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package answer turns a question into a grounded, cited answer: retrieve
// passages, build a prompt within the context budget, call the generator
// with bounded retries, and keep only citations of passages actually sent.
package answer

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/sigil-dev/ragd/internal/generator"
	"github.com/sigil-dev/ragd/internal/guard"
	"github.com/sigil-dev/ragd/internal/index"
	"github.com/sigil-dev/ragd/internal/retrieval"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

// State is a step of answering one query.
type State string

const (
	StatePreparing        State = "PREPARING"
	StateRetrieving       State = "RETRIEVING"
	StateComposingPrompt  State = "COMPOSING_PROMPT"
	StateCallingGenerator State = "CALLING_GENERATOR"
	StateDone             State = "DONE"
	StateFailed           State = "FAILED"
)

// Event reports a state transition. Attempt is set while calling the
// generator; Err is set on FAILED and on a failed attempt.
type Event struct {
	State   State
	Attempt int
	Err     error
}

// Observer is called synchronously on every transition.
type Observer func(Event)

// Query is a question plus retrieval parameters.
type Query struct {
	Text   string
	K      int
	Filter *index.Filter
}

// Citation identifies a passage the answer relies on.
type Citation struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Score      float32 `json:"score"`
}

// Answer is the outcome of a successful query.
type Answer struct {
	Text         string     `json:"answer"`
	Citations    []Citation `json:"citations"`
	FinishReason string     `json:"finish_reason"`
	// Grounded is set when the text cites at least one retrieved passage.
	Grounded bool `json:"grounded"`
	// Attempts counts generator calls, zero when none was needed.
	Attempts int `json:"attempts"`
}

// Retriever is the part of retrieval.Retriever the composer uses.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, filter *index.Filter) ([]retrieval.Hit, error)
}

// Config is the generation and retry policy.
type Config struct {
	SystemPrompt        string
	ContextBudgetTokens int
	MaxTokens           int
	Temperature         float32
	// Timeout bounds each generator attempt.
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter spreads each backoff uniformly by +/- Jitter of its length.
	Jitter float64
}

// DefaultConfig matches the configuration defaults.
func DefaultConfig() Config {
	return Config{
		SystemPrompt:        DefaultSystemPrompt,
		ContextBudgetTokens: 3000,
		MaxTokens:           1024,
		Temperature:         0.2,
		Timeout:             30 * time.Second,
		MaxAttempts:         3,
		InitialBackoff:      500 * time.Millisecond,
		MaxBackoff:          8 * time.Second,
		Multiplier:          2,
		Jitter:              0.1,
	}
}

// Composer answers queries. It is safe for concurrent use.
type Composer struct {
	retriever Retriever
	gen       generator.Generator
	cfg       Config
	logger    *slog.Logger
	observer  Observer
	guard     *guard.Guard

	sleep  func(ctx context.Context, d time.Duration) error
	random func() float64
}

// Option customizes a Composer.
type Option func(*Composer)

// WithObserver registers o for state transitions.
func WithObserver(o Observer) Option {
	return func(c *Composer) { c.observer = o }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Composer) { c.logger = l }
}

// WithGuard screens retrieved passages before they enter the prompt and
// generated text before it is returned. Passages the guard blocks are
// dropped; a blocked answer fails the query.
func WithGuard(g *guard.Guard) Option {
	return func(c *Composer) { c.guard = g }
}

// New validates cfg and returns a Composer.
func New(r Retriever, gen generator.Generator, cfg Config, opts ...Option) (*Composer, error) {
	if r == nil || gen == nil {
		return nil, ragerr.New(ragerr.CodeServerConfigInvalid, "answer: retriever and generator are required")
	}
	if cfg.MaxAttempts <= 0 || cfg.ContextBudgetTokens <= 0 || cfg.Timeout <= 0 ||
		cfg.InitialBackoff < 0 || cfg.MaxBackoff < cfg.InitialBackoff || cfg.Multiplier < 1 ||
		cfg.Jitter < 0 || cfg.Jitter >= 1 {
		return nil, ragerr.New(ragerr.CodeConfigValidateInvalidValue, "answer: invalid retry or budget configuration",
			ragerr.Field("max_attempts", cfg.MaxAttempts),
			ragerr.Field("context_budget_tokens", cfg.ContextBudgetTokens),
			ragerr.Field("timeout", cfg.Timeout.String()))
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}

	c := &Composer{
		retriever: r,
		gen:       gen,
		cfg:       cfg,
		logger:    slog.Default(),
		sleep:     sleepCtx,
		random:    rand.Float64,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Answer runs the query through the state machine. An empty retrieval
// result yields the insufficient-context answer without a generator call.
// Generator failures surface as CodeAnswerGenerationFailure carrying the
// attempt count; a cancelled ctx returns its error.
func (c *Composer) Answer(ctx context.Context, q Query) (*Answer, error) {
	c.enter(Event{State: StatePreparing})
	if strings.TrimSpace(q.Text) == "" {
		return nil, c.fail(ragerr.New(ragerr.CodeAnswerQueryInvalid, "answer: query is empty"))
	}

	c.enter(Event{State: StateRetrieving})
	hits, err := c.retriever.Retrieve(ctx, q.Text, q.K, q.Filter)
	if err != nil {
		return nil, c.fail(ragerr.With(err, ragerr.FieldOperation("retrieve")))
	}
	if hits, err = c.screenPassages(ctx, hits); err != nil {
		return nil, c.fail(err)
	}
	if len(hits) == 0 {
		c.enter(Event{State: StateDone})
		return &Answer{
			Text:         InsufficientContextText,
			Citations:    []Citation{},
			FinishReason: FinishInsufficientContext,
		}, nil
	}

	c.enter(Event{State: StateComposingPrompt})
	passages := selectPassages(hits, c.cfg.ContextBudgetTokens)
	req := generator.Request{
		SystemPrompt: c.cfg.SystemPrompt,
		Prompt:       buildPrompt(q.Text, passages),
		MaxTokens:    c.cfg.MaxTokens,
		Temperature:  c.cfg.Temperature,
	}
	c.logger.Debug("prompt composed", "hits", len(hits), "passages", len(passages))

	resp, attempts, err := c.generate(ctx, req)
	if err != nil {
		return nil, c.fail(err)
	}

	citations := extractCitations(resp.Text, passages)
	text := resp.Text
	if c.guard != nil {
		if text, err = c.guard.Check(ctx, guard.StageAnswer, text); err != nil {
			return nil, c.fail(ragerr.Reclassify(err, ragerr.CodeAnswerGenerationFailure,
				"answer: generated text rejected", ragerr.FieldAttempts(attempts), ragerr.FieldOperation("guard")))
		}
	}
	c.enter(Event{State: StateDone, Attempt: attempts})
	return &Answer{
		Text:         text,
		Citations:    citations,
		FinishReason: resp.FinishReason,
		Grounded:     len(citations) > 0,
		Attempts:     attempts,
	}, nil
}

// screenPassages runs hits through the guard, dropping blocked ones and
// keeping order.
func (c *Composer) screenPassages(ctx context.Context, hits []retrieval.Hit) ([]retrieval.Hit, error) {
	if c.guard == nil || len(hits) == 0 {
		return hits, nil
	}
	kept := make([]retrieval.Hit, 0, len(hits))
	for _, h := range hits {
		text, err := c.guard.Check(ctx, guard.StagePassage, h.Text)
		if guard.IsBlocked(err) {
			c.logger.Warn("passage dropped by guard", "chunk_id", h.ChunkID)
			continue
		}
		if err != nil {
			return nil, err
		}
		h.Text = text
		kept = append(kept, h)
	}
	return kept, nil
}

// generate calls the generator up to MaxAttempts times. Only transient
// failures are retried.
func (c *Composer) generate(ctx context.Context, req generator.Request) (*generator.Response, int, error) {
	var lastErr error
	attempt := 1
	for ; attempt <= c.cfg.MaxAttempts; attempt++ {
		c.enter(Event{State: StateCallingGenerator, Attempt: attempt})

		actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		resp, err := c.gen.Generate(actx, req)
		cancel()
		if err == nil {
			return resp, attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}
		if generator.KindOf(err) == generator.KindPermanent {
			break
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}

		delay := c.backoff(attempt)
		c.logger.Warn("generator call failed, retrying",
			"attempt", attempt, "backoff", delay, "error", err)
		if c.observer != nil {
			c.observer(Event{State: StateCallingGenerator, Attempt: attempt, Err: err})
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, attempt, err
		}
	}

	attempts := min(attempt, c.cfg.MaxAttempts)
	return nil, attempts, ragerr.Reclassify(lastErr, ragerr.CodeAnswerGenerationFailure,
		"answer: generation failed", ragerr.FieldAttempts(attempts), ragerr.FieldOperation("generate"))
}

// backoff is InitialBackoff * Multiplier^(attempt-1), capped at MaxBackoff
// and then spread by Jitter.
func (c *Composer) backoff(attempt int) time.Duration {
	d := float64(c.cfg.InitialBackoff) * math.Pow(c.cfg.Multiplier, float64(attempt-1))
	d = min(d, float64(c.cfg.MaxBackoff))
	if c.cfg.Jitter > 0 {
		d *= 1 + c.cfg.Jitter*(2*c.random()-1)
	}
	return time.Duration(d)
}

func (c *Composer) enter(ev Event) {
	c.logger.Debug("answer state", "state", ev.State, "attempt", ev.Attempt)
	if c.observer != nil {
		c.observer(ev)
	}
}

func (c *Composer) fail(err error) error {
	c.logger.Warn("answer failed", "error", err)
	c.enter(Event{State: StateFailed, Err: err})
	return err
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
