// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package guard screens text crossing a trust boundary: credentials are
// kept out of the index and out of answers, and instructions planted in
// documents are kept out of prompts.
package guard

import (
	"context"
	"log/slog"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

// Policy selects the Mode applied at each stage.
type Policy struct {
	Document Mode
	Passage  Mode
	Answer   Mode
}

// DefaultPolicy redacts at every stage.
func DefaultPolicy() Policy {
	return Policy{Document: ModeRedact, Passage: ModeRedact, Answer: ModeRedact}
}

func (p Policy) mode(stage Stage) Mode {
	switch stage {
	case StageDocument:
		return p.Document
	case StagePassage:
		return p.Passage
	default:
		return p.Answer
	}
}

// Guard applies a Policy using a Scanner.
type Guard struct {
	scanner *Scanner
	policy  Policy
	logger  *slog.Logger

	rules      []Rule
	maxContent int
}

// Option customizes a Guard.
type Option func(*Guard)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithRules replaces DefaultRules.
func WithRules(rules []Rule) Option {
	return func(g *Guard) { g.rules = rules }
}

// WithMaxContentLength overrides DefaultMaxContentLength.
func WithMaxContentLength(n int) Option {
	return func(g *Guard) { g.maxContent = n }
}

// New validates policy and returns a Guard over DefaultRules.
func New(policy Policy, opts ...Option) (*Guard, error) {
	for stage, m := range map[Stage]Mode{StageDocument: policy.Document, StagePassage: policy.Passage, StageAnswer: policy.Answer} {
		if !m.Valid() {
			return nil, ragerr.Errorf(ragerr.CodeGuardConfigInvalid, "guard: invalid mode %q for %s", m, stage)
		}
	}
	g := &Guard{policy: policy, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	if g.rules == nil {
		g.rules = DefaultRules()
	}
	s, err := NewScanner(g.rules)
	if err != nil {
		return nil, err
	}
	if g.maxContent > 0 {
		s.maxContentLength = g.maxContent
	}
	g.scanner = s
	return g, nil
}

// Check scans text for stage and applies the stage's mode. It returns the
// text to use, which differs from text only in redact mode, or
// CodeGuardContentBlocked in block mode.
func (g *Guard) Check(ctx context.Context, stage Stage, text string) (string, error) {
	res, err := g.scanner.Scan(ctx, stage, text)
	if err != nil {
		return "", err
	}
	if !res.Threat {
		return text, nil
	}

	mode := g.policy.mode(stage)
	rules := make([]string, 0, len(res.Matches))
	for _, m := range res.Matches {
		rules = append(rules, m.Rule)
	}
	g.logger.WarnContext(ctx, "guard matched",
		"stage", stage,
		"mode", mode,
		"matches", len(res.Matches),
		"rules", rules,
	)
	return ApplyMode(mode, text, res)
}

// IsBlocked reports whether err is a block-mode rejection.
func IsBlocked(err error) bool {
	return ragerr.HasCode(err, ragerr.CodeGuardContentBlocked)
}
