// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package chunker splits normalized document text into overlapping,
// token-bounded windows.
package chunker

import (
	"iter"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

const (
	DefaultMaxTokens     = 256
	DefaultOverlapTokens = 32
)

// Span is one chunk of a document. Start and End are byte offsets into the
// text that was chunked, so text[Start:End] == Text.
type Span struct {
	Ordinal int
	Start   int
	End     int
	Text    string
	Tokens  int
}

// Chunker produces windows of at most maxTokens tokens, consecutive windows
// sharing exactly overlapTokens tokens.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// New returns a Chunker. It fails with CodeChunkerConfigInvalid unless
// 0 <= overlapTokens < maxTokens.
func New(maxTokens, overlapTokens int) (*Chunker, error) {
	if maxTokens <= 0 {
		return nil, ragerr.New(ragerr.CodeChunkerConfigInvalid, "chunker: max_tokens must be positive",
			ragerr.Field("max_tokens", maxTokens))
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		return nil, ragerr.New(ragerr.CodeChunkerConfigInvalid, "chunker: overlap_tokens must be in [0, max_tokens)",
			ragerr.Field("max_tokens", maxTokens),
			ragerr.Field("overlap_tokens", overlapTokens),
		)
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}, nil
}

func (c *Chunker) MaxTokens() int     { return c.maxTokens }
func (c *Chunker) OverlapTokens() int { return c.overlapTokens }

// Chunks lazily yields the windows of text in order. The sequence is finite
// and depends only on text and the chunker's configuration. Text without any
// token yields nothing.
func (c *Chunker) Chunks(text string) iter.Seq[Span] {
	return func(yield func(Span) bool) {
		tokens := Tokenize(text)
		n := len(tokens)
		step := c.maxTokens - c.overlapTokens

		for ordinal, i := 0, 0; i < n; ordinal++ {
			j := min(i+c.maxTokens, n)
			start, end := tokens[i].Start, tokens[j-1].End
			span := Span{
				Ordinal: ordinal,
				Start:   start,
				End:     end,
				Text:    text[start:end],
				Tokens:  j - i,
			}
			if !yield(span) {
				return
			}
			if j == n {
				return
			}
			i += step
		}
	}
}

// Split collects Chunks into a slice.
func (c *Chunker) Split(text string) []Span {
	var spans []Span
	for s := range c.Chunks(text) {
		spans = append(spans, s)
	}
	return spans
}
