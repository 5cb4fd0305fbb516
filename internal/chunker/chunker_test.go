// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package chunker_test

import (
	"strings"
	"testing"

	"github.com/sigil-dev/ragd/internal/chunker"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, maxTokens, overlap int) *chunker.Chunker {
	t.Helper()
	c, err := chunker.New(maxTokens, overlap)
	require.NoError(t, err)
	return c
}

func texts(spans []chunker.Span) []string {
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Text
	}
	return out
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		max, ovl int
	}{
		{"zero max", 0, 0},
		{"negative max", -1, 0},
		{"overlap equals max", 4, 4},
		{"overlap exceeds max", 4, 5},
		{"negative overlap", 4, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := chunker.New(tt.max, tt.ovl)
			require.Error(t, err)
			assert.True(t, ragerr.HasCode(err, ragerr.CodeChunkerConfigInvalid))
			assert.True(t, ragerr.IsInvalidInput(err))
		})
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"words and period", "The quick brown fox jumps.", []string{"The", "quick", "brown", "fox", "jumps", "."}},
		{"contraction stays whole", "don't stop", []string{"don't", "stop"}},
		{"trailing apostrophe is punctuation", "dogs' bowls", []string{"dogs", "'", "bowls"}},
		{"symbols split", "a+b=c", []string{"a", "+", "b", "=", "c"}},
		{"digits", "version 2.5", []string{"version", "2", ".", "5"}},
		{"unicode letters", "naïve café", []string{"naïve", "café"}},
		{"whitespace only", " \n\t ", nil},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, tok := range chunker.Tokenize(tt.text) {
				got = append(got, tt.text[tok.Start:tok.End])
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), chunker.CountTokens(tt.text))
		})
	}
}

func TestChunks_BoundaryExample(t *testing.T) {
	c := mustNew(t, 3, 1)

	spans := c.Split("The quick brown fox jumps.")
	assert.Equal(t, []string{"The quick brown", "brown fox jumps", "jumps ."}, texts(spans))

	for i, s := range spans {
		assert.Equal(t, i, s.Ordinal)
	}
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, len("The quick brown fox jumps."), spans[2].End)
}

func TestChunks_EmptyText(t *testing.T) {
	c := mustNew(t, 8, 2)
	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n  "))
}

func TestChunks_ShortTextSingleChunk(t *testing.T) {
	c := mustNew(t, 10, 3)
	spans := c.Split("  hello world  ")
	require.Len(t, spans, 1)
	assert.Equal(t, "hello world", spans[0].Text)
	assert.Equal(t, 2, spans[0].Tokens)
}

func TestChunks_ExactMultipleNoTrailingOverlapOnlyChunk(t *testing.T) {
	// 5 tokens, window 3 step 2: [0,3) [2,5). A third window would only
	// repeat the overlap and must not be emitted.
	c := mustNew(t, 3, 1)
	spans := c.Split("a b c d e")
	assert.Equal(t, []string{"a b c", "c d e"}, texts(spans))
}

func TestChunks_Properties(t *testing.T) {
	text := strings.Repeat("Retrieval augmented generation grounds answers in passages, "+
		"and every passage carries a citation! ", 40)

	for _, cfg := range [][2]int{{1, 0}, {5, 0}, {7, 3}, {16, 15}, {64, 8}} {
		c := mustNew(t, cfg[0], cfg[1])
		spans := c.Split(text)
		require.NotEmpty(t, spans)

		tokens := chunker.Tokenize(text)
		covered := 0
		for i, s := range spans {
			// Never exceeds max size.
			assert.LessOrEqual(t, s.Tokens, cfg[0])
			assert.Equal(t, s.Tokens, chunker.CountTokens(s.Text))
			assert.Equal(t, text[s.Start:s.End], s.Text)

			if i > 0 {
				prev := spans[i-1]
				assert.Greater(t, s.Start, prev.Start, "offsets are monotonic")
				assert.GreaterOrEqual(t, prev.End, s.Start-1)
			}
			covered += s.Tokens
		}

		// Reconstruction: every token is covered, shared ones counted once.
		overlapTotal := cfg[1] * (len(spans) - 1)
		assert.Equal(t, len(tokens), covered-overlapTotal, "config %v", cfg)
		assert.Equal(t, strings.TrimSpace(text), stitch(text, spans), "config %v", cfg)
	}
}

// stitch concatenates spans, dropping each span's overlap with its
// predecessor and restoring the whitespace between disjoint spans.
func stitch(text string, spans []chunker.Span) string {
	if len(spans) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(spans[0].Text)
	for i := 1; i < len(spans); i++ {
		prev, s := spans[i-1], spans[i]
		if s.Start < prev.End {
			b.WriteString(s.Text[prev.End-s.Start:])
			continue
		}
		b.WriteString(text[prev.End:s.Start])
		b.WriteString(s.Text)
	}
	return b.String()
}

func TestChunks_StitchedSpansRebuildText(t *testing.T) {
	inputs := []string{
		"one",
		"\n\tIndented first line.\nSecond line,  with  double spaces.\n\nNew paragraph: «quoted» text; café, naïve - done.\t\n",
		"a b c d e f g h i j k l m n o p q r s t u v w x y z",
		strings.Repeat("Chunk boundaries must not lose bytes. ", 25),
	}
	for _, text := range inputs {
		for _, cfg := range [][2]int{{1, 0}, {3, 1}, {4, 0}, {8, 7}, {256, 32}} {
			spans := mustNew(t, cfg[0], cfg[1]).Split(text)
			require.NotEmpty(t, spans)
			assert.Equal(t, strings.TrimSpace(text), stitch(text, spans), "config %v text %q", cfg, text)
		}
	}
}

func TestChunks_Deterministic(t *testing.T) {
	c := mustNew(t, 4, 1)
	text := "one two three four five six seven eight nine ten"
	assert.Equal(t, c.Split(text), c.Split(text))
}

func TestChunks_EarlyStop(t *testing.T) {
	c := mustNew(t, 2, 0)
	n := 0
	for range c.Chunks("a b c d e f g h") {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}
