// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package answer

import (
	"regexp"
	"strings"

	"github.com/sigil-dev/ragd/internal/chunker"
	"github.com/sigil-dev/ragd/internal/retrieval"
)

// DefaultSystemPrompt tells the model to stay inside the supplied passages.
const DefaultSystemPrompt = `You answer questions using only the context passages provided.
Each passage starts with its id in square brackets, for example [doc#0].
Cite every passage you rely on by writing its id in square brackets right after the statement it supports.
If the passages do not contain the answer, say that you do not know. Do not use outside knowledge.`

// InsufficientContextText is returned, without calling the generator, when
// retrieval finds nothing relevant.
const InsufficientContextText = "I could not find enough relevant context in the indexed documents to answer this question."

// FinishInsufficientContext is the finish reason of an insufficient-context answer.
const FinishInsufficientContext = "insufficient_context"

// selectPassages keeps the best-scoring hits whose text fits in budget
// tokens. Hits arrive best first, so dropping from the tail drops the
// lowest-scoring passages first. When even the best hit is too large it is
// cut to the budget so the model always sees some context.
func selectPassages(hits []retrieval.Hit, budget int) []retrieval.Hit {
	var out []retrieval.Hit
	used := 0
	for _, h := range hits {
		cost := passageTokens(h)
		if used+cost > budget {
			break
		}
		out = append(out, h)
		used += cost
	}
	if len(out) == 0 && len(hits) > 0 {
		top := hits[0]
		top.Text = truncateTokens(top.Text, max(budget-chunker.CountTokens("["+top.ChunkID+"]"), 1))
		out = append(out, top)
	}
	return out
}

func passageTokens(h retrieval.Hit) int {
	return chunker.CountTokens("["+h.ChunkID+"]") + chunker.CountTokens(h.Text)
}

// truncateTokens returns the prefix of text holding at most n tokens.
func truncateTokens(text string, n int) string {
	tokens := chunker.Tokenize(text)
	if len(tokens) <= n {
		return text
	}
	return text[:tokens[n-1].End]
}

// buildPrompt renders the passages and the question. Output depends only
// on its inputs.
func buildPrompt(question string, passages []retrieval.Hit) string {
	var b strings.Builder
	b.WriteString("Context passages:\n\n")
	for _, p := range passages {
		b.WriteString("[")
		b.WriteString(p.ChunkID)
		b.WriteString("] ")
		b.WriteString(strings.TrimSpace(p.Text))
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n")
	return b.String()
}

var citationRe = regexp.MustCompile(`\[([^\[\]\n]+)\]`)

// extractCitations returns the passages referenced as [id] in text, in
// order of first mention. A bracket whose content is exactly a sent id
// cites it even when the id contains separators; otherwise "[a#0, b#1]"
// cites both. Bracketed ids that were not sent are dropped.
func extractCitations(text string, sent []retrieval.Hit) []Citation {
	byID := make(map[string]retrieval.Hit, len(sent))
	for _, h := range sent {
		byID[h.ChunkID] = h
	}

	seen := map[string]bool{}
	out := []Citation{}
	cite := func(id string) {
		h, ok := byID[id]
		if !ok || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, Citation{ChunkID: h.ChunkID, DocumentID: h.DocumentID, Score: h.Score})
	}
	for _, m := range citationRe.FindAllStringSubmatch(text, -1) {
		if _, ok := byID[strings.TrimSpace(m[1])]; ok {
			cite(strings.TrimSpace(m[1]))
			continue
		}
		for _, id := range strings.FieldsFunc(m[1], func(r rune) bool { return r == ',' || r == ';' }) {
			cite(strings.TrimSpace(id))
		}
	}
	return out
}
