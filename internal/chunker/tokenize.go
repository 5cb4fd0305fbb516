// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package chunker

import (
	"unicode"
	"unicode/utf8"
)

// Token is the byte range of one token within the source text.
type Token struct {
	Start int
	End   int
}

// Tokenize splits text into tokens. A token is either a maximal run of
// letters, digits and combining marks (an apostrophe between two such runes
// stays inside the word), or a single punctuation or symbol rune. Whitespace
// and control runes only separate tokens.
func Tokenize(text string) []Token {
	var tokens []Token

	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case isWordRune(r):
			start := i
			i += size
			for i < len(text) {
				r, size = utf8.DecodeRuneInString(text[i:])
				if isWordRune(r) {
					i += size
					continue
				}
				if isApostrophe(r) && i+size < len(text) {
					next, _ := utf8.DecodeRuneInString(text[i+size:])
					if isWordRune(next) {
						i += size
						continue
					}
				}
				break
			}
			tokens = append(tokens, Token{Start: start, End: i})
		case unicode.IsSpace(r) || unicode.IsControl(r) || r == utf8.RuneError && size <= 1:
			i += size
		default:
			tokens = append(tokens, Token{Start: i, End: i + size})
			i += size
		}
	}

	return tokens
}

// CountTokens returns the number of tokens Tokenize would produce.
func CountTokens(text string) int {
	return len(Tokenize(text))
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '’'
}
