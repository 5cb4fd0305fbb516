// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package parse

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

func parsePlain(_ context.Context, data []byte) (*Parsed, error) {
	if !utf8.Valid(data) && bytes.IndexByte(data, 0) >= 0 {
		return nil, ragerr.New(ragerr.CodeParseDocumentInvalid, "plain text contains binary data")
	}
	return &Parsed{Text: string(data)}, nil
}

// parseMarkdown keeps the markdown source as the document text and takes
// the title from front matter or the first level-one heading.
func parseMarkdown(ctx context.Context, data []byte) (*Parsed, error) {
	p, err := parsePlain(ctx, data)
	if err != nil {
		return nil, err
	}
	p.Title = markdownTitle(p.Text)
	return p, nil
}

func markdownTitle(text string) string {
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	inFrontMatter := false
	first := true
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if first {
			first = false
			if line == "---" {
				inFrontMatter = true
				continue
			}
		}
		if inFrontMatter {
			if line == "---" {
				inFrontMatter = false
				continue
			}
			if v, ok := strings.CutPrefix(line, "title:"); ok {
				return strings.Trim(strings.TrimSpace(v), `"'`)
			}
			continue
		}
		if h, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(strings.TrimRight(h, "#"))
		}
	}
	return ""
}
