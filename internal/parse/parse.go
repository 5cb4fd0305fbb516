// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package parse turns uploaded bytes into normalized text ready for
// chunking.
package parse

import (
	"context"
	"mime"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

const (
	TypePlain    = "text/plain"
	TypeMarkdown = "text/markdown"
	TypePDF      = "application/pdf"
)

// Parsed is the extracted content of a document.
type Parsed struct {
	Title string
	Text  string
}

// Parser extracts text from one content type.
type Parser interface {
	Parse(ctx context.Context, data []byte) (*Parsed, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(ctx context.Context, data []byte) (*Parsed, error)

func (f ParserFunc) Parse(ctx context.Context, data []byte) (*Parsed, error) { return f(ctx, data) }

// Registry maps media types to parsers.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

// NewRegistry returns a registry with the plain text, markdown and PDF
// parsers installed.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	r.Register(TypePlain, ParserFunc(parsePlain))
	r.Register(TypeMarkdown, ParserFunc(parseMarkdown))
	r.Register(TypePDF, ParserFunc(parsePDF))
	return r
}

// Register installs p for contentType, replacing any previous parser.
func (r *Registry) Register(contentType string, p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[baseType(contentType)] = p
}

// ContentTypes lists the registered media types.
func (r *Registry) ContentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.parsers))
	for t := range r.parsers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Parse extracts and normalizes the text of data. The result text is never
// blank on success.
func (r *Registry) Parse(ctx context.Context, contentType string, data []byte) (*Parsed, error) {
	ct := baseType(contentType)

	r.mu.RLock()
	p, ok := r.parsers[ct]
	r.mu.RUnlock()
	if !ok {
		return nil, ragerr.New(ragerr.CodeParseContentTypeUnknown, "unsupported content type",
			ragerr.Field("content_type", contentType))
	}

	parsed, err := p.Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	parsed.Text = Normalize(parsed.Text)
	parsed.Title = strings.TrimSpace(Normalize(parsed.Title))
	if strings.TrimSpace(parsed.Text) == "" {
		return nil, ragerr.New(ragerr.CodeIngestDocumentInvalid, "document has no extractable text",
			ragerr.Field("content_type", ct))
	}
	return parsed, nil
}

// DetectContentType picks a media type from the file name, falling back to
// content sniffing.
func DetectContentType(name string, data []byte) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return TypeMarkdown
	case ".txt", ".text", ".log":
		return TypePlain
	case ".pdf":
		return TypePDF
	}
	if ext := filepath.Ext(name); ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return baseType(t)
		}
	}
	return baseType(http.DetectContentType(data))
}

func baseType(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

var invisibleCharReplacer = strings.NewReplacer(
	"\u200b", "", // zero width space
	"\u200c", "", // zero width non-joiner
	"\u200d", "", // zero width joiner
	"\u2060", "", // word joiner
	"\ufeff", "", // byte order mark
	"\x00", "",
	"\r\n", "\n",
	"\r", "\n",
)

// Normalize repairs invalid UTF-8, strips invisible characters and NUL
// bytes, unifies line endings and applies NFC, so that chunk offsets are
// stable across re-ingests.
func Normalize(s string) string {
	s = strings.ToValidUTF8(s, "\ufffd")
	s = invisibleCharReplacer.Replace(s)
	return norm.NFC.String(s)
}
