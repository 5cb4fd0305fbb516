// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"maps"
	"strconv"
	"strings"
	"time"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

// DocumentStatus is the lifecycle state of a stored document version.
type DocumentStatus string

const (
	StatusPending   DocumentStatus = "pending"
	StatusCommitted DocumentStatus = "committed"
)

// Valid reports whether the status is a known lifecycle state.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCommitted:
		return true
	default:
		return false
	}
}

// Document is an ingested source. Content holds the normalized text that
// chunk offsets refer to.
type Document struct {
	ID          string
	SourceURI   string
	Title       string
	ContentType string
	Content     string
	ContentHash string
	Status      DocumentStatus
	IngestedAt  time.Time
	Metadata    map[string]string
	ChunkCount  int
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Metadata = maps.Clone(d.Metadata)
	return &c
}

// Chunk is a contiguous span of a document's normalized text.
type Chunk struct {
	ID          string
	DocumentID  string
	Ordinal     int
	Text        string
	StartOffset int
	EndOffset   int
}

// ChunkID derives the deterministic id of the chunk at ordinal.
func ChunkID(documentID string, ordinal int) string {
	return documentID + "#" + strconv.Itoa(ordinal)
}

// DocumentIDOf recovers the document id from a chunk id.
func DocumentIDOf(chunkID string) string {
	if i := strings.LastIndexByte(chunkID, '#'); i >= 0 {
		return chunkID[:i]
	}
	return chunkID
}

// ValidateDocument checks a document and its chunks before staging.
func ValidateDocument(doc *Document, chunks []Chunk) error {
	if doc == nil || strings.TrimSpace(doc.ID) == "" {
		return ragerr.New(ragerr.CodeStoreDocumentInvalid, "document: ID is required")
	}
	if strings.ContainsRune(doc.ID, '#') {
		return ragerr.New(ragerr.CodeStoreDocumentInvalid, "document: ID must not contain '#'",
			ragerr.FieldDocumentID(doc.ID))
	}
	if doc.IngestedAt.IsZero() {
		return ragerr.New(ragerr.CodeStoreDocumentInvalid, "document: IngestedAt is required",
			ragerr.FieldDocumentID(doc.ID))
	}

	prevEnd := 0
	for i, c := range chunks {
		switch {
		case c.DocumentID != doc.ID:
			return ragerr.New(ragerr.CodeStoreDocumentInvalid, "chunk belongs to another document",
				ragerr.FieldDocumentID(doc.ID), ragerr.FieldChunkID(c.ID))
		case c.Ordinal != i:
			return ragerr.New(ragerr.CodeStoreDocumentInvalid, "chunk ordinals must be contiguous from 0",
				ragerr.FieldDocumentID(doc.ID), ragerr.FieldChunkID(c.ID))
		case c.ID != ChunkID(doc.ID, c.Ordinal):
			return ragerr.New(ragerr.CodeStoreDocumentInvalid, "chunk id does not match its ordinal",
				ragerr.FieldDocumentID(doc.ID), ragerr.FieldChunkID(c.ID))
		case c.StartOffset < 0 || c.EndOffset < c.StartOffset || c.EndOffset > len(doc.Content):
			return ragerr.New(ragerr.CodeStoreDocumentInvalid, "chunk offsets out of range",
				ragerr.FieldDocumentID(doc.ID), ragerr.FieldChunkID(c.ID))
		case c.EndOffset < prevEnd:
			return ragerr.New(ragerr.CodeStoreDocumentInvalid, "chunk offsets must be monotonic",
				ragerr.FieldDocumentID(doc.ID), ragerr.FieldChunkID(c.ID))
		}
		prevEnd = c.EndOffset
	}
	return nil
}

// NotFound builds the error backends return for an unknown document id.
func NotFound(id string) error {
	return ragerr.New(ragerr.CodeStoreDocumentNotFound, "document not found", ragerr.FieldDocumentID(id))
}
