// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"context"
	"time"
)

// MetadataStore is the source of truth for documents and chunk text.
//
// A document is written in two phases: CreatePending stages the document and
// its chunks, Commit makes them visible and replaces any previously
// committed version atomically. Readers only ever see committed rows.
type MetadataStore interface {
	// CreatePending stages doc and chunks. A prior pending attempt for the
	// same id is replaced; the committed version is never touched.
	CreatePending(ctx context.Context, doc *Document, chunks []Chunk) error
	// Commit promotes the pending version of documentID.
	Commit(ctx context.Context, documentID string) error
	// Rollback discards the pending version. It is a no-op when none exists.
	Rollback(ctx context.Context, documentID string) error

	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context, opts ListOpts) ([]*Document, error)
	// GetChunks returns committed chunks in the order of ids, omitting ids
	// that have no committed chunk.
	GetChunks(ctx context.Context, ids []string) ([]Chunk, error)
	ListChunks(ctx context.Context, documentID string) ([]Chunk, error)
	DeleteDocument(ctx context.Context, id string) error

	// ListPending returns pending documents staged before olderThan.
	ListPending(ctx context.Context, olderThan time.Time) ([]*Document, error)
	CommittedChunkIDs(ctx context.Context) ([]string, error)

	Close() error
}

// ListOpts paginates list queries. Zero Limit means no limit.
type ListOpts struct {
	Limit  int
	Offset int
}
