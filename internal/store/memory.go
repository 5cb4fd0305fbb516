// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

var _ MetadataStore = (*Memory)(nil)

type version struct {
	doc    *Document
	chunks []Chunk
}

// Memory is a MetadataStore held entirely in process memory.
type Memory struct {
	mu        sync.RWMutex
	committed map[string]*version
	pending   map[string]*version
	chunks    map[string]Chunk // committed chunks by id
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		committed: make(map[string]*version),
		pending:   make(map[string]*version),
		chunks:    make(map[string]Chunk),
	}
}

func (m *Memory) CreatePending(_ context.Context, doc *Document, chunks []Chunk) error {
	if err := ValidateDocument(doc, chunks); err != nil {
		return err
	}

	d := doc.Clone()
	d.Status = StatusPending
	d.ChunkCount = len(chunks)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[d.ID] = &version{doc: d, chunks: slices.Clone(chunks)}
	return nil
}

func (m *Memory) Commit(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pending[documentID]
	if !ok {
		return NotFound(documentID)
	}
	if old, ok := m.committed[documentID]; ok {
		for _, c := range old.chunks {
			delete(m.chunks, c.ID)
		}
	}

	p.doc.Status = StatusCommitted
	m.committed[documentID] = p
	for _, c := range p.chunks {
		m.chunks[c.ID] = c
	}
	delete(m.pending, documentID)
	return nil
}

func (m *Memory) Rollback(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, documentID)
	return nil
}

func (m *Memory) GetDocument(_ context.Context, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.committed[id]
	if !ok {
		return nil, NotFound(id)
	}
	return v.doc.Clone(), nil
}

func (m *Memory) ListDocuments(_ context.Context, opts ListOpts) ([]*Document, error) {
	m.mu.RLock()
	docs := make([]*Document, 0, len(m.committed))
	for _, v := range m.committed {
		docs = append(docs, v.doc.Clone())
	}
	m.mu.RUnlock()

	sortDocuments(docs)
	return paginate(docs, opts), nil
}

func (m *Memory) GetChunks(_ context.Context, ids []string) ([]Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) ListChunks(_ context.Context, documentID string) ([]Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.committed[documentID]
	if !ok {
		return nil, NotFound(documentID)
	}
	return slices.Clone(v.chunks), nil
}

func (m *Memory) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.committed[id]
	if !ok {
		return NotFound(id)
	}
	for _, c := range v.chunks {
		delete(m.chunks, c.ID)
	}
	delete(m.committed, id)
	delete(m.pending, id)
	return nil
}

func (m *Memory) ListPending(_ context.Context, olderThan time.Time) ([]*Document, error) {
	m.mu.RLock()
	var docs []*Document
	for _, v := range m.pending {
		if v.doc.IngestedAt.Before(olderThan) {
			docs = append(docs, v.doc.Clone())
		}
	}
	m.mu.RUnlock()

	sortDocuments(docs)
	return docs, nil
}

func (m *Memory) CommittedChunkIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.chunks))
	for id := range m.chunks {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	slices.Sort(ids)
	return ids, nil
}

func (m *Memory) Close() error { return nil }

// sortDocuments orders newest first, then by id.
func sortDocuments(docs []*Document) {
	slices.SortFunc(docs, func(a, b *Document) int {
		if c := b.IngestedAt.Compare(a.IngestedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func paginate(docs []*Document, opts ListOpts) []*Document {
	if opts.Offset > 0 {
		if opts.Offset >= len(docs) {
			return []*Document{}
		}
		docs = docs[opts.Offset:]
	}
	if opts.Limit > 0 && len(docs) > opts.Limit {
		docs = docs[:opts.Limit]
	}
	return docs
}
