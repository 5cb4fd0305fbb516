// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package storetest is a conformance suite every MetadataStore backend runs.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sigil-dev/ragd/internal/store"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Epoch is the fixed ingest time fixtures use.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Document builds a document whose content is the given chunk texts joined
// by single spaces, with matching chunks.
func Document(id string, at time.Time, texts ...string) (*store.Document, []store.Chunk) {
	content := strings.Join(texts, " ")
	doc := &store.Document{
		ID:          id,
		SourceURI:   "file:///" + id + ".txt",
		Title:       "Title " + id,
		ContentType: "text/plain",
		Content:     content,
		ContentHash: fmt.Sprintf("hash-%s-%d", id, len(content)),
		IngestedAt:  at,
		Metadata:    map[string]string{"lang": "en"},
	}

	chunks := make([]store.Chunk, len(texts))
	offset := 0
	for i, t := range texts {
		chunks[i] = store.Chunk{
			ID:          store.ChunkID(id, i),
			DocumentID:  id,
			Ordinal:     i,
			Text:        t,
			StartOffset: offset,
			EndOffset:   offset + len(t),
		}
		offset += len(t) + 1
	}
	return doc, chunks
}

// Run exercises the MetadataStore contract against stores built by open.
func Run(t *testing.T, open func(t *testing.T) store.MetadataStore) {
	t.Helper()
	base := Epoch

	t.Run("pending is invisible until commit", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		doc, chunks := Document("doc1", base, "alpha beta", "gamma delta")

		require.NoError(t, s.CreatePending(ctx, doc, chunks))

		_, err := s.GetDocument(ctx, "doc1")
		assert.True(t, ragerr.IsNotFound(err))
		got, err := s.GetChunks(ctx, []string{"doc1#0"})
		require.NoError(t, err)
		assert.Empty(t, got)
		ids, err := s.CommittedChunkIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)

		require.NoError(t, s.Commit(ctx, "doc1"))

		d, err := s.GetDocument(ctx, "doc1")
		require.NoError(t, err)
		assert.Equal(t, store.StatusCommitted, d.Status)
		assert.Equal(t, "Title doc1", d.Title)
		assert.Equal(t, "alpha beta gamma delta", d.Content)
		assert.Equal(t, map[string]string{"lang": "en"}, d.Metadata)
		assert.Equal(t, 2, d.ChunkCount)
		assert.True(t, base.Equal(d.IngestedAt))

		listed, err := s.ListChunks(ctx, "doc1")
		require.NoError(t, err)
		assert.Equal(t, chunks, listed)
	})

	t.Run("commit replaces previous version", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		v1, c1 := Document("doc", base, "one", "two", "three")
		require.NoError(t, s.CreatePending(ctx, v1, c1))
		require.NoError(t, s.Commit(ctx, "doc"))

		v2, c2 := Document("doc", base.Add(time.Hour), "uno")
		require.NoError(t, s.CreatePending(ctx, v2, c2))

		// Readers still see v1 while v2 is pending.
		listed, err := s.ListChunks(ctx, "doc")
		require.NoError(t, err)
		assert.Len(t, listed, 3)

		require.NoError(t, s.Commit(ctx, "doc"))
		listed, err = s.ListChunks(ctx, "doc")
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, "uno", listed[0].Text)

		ids, err := s.CommittedChunkIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"doc#0"}, ids)
	})

	t.Run("rollback keeps committed version", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		v1, c1 := Document("doc", base, "keep me")
		require.NoError(t, s.CreatePending(ctx, v1, c1))
		require.NoError(t, s.Commit(ctx, "doc"))

		v2, c2 := Document("doc", base, "discard", "me")
		require.NoError(t, s.CreatePending(ctx, v2, c2))
		require.NoError(t, s.Rollback(ctx, "doc"))
		require.NoError(t, s.Rollback(ctx, "never-staged"))

		err := s.Commit(ctx, "doc")
		assert.True(t, ragerr.IsNotFound(err))

		d, err := s.GetDocument(ctx, "doc")
		require.NoError(t, err)
		assert.Equal(t, "keep me", d.Content)
	})

	t.Run("create pending replaces prior attempt", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		a, ca := Document("doc", base, "first", "attempt")
		b, cb := Document("doc", base, "second")
		require.NoError(t, s.CreatePending(ctx, a, ca))
		require.NoError(t, s.CreatePending(ctx, b, cb))
		require.NoError(t, s.Commit(ctx, "doc"))

		listed, err := s.ListChunks(ctx, "doc")
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, "second", listed[0].Text)
	})

	t.Run("get chunks preserves request order", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		doc, chunks := Document("d", base, "a", "b", "c")
		require.NoError(t, s.CreatePending(ctx, doc, chunks))
		require.NoError(t, s.Commit(ctx, "d"))

		got, err := s.GetChunks(ctx, []string{"d#2", "missing#0", "d#0"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "d#2", got[0].ID)
		assert.Equal(t, "d#0", got[1].ID)
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		doc, chunks := Document("gone", base, "bye")
		require.NoError(t, s.CreatePending(ctx, doc, chunks))
		require.NoError(t, s.Commit(ctx, "gone"))

		require.NoError(t, s.DeleteDocument(ctx, "gone"))
		_, err := s.GetDocument(ctx, "gone")
		assert.True(t, ragerr.IsNotFound(err))
		got, err := s.GetChunks(ctx, []string{"gone#0"})
		require.NoError(t, err)
		assert.Empty(t, got)

		err = s.DeleteDocument(ctx, "gone")
		assert.True(t, ragerr.HasCode(err, ragerr.CodeStoreDocumentNotFound))
	})

	t.Run("list documents newest first with paging", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		for i := range 4 {
			id := fmt.Sprintf("doc%d", i)
			doc, chunks := Document(id, base.Add(time.Duration(i)*time.Minute), "text")
			require.NoError(t, s.CreatePending(ctx, doc, chunks))
			require.NoError(t, s.Commit(ctx, id))
		}
		pending, cp := Document("staged", base, "x")
		require.NoError(t, s.CreatePending(ctx, pending, cp))

		all, err := s.ListDocuments(ctx, store.ListOpts{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, "doc3", all[0].ID)

		page, err := s.ListDocuments(ctx, store.ListOpts{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "doc2", page[0].ID)
		assert.Equal(t, "doc1", page[1].ID)

		tail, err := s.ListDocuments(ctx, store.ListOpts{Offset: 3})
		require.NoError(t, err)
		require.Len(t, tail, 1)
		assert.Equal(t, "doc0", tail[0].ID)
	})

	t.Run("list pending by age", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		old, co := Document("old", base, "x")
		fresh, cf := Document("fresh", base.Add(time.Hour), "y")
		require.NoError(t, s.CreatePending(ctx, old, co))
		require.NoError(t, s.CreatePending(ctx, fresh, cf))

		stale, err := s.ListPending(ctx, base.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, "old", stale[0].ID)
		assert.Equal(t, store.StatusPending, stale[0].Status)
	})

	t.Run("rejects invalid chunks", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		doc, chunks := Document("bad", base, "a", "b")
		chunks[1].Ordinal = 5
		err := s.CreatePending(ctx, doc, chunks)
		require.Error(t, err)
		assert.True(t, ragerr.IsInvalidInput(err))

		doc, chunks = Document("bad", base, "a")
		chunks[0].EndOffset = 99
		assert.True(t, ragerr.IsInvalidInput(s.CreatePending(ctx, doc, chunks)))
	})

	t.Run("missing document", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		_, err := s.ListChunks(ctx, "nope")
		assert.True(t, ragerr.IsNotFound(err))
		assert.True(t, ragerr.IsNotFound(s.Commit(ctx, "nope")))
	})
}
