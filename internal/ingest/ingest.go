// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package ingest owns the write path: parse, chunk, embed, and the
// two-phase commit that keeps the metadata store and the vector index in
// agreement. Every mutation of a document id is serialized by a per-id lock.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/ragd/internal/chunker"
	"github.com/sigil-dev/ragd/internal/embedding"
	"github.com/sigil-dev/ragd/internal/guard"
	"github.com/sigil-dev/ragd/internal/index"
	"github.com/sigil-dev/ragd/internal/parse"
	"github.com/sigil-dev/ragd/internal/store"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

// DefaultMaxDocumentBytes bounds a single upload.
const DefaultMaxDocumentBytes = 32 << 20

// Request is one document to ingest. An empty DocumentID gets a fresh UUID;
// an empty ContentType is detected from SourceURI and the content.
type Request struct {
	DocumentID  string
	Title       string
	SourceURI   string
	ContentType string
	Content     []byte
	Metadata    map[string]string
}

// Result describes a completed ingest.
type Result struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	// Unchanged is set when an identical committed version already existed.
	Unchanged bool `json:"unchanged"`
	// Replaced is set when a previous committed version was swapped out.
	Replaced bool `json:"replaced"`
}

// Config tunes the service.
type Config struct {
	MaxDocumentBytes int64
	PendingTTL       time.Duration
}

// Deps are the collaborators the service writes through.
type Deps struct {
	Store    store.MetadataStore
	Index    index.Index
	Embedder embedding.Embedder
	Chunker  *chunker.Chunker
	Parsers  *parse.Registry
	Logger   *slog.Logger
	// Guard screens parsed text before it is chunked. Nil disables screening.
	Guard *guard.Guard
}

// Service ingests, deletes and reconciles documents.
type Service struct {
	store    store.MetadataStore
	index    index.Index
	embedder embedding.Embedder
	chunker  *chunker.Chunker
	parsers  *parse.Registry
	guard    *guard.Guard
	logger   *slog.Logger
	cfg      Config
	locks    *keyedMutex
	now      func() time.Time

	suspectMu sync.Mutex
	suspect   map[string]struct{}
	wake      chan struct{}
}

// New validates deps and returns a Service.
func New(deps Deps, cfg Config) (*Service, error) {
	if deps.Store == nil || deps.Index == nil || deps.Embedder == nil || deps.Chunker == nil {
		return nil, ragerr.New(ragerr.CodeServerConfigInvalid, "ingest: store, index, embedder and chunker are required")
	}
	if deps.Embedder.Dimensions() != deps.Index.Dimensions() {
		return nil, ragerr.New(ragerr.CodeIndexDimensionMismatch, "ingest: embedder and index dimensions differ",
			ragerr.Field("embedder", deps.Embedder.Dimensions()), ragerr.Field("index", deps.Index.Dimensions()))
	}
	if deps.Parsers == nil {
		deps.Parsers = parse.NewRegistry()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.MaxDocumentBytes <= 0 {
		cfg.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 15 * time.Minute
	}

	return &Service{
		store:    deps.Store,
		index:    deps.Index,
		embedder: deps.Embedder,
		chunker:  deps.Chunker,
		parsers:  deps.Parsers,
		guard:    deps.Guard,
		logger:   deps.Logger,
		cfg:      cfg,
		locks:    newKeyedMutex(),
		now:      time.Now,
		suspect:  make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
	}, nil
}

// Ingest parses, chunks and embeds req and commits it. On any failure the
// previously committed version, if any, stays visible and searchable.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	if len(req.Content) == 0 {
		return nil, ragerr.New(ragerr.CodeIngestDocumentInvalid, "document content is empty",
			ragerr.FieldDocumentID(req.DocumentID))
	}
	if int64(len(req.Content)) > s.cfg.MaxDocumentBytes {
		return nil, ragerr.New(ragerr.CodeIngestDocumentTooLarge, "document exceeds max_document_bytes",
			ragerr.FieldDocumentID(req.DocumentID), ragerr.Field("bytes", len(req.Content)),
			ragerr.Field("limit", s.cfg.MaxDocumentBytes))
	}

	id := strings.TrimSpace(req.DocumentID)
	if id == "" {
		id = uuid.NewString()
	}
	if strings.ContainsRune(id, '#') {
		return nil, ragerr.New(ragerr.CodeIngestDocumentInvalid, "document id must not contain '#'",
			ragerr.FieldDocumentID(id))
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = parse.DetectContentType(req.SourceURI, req.Content)
	}
	parsed, err := s.parsers.Parse(ctx, contentType, req.Content)
	if err != nil {
		return nil, ragerr.With(err, ragerr.FieldDocumentID(id))
	}
	if s.guard != nil {
		if parsed.Text, err = s.guard.Check(ctx, guard.StageDocument, parsed.Text); err != nil {
			return nil, ragerr.With(err, ragerr.FieldDocumentID(id))
		}
	}

	spans := s.chunker.Split(parsed.Text)
	if len(spans) == 0 {
		return nil, ragerr.New(ragerr.CodeIngestDocumentInvalid, "document produced no chunks",
			ragerr.FieldDocumentID(id))
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = parsed.Title
	}
	doc := &store.Document{
		ID:          id,
		SourceURI:   req.SourceURI,
		Title:       title,
		ContentType: contentType,
		Content:     parsed.Text,
		ContentHash: s.fingerprint(parsed.Text),
		IngestedAt:  s.now().UTC(),
		Metadata:    maps.Clone(req.Metadata),
	}
	chunks := make([]store.Chunk, len(spans))
	for i, sp := range spans {
		chunks[i] = store.Chunk{
			ID:          store.ChunkID(id, sp.Ordinal),
			DocumentID:  id,
			Ordinal:     sp.Ordinal,
			Text:        sp.Text,
			StartOffset: sp.Start,
			EndOffset:   sp.End,
		}
	}

	unlock := s.locks.Lock(id)
	defer unlock()
	return s.commit(ctx, doc, chunks)
}

// fingerprint identifies content plus everything that shapes its chunks
// and vectors, so a config change forces a real re-ingest.
func (s *Service) fingerprint(text string) string {
	h := sha256.New()
	h.Write([]byte(s.embedder.ModelName()))
	h.Write([]byte{0})
	h.Write([]byte{byte(s.chunker.MaxTokens() >> 8), byte(s.chunker.MaxTokens()),
		byte(s.chunker.OverlapTokens() >> 8), byte(s.chunker.OverlapTokens())})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Service) commit(ctx context.Context, doc *store.Document, chunks []store.Chunk) (*Result, error) {
	id := doc.ID
	log := s.logger.With("document_id", id)

	prev, err := s.store.GetDocument(ctx, id)
	if err != nil && !ragerr.IsNotFound(err) {
		return nil, err
	}
	var prevChunks []store.Chunk
	if prev != nil {
		if prevChunks, err = s.store.ListChunks(ctx, id); err != nil {
			return nil, err
		}
		if s.unchanged(ctx, prev, doc) {
			log.Debug("document unchanged, skipping re-ingest")
			return &Result{DocumentID: id, Chunks: prev.ChunkCount, Unchanged: true}, nil
		}
	}

	if err := s.store.CreatePending(ctx, doc, chunks); err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		s.abort(ctx, id, nil, prevChunks)
		return nil, ragerr.With(err, ragerr.FieldDocumentID(id), ragerr.FieldOperation("embed"))
	}

	entries := make([]index.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = index.Entry{ChunkID: c.ID, DocumentID: id, Vector: vecs[i]}
	}
	newIDs := chunkIDs(chunks)
	if err := s.index.Upsert(ctx, entries...); err != nil {
		s.abort(ctx, id, newIDs, prevChunks)
		return nil, ragerr.With(err, ragerr.FieldDocumentID(id), ragerr.FieldOperation("index"))
	}

	stale := difference(chunkIDs(prevChunks), newIDs)
	if err := s.index.Remove(ctx, stale...); err != nil {
		s.abort(ctx, id, newIDs, prevChunks)
		return nil, ragerr.With(err, ragerr.FieldDocumentID(id), ragerr.FieldOperation("index"))
	}

	if err := s.store.Commit(ctx, id); err != nil {
		s.abort(ctx, id, newIDs, prevChunks)
		return nil, ragerr.With(err, ragerr.FieldDocumentID(id), ragerr.FieldOperation("commit"))
	}

	log.Info("document ingested", "chunks", len(chunks), "replaced", prev != nil)
	return &Result{DocumentID: id, Chunks: len(chunks), Replaced: prev != nil}, nil
}

// unchanged reports whether committing doc would be a no-op: same content
// fingerprint and descriptive fields, with every chunk present in the index.
func (s *Service) unchanged(ctx context.Context, prev, doc *store.Document) bool {
	if prev.ContentHash != doc.ContentHash || prev.Title != doc.Title || prev.SourceURI != doc.SourceURI ||
		prev.ContentType != doc.ContentType || !maps.Equal(prev.Metadata, doc.Metadata) {
		return false
	}
	indexed, err := s.index.ChunkIDs(ctx, prev.ID)
	return err == nil && len(indexed) == prev.ChunkCount
}

// abort undoes a failed attempt: entries written for the new version are
// removed, the previous version's entries are re-embedded, and the pending
// rows are discarded. Failures here are left for Reconcile.
func (s *Service) abort(ctx context.Context, id string, written []string, prevChunks []store.Chunk) {
	// Cleanup must run even when the caller's context is what failed.
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With("document_id", id)

	if orphans := difference(written, chunkIDs(prevChunks)); len(orphans) > 0 {
		if err := s.index.Remove(ctx, orphans...); err != nil {
			log.Warn("abort: removing index entries failed", "error", err)
			s.ReportInconsistent(orphans...)
		}
	}
	if len(written) > 0 && len(prevChunks) > 0 {
		if err := s.reindex(ctx, id, prevChunks); err != nil {
			log.Warn("abort: restoring previous version failed", "error", err)
			s.ReportInconsistent(chunkIDs(prevChunks)...)
		}
	}
	if err := s.store.Rollback(ctx, id); err != nil {
		log.Warn("abort: rollback failed", "error", err)
	}
}

// reindex embeds chunks and upserts them.
func (s *Service) reindex(ctx context.Context, id string, chunks []store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	entries := make([]index.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = index.Entry{ChunkID: c.ID, DocumentID: id, Vector: vecs[i]}
	}
	return s.index.Upsert(ctx, entries...)
}

// Delete removes a document from the index first, then from the metadata
// store, so a concurrent search never hydrates a chunk that is going away.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	chunks, err := s.store.ListChunks(ctx, id)
	if err != nil {
		return err
	}
	indexed, err := s.index.ChunkIDs(ctx, id)
	if err != nil {
		return err
	}
	ids := append(chunkIDs(chunks), indexed...)
	slices.Sort(ids)
	if err := s.index.Remove(ctx, slices.Compact(ids)...); err != nil {
		return ragerr.With(err, ragerr.FieldDocumentID(id), ragerr.FieldOperation("delete"))
	}
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return err
	}

	s.logger.Info("document deleted", "document_id", id, "chunks", len(chunks))
	return nil
}

func chunkIDs(chunks []store.Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids
}

// difference returns the elements of a absent from b.
func difference(a, b []string) []string {
	if len(a) == 0 {
		return nil
	}
	in := make(map[string]struct{}, len(b))
	for _, x := range b {
		in[x] = struct{}{}
	}
	var out []string
	for _, x := range a {
		if _, ok := in[x]; !ok {
			out = append(out, x)
		}
	}
	return out
}
