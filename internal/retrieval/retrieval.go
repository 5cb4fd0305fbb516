// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package retrieval answers "which chunks are relevant to this query": it
// embeds the query, searches the vector index and hydrates the hits with
// chunk text from the metadata store.
package retrieval

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/sigil-dev/ragd/internal/embedding"
	"github.com/sigil-dev/ragd/internal/index"
	"github.com/sigil-dev/ragd/internal/store"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

const (
	DefaultTopK     = 5
	DefaultMinScore = 0.1

	// MaxTopK bounds a single request.
	MaxTopK = 100
)

// Hit is a retrieved chunk with its similarity to the query.
type Hit struct {
	ChunkID     string  `json:"chunk_id"`
	DocumentID  string  `json:"document_id"`
	Ordinal     int     `json:"ordinal"`
	Text        string  `json:"text"`
	StartOffset int     `json:"start_offset"`
	EndOffset   int     `json:"end_offset"`
	Score       float32 `json:"score"`
}

// InconsistencyReporter receives chunk ids found in the index without
// committed metadata. Busy reports documents with a write in progress;
// their uncommitted entries are expected and not reported. ingest.Service
// implements it.
type InconsistencyReporter interface {
	ReportInconsistent(chunkIDs ...string)
	Busy(documentID string) bool
}

// maxRefetch bounds the extra searches made when hits are dropped at
// hydration.
const maxRefetch = 2

// Config tunes retrieval.
type Config struct {
	TopK     int
	MinScore float32
}

// Retriever runs similarity search over the committed corpus.
type Retriever struct {
	embedder embedding.Embedder
	index    index.Index
	store    store.MetadataStore
	reporter InconsistencyReporter
	logger   *slog.Logger
	cfg      Config
}

// Option customizes a Retriever.
type Option func(*Retriever)

// WithReporter hands inconsistent chunk ids to r.
func WithReporter(r InconsistencyReporter) Option {
	return func(rt *Retriever) { rt.reporter = r }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(rt *Retriever) { rt.logger = l }
}

// New returns a Retriever. A zero TopK falls back to DefaultTopK.
func New(e embedding.Embedder, idx index.Index, st store.MetadataStore, cfg Config, opts ...Option) (*Retriever, error) {
	if e == nil || idx == nil || st == nil {
		return nil, ragerr.New(ragerr.CodeServerConfigInvalid, "retrieval: embedder, index and store are required")
	}
	if e.Dimensions() != idx.Dimensions() {
		return nil, ragerr.New(ragerr.CodeIndexDimensionMismatch, "retrieval: embedder and index dimensions differ",
			ragerr.Field("embedder", e.Dimensions()), ragerr.Field("index", idx.Dimensions()))
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MinScore < -1 || cfg.MinScore > 1 {
		return nil, ragerr.New(ragerr.CodeConfigValidateInvalidValue, "retrieval: min_score must be in [-1, 1]",
			ragerr.Field("min_score", cfg.MinScore))
	}

	r := &Retriever{embedder: e, index: idx, store: st, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Retrieve returns up to k hits scoring at least the configured min_score,
// best first. k == 0 uses the configured top_k. An empty result is not an
// error: it means nothing relevant was found.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, filter *index.Filter) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ragerr.New(ragerr.CodeRetrievalQueryInvalid, "retrieval: query is empty")
	}
	if k == 0 {
		k = r.cfg.TopK
	}
	if k < 0 || k > MaxTopK {
		return nil, ragerr.New(ragerr.CodeRetrievalQueryInvalid, "retrieval: k out of range",
			ragerr.Field("k", k), ragerr.Field("max", MaxTopK))
	}

	vec, err := embedding.EmbedQuery(ctx, r.embedder, query)
	if err != nil {
		return nil, ragerr.With(err, ragerr.FieldOperation("embed_query"))
	}
	// Entries dropped at hydration free their slots, so search deeper
	// while the index still has candidates above min_score.
	fetch := k
	for round := 0; ; round++ {
		results, err := r.index.Search(ctx, vec, fetch, filter)
		if err != nil {
			return nil, ragerr.With(err, ragerr.FieldOperation("search"))
		}
		hits, missing, exhausted, err := r.hydrate(ctx, results)
		if err != nil {
			return nil, err
		}
		if len(hits) >= k || len(missing) == 0 || exhausted || len(results) < fetch || round == maxRefetch {
			r.inconsistent(missing)
			if len(hits) > k {
				hits = hits[:k]
			}
			if len(hits) == 0 {
				return nil, nil
			}
			return hits, nil
		}
		fetch += len(missing)
	}
}

// hydrate resolves results to committed chunks. exhausted reports that
// results reached scores below min_score, so a deeper search finds nothing
// new.
func (r *Retriever) hydrate(ctx context.Context, results []index.Result) (hits []Hit, missing []string, exhausted bool, err error) {
	kept := make([]index.Result, 0, len(results))
	for _, res := range results {
		if res.Score < r.cfg.MinScore {
			exhausted = true
			break
		}
		kept = append(kept, res)
	}
	if len(kept) == 0 {
		return nil, nil, exhausted, nil
	}

	ids := make([]string, len(kept))
	for i, res := range kept {
		ids[i] = res.ChunkID
	}
	chunks, err := r.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, nil, false, ragerr.With(err, ragerr.FieldOperation("hydrate"))
	}
	byID := make(map[string]store.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	hits = make([]Hit, 0, len(kept))
	for _, res := range kept {
		c, ok := byID[res.ChunkID]
		if !ok {
			missing = append(missing, res.ChunkID)
			continue
		}
		hits = append(hits, Hit{
			ChunkID:     c.ID,
			DocumentID:  c.DocumentID,
			Ordinal:     c.Ordinal,
			Text:        c.Text,
			StartOffset: c.StartOffset,
			EndOffset:   c.EndOffset,
			Score:       res.Score,
		})
	}
	return hits, missing, exhausted, nil
}

// inconsistent logs index entries with no committed chunk and hands them to
// the reconciler. Entries of documents being written are skipped. The
// request itself still succeeds.
func (r *Retriever) inconsistent(chunkIDs []string) {
	if r.reporter != nil {
		chunkIDs = slices.DeleteFunc(chunkIDs, func(id string) bool {
			return r.reporter.Busy(store.DocumentIDOf(id))
		})
	}
	if len(chunkIDs) == 0 {
		return
	}
	err := ragerr.New(ragerr.CodeStoreConsistencyBroken, "index entry has no committed chunk",
		ragerr.FieldOperation("retrieve"), ragerr.Field("chunk_ids", chunkIDs))
	r.logger.Warn("dropping hits without metadata", "count", len(chunkIDs), "error", err)
	if r.reporter != nil {
		r.reporter.ReportInconsistent(chunkIDs...)
	}
}

// MinScore returns the configured threshold.
func (r *Retriever) MinScore() float32 { return r.cfg.MinScore }

// TopK returns the configured default k.
func (r *Retriever) TopK() int { return r.cfg.TopK }
