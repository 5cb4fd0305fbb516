// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package embedding defines the Embedder port and the Batcher that adds
// batching, bounded concurrency, throttling and retries to any backend.
package embedding

import (
	"context"
	"strings"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

// Embedder maps texts to fixed-dimension vectors. Output has the same length
// and order as input; every vector has exactly Dimensions() components.
// A given backend and model is deterministic for the same input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Close() error
}

// QueryEmbedder is implemented by backends that embed search queries
// differently from documents (asymmetric retrieval models).
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbedQuery embeds a single search query, preferring the backend's query
// mode when it has one.
func EmbedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ragerr.New(ragerr.CodeEmbeddingInputEmpty, "embedding: query text is empty")
	}
	var vecs [][]float32
	if q, ok := e.(QueryEmbedder); ok {
		vec, err := q.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs = [][]float32{vec}
	} else {
		var err error
		if vecs, err = e.Embed(ctx, []string{text}); err != nil {
			return nil, err
		}
	}
	if err := CheckOutput(vecs, 1, e.Dimensions()); err != nil {
		return nil, ragerr.With(err, ragerr.FieldOperation("embed_query"))
	}
	return vecs[0], nil
}

// CheckInput rejects an empty batch or a blank element. Embedding nothing is
// always a caller bug, so it is reported rather than answered with nil.
func CheckInput(texts []string) error {
	if len(texts) == 0 {
		return ragerr.New(ragerr.CodeEmbeddingInputEmpty, "embedding: no texts to embed")
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return ragerr.New(ragerr.CodeEmbeddingInputEmpty, "embedding: text is blank", ragerr.Field("index", i))
		}
	}
	return nil
}

// CheckOutput verifies a backend response against the request.
func CheckOutput(vecs [][]float32, want, dims int) error {
	if len(vecs) != want {
		return ragerr.New(ragerr.CodeEmbeddingResponseInvalid, "embedding: backend returned wrong number of vectors",
			ragerr.Field("want", want), ragerr.Field("got", len(vecs)))
	}
	for i, v := range vecs {
		if len(v) != dims {
			return ragerr.New(ragerr.CodeEmbeddingDimensionMismatch, "embedding: vector has wrong dimension",
				ragerr.Field("index", i), ragerr.Field("want", dims), ragerr.Field("got", len(v)))
		}
	}
	return nil
}
