// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package hashing is a local, dependency-free embedding backend based on the
// signed feature-hashing trick over word unigrams and bigrams. It needs no
// network and is bit-for-bit deterministic, which makes it the default for
// development and tests.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/sigil-dev/ragd/internal/chunker"
	"github.com/sigil-dev/ragd/internal/embedding"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

const (
	DefaultDimensions = 384
	ModelName         = "hashing-v1"

	bigramWeight = 0.5
)

// Embedder implements embedding.Embedder without a remote model.
type Embedder struct {
	dims int
}

var _ embedding.Embedder = (*Embedder)(nil)

// New returns an Embedder producing vectors of the given dimension.
func New(dims int) (*Embedder, error) {
	if dims <= 0 {
		return nil, ragerr.New(ragerr.CodeEmbeddingConfigInvalid, "hashing: dimensions must be positive",
			ragerr.Field("dimensions", dims))
	}
	return &Embedder{dims: dims}, nil
}

func (e *Embedder) Dimensions() int   { return e.dims }
func (e *Embedder) ModelName() string { return ModelName }
func (e *Embedder) Close() error      { return nil }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := embedding.CheckInput(texts); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, ragerr.Wrap(err, ragerr.CodeEmbeddingBackendUnavailable, "hashing: embedding cancelled")
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float32 {
	acc := make([]float64, e.dims)

	var prev string
	for _, tok := range chunker.Tokenize(text) {
		word := strings.ToLower(text[tok.Start:tok.End])
		e.add(acc, word, 1)
		if prev != "" {
			e.add(acc, prev+" "+word, bigramWeight)
		}
		prev = word
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	vec := make([]float32, e.dims)
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

// add hashes feature into one bucket; the top hash bit picks the sign so
// collisions cancel out on average instead of accumulating.
func (e *Embedder) add(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(e.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[idx] += weight
}
