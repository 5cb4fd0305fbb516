// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package index

import (
	"context"
	"math"
	"slices"
	"strings"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

// Metric is the similarity function an index ranks by. It is fixed for the
// lifetime of an index; changing it requires a rebuild.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricDot    Metric = "dot"
)

// ParseMetric validates a configured metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case MetricCosine, MetricDot:
		return m, nil
	case "":
		return MetricCosine, nil
	default:
		return "", ragerr.New(ragerr.CodeIndexMetricMismatch, "unknown similarity metric",
			ragerr.Field("metric", s))
	}
}

// Entry is the searchable copy of a chunk. Chunk text lives in the
// metadata store only.
type Entry struct {
	ChunkID    string
	DocumentID string
	Vector     []float32
}

// Result is a single search hit. Score is a similarity in [-1, 1] for
// cosine; higher is closer.
type Result struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Score      float32 `json:"score"`
}

// Filter restricts a search. A nil filter or empty DocumentIDs matches all.
type Filter struct {
	DocumentIDs []string
}

func (f *Filter) matches(documentID string) bool {
	if f == nil || len(f.DocumentIDs) == 0 {
		return true
	}
	return slices.Contains(f.DocumentIDs, documentID)
}

// Index stores one vector per chunk and answers nearest-neighbour queries.
//
// Upsert is idempotent per chunk id. Remove ignores ids that are absent.
// Search fails with a dimension mismatch when len(query) != Dimensions().
// Implementations must be safe for concurrent use.
type Index interface {
	Upsert(ctx context.Context, entries ...Entry) error
	Remove(ctx context.Context, chunkIDs ...string) error
	Search(ctx context.Context, query []float32, k int, filter *Filter) ([]Result, error)
	ChunkIDs(ctx context.Context, documentID string) ([]string, error)
	All(ctx context.Context) ([]string, error)
	Len(ctx context.Context) (int, error)
	Dimensions() int
	Metric() Metric
	Close() error
}

// CheckQuery validates search arguments shared by every backend.
func CheckQuery(query []float32, k, dims int) error {
	if k <= 0 {
		return ragerr.New(ragerr.CodeIndexQueryInvalid, "k must be positive",
			ragerr.Field("k", k), ragerr.FieldOperation("search"))
	}
	return CheckDimensions(query, dims)
}

// CheckDimensions fails with a dimension mismatch when vec has the wrong length.
func CheckDimensions(vec []float32, dims int) error {
	if len(vec) != dims {
		return ragerr.New(ragerr.CodeIndexDimensionMismatch, "vector dimension mismatch",
			ragerr.Field("expected", dims), ragerr.Field("actual", len(vec)))
	}
	return nil
}

// CheckEntries validates a batch before it is written.
func CheckEntries(entries []Entry, dims int) error {
	for _, e := range entries {
		if e.ChunkID == "" {
			return ragerr.New(ragerr.CodeIndexQueryInvalid, "entry has no chunk id",
				ragerr.FieldDocumentID(e.DocumentID), ragerr.FieldOperation("upsert"))
		}
		if err := CheckDimensions(e.Vector, dims); err != nil {
			return ragerr.With(err, ragerr.FieldChunkID(e.ChunkID), ragerr.FieldOperation("upsert"))
		}
	}
	return nil
}

// Score computes the similarity of a and b under m. Zero vectors score 0
// under cosine.
func Score(m Metric, a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if m == MetricDot {
		return float32(dot)
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// SortResults orders by descending score, ties broken by ascending chunk id.
func SortResults(results []Result) {
	slices.SortFunc(results, func(a, b Result) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(a.ChunkID, b.ChunkID)
		}
	})
}
