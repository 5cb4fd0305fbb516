// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package index

import (
	"context"
	"math"
	"slices"
	"sync"
)

var _ Index = (*Flat)(nil)

type flatEntry struct {
	documentID string
	vector     []float32
	norm       float64
}

// Flat is an exact in-memory index: every search scans all entries.
type Flat struct {
	mu      sync.RWMutex
	dims    int
	metric  Metric
	entries map[string]flatEntry
}

// NewFlat creates an empty in-memory index.
func NewFlat(dims int, metric Metric) *Flat {
	if metric == "" {
		metric = MetricCosine
	}
	return &Flat{
		dims:    dims,
		metric:  metric,
		entries: make(map[string]flatEntry),
	}
}

func (f *Flat) Upsert(_ context.Context, entries ...Entry) error {
	if err := CheckEntries(entries, f.dims); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		vec := slices.Clone(e.Vector)
		f.entries[e.ChunkID] = flatEntry{documentID: e.DocumentID, vector: vec, norm: norm(vec)}
	}
	return nil
}

func (f *Flat) Remove(_ context.Context, chunkIDs ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range chunkIDs {
		delete(f.entries, id)
	}
	return nil
}

func (f *Flat) Search(ctx context.Context, query []float32, k int, filter *Filter) ([]Result, error) {
	if err := CheckQuery(query, k, f.dims); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qn := norm(query)

	f.mu.RLock()
	results := make([]Result, 0, len(f.entries))
	for id, e := range f.entries {
		if !filter.matches(e.documentID) {
			continue
		}
		results = append(results, Result{ChunkID: id, DocumentID: e.documentID, Score: f.score(query, qn, e)})
	}
	f.mu.RUnlock()

	SortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (f *Flat) score(q []float32, qn float64, e flatEntry) float32 {
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(e.vector[i])
	}
	if f.metric == MetricDot {
		return float32(dot)
	}
	if qn == 0 || e.norm == 0 {
		return 0
	}
	return float32(dot / (qn * e.norm))
}

func (f *Flat) ChunkIDs(_ context.Context, documentID string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var ids []string
	for id, e := range f.entries {
		if e.documentID == documentID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (f *Flat) All(_ context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.entries))
	for id := range f.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (f *Flat) Len(_ context.Context) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries), nil
}

func (f *Flat) Dimensions() int { return f.dims }

func (f *Flat) Metric() Metric { return f.metric }

func (f *Flat) Close() error { return nil }

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}
