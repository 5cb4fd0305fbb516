// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/sigil-dev/ragd/internal/index"
	"github.com/sigil-dev/ragd/internal/index/sqlite"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name+".db")
}

func openIndex(t *testing.T, dims int, metric index.Metric) *sqlite.Index {
	t.Helper()
	ix, err := sqlite.Open(testDBPath(t, "index"), dims, metric)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func TestIndex_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	ix := openIndex(t, 3, index.MetricCosine)

	require.NoError(t, ix.Upsert(ctx,
		index.Entry{ChunkID: "d1#0", DocumentID: "d1", Vector: []float32{1, 0, 0}},
		index.Entry{ChunkID: "d1#1", DocumentID: "d1", Vector: []float32{0, 1, 0}},
		index.Entry{ChunkID: "d2#0", DocumentID: "d2", Vector: []float32{0.9, 0.1, 0}},
	))

	results, err := ix.Search(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "d1#0", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.Equal(t, "d2#0", results[1].ChunkID)
}

func TestIndex_AgreesWithFlat(t *testing.T) {
	ctx := context.Background()
	for _, metric := range []index.Metric{index.MetricCosine, index.MetricDot} {
		t.Run(string(metric), func(t *testing.T) {
			ix := openIndex(t, 2, metric)
			flat := index.NewFlat(2, metric)
			entries := []index.Entry{
				{ChunkID: "a", DocumentID: "x", Vector: []float32{1, 2}},
				{ChunkID: "b", DocumentID: "x", Vector: []float32{-1, 0.5}},
				{ChunkID: "c", DocumentID: "y", Vector: []float32{3, -1}},
				{ChunkID: "d", DocumentID: "y", Vector: []float32{0.2, 0.2}},
			}
			require.NoError(t, ix.Upsert(ctx, entries...))
			require.NoError(t, flat.Upsert(ctx, entries...))

			q := []float32{0.5, 1}
			got, err := ix.Search(ctx, q, 4, nil)
			require.NoError(t, err)
			want, err := flat.Search(ctx, q, 4, nil)
			require.NoError(t, err)

			require.Len(t, got, len(want))
			for i := range want {
				assert.Equal(t, want[i].ChunkID, got[i].ChunkID)
				assert.InDelta(t, want[i].Score, got[i].Score, 1e-4)
			}
		})
	}
}

func TestIndex_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	ix := openIndex(t, 2, index.MetricCosine)

	require.NoError(t, ix.Upsert(ctx, index.Entry{ChunkID: "c", DocumentID: "d", Vector: []float32{1, 0}}))
	require.NoError(t, ix.Upsert(ctx, index.Entry{ChunkID: "c", DocumentID: "d", Vector: []float32{0, 1}}))

	n, err := ix.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := ix.Search(ctx, []float32{0, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestIndex_RemoveAndFilter(t *testing.T) {
	ctx := context.Background()
	ix := openIndex(t, 2, index.MetricCosine)
	require.NoError(t, ix.Upsert(ctx,
		index.Entry{ChunkID: "a#0", DocumentID: "a", Vector: []float32{1, 0}},
		index.Entry{ChunkID: "b#0", DocumentID: "b", Vector: []float32{1, 0}},
		index.Entry{ChunkID: "b#1", DocumentID: "b", Vector: []float32{0, 1}},
	))

	results, err := ix.Search(ctx, []float32{1, 0}, 10, &index.Filter{DocumentIDs: []string{"b"}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b#0", results[0].ChunkID)

	require.NoError(t, ix.Remove(ctx, "b#0", "absent"))
	ids, err := ix.ChunkIDs(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b#1"}, ids)

	all, err := ix.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a#0", "b#1"}, all)
}

func TestIndex_RemoveBeyondVariableLimit(t *testing.T) {
	ctx := context.Background()
	ix := openIndex(t, 2, index.MetricCosine)

	const n = 40000
	entries := make([]index.Entry, n)
	ids := make([]string, n)
	for i := range entries {
		ids[i] = fmt.Sprintf("big#%d", i)
		entries[i] = index.Entry{ChunkID: ids[i], DocumentID: "big", Vector: []float32{1, float32(i % 7)}}
	}
	require.NoError(t, ix.Upsert(ctx, entries...))
	require.NoError(t, ix.Upsert(ctx, index.Entry{ChunkID: "keep#0", DocumentID: "keep", Vector: []float32{0, 1}}))

	require.NoError(t, ix.Remove(ctx, ids...))

	remaining, err := ix.ChunkIDs(ctx, "big")
	require.NoError(t, err)
	assert.Empty(t, remaining)
	total, err := ix.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestIndex_ZeroVector(t *testing.T) {
	ctx := context.Background()
	ix := openIndex(t, 2, index.MetricCosine)
	require.NoError(t, ix.Upsert(ctx, index.Entry{ChunkID: "z", DocumentID: "d", Vector: []float32{0, 0}}))

	results, err := ix.Search(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, results[0].Score)
}

func TestIndex_DimensionMismatch(t *testing.T) {
	ix := openIndex(t, 3, index.MetricCosine)
	_, err := ix.Search(context.Background(), []float32{1, 0}, 1, nil)
	require.Error(t, err)
	assert.True(t, ragerr.IsDimensionMismatch(err))
}

func TestOpen_RefusesDifferentMetric(t *testing.T) {
	path := testDBPath(t, "meta")
	ix, err := sqlite.Open(path, 4, index.MetricCosine)
	require.NoError(t, err)
	require.NoError(t, ix.Close())

	_, err = sqlite.Open(path, 4, index.MetricDot)
	require.Error(t, err)
	assert.True(t, ragerr.HasCode(err, ragerr.CodeIndexMetricMismatch))

	_, err = sqlite.Open(path, 8, index.MetricCosine)
	require.Error(t, err)
	assert.True(t, ragerr.IsDimensionMismatch(err))

	ix, err = sqlite.Open(path, 4, index.MetricCosine)
	require.NoError(t, err)
	require.NoError(t, ix.Close())
}

func TestRegisteredBackend(t *testing.T) {
	ix, err := index.Open(context.Background(), index.Options{
		Backend:    "sqlite",
		DataDir:    filepath.Join(t.TempDir(), "nested"),
		Dimensions: 2,
	})
	require.NoError(t, err)
	defer func() { _ = ix.Close() }()
	assert.Equal(t, index.MetricCosine, ix.Metric())
}
