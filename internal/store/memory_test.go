// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store_test

import (
	"context"
	"testing"

	"github.com/sigil-dev/ragd/internal/store"
	"github.com/sigil-dev/ragd/internal/store/storetest"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Conformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.MetadataStore { return store.NewMemory() })
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	doc, chunks := storetest.Document("d", testTime, "hello")
	require.NoError(t, s.CreatePending(ctx, doc, chunks))
	require.NoError(t, s.Commit(ctx, "d"))

	got, err := s.GetDocument(ctx, "d")
	require.NoError(t, err)
	got.Metadata["lang"] = "fr"

	again, err := s.GetDocument(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, "en", again.Metadata["lang"])
}

func TestOpen_MemoryBackend(t *testing.T) {
	s, err := store.Open(context.Background(), store.Options{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, s)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := store.Open(context.Background(), store.Options{Backend: "mongo"})
	require.Error(t, err)
	assert.True(t, ragerr.HasCode(err, ragerr.CodeStoreBackendUnsupported))
}
