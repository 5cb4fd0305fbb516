// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sigil-dev/ragd/internal/embedding/openai"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embeddingsServer answers /embeddings with vectors whose first component is
// the input length, in reverse index order to exercise re-sorting.
func embeddingsServer(t *testing.T, dims int, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float64, dims)
			vec[0] = float64(len(req.Input[i]))
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": vec})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "all-minilm",
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestNew_Validation(t *testing.T) {
	_, err := openai.New(openai.Config{Dimensions: 8})
	assert.True(t, ragerr.HasCode(err, ragerr.CodeEmbeddingConfigInvalid))

	_, err = openai.New(openai.Config{APIKey: "k"})
	assert.True(t, ragerr.HasCode(err, ragerr.CodeEmbeddingConfigInvalid))

	e, err := openai.New(openai.Config{BaseURL: "http://localhost:1", Dimensions: 8, Model: "all-minilm"})
	require.NoError(t, err)
	assert.Equal(t, "all-minilm", e.ModelName())
	assert.Equal(t, 8, e.Dimensions())
}

func TestEmbed_RoundTripKeepsOrder(t *testing.T) {
	srv := embeddingsServer(t, 4, http.StatusOK)
	defer srv.Close()

	e, err := openai.New(openai.Config{BaseURL: srv.URL, Model: "all-minilm", Dimensions: 4})
	require.NoError(t, err)

	vecs, err := e.Embed(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(3), vecs[1][0])
	assert.Equal(t, float32(2), vecs[2][0])
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	srv := embeddingsServer(t, 3, http.StatusOK)
	defer srv.Close()

	e, err := openai.New(openai.Config{BaseURL: srv.URL, Model: "all-minilm", Dimensions: 4})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, ragerr.IsDimensionMismatch(err))
}

func TestEmbed_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad request", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := embeddingsServer(t, 4, tt.status)
			defer srv.Close()

			e, err := openai.New(openai.Config{BaseURL: srv.URL, Model: "all-minilm", Dimensions: 4})
			require.NoError(t, err)

			_, err = e.Embed(context.Background(), []string{"a"})
			require.Error(t, err)
			assert.Equal(t, tt.retryable, ragerr.IsUnavailable(err))
		})
	}
}

func TestEmbed_EmptyInput(t *testing.T) {
	e, err := openai.New(openai.Config{BaseURL: "http://localhost:1", Dimensions: 4})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), nil)
	assert.True(t, ragerr.HasCode(err, ragerr.CodeEmbeddingInputEmpty))
}
