// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package openai embeds text through any OpenAI-compatible embeddings
// endpoint: the OpenAI API itself, or a local server (TEI, vLLM, Ollama)
// hosting a sentence-transformers model.
package openai

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/sigil-dev/ragd/internal/embedding"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

const DefaultModel = "text-embedding-3-small"

// Config holds OpenAI-compatible embedding configuration.
type Config struct {
	APIKey     string
	Model      string
	Dimensions int
	BaseURL    string // optional, points at a self-hosted server
}

// Embedder implements embedding.Embedder using the Embeddings API.
type Embedder struct {
	client openaisdk.Client
	model  string
	dims   int
}

var _ embedding.Embedder = (*Embedder)(nil)

// New creates an embedder. An API key is required only for the hosted API;
// self-hosted servers reached through BaseURL usually accept any key.
func New(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, ragerr.New(ragerr.CodeEmbeddingConfigInvalid, "openai: missing api_key for embeddings",
			ragerr.FieldProvider("openai"))
	}
	if cfg.Dimensions <= 0 {
		return nil, ragerr.New(ragerr.CodeEmbeddingConfigInvalid, "openai: dimensions must be positive",
			ragerr.FieldProvider("openai"))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "unused"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries are owned by embedding.Batcher.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Embedder{
		client: openaisdk.NewClient(opts...),
		model:  cfg.Model,
		dims:   cfg.Dimensions,
	}, nil
}

func (e *Embedder) Dimensions() int   { return e.dims }
func (e *Embedder) ModelName() string { return e.model }
func (e *Embedder) Close() error      { return nil }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := embedding.CheckInput(texts); err != nil {
		return nil, err
	}

	params := openaisdk.EmbeddingNewParams{
		Input:          openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openaisdk.EmbeddingModel(e.model),
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	}
	// Only the text-embedding-3 family accepts a reduced output size.
	if strings.HasPrefix(e.model, "text-embedding-3") {
		params.Dimensions = param.NewOpt(int64(e.dims))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vecs := make([][]float32, len(data))
	for i, d := range data {
		v := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float32(x)
		}
		vecs[i] = v
	}
	if err := embedding.CheckOutput(vecs, len(texts), e.dims); err != nil {
		return nil, err
	}
	return vecs, nil
}

func classify(err error) error {
	var apiErr *openaisdk.Error
	if !errors.As(err, &apiErr) {
		return ragerr.Wrap(err, ragerr.CodeEmbeddingBackendUnavailable, "openai: embedding request failed")
	}

	status := apiErr.StatusCode
	if status == http.StatusTooManyRequests || status >= 500 || status == http.StatusRequestTimeout {
		return ragerr.Wrap(err, ragerr.CodeEmbeddingBackendUnavailable, "openai: embedding request failed",
			ragerr.Field("status", status))
	}
	return ragerr.Wrap(err, ragerr.CodeEmbeddingResponseInvalid, "openai: embedding request rejected",
		ragerr.Field("status", status))
}
