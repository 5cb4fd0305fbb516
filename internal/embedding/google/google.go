// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package google embeds text with the Gemini embedding models.
package google

import (
	"context"
	"errors"
	"net/http"

	"github.com/sigil-dev/ragd/internal/embedding"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"google.golang.org/genai"
)

const DefaultModel = "text-embedding-004"

// Config holds Gemini embedding configuration.
type Config struct {
	APIKey     string
	Model      string
	Dimensions int
	BaseURL    string // optional, for tests against a mock server
}

// Embedder implements embedding.Embedder and embedding.QueryEmbedder using
// Models.EmbedContent. Documents and queries use the RETRIEVAL_DOCUMENT and
// RETRIEVAL_QUERY task types respectively.
type Embedder struct {
	client *genai.Client
	model  string
	dims   int
}

var (
	_ embedding.Embedder      = (*Embedder)(nil)
	_ embedding.QueryEmbedder = (*Embedder)(nil)
)

// New creates a Gemini embedder. Returns an error if the API key is missing.
func New(ctx context.Context, cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, ragerr.New(ragerr.CodeEmbeddingConfigInvalid, "google: missing api_key for embeddings",
			ragerr.FieldProvider("google"))
	}
	if cfg.Dimensions <= 0 {
		return nil, ragerr.New(ragerr.CodeEmbeddingConfigInvalid, "google: dimensions must be positive",
			ragerr.FieldProvider("google"))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeEmbeddingBackendUnavailable, "google: creating client")
	}

	return &Embedder{client: client, model: cfg.Model, dims: cfg.Dimensions}, nil
}

func (e *Embedder) Dimensions() int   { return e.dims }
func (e *Embedder) ModelName() string { return e.model }
func (e *Embedder) Close() error      { return nil }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := embedding.CheckInput(texts); err != nil {
		return nil, err
	}
	return e.embed(ctx, texts, "RETRIEVAL_DOCUMENT")
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := embedding.CheckInput([]string{text}); err != nil {
		return nil, err
	}
	vecs, err := e.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Embedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: genai.Ptr(int32(e.dims)),
	})
	if err != nil {
		return nil, classify(err)
	}

	vecs := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, ragerr.New(ragerr.CodeEmbeddingResponseInvalid, "google: empty embedding in response",
				ragerr.Field("index", i))
		}
		vecs[i] = emb.Values
	}
	if err := embedding.CheckOutput(vecs, len(texts), e.dims); err != nil {
		return nil, err
	}
	return vecs, nil
}

// classify maps a Gemini API failure onto the embedding error codes: 429 and
// 5xx are retryable, other 4xx are not.
func classify(err error) error {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code = apiErrPtr.Code
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ragerr.Wrap(err, ragerr.CodeEmbeddingBackendUnavailable, "google: embedding request timed out")
	case code == 0, code == http.StatusTooManyRequests, code >= 500:
		return ragerr.Wrap(err, ragerr.CodeEmbeddingBackendUnavailable, "google: embedding request failed",
			ragerr.Field("status", code))
	default:
		return ragerr.Wrap(err, ragerr.CodeEmbeddingResponseInvalid, "google: embedding request rejected",
			ragerr.Field("status", code))
	}
}
