// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package google generates answers with the Gemini models.
package google

import (
	"context"
	"errors"
	"strings"

	"github.com/sigil-dev/ragd/internal/generator"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

func init() {
	generator.Register("google", func(ctx context.Context, cfg generator.Config) (generator.Generator, error) {
		return New(ctx, Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	})
}

// Config holds Google provider configuration.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string // optional, useful for testing against a mock server
}

// Generator implements generator.Generator using Models.GenerateContent.
type Generator struct {
	client *genai.Client
	model  string
}

var _ generator.Generator = (*Generator)(nil)

// New creates a Gemini generator. Returns an error if the API key is missing.
func New(ctx context.Context, cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, ragerr.New(ragerr.CodeGeneratorRequestInvalid, "google: missing api_key in config",
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
		return nil, ragerr.Wrapf(err, ragerr.CodeGeneratorUpstreamFailure, "google: creating client")
	}
	return &Generator{client: client, model: cfg.Model}, nil
}

func (g *Generator) Name() string { return "google" }

func (g *Generator) Close() error { return nil }

func (g *Generator) Generate(ctx context.Context, req generator.Request) (*generator.Response, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}

	resp, err := g.client.Models.GenerateContent(ctx, model,
		genai.Text(req.Prompt), buildConfig(req))
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Candidates) == 0 {
		return nil, ragerr.New(ragerr.CodeGeneratorResponseInvalid, "google: response has no candidates",
			ragerr.FieldProvider("google"))
	}

	out := &generator.Response{
		Text:         resp.Text(),
		FinishReason: finishReason(resp.Candidates[0].FinishReason),
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = generator.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
		}
	}
	return out, nil
}

// buildConfig converts a generator.Request into a genai.GenerateContentConfig.
func buildConfig(req generator.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	return cfg
}

func finishReason(r genai.FinishReason) string {
	switch r {
	case genai.FinishReasonStop:
		return generator.FinishStop
	case genai.FinishReasonMaxTokens:
		return generator.FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent, genai.FinishReasonSPII:
		return generator.FinishFilter
	case "":
		return generator.FinishStop
	default:
		return strings.ToLower(string(r))
	}
}

func classify(err error) error {
	status := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.Code
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		status = apiErrPtr.Code
	}
	return generator.ClassifyStatus("google", status, err)
}
