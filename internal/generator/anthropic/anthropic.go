// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package anthropic generates answers with Claude models through the
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sigil-dev/ragd/internal/generator"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

const (
	DefaultModel = "claude-sonnet-4-5"

	// defaultMaxTokens is used when the request leaves MaxTokens unset; the
	// Messages API requires one.
	defaultMaxTokens = 1024
)

func init() {
	generator.Register("anthropic", func(_ context.Context, cfg generator.Config) (generator.Generator, error) {
		return New(Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	})
}

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string // optional, useful for testing against a mock server
}

// Generator implements generator.Generator using the Anthropic Messages API.
type Generator struct {
	client anthropicsdk.Client
	model  string
}

var _ generator.Generator = (*Generator)(nil)

// New creates a new Anthropic generator. Returns an error if the API key is missing.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, ragerr.New(ragerr.CodeGeneratorRequestInvalid, "anthropic: missing api_key in config",
			ragerr.FieldProvider("anthropic"))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Generator{client: anthropicsdk.NewClient(opts...), model: cfg.Model}, nil
}

func (g *Generator) Name() string { return "anthropic" }

func (g *Generator) Close() error { return nil }

func (g *Generator) Generate(ctx context.Context, req generator.Request) (*generator.Response, error) {
	msg, err := g.client.Messages.New(ctx, g.buildParams(req))
	if err != nil {
		return nil, classify(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &generator.Response{
		Text:         text.String(),
		FinishReason: finishReason(string(msg.StopReason)),
		Usage: generator.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// buildParams converts a generator.Request into Anthropic SDK MessageNewParams.
func (g *Generator) buildParams(req generator.Request) anthropicsdk.MessageNewParams {
	model := req.Model
	if model == "" {
		model = g.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropicsdk.Float(float64(req.Temperature)),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	return params
}

func finishReason(r string) string {
	switch r {
	case "end_turn", "stop_sequence", "":
		return generator.FinishStop
	case "max_tokens":
		return generator.FinishLength
	case "refusal":
		return generator.FinishFilter
	default:
		return generator.FinishOther
	}
}

func classify(err error) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return generator.ClassifyStatus("anthropic", apiErr.StatusCode, err)
	}
	return generator.ClassifyStatus("anthropic", 0, err)
}
