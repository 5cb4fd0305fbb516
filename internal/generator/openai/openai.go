// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package openai generates answers through the Chat Completions API, or any
// server compatible with it (vLLM, Ollama, OpenRouter).
package openai

import (
	"context"
	"errors"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"github.com/sigil-dev/ragd/internal/generator"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

const DefaultModel = "gpt-4.1-mini"

func init() {
	generator.Register("openai", func(_ context.Context, cfg generator.Config) (generator.Generator, error) {
		return New(Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	})
}

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string // optional, useful for testing against a mock server
}

// Generator implements generator.Generator using the OpenAI Chat Completions API.
type Generator struct {
	client openaisdk.Client
	model  string
}

var _ generator.Generator = (*Generator)(nil)

// New creates a new OpenAI generator. Returns an error if the API key is missing.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, ragerr.New(ragerr.CodeGeneratorRequestInvalid, "openai: missing api_key in config",
			ragerr.FieldProvider("openai"))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are owned by the answer composer.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Generator{client: openaisdk.NewClient(opts...), model: cfg.Model}, nil
}

func (g *Generator) Name() string { return "openai" }

func (g *Generator) Close() error { return nil }

func (g *Generator) Generate(ctx context.Context, req generator.Request) (*generator.Response, error) {
	completion, err := g.client.Chat.Completions.New(ctx, g.buildParams(req))
	if err != nil {
		return nil, classify(err)
	}
	if len(completion.Choices) == 0 {
		return nil, ragerr.New(ragerr.CodeGeneratorResponseInvalid, "openai: response has no choices",
			ragerr.FieldProvider("openai"))
	}

	choice := completion.Choices[0]
	return &generator.Response{
		Text:         choice.Message.Content,
		FinishReason: finishReason(choice.FinishReason),
		Usage: generator.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

// buildParams converts a generator.Request into ChatCompletionNewParams.
// The system prompt is sent as a leading system message.
func (g *Generator) buildParams(req generator.Request) openaisdk.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = g.model
	}

	var msgs []openaisdk.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		msgs = append(msgs, openaisdk.SystemMessage(req.SystemPrompt))
	}
	msgs = append(msgs, openaisdk.UserMessage(req.Prompt))

	params := openaisdk.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    msgs,
		Temperature: param.NewOpt(float64(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params
}

func finishReason(r string) string {
	switch r {
	case "stop", "":
		return generator.FinishStop
	case "length":
		return generator.FinishLength
	case "content_filter":
		return generator.FinishFilter
	default:
		return generator.FinishOther
	}
}

func classify(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		return generator.ClassifyStatus("openai", apiErr.StatusCode, err)
	}
	return generator.ClassifyStatus("openai", 0, err)
}
