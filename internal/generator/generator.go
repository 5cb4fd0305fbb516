// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package generator is the boundary to external text generation models.
// Backends live in sub-packages and register themselves by name; callers
// open one through Open and talk to it through the Generator interface.
package generator

import (
	"context"
	"errors"
	"net/http"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

// Generator produces a completion for a single prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
	Close() error
}

// Request is a single-turn generation request.
type Request struct {
	Model        string
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float32
}

// Response is a completed generation.
type Response struct {
	Text         string
	FinishReason string
	Usage        Usage
}

// Usage tracks token consumption as reported by the backend.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Finish reasons normalized across backends.
const (
	FinishStop   = "stop"
	FinishLength = "length"
	FinishFilter = "content_filter"
	FinishOther  = "other"
)

// ErrorKind tells the caller whether retrying a failed call can help.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
)

// KindOf classifies err. Timeouts, throttling and upstream outages are
// transient; everything else, including authentication failures and
// rejected requests, is permanent.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case ragerr.IsTimeout(err), ragerr.IsRateLimited(err), ragerr.IsUnavailable(err), ragerr.IsUpstreamFailure(err):
		return KindTransient
	default:
		return KindPermanent
	}
}

// Validate rejects requests no backend could serve.
func (r Request) Validate() error {
	if r.Prompt == "" {
		return ragerr.New(ragerr.CodeGeneratorRequestInvalid, "generator: prompt is empty")
	}
	if r.MaxTokens < 0 {
		return ragerr.New(ragerr.CodeGeneratorRequestInvalid, "generator: max_tokens must not be negative",
			ragerr.Field("max_tokens", r.MaxTokens))
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return ragerr.New(ragerr.CodeGeneratorRequestInvalid, "generator: temperature must be in [0, 2]",
			ragerr.Field("temperature", r.Temperature))
	}
	return nil
}

// ClassifyStatus wraps a failed backend call according to its HTTP status.
// A zero status means the call never got a response.
func ClassifyStatus(backend string, status int, err error) error {
	fields := []ragerr.Attr{ragerr.FieldProvider(backend)}
	if status != 0 {
		fields = append(fields, ragerr.Field("status", status))
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return ragerr.Wrap(err, ragerr.CodeGeneratorTimeout, backend+": generation timed out", fields...)
	case errors.Is(err, context.Canceled):
		return err
	case status == http.StatusTooManyRequests:
		return ragerr.Wrap(err, ragerr.CodeGeneratorRateLimited, backend+": rate limited", fields...)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ragerr.Wrap(err, ragerr.CodeGeneratorAuthDenied, backend+": authentication failed", fields...)
	case status >= 400 && status < 500:
		return ragerr.Wrap(err, ragerr.CodeGeneratorRequestInvalid, backend+": request rejected", fields...)
	default:
		return ragerr.Wrap(err, ragerr.CodeGeneratorUpstreamFailure, backend+": generation failed", fields...)
	}
}
