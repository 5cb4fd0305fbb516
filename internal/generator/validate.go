// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package generator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

var defaultValidateURLs = map[string]string{
	"anthropic": "https://api.anthropic.com/v1",
	"openai":    "https://api.openai.com/v1",
	"google":    "https://generativelanguage.googleapis.com/v1beta",
}

// ValidateKey lists the provider's models to confirm key is accepted.
// baseURL overrides the provider's public API root when set. A rejected
// key returns CodeGeneratorAuthDenied; any other failure returns
// CodeGeneratorKeyCheckFailure.
func ValidateKey(ctx context.Context, client *http.Client, provider, key, baseURL string) error {
	root, ok := defaultValidateURLs[provider]
	if !ok {
		return ragerr.New(ragerr.CodeGeneratorNotFound, "generator: unknown provider: "+provider,
			ragerr.FieldProvider(provider))
	}
	if baseURL != "" {
		root = baseURL
	}
	endpoint := strings.TrimRight(root, "/") + "/models"

	headers := map[string]string{}
	switch provider {
	case "anthropic":
		headers["x-api-key"] = key
		headers["anthropic-version"] = "2023-06-01"
	case "openai":
		headers["Authorization"] = "Bearer " + key
	case "google":
		// The Generative Language API takes the key as a query parameter.
		endpoint += "?key=" + url.QueryEscape(key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ragerr.Errorf(ragerr.CodeGeneratorKeyCheckFailure, "building validation request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		// The URL carries the google key; keep it out of the message.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return ragerr.Errorf(ragerr.CodeGeneratorKeyCheckFailure, "validating %s key: %w", provider, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		(provider == "google" && resp.StatusCode == http.StatusBadRequest):
		return ragerr.New(ragerr.CodeGeneratorAuthDenied, "invalid "+provider+" API key",
			ragerr.FieldProvider(provider), ragerr.Field("status", resp.StatusCode))
	case resp.StatusCode >= 400:
		return ragerr.New(ragerr.CodeGeneratorKeyCheckFailure, provider+" key validation failed",
			ragerr.FieldProvider(provider), ragerr.Field("status", resp.StatusCode))
	}
	return nil
}
