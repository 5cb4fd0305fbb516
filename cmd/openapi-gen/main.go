// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sigil-dev/ragd/internal/answer"
	"github.com/sigil-dev/ragd/internal/index"
	"github.com/sigil-dev/ragd/internal/ingest"
	"github.com/sigil-dev/ragd/internal/retrieval"
	"github.com/sigil-dev/ragd/internal/server"
	"github.com/sigil-dev/ragd/internal/store"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI spec that huma generates from the Go type annotations.
func generateSpec() ([]byte, error) {
	// Handlers are never invoked during spec generation; in-memory storage
	// and no-op services are enough to register every route.
	svc, err := server.NewServices(stubDocuments{}, store.NewMemory(), index.NewFlat(1, index.MetricCosine),
		stubRetriever{}, stubAnswers{}, nil)
	if err != nil {
		return nil, ragerr.Errorf(ragerr.CodeCLISetupFailure, "creating services: %w", err)
	}

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, svc)
	if err != nil {
		return nil, ragerr.Errorf(ragerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// No-op service stubs for spec generation. Methods are never called.

type stubDocuments struct{}

func (stubDocuments) Ingest(context.Context, ingest.Request) (*ingest.Result, error) { return nil, nil }
func (stubDocuments) Delete(context.Context, string) error                            { return nil }
func (stubDocuments) Reconcile(context.Context) (*ingest.Report, error)               { return nil, nil }

type stubRetriever struct{}

func (stubRetriever) Retrieve(context.Context, string, int, *index.Filter) ([]retrieval.Hit, error) {
	return nil, nil
}

type stubAnswers struct{}

func (stubAnswers) Answer(context.Context, answer.Query) (*answer.Answer, error) { return nil, nil }
