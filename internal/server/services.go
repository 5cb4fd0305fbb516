// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"

	"github.com/sigil-dev/ragd/internal/answer"
	"github.com/sigil-dev/ragd/internal/index"
	"github.com/sigil-dev/ragd/internal/ingest"
	"github.com/sigil-dev/ragd/internal/retrieval"
	"github.com/sigil-dev/ragd/internal/store"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/sigil-dev/ragd/pkg/health"
)

// DocumentService writes documents. *ingest.Service implements it.
type DocumentService interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
	Delete(ctx context.Context, id string) error
	Reconcile(ctx context.Context) (*ingest.Report, error)
}

// RetrievalService returns ranked passages. *retrieval.Retriever implements it.
type RetrievalService interface {
	Retrieve(ctx context.Context, query string, k int, filter *index.Filter) ([]retrieval.Hit, error)
}

// AnswerService answers questions. *answer.Composer implements it.
type AnswerService interface {
	Answer(ctx context.Context, q answer.Query) (*answer.Answer, error)
}

// HealthService reports generator health. *generator.Managed implements it.
type HealthService interface {
	Health() health.Metrics
}

// Services holds dependencies injected into route handlers.
// Each field is an interface so subsystems can be mocked in tests.
// Use NewServices constructor to ensure all required services are provided.
type Services struct {
	documents DocumentService
	metadata  store.MetadataStore
	index     index.Index
	retriever RetrievalService
	answers   AnswerService
	health    HealthService // optional; nil omits generator health from /api/v1/status
}

// NewServices creates a Services instance with validation.
// Returns an error if any required service is nil.
func NewServices(docs DocumentService, metadata store.MetadataStore, idx index.Index,
	retriever RetrievalService, answers AnswerService, generatorHealth HealthService,
) (*Services, error) {
	if docs == nil {
		return nil, ragerr.New(ragerr.CodeServerConfigInvalid, "document service is required")
	}
	if metadata == nil {
		return nil, ragerr.New(ragerr.CodeServerConfigInvalid, "metadata store is required")
	}
	if idx == nil {
		return nil, ragerr.New(ragerr.CodeServerConfigInvalid, "vector index is required")
	}
	if retriever == nil {
		return nil, ragerr.New(ragerr.CodeServerConfigInvalid, "retrieval service is required")
	}
	if answers == nil {
		return nil, ragerr.New(ragerr.CodeServerConfigInvalid, "answer service is required")
	}
	return &Services{
		documents: docs,
		metadata:  metadata,
		index:     idx,
		retriever: retriever,
		answers:   answers,
		health:    generatorHealth,
	}, nil
}
