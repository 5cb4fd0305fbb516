// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sigil-dev/ragd/internal/answer"
	"github.com/sigil-dev/ragd/internal/index"
	"github.com/sigil-dev/ragd/internal/ingest"
	"github.com/sigil-dev/ragd/internal/retrieval"
	"github.com/sigil-dev/ragd/internal/store"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/sigil-dev/ragd/pkg/health"
)

// statusClientClosed is reported when the caller went away mid-request.
const statusClientClosed = 499

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "ingest-document",
		Method:        http.MethodPost,
		Path:          "/api/v1/documents",
		Summary:       "Ingest or replace a document",
		Tags:          []string{"documents"},
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  s.cfg.MaxBodyBytes,
	}, s.handleIngestDocument)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-documents",
		Method:      http.MethodGet,
		Path:        "/api/v1/documents",
		Summary:     "List committed documents",
		Tags:        []string{"documents"},
	}, s.handleListDocuments)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-document",
		Method:      http.MethodGet,
		Path:        "/api/v1/documents/{id}",
		Summary:     "Get a document and its chunks",
		Tags:        []string{"documents"},
	}, s.handleGetDocument)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-document",
		Method:        http.MethodDelete,
		Path:          "/api/v1/documents/{id}",
		Summary:       "Delete a document",
		Tags:          []string{"documents"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteDocument)

	huma.Register(s.api, huma.Operation{
		OperationID: "query",
		Method:      http.MethodPost,
		Path:        "/api/v1/query",
		Summary:     "Answer a question from the indexed documents",
		Tags:        []string{"query"},
	}, s.handleQuery)

	huma.Register(s.api, huma.Operation{
		OperationID: "retrieve",
		Method:      http.MethodPost,
		Path:        "/api/v1/retrieve",
		Summary:     "Return the passages most relevant to a query",
		Tags:        []string{"query"},
	}, s.handleRetrieve)

	huma.Register(s.api, huma.Operation{
		OperationID: "reconcile",
		Method:      http.MethodPost,
		Path:        "/api/v1/reconcile",
		Summary:     "Repair drift between the index and the metadata store",
		Tags:        []string{"system"},
	}, s.handleReconcile)

	huma.Register(s.api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Index size and generator health",
		Tags:        []string{"system"},
	}, s.handleStatus)
}

// --- Response types ---

// DocumentSummary is the listing view of a committed document.
type DocumentSummary struct {
	ID          string            `json:"id"`
	Title       string            `json:"title,omitempty"`
	SourceURI   string            `json:"source_uri,omitempty"`
	ContentType string            `json:"content_type"`
	ContentHash string            `json:"content_hash"`
	IngestedAt  time.Time         `json:"ingested_at"`
	Chunks      int               `json:"chunks"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ChunkView is a chunk as returned by the API.
type ChunkView struct {
	ID          string `json:"id"`
	Ordinal     int    `json:"ordinal"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	Text        string `json:"text"`
}

// DocumentDetail is a document with its chunks.
type DocumentDetail struct {
	DocumentSummary
	Content   string      `json:"content,omitempty" doc:"Normalized text, only when requested"`
	ChunkList []ChunkView `json:"chunk_list"`
}

// StatusBody describes the running service.
type StatusBody struct {
	Status     string          `json:"status" example:"ok"`
	IndexSize  int             `json:"index_size" doc:"Vectors currently searchable"`
	Dimensions int             `json:"dimensions"`
	Metric     string          `json:"metric"`
	Generator  *health.Metrics `json:"generator,omitempty"`
}

// NewDocumentSummary builds the listing view of d.
func NewDocumentSummary(d *store.Document) DocumentSummary {
	return DocumentSummary{
		ID:          d.ID,
		Title:       d.Title,
		SourceURI:   d.SourceURI,
		ContentType: d.ContentType,
		ContentHash: d.ContentHash,
		IngestedAt:  d.IngestedAt,
		Chunks:      d.ChunkCount,
		Metadata:    d.Metadata,
	}
}

// NewDocumentDetail builds the detail view of d. The normalized content is
// included only when withContent is set.
func NewDocumentDetail(d *store.Document, chunks []store.Chunk, withContent bool) DocumentDetail {
	detail := DocumentDetail{
		DocumentSummary: NewDocumentSummary(d),
		ChunkList:       make([]ChunkView, 0, len(chunks)),
	}
	if withContent {
		detail.Content = d.Content
	}
	for _, c := range chunks {
		detail.ChunkList = append(detail.ChunkList, ChunkView{
			ID:          c.ID,
			Ordinal:     c.Ordinal,
			StartOffset: c.StartOffset,
			EndOffset:   c.EndOffset,
			Text:        c.Text,
		})
	}
	return detail
}

// --- Input/Output types ---

type ingestDocumentInput struct {
	Body struct {
		ID          string            `json:"id,omitempty" doc:"Document id; generated when empty. An existing id is replaced."`
		Title       string            `json:"title,omitempty"`
		SourceURI   string            `json:"source_uri,omitempty"`
		ContentType string            `json:"content_type,omitempty" doc:"Detected from source_uri and content when empty"`
		Content     []byte            `json:"content,omitempty" doc:"Raw document bytes, base64 encoded"`
		Text        string            `json:"text,omitempty" doc:"Plain text alternative to content"`
		Metadata    map[string]string `json:"metadata,omitempty"`
	}
}
type ingestDocumentOutput struct {
	Body *ingest.Result
}

type listDocumentsInput struct {
	Limit  int `query:"limit" minimum:"0" maximum:"1000" default:"100"`
	Offset int `query:"offset" minimum:"0"`
}
type listDocumentsOutput struct {
	Body struct {
		Documents []DocumentSummary `json:"documents"`
	}
}

type documentIDInput struct {
	ID string `path:"id"`
}

type getDocumentInput struct {
	ID             string `path:"id"`
	IncludeContent bool   `query:"content" doc:"Include the normalized document text"`
}
type getDocumentOutput struct {
	Body DocumentDetail
}

type queryBody struct {
	Query       string   `json:"query" doc:"Natural-language question or search text"`
	K           int      `json:"k,omitempty" doc:"Passages to retrieve; the configured top_k when zero"`
	DocumentIDs []string `json:"document_ids,omitempty" doc:"Restrict retrieval to these documents"`
}

func (b queryBody) filter() *index.Filter {
	if len(b.DocumentIDs) == 0 {
		return nil
	}
	return &index.Filter{DocumentIDs: b.DocumentIDs}
}

type queryInput struct {
	Body queryBody
}
type queryOutput struct {
	Body *answer.Answer
}

type retrieveOutput struct {
	Body struct {
		Hits []retrieval.Hit `json:"hits"`
	}
}

type reconcileOutput struct {
	Body *ingest.Report
}

type statusOutput struct {
	Body StatusBody
}

// --- Handlers ---

func (s *Server) handleIngestDocument(ctx context.Context, input *ingestDocumentInput) (*ingestDocumentOutput, error) {
	content := input.Body.Content
	if len(content) == 0 {
		content = []byte(input.Body.Text)
	}
	res, err := s.services.documents.Ingest(ctx, ingest.Request{
		DocumentID:  input.Body.ID,
		Title:       input.Body.Title,
		SourceURI:   input.Body.SourceURI,
		ContentType: input.Body.ContentType,
		Content:     content,
		Metadata:    input.Body.Metadata,
	})
	if err != nil {
		return nil, s.apiError(ctx, "ingesting document", err)
	}
	return &ingestDocumentOutput{Body: res}, nil
}

func (s *Server) handleListDocuments(ctx context.Context, input *listDocumentsInput) (*listDocumentsOutput, error) {
	docs, err := s.services.metadata.ListDocuments(ctx, store.ListOpts{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return nil, s.apiError(ctx, "listing documents", err)
	}
	out := &listDocumentsOutput{}
	out.Body.Documents = make([]DocumentSummary, 0, len(docs))
	for _, d := range docs {
		out.Body.Documents = append(out.Body.Documents, NewDocumentSummary(d))
	}
	return out, nil
}

func (s *Server) handleGetDocument(ctx context.Context, input *getDocumentInput) (*getDocumentOutput, error) {
	doc, err := s.services.metadata.GetDocument(ctx, input.ID)
	if err != nil {
		return nil, s.apiError(ctx, "getting document", err)
	}
	chunks, err := s.services.metadata.ListChunks(ctx, input.ID)
	if err != nil {
		return nil, s.apiError(ctx, "listing chunks", err)
	}
	return &getDocumentOutput{Body: NewDocumentDetail(doc, chunks, input.IncludeContent)}, nil
}

func (s *Server) handleDeleteDocument(ctx context.Context, input *documentIDInput) (*struct{}, error) {
	if err := s.services.documents.Delete(ctx, input.ID); err != nil {
		return nil, s.apiError(ctx, "deleting document", err)
	}
	return nil, nil
}

func (s *Server) handleQuery(ctx context.Context, input *queryInput) (*queryOutput, error) {
	ans, err := s.services.answers.Answer(ctx, answer.Query{
		Text:   input.Body.Query,
		K:      input.Body.K,
		Filter: input.Body.filter(),
	})
	if err != nil {
		return nil, s.apiError(ctx, "answering query", err)
	}
	return &queryOutput{Body: ans}, nil
}

func (s *Server) handleRetrieve(ctx context.Context, input *queryInput) (*retrieveOutput, error) {
	hits, err := s.services.retriever.Retrieve(ctx, input.Body.Query, input.Body.K, input.Body.filter())
	if err != nil {
		return nil, s.apiError(ctx, "retrieving passages", err)
	}
	out := &retrieveOutput{}
	out.Body.Hits = hits
	if out.Body.Hits == nil {
		out.Body.Hits = []retrieval.Hit{}
	}
	return out, nil
}

func (s *Server) handleReconcile(ctx context.Context, _ *struct{}) (*reconcileOutput, error) {
	report, err := s.services.documents.Reconcile(ctx)
	if err != nil {
		return nil, s.apiError(ctx, "reconciling", err)
	}
	return &reconcileOutput{Body: report}, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *struct{}) (*statusOutput, error) {
	n, err := s.services.index.Len(ctx)
	if err != nil {
		return nil, s.apiError(ctx, "reading index size", err)
	}
	out := &statusOutput{Body: StatusBody{
		Status:     "ok",
		IndexSize:  n,
		Dimensions: s.services.index.Dimensions(),
		Metric:     string(s.services.index.Metric()),
	}}
	if s.services.health != nil {
		m := s.services.health.Health()
		out.Body.Generator = &m
		if !m.Available {
			out.Body.Status = "degraded"
		}
	}
	return out, nil
}

// apiError converts a domain error into a huma status error. Client errors
// carry the message; server errors are logged and reported generically.
func (s *Server) apiError(ctx context.Context, op string, err error) error {
	code := &huma.ErrorDetail{Location: "code", Value: string(ragerr.CodeOf(err))}

	switch {
	case errors.Is(err, context.Canceled):
		return huma.NewError(statusClientClosed, op+": request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		return huma.NewError(http.StatusGatewayTimeout, op+": deadline exceeded", code)
	}

	status := ragerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(ctx, "request failed", "operation", op, "status", status, "error", err)
		return huma.NewError(status, op+" failed", code)
	}
	return huma.NewError(status, err.Error(), code)
}
