// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := ragerr.New(
		ragerr.CodeStoreDocumentNotFound,
		"document missing",
		ragerr.FieldDocumentID("doc-123"),
		ragerr.FieldOperation("get"),
	)

	require.Error(t, err)
	assert.Equal(t, ragerr.CodeStoreDocumentNotFound, ragerr.CodeOf(err))
	assert.True(t, ragerr.HasCode(err, ragerr.CodeStoreDocumentNotFound))

	fields := ragerr.FieldsOf(err)
	assert.Equal(t, "doc-123", fields["document_id"])
	assert.Equal(t, "get", fields["operation"])
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := ragerr.Errorf(ragerr.CodeIndexDimensionMismatch, "query has %d dimensions, index has %d", 3, 384)
	require.Error(t, err)
	assert.Equal(t, ragerr.CodeIndexDimensionMismatch, ragerr.CodeOf(err))
	assert.Contains(t, err.Error(), "query has 3 dimensions, index has 384")
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := ragerr.Errorf(ragerr.CodeStoreDatabaseFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, ragerr.CodeStoreDatabaseFailure, ragerr.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Wrap / Wrapf
// ---------------------------------------------------------------------------

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("no rows")
	err := ragerr.Wrap(root, ragerr.CodeStoreDocumentNotFound, "loading document",
		ragerr.FieldDocumentID("doc-42"),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.True(t, ragerr.IsNotFound(err))
	assert.Equal(t, "doc-42", ragerr.FieldsOf(err)["document_id"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, ragerr.Wrap(nil, ragerr.CodeServerInternalFailure, "ignored"))
	assert.NoError(t, ragerr.Wrapf(nil, ragerr.CodeServerInternalFailure, "ignored %s", "arg"))
}

func TestWrapfFormatsAndPreservesChain(t *testing.T) {
	root := stderrors.New("connection refused")
	err := ragerr.Wrapf(root, ragerr.CodeEmbeddingBackendUnavailable, "calling %s model %s", "google", "text-embedding-004")

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.True(t, ragerr.IsUnavailable(err))
	assert.Contains(t, err.Error(), "calling google model text-embedding-004")
}

func TestWrapKeepsInnermostCode(t *testing.T) {
	inner := ragerr.New(ragerr.CodeStoreDatabaseFailure, "db")
	outer := ragerr.Wrap(inner, ragerr.CodeServerInternalFailure, "handler")
	assert.Equal(t, ragerr.CodeStoreDatabaseFailure, ragerr.CodeOf(outer))
}

// ---------------------------------------------------------------------------
// Reclassify
// ---------------------------------------------------------------------------

func TestReclassifyOverridesInnerCode(t *testing.T) {
	inner := ragerr.New(ragerr.CodeGeneratorTimeout, "deadline exceeded")
	err := ragerr.Reclassify(inner, ragerr.CodeAnswerGenerationFailure, "generation failed",
		ragerr.FieldAttempts(3),
	)

	require.Error(t, err)
	assert.Equal(t, ragerr.CodeAnswerGenerationFailure, ragerr.CodeOf(err))
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, 3, ragerr.FieldsOf(err)["attempts"])
	assert.Contains(t, err.Error(), "deadline exceeded")
}

func TestReclassifySurvivesWith(t *testing.T) {
	inner := ragerr.New(ragerr.CodeGeneratorTimeout, "deadline exceeded")
	err := ragerr.With(
		ragerr.Reclassify(inner, ragerr.CodeAnswerGenerationFailure, "generation failed"),
		ragerr.FieldOperation("answer"),
	)
	assert.Equal(t, ragerr.CodeAnswerGenerationFailure, ragerr.CodeOf(err))
	assert.ErrorIs(t, err, inner)
}

func TestReclassifyNilReturnsNil(t *testing.T) {
	assert.NoError(t, ragerr.Reclassify(nil, ragerr.CodeAnswerGenerationFailure, "x"))
}

// ---------------------------------------------------------------------------
// With
// ---------------------------------------------------------------------------

func TestWithAddsContextWithoutChangingCode(t *testing.T) {
	base := ragerr.New(ragerr.CodeIndexDimensionMismatch, "bad vector")
	withCtx := ragerr.With(base, ragerr.FieldChunkID("doc#1"))

	require.Error(t, withCtx)
	assert.Equal(t, ragerr.CodeIndexDimensionMismatch, ragerr.CodeOf(withCtx))
	assert.Equal(t, "doc#1", ragerr.FieldsOf(withCtx)["chunk_id"])
}

func TestWithNilReturnsNil(t *testing.T) {
	assert.NoError(t, ragerr.With(nil, ragerr.FieldChunkID("x")))
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	enriched := ragerr.With(stderrors.New("something broke"), ragerr.FieldOperation("ingest"))

	require.Error(t, enriched)
	assert.Equal(t, ragerr.CodeServerInternalFailure, ragerr.CodeOf(enriched))
	assert.Equal(t, "ingest", ragerr.FieldsOf(enriched)["operation"])
}

// ---------------------------------------------------------------------------
// HasCode / CodeOf / FieldsOf
// ---------------------------------------------------------------------------

func TestHasCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ragerr.Code
		want bool
	}{
		{
			name: "matching code",
			err:  ragerr.New(ragerr.CodeStoreChunkNotFound, "gone"),
			code: ragerr.CodeStoreChunkNotFound,
			want: true,
		},
		{
			name: "non-matching code",
			err:  ragerr.New(ragerr.CodeStoreChunkNotFound, "gone"),
			code: ragerr.CodeStoreDatabaseFailure,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			code: ragerr.CodeStoreChunkNotFound,
			want: false,
		},
		{
			name: "plain stdlib error has no code",
			err:  stderrors.New("plain"),
			code: ragerr.CodeServerInternalFailure,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ragerr.HasCode(tt.err, tt.code))
		})
	}
}

func TestCodeOfAndFieldsOfOnPlainErrors(t *testing.T) {
	assert.Equal(t, ragerr.Code(""), ragerr.CodeOf(nil))
	assert.Equal(t, ragerr.Code(""), ragerr.CodeOf(stderrors.New("plain")))
	assert.Nil(t, ragerr.FieldsOf(nil))
	assert.Nil(t, ragerr.FieldsOf(stderrors.New("plain")))
}

func TestFieldsWithEmptyKeyAreIgnored(t *testing.T) {
	err := ragerr.New(ragerr.CodeStoreDatabaseFailure, "oops",
		ragerr.Field("", "should-be-dropped"),
		ragerr.FieldProvider("kept"),
	)
	fields := ragerr.FieldsOf(err)
	assert.Equal(t, "kept", fields["provider"])
	assert.NotContains(t, fields, "")
}

func TestErrorIsThroughMultipleLayers(t *testing.T) {
	sentinel := stderrors.New("root cause")
	mid := fmt.Errorf("mid: %w", sentinel)
	first := ragerr.Wrap(mid, ragerr.CodeStoreDatabaseFailure, "layer 1")
	second := ragerr.Wrap(first, ragerr.CodeServerInternalFailure, "layer 2")

	assert.ErrorIs(t, second, sentinel)
	assert.Equal(t, ragerr.CodeStoreDatabaseFailure, ragerr.CodeOf(second))
}

// ---------------------------------------------------------------------------
// Classification helpers
// ---------------------------------------------------------------------------

func TestClassificationAndStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   ragerr.Code
		status int
		check  func(error) bool
	}{
		{name: "document not found", code: ragerr.CodeStoreDocumentNotFound, status: 404, check: ragerr.IsNotFound},
		{name: "chunk not found", code: ragerr.CodeStoreChunkNotFound, status: 404, check: ragerr.IsNotFound},
		{name: "conflict", code: ragerr.CodeStoreDocumentConflict, status: 409, check: ragerr.IsConflict},
		{name: "config invalid", code: ragerr.CodeConfigValidateInvalidValue, status: 400, check: ragerr.IsInvalidInput},
		{name: "chunker invalid", code: ragerr.CodeChunkerConfigInvalid, status: 400, check: ragerr.IsInvalidInput},
		{name: "empty input", code: ragerr.CodeEmbeddingInputEmpty, status: 400, check: ragerr.IsInvalidInput},
		{name: "dimension mismatch", code: ragerr.CodeIndexDimensionMismatch, status: 400, check: ragerr.IsDimensionMismatch},
		{name: "invalid query", code: ragerr.CodeAnswerQueryInvalid, status: 400, check: ragerr.IsInvalidInput},
		{name: "rate limited", code: ragerr.CodeServerRateLimited, status: 429, check: ragerr.IsRateLimited},
		{name: "generator timeout", code: ragerr.CodeGeneratorTimeout, status: 504, check: ragerr.IsTimeout},
		{name: "embedding unavailable", code: ragerr.CodeEmbeddingBackendUnavailable, status: 503, check: ragerr.IsUnavailable},
		{name: "generator upstream", code: ragerr.CodeGeneratorUpstreamFailure, status: 503, check: ragerr.IsUpstreamFailure},
		{name: "generation failed", code: ragerr.CodeAnswerGenerationFailure, status: 503, check: func(err error) bool {
			return ragerr.HasCode(err, ragerr.CodeAnswerGenerationFailure)
		}},
		{name: "generator auth", code: ragerr.CodeGeneratorAuthDenied, status: 502, check: ragerr.IsUnauthorized},
		{name: "inconsistent", code: ragerr.CodeStoreConsistencyBroken, status: 500, check: ragerr.IsInconsistent},
		{name: "internal", code: ragerr.CodeServerInternalFailure, status: 500, check: func(err error) bool { return !ragerr.IsNotFound(err) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ragerr.New(tt.code, "boom")
			assert.Equal(t, tt.status, ragerr.HTTPStatus(err))
			assert.True(t, tt.check(err))
		})
	}
}

func TestClassificationNegativeCases(t *testing.T) {
	for _, err := range []error{
		nil,
		stderrors.New("plain"),
		ragerr.New(ragerr.CodeStoreDatabaseFailure, "db error"),
	} {
		assert.False(t, ragerr.IsNotFound(err))
		assert.False(t, ragerr.IsConflict(err))
		assert.False(t, ragerr.IsInvalidInput(err))
		assert.False(t, ragerr.IsUnauthorized(err))
		assert.False(t, ragerr.IsRateLimited(err))
		assert.False(t, ragerr.IsTimeout(err))
		assert.False(t, ragerr.IsUnavailable(err))
		assert.False(t, ragerr.IsInconsistent(err))
		assert.False(t, ragerr.IsUpstreamFailure(err))
	}
}

func TestHTTPStatusPlainErrorReturnsInternalServerError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, ragerr.HTTPStatus(nil))
	assert.Equal(t, http.StatusInternalServerError, ragerr.HTTPStatus(stderrors.New("oops")))
}

// ---------------------------------------------------------------------------
// Join
// ---------------------------------------------------------------------------

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("first")
	b := stderrors.New("second")
	joined := ragerr.Join(a, b)

	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Equal(t, ragerr.CodeServerInternalFailure, ragerr.CodeOf(joined))
}

func TestJoinOfNilsIsNil(t *testing.T) {
	assert.NoError(t, ragerr.Join(nil, nil))
}
