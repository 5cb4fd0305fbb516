// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreDocumentNotFound       Code = "store.document.not_found"
	CodeStoreChunkNotFound          Code = "store.chunk.not_found"
	CodeStoreConsistencyBroken      Code = "store.consistency.inconsistent"
	CodeStoreDocumentConflict       Code = "store.document.conflict"
	CodeStoreDocumentInvalid        Code = "store.document.invalid_input"
	CodeStoreDatabaseFailure        Code = "store.database.failure"
	CodeStoreBackendUnsupported     Code = "store.backend.unsupported"
	CodeStoreMigrationFailure       Code = "store.migration.failure"
	CodeIndexDimensionMismatch      Code = "index.dimension.mismatch"
	CodeIndexMetricMismatch         Code = "index.metric.invalid"
	CodeIndexQueryInvalid           Code = "index.query.invalid_input"
	CodeIndexDatabaseFailure        Code = "index.database.failure"
	CodeIndexBackendUnsupported     Code = "index.backend.unsupported"
	CodeChunkerConfigInvalid        Code = "chunker.config.invalid"
	CodeParseContentTypeUnknown     Code = "parse.content_type.invalid"
	CodeParseDocumentInvalid        Code = "parse.document.invalid_format"
	CodeEmbeddingInputEmpty         Code = "embedding.input.empty"
	CodeEmbeddingBackendUnavailable Code = "embedding.backend.unavailable"
	CodeEmbeddingResponseInvalid    Code = "embedding.response.invalid"
	CodeEmbeddingConfigInvalid      Code = "embedding.config.invalid"
	CodeEmbeddingDimensionMismatch  Code = "embedding.dimension.mismatch"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeGeneratorRequestInvalid  Code = "generator.request.invalid"
	CodeGeneratorAuthDenied      Code = "generator.auth.denied"
	CodeGeneratorUpstreamFailure Code = "generator.upstream.failure"
	CodeGeneratorRateLimited     Code = "generator.rate.exceeded"
	CodeGeneratorTimeout         Code = "generator.call.timeout"
	CodeGeneratorResponseInvalid Code = "generator.response.invalid"
	CodeGeneratorNotFound        Code = "generator.registry.not_found"
	CodeGeneratorKeyCheckFailure Code = "generator.key.failure"

	CodeRetrievalQueryInvalid Code = "retrieval.query.invalid"

	CodeAnswerQueryInvalid      Code = "answer.query.invalid"
	CodeAnswerGenerationFailure Code = "answer.generation.failure"

	CodeIngestDocumentInvalid  Code = "ingest.document.invalid_input"
	CodeIngestDocumentTooLarge Code = "ingest.document.invalid_value"
	CodeIngestCommitFailure    Code = "ingest.commit.failure"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"
	CodeServerRateLimited     Code = "server.rate.exceeded"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid"
	CodeCLIServerDown   Code = "cli.server.unavailable"

	CodeGuardContentBlocked Code = "guard.content.invalid_input"
	CodeGuardConfigInvalid  Code = "guard.config.invalid"

	CodeSecretResolveFailure Code = "secret.resolve.failure"
	CodeSecretNotFound       Code = "secret.keyring.not_found"
	CodeSecretInvalidInput   Code = "secret.uri.invalid"
	CodeSecretStoreFailure   Code = "secret.keyring.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// FieldValue creates a structured error field.
func FieldValue(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// Field is kept as the primary helper for terse callsites.
func Field(key string, value any) Attr {
	return FieldValue(key, value)
}

func FieldDocumentID(value string) Attr {
	return Field("document_id", value)
}

func FieldChunkID(value string) Attr {
	return Field("chunk_id", value)
}

func FieldOperation(value string) Attr {
	return Field("operation", value)
}

func FieldAttempts(value int) Attr {
	return Field("attempts", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// Reclassify returns an error carrying code that still matches cause through
// errors.Is and errors.As. Unlike Wrap, code takes precedence over any code
// already present in cause's chain.
func Reclassify(cause error, code Code, msg string, fields ...Attr) error {
	if cause == nil {
		return nil
	}

	return &reclassified{
		coded: oops.Code(code).With(flatten(fields)...).Errorf("%s: %s", msg, cause.Error()),
		cause: cause,
	}
}

type reclassified struct {
	coded error
	cause error
}

func (e *reclassified) Error() string { return e.coded.Error() }

func (e *reclassified) Unwrap() []error { return []error{e.coded, e.cause} }

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format" ||
		r == "empty" || r == "mismatch"
}

func IsUnauthorized(err error) bool {
	r := reason(CodeOf(err))
	return r == "unauthorized" || r == "forbidden" || r == "denied"
}

// IsRateLimited reports a throttled call, local or upstream.
func IsRateLimited(err error) bool {
	return reason(CodeOf(err)) == "exceeded"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsUnavailable(err error) bool {
	return reason(CodeOf(err)) == "unavailable"
}

func IsInconsistent(err error) bool {
	return reason(CodeOf(err)) == "inconsistent"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

// IsDimensionMismatch reports a vector whose length disagrees with the
// configured embedding dimension.
func IsDimensionMismatch(err error) bool {
	return reason(CodeOf(err)) == "mismatch"
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsUnauthorized(err):
		return http.StatusBadGateway
	case IsRateLimited(err):
		return http.StatusTooManyRequests
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUnavailable(err), IsUpstreamFailure(err), HasCode(err, CodeAnswerGenerationFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	return oops.Code(CodeServerInternalFailure).Wrap(joined)
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
