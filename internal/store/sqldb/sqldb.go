// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package sqldb implements store.MetadataStore over database/sql. The SQLite
// and Postgres backends share it and differ only in their Dialect and
// migrations.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sigil-dev/ragd/internal/store"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of '?'.
	Numbered bool
}

var (
	SQLite   = Dialect{Name: "sqlite"}
	Postgres = Dialect{Name: "postgres", Numbered: true}
)

// Rebind rewrites '?' placeholders for the dialect.
func (d Dialect) Rebind(q string) string {
	if !d.Numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ store.MetadataStore = (*Store)(nil)

// Store is a MetadataStore backed by documents and chunks tables in which
// each row carries a status of pending or committed.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open, migrated database.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB exposes the underlying handle for backend-specific maintenance.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) exec(ctx context.Context, tx *sql.Tx, q string, args ...any) error {
	_, err := tx.ExecContext(ctx, s.dialect.Rebind(q), args...)
	return err
}

func dbErr(err error, msg string, fields ...ragerr.Attr) error {
	return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, msg, fields...)
}

func (s *Store) CreatePending(ctx context.Context, doc *store.Document, chunks []store.Chunk) error {
	if err := store.ValidateDocument(doc, chunks); err != nil {
		return err
	}

	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDocumentInvalid, "encoding document metadata", ragerr.FieldDocumentID(doc.ID))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.deleteVersion(ctx, tx, doc.ID, store.StatusPending); err != nil {
		return err
	}

	const insDoc = `INSERT INTO documents
(id, status, source_uri, title, content_type, content, content_hash, ingested_at, metadata, chunk_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if err := s.exec(ctx, tx, insDoc, doc.ID, string(store.StatusPending), doc.SourceURI, doc.Title,
		doc.ContentType, doc.Content, doc.ContentHash, doc.IngestedAt.UTC().UnixNano(), string(meta), len(chunks)); err != nil {
		return dbErr(err, "inserting pending document", ragerr.FieldDocumentID(doc.ID))
	}

	stmt, err := tx.PrepareContext(ctx, s.dialect.Rebind(`INSERT INTO chunks
(id, status, document_id, ordinal, text, start_offset, end_offset)
VALUES (?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return dbErr(err, "preparing chunk insert")
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, string(store.StatusPending), c.DocumentID, c.Ordinal,
			c.Text, c.StartOffset, c.EndOffset); err != nil {
			return dbErr(err, "inserting pending chunk", ragerr.FieldChunkID(c.ID))
		}
	}

	if err := tx.Commit(); err != nil {
		return dbErr(err, "committing pending document", ragerr.FieldDocumentID(doc.ID))
	}
	return nil
}

func (s *Store) deleteVersion(ctx context.Context, tx *sql.Tx, id string, status store.DocumentStatus) error {
	if err := s.exec(ctx, tx, `DELETE FROM chunks WHERE document_id = ? AND status = ?`, id, string(status)); err != nil {
		return dbErr(err, "deleting chunks", ragerr.FieldDocumentID(id))
	}
	if err := s.exec(ctx, tx, `DELETE FROM documents WHERE id = ? AND status = ?`, id, string(status)); err != nil {
		return dbErr(err, "deleting document", ragerr.FieldDocumentID(id))
	}
	return nil
}

// Commit replaces the committed version with the pending one inside a
// single transaction.
func (s *Store) Commit(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	q := s.dialect.Rebind(`SELECT COUNT(*) FROM documents WHERE id = ? AND status = ?`)
	if err := tx.QueryRowContext(ctx, q, documentID, string(store.StatusPending)).Scan(&n); err != nil {
		return dbErr(err, "checking pending document", ragerr.FieldDocumentID(documentID))
	}
	if n == 0 {
		return store.NotFound(documentID)
	}

	if err := s.deleteVersion(ctx, tx, documentID, store.StatusCommitted); err != nil {
		return err
	}
	committed, pending := string(store.StatusCommitted), string(store.StatusPending)
	if err := s.exec(ctx, tx, `UPDATE documents SET status = ? WHERE id = ? AND status = ?`, committed, documentID, pending); err != nil {
		return dbErr(err, "promoting document", ragerr.FieldDocumentID(documentID))
	}
	if err := s.exec(ctx, tx, `UPDATE chunks SET status = ? WHERE document_id = ? AND status = ?`, committed, documentID, pending); err != nil {
		return dbErr(err, "promoting chunks", ragerr.FieldDocumentID(documentID))
	}

	if err := tx.Commit(); err != nil {
		return ragerr.Wrap(err, ragerr.CodeIngestCommitFailure, "committing document", ragerr.FieldDocumentID(documentID))
	}
	return nil
}

func (s *Store) Rollback(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.deleteVersion(ctx, tx, documentID, store.StatusPending); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dbErr(err, "committing rollback", ragerr.FieldDocumentID(documentID))
	}
	return nil
}

const documentColumns = `id, status, source_uri, title, content_type, content, content_hash, ingested_at, metadata, chunk_count`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*store.Document, error) {
	var (
		d      store.Document
		status string
		nanos  int64
		meta   string
	)
	if err := row.Scan(&d.ID, &status, &d.SourceURI, &d.Title, &d.ContentType, &d.Content,
		&d.ContentHash, &nanos, &meta, &d.ChunkCount); err != nil {
		return nil, err
	}
	d.Status = store.DocumentStatus(status)
	d.IngestedAt = time.Unix(0, nanos).UTC()
	if meta != "" && meta != "null" {
		if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
			return nil, ragerr.Wrap(err, ragerr.CodeStoreConsistencyBroken, "decoding document metadata",
				ragerr.FieldDocumentID(d.ID))
		}
	}
	return &d, nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*store.Document, error) {
	q := s.dialect.Rebind(`SELECT ` + documentColumns + ` FROM documents WHERE id = ? AND status = ?`)
	d, err := scanDocument(s.db.QueryRowContext(ctx, q, id, string(store.StatusCommitted)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound(id)
	}
	if err != nil {
		return nil, dbErr(err, "getting document", ragerr.FieldDocumentID(id))
	}
	return d, nil
}

func (s *Store) ListDocuments(ctx context.Context, opts store.ListOpts) ([]*store.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE status = ? ORDER BY ingested_at DESC, id ASC`
	args := []any{string(store.StatusCommitted)}
	if opts.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 && s.dialect.Name == SQLite.Name {
		q += ` LIMIT -1`
	}
	if opts.Offset > 0 {
		q += ` OFFSET ?`
		args = append(args, opts.Offset)
	}
	return s.queryDocuments(ctx, q, args...)
}

func (s *Store) ListPending(ctx context.Context, olderThan time.Time) ([]*store.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE status = ? AND ingested_at < ? ORDER BY ingested_at DESC, id ASC`
	return s.queryDocuments(ctx, q, string(store.StatusPending), olderThan.UTC().UnixNano())
}

func (s *Store) queryDocuments(ctx context.Context, q string, args ...any) ([]*store.Document, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(q), args...)
	if err != nil {
		return nil, dbErr(err, "listing documents")
	}
	defer func() { _ = rows.Close() }()

	docs := []*store.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, dbErr(err, "scanning document")
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(err, "iterating documents")
	}
	return docs, nil
}

// maxInArgs keeps IN lists under SQLite's default variable limit.
const maxInArgs = 500

func (s *Store) GetChunks(ctx context.Context, ids []string) ([]store.Chunk, error) {
	found := make(map[string]store.Chunk, len(ids))
	for start := 0; start < len(ids); start += maxInArgs {
		batch := ids[start:min(start+maxInArgs, len(ids))]
		args := make([]any, 0, len(batch)+1)
		args = append(args, string(store.StatusCommitted))
		for _, id := range batch {
			args = append(args, id)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		q := `SELECT id, document_id, ordinal, text, start_offset, end_offset FROM chunks
WHERE status = ? AND id IN (` + placeholders + `)`

		chunks, err := s.queryChunks(ctx, q, args...)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			found[c.ID] = c
		}
	}

	out := make([]store.Chunk, 0, len(found))
	for _, id := range ids {
		if c, ok := found[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) ListChunks(ctx context.Context, documentID string) ([]store.Chunk, error) {
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	q := `SELECT id, document_id, ordinal, text, start_offset, end_offset FROM chunks
WHERE status = ? AND document_id = ? ORDER BY ordinal`
	return s.queryChunks(ctx, q, string(store.StatusCommitted), documentID)
}

func (s *Store) queryChunks(ctx context.Context, q string, args ...any) ([]store.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(q), args...)
	if err != nil {
		return nil, dbErr(err, "querying chunks")
	}
	defer func() { _ = rows.Close() }()

	var chunks []store.Chunk
	for rows.Next() {
		var c store.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Text, &c.StartOffset, &c.EndOffset); err != nil {
			return nil, dbErr(err, "scanning chunk")
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(err, "iterating chunks")
	}
	return chunks, nil
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM documents WHERE id = ? AND status = ?`),
		id, string(store.StatusCommitted))
	if err != nil {
		return dbErr(err, "deleting document", ragerr.FieldDocumentID(id))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.NotFound(id)
	}
	if err := s.exec(ctx, tx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return dbErr(err, "deleting chunks", ragerr.FieldDocumentID(id))
	}
	if err := s.exec(ctx, tx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return dbErr(err, "deleting pending document", ragerr.FieldDocumentID(id))
	}

	if err := tx.Commit(); err != nil {
		return dbErr(err, "committing delete", ragerr.FieldDocumentID(id))
	}
	return nil
}

func (s *Store) CommittedChunkIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`SELECT id FROM chunks WHERE status = ?`),
		string(store.StatusCommitted))
	if err != nil {
		return nil, dbErr(err, "listing chunk ids")
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, dbErr(err, "scanning chunk id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr(err, "iterating chunk ids")
	}
	slices.Sort(ids)
	return ids, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
