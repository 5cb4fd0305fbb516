// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package pgvector implements index.Index on PostgreSQL with the pgvector
// extension. Search goes through an HNSW index and is approximate.
package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/sigil-dev/ragd/internal/index"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

func init() {
	index.Register("pgvector", func(ctx context.Context, opts index.Options) (index.Index, error) {
		return Open(ctx, opts.PostgresDSN, opts.Dimensions, opts.Metric)
	})
}

var _ index.Index = (*Index)(nil)

// Index stores vectors in the ragd_vectors table.
type Index struct {
	db     *sql.DB
	dims   int
	metric index.Metric
}

// Open connects to dsn, creates the extension and tables when missing, and
// refuses a database built with a different metric or dimension.
func Open(ctx context.Context, dsn string, dims int, metric index.Metric) (*Index, error) {
	if metric == "" {
		metric = index.MetricCosine
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "opening postgres")
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "pinging postgres")
	}

	x := &Index{db: db, dims: dims, metric: metric}
	if err := x.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return x, nil
}

func (x *Index) opclass() string {
	if x.metric == index.MetricDot {
		return "vector_ip_ops"
	}
	return "vector_cosine_ops"
}

func (x *Index) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS ragd_index_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ragd_vectors (
			chunk_id    TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			embedding   vector(%d) NOT NULL
		)`, x.dims),
		`CREATE INDEX IF NOT EXISTS ragd_vectors_document_idx ON ragd_vectors (document_id)`,
	}
	for _, s := range stmts {
		if _, err := x.db.ExecContext(ctx, s); err != nil {
			return ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "migrating pgvector index")
		}
	}

	if err := x.checkMeta(ctx); err != nil {
		return err
	}

	hnsw := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS ragd_vectors_embedding_idx ON ragd_vectors USING hnsw (embedding %s)`, x.opclass())
	if _, err := x.db.ExecContext(ctx, hnsw); err != nil {
		return ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "creating hnsw index")
	}
	return nil
}

func (x *Index) checkMeta(ctx context.Context) error {
	for _, kv := range [][2]string{{"dimensions", strconv.Itoa(x.dims)}, {"metric", string(x.metric)}} {
		key, value := kv[0], kv[1]
		var stored string
		err := x.db.QueryRowContext(ctx, `SELECT value FROM ragd_index_meta WHERE key = $1`, key).Scan(&stored)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := x.db.ExecContext(ctx,
				`INSERT INTO ragd_index_meta (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`, key, value); err != nil {
				return ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "recording index "+key)
			}
		case err != nil:
			return ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "reading index "+key)
		case stored != value:
			code := ragerr.CodeIndexMetricMismatch
			if key == "dimensions" {
				code = ragerr.CodeIndexDimensionMismatch
			}
			return ragerr.New(code, "index was built with a different "+key+"; rebuild required",
				ragerr.Field("stored", stored), ragerr.Field("configured", value))
		}
	}
	return nil
}

func (x *Index) Upsert(ctx context.Context, entries ...index.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := index.CheckEntries(entries, x.dims); err != nil {
		return err
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ragd_vectors (chunk_id, document_id, embedding)
			VALUES ($1, $2, $3)
			ON CONFLICT (chunk_id) DO UPDATE SET
				document_id = EXCLUDED.document_id,
				embedding = EXCLUDED.embedding
		`, e.ChunkID, e.DocumentID, pgv.NewVector(e.Vector))
		if err != nil {
			return ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "upserting vector", ragerr.FieldChunkID(e.ChunkID))
		}
	}

	if err := tx.Commit(); err != nil {
		return ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "committing upsert")
	}
	return nil
}

func (x *Index) Remove(ctx context.Context, chunkIDs ...string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	if _, err := x.db.ExecContext(ctx, `DELETE FROM ragd_vectors WHERE chunk_id = ANY($1)`, chunkIDs); err != nil {
		return ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "deleting vectors")
	}
	return nil
}

// Search orders by the pgvector distance operator so the HNSW index is
// used, then converts distance to similarity.
func (x *Index) Search(ctx context.Context, query []float32, k int, filter *index.Filter) ([]index.Result, error) {
	if err := index.CheckQuery(query, k, x.dims); err != nil {
		return nil, err
	}

	op, score := "<=>", "1 - (embedding <=> $1)"
	if x.metric == index.MetricDot {
		op, score = "<#>", "(embedding <#> $1) * -1"
	}

	args := []any{pgv.NewVector(query), k}
	where := ""
	if filter != nil && len(filter.DocumentIDs) > 0 {
		args = append(args, filter.DocumentIDs)
		where = "WHERE document_id = ANY($3)"
	}

	q := fmt.Sprintf(`
		SELECT chunk_id, document_id, %s AS score
		FROM ragd_vectors
		%s
		ORDER BY embedding %s $1, chunk_id
		LIMIT $2`, score, where, op)

	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "searching vectors")
	}
	defer func() { _ = rows.Close() }()

	var results []index.Result
	for rows.Next() {
		var r index.Result
		var s float64
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &s); err != nil {
			return nil, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "scanning search result")
		}
		r.Score = float32(s)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "iterating search results")
	}

	// HNSW returns candidates in distance order; restore the tie-break.
	index.SortResults(results)
	return results, nil
}

func (x *Index) ChunkIDs(ctx context.Context, documentID string) ([]string, error) {
	return x.ids(ctx, `SELECT chunk_id FROM ragd_vectors WHERE document_id = $1 ORDER BY chunk_id`, documentID)
}

func (x *Index) All(ctx context.Context) ([]string, error) {
	return x.ids(ctx, `SELECT chunk_id FROM ragd_vectors ORDER BY chunk_id`)
}

func (x *Index) ids(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "listing chunk ids")
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "scanning chunk id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "iterating chunk ids")
	}
	return ids, nil
}

func (x *Index) Len(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ragd_vectors`).Scan(&n); err != nil {
		return 0, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "counting vectors")
	}
	return n, nil
}

func (x *Index) Dimensions() int { return x.dims }

func (x *Index) Metric() index.Metric { return x.metric }

func (x *Index) Close() error {
	return x.db.Close()
}
