// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package sqlite implements index.Index on SQLite with the sqlite-vec
// extension. Searches are exact scans evaluated inside SQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/ragd/internal/index"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
	index.Register("sqlite", func(_ context.Context, opts index.Options) (index.Index, error) {
		if err := os.MkdirAll(opts.DataDir, 0o700); err != nil {
			return nil, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "creating index data dir")
		}
		return Open(filepath.Join(opts.DataDir, "index.db"), opts.Dimensions, opts.Metric)
	})
}

var _ index.Index = (*Index)(nil)

// Index stores vectors as sqlite-vec float32 blobs alongside their squared
// norm, which lets dot-product scores be derived from L2 distance.
type Index struct {
	db     *sql.DB
	dims   int
	metric index.Metric
}

// Open opens (or creates) the index database at dbPath. An existing database
// built with a different metric or dimension is refused.
func Open(dbPath string, dims int, metric index.Metric) (*Index, error) {
	if metric == "" {
		metric = index.MetricCosine
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "opening index db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "pinging index db")
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "migrating index db")
	}
	if err := checkMeta(db, dims, metric); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Index{db: db, dims: dims, metric: metric}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS vectors (
	chunk_id    TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	embedding   BLOB NOT NULL,
	norm2       REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vectors_document ON vectors(document_id);

CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("creating index tables: %w", err)
	}
	return nil
}

// checkMeta records dimensions and metric on first open and compares them
// on every later open.
func checkMeta(db *sql.DB, dims int, metric index.Metric) error {
	want := map[string]string{
		"dimensions": strconv.Itoa(dims),
		"metric":     string(metric),
	}
	for key, value := range want {
		var stored string
		err := db.QueryRow(`SELECT value FROM index_meta WHERE key = ?`, key).Scan(&stored)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := db.Exec(`INSERT INTO index_meta(key, value) VALUES (?, ?)`, key, value); err != nil {
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

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO vectors(chunk_id, document_id, embedding, norm2) VALUES (?, ?, ?, ?)
ON CONFLICT(chunk_id) DO UPDATE SET document_id = excluded.document_id, embedding = excluded.embedding, norm2 = excluded.norm2`)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "preparing upsert")
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		blob, err := sqlite_vec.SerializeFloat32(e.Vector)
		if err != nil {
			return ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "serializing embedding", ragerr.FieldChunkID(e.ChunkID))
		}
		if _, err := stmt.ExecContext(ctx, e.ChunkID, e.DocumentID, blob, norm2(e.Vector)); err != nil {
			return ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "upserting vector", ragerr.FieldChunkID(e.ChunkID))
		}
	}

	if err := tx.Commit(); err != nil {
		return ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "committing upsert")
	}
	return nil
}

// maxInArgs keeps each DELETE under SQLite's default variable limit.
const maxInArgs = 500

// Remove deletes the entries in batches inside one transaction.
func (x *Index) Remove(ctx context.Context, chunkIDs ...string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(chunkIDs); start += maxInArgs {
		batch := chunkIDs[start:min(start+maxInArgs, len(chunkIDs))]
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE chunk_id IN (`+placeholders+`)`, args...); err != nil {
			return ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "deleting vectors")
		}
	}

	if err := tx.Commit(); err != nil {
		return ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "committing delete")
	}
	return nil
}

// Search scores every candidate row in SQL. Cosine uses vec_distance_cosine;
// dot product is recovered from vec_distance_l2 and the stored norms.
func (x *Index) Search(ctx context.Context, query []float32, k int, filter *index.Filter) ([]index.Result, error) {
	if err := index.CheckQuery(query, k, x.dims); err != nil {
		return nil, err
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "serializing query vector")
	}

	scoreExpr := `CASE WHEN norm2 = 0 OR ?2 = 0 THEN 0.0 ELSE 1.0 - vec_distance_cosine(embedding, ?1) END`
	if x.metric == index.MetricDot {
		scoreExpr = `(norm2 + ?2 - vec_distance_l2(embedding, ?1) * vec_distance_l2(embedding, ?1)) / 2.0`
	}

	args := []any{blob, norm2(query)}
	where := ""
	if filter != nil && len(filter.DocumentIDs) > 0 {
		ph := make([]string, len(filter.DocumentIDs))
		for i, id := range filter.DocumentIDs {
			args = append(args, id)
			ph[i] = "?" + strconv.Itoa(len(args))
		}
		where = " WHERE document_id IN (" + strings.Join(ph, ",") + ")"
	}
	args = append(args, k)

	q := `SELECT chunk_id, document_id, score FROM (
	SELECT chunk_id, document_id, ` + scoreExpr + ` AS score FROM vectors` + where + `
) ORDER BY score DESC, chunk_id ASC LIMIT ?` + strconv.Itoa(len(args))

	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "searching vectors")
	}
	defer func() { _ = rows.Close() }()

	var results []index.Result
	for rows.Next() {
		var r index.Result
		var score float64
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &score); err != nil {
			return nil, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "scanning search result")
		}
		r.Score = float32(score)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "iterating search results")
	}
	return results, nil
}

func (x *Index) ChunkIDs(ctx context.Context, documentID string) ([]string, error) {
	return x.ids(ctx, `SELECT chunk_id FROM vectors WHERE document_id = ? ORDER BY chunk_id`, documentID)
}

func (x *Index) All(ctx context.Context) ([]string, error) {
	return x.ids(ctx, `SELECT chunk_id FROM vectors ORDER BY chunk_id`)
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
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n); err != nil {
		return 0, ragerr.Wrap(err, ragerr.CodeIndexDatabaseFailure, "counting vectors")
	}
	return n, nil
}

func (x *Index) Dimensions() int { return x.dims }

func (x *Index) Metric() index.Metric { return x.metric }

// Close closes the underlying database connection.
func (x *Index) Close() error {
	return x.db.Close()
}

func norm2(v []float32) float64 {
	var s float64
	for _, f := range v {
		s += float64(f) * float64(f)
	}
	return s
}
