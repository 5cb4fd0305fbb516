// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqldb

import (
	"context"
	"database/sql"
	"io/fs"
	"path"
	"slices"
	"strings"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

// Migrate applies every *.sql file in dir of fsys, in lexical order, that is
// not yet recorded in schema_migrations. Each file runs in its own
// transaction.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect, fsys fs.FS, dir string) error {
	const ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreMigrationFailure, "creating schema_migrations")
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreMigrationFailure, "reading migrations")
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")

		var n int
		q := dialect.Rebind(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`)
		if err := db.QueryRowContext(ctx, q, version).Scan(&n); err != nil {
			return ragerr.Wrap(err, ragerr.CodeStoreMigrationFailure, "checking migration", ragerr.Field("version", version))
		}
		if n > 0 {
			continue
		}

		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return ragerr.Wrap(err, ragerr.CodeStoreMigrationFailure, "reading migration", ragerr.Field("version", version))
		}
		if err := apply(ctx, db, dialect, version, string(body)); err != nil {
			return err
		}
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, dialect Dialect, version, body string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreMigrationFailure, "beginning migration")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreMigrationFailure, "applying migration", ragerr.Field("version", version))
	}
	if _, err := tx.ExecContext(ctx, dialect.Rebind(`INSERT INTO schema_migrations (version) VALUES (?)`), version); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreMigrationFailure, "recording migration", ragerr.Field("version", version))
	}
	if err := tx.Commit(); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreMigrationFailure, "committing migration", ragerr.Field("version", version))
	}
	return nil
}
