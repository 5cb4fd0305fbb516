// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package sqlite registers the "sqlite" metadata store backend.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/ragd/internal/store"
	"github.com/sigil-dev/ragd/internal/store/sqldb"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

func init() {
	store.RegisterBackend("sqlite", func(ctx context.Context, opts store.Options) (store.MetadataStore, error) {
		if err := os.MkdirAll(opts.DataDir, 0o700); err != nil {
			return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "creating data dir")
		}
		return Open(ctx, filepath.Join(opts.DataDir, "metadata.db"))
	})
}

// Open opens (or creates) a SQLite metadata database at dbPath and applies
// pending migrations.
func Open(ctx context.Context, dbPath string) (*sqldb.Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "opening metadata db")
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "pinging metadata db")
	}

	if err := sqldb.Migrate(ctx, db, sqldb.SQLite, migrations, "migrations"); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sqldb.New(db, sqldb.SQLite), nil
}
