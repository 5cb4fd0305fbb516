// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package postgres registers the "postgres" metadata store backend, using
// the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sigil-dev/ragd/internal/store"
	"github.com/sigil-dev/ragd/internal/store/sqldb"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

func init() {
	store.RegisterBackend("postgres", func(ctx context.Context, opts store.Options) (store.MetadataStore, error) {
		return Open(ctx, opts.PostgresDSN)
	})
}

// Open connects to dsn and applies pending migrations.
func Open(ctx context.Context, dsn string) (*sqldb.Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "opening postgres")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "pinging postgres")
	}

	if err := sqldb.Migrate(ctx, db, sqldb.Postgres, migrations, "migrations"); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sqldb.New(db, sqldb.Postgres), nil
}
